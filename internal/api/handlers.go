package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"casegate/internal/compliance"
	"casegate/internal/domain"
	"casegate/internal/signature"
	"casegate/internal/webhook"
)

// Store is the persistence surface the HTTP layer reads and mutates.
type Store interface {
	GetCase(ctx context.Context, caseID string) (domain.Case, error)
	UpdateCaseFields(ctx context.Context, caseID string, fields map[string]any) (domain.Case, error)
	SetCaseStage(ctx context.Context, caseID string, stage domain.Stage) error
	CreateDocument(ctx context.Context, d domain.Document) error
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error)
	SetDocumentStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error
	AttachEnvelope(ctx context.Context, documentID, envelopeID string, status domain.EnvelopeStatus, at time.Time) error
	ListBlockers(ctx context.Context, caseID string, includeResolved bool) ([]domain.Blocker, error)
	LoadSnapshot(ctx context.Context, caseID string) (domain.CaseSnapshot, error)
	UpsertRule(ctx context.Context, r domain.ComplianceRule) error
	ListRules(ctx context.Context, organizationID string) ([]domain.ComplianceRule, error)
}

// EventDispatcher hands verified vendor webhook events to durable
// processing. started is false for a redelivered event.
type EventDispatcher interface {
	DispatchEvent(ctx context.Context, ev webhook.Event) (started bool, err error)
}

type Deps struct {
	Store      Store
	Engine     *compliance.Engine
	Gate       *compliance.Gate
	Reconciler *compliance.Reconciler
	Provider   signature.Provider
	URLs       *signature.URLSigner
	Verifier   *webhook.Verifier
	Dispatcher EventDispatcher
	Metrics    http.Handler
	Ready      func(ctx context.Context) error
	Logger     *slog.Logger
}

type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "api")
	return &Handler{Deps: deps, now: time.Now}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, signature.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, webhook.ErrMissingSignature), errors.Is(err, webhook.ErrBadSignature):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, signature.ErrInvalidToken):
		return http.StatusForbidden, "invalid_token"
	case errors.Is(err, errBadRequest),
		errors.Is(err, signature.ErrInvalidEnvelope),
		errors.Is(err, compliance.ErrUnknownStage),
		errors.Is(err, webhook.ErrMalformedEvent):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errBadRequest}, args...)...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
