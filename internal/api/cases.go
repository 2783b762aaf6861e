package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"casegate/internal/compliance"
	"casegate/internal/domain"
)

type caseResponse struct {
	Case      domain.Case       `json:"case"`
	Documents []domain.Document `json:"documents"`
}

type syncedResponse struct {
	Sync compliance.SyncResult `json:"sync"`
}

type createDocumentRequest struct {
	Name   string                `json:"name"`
	Tag    domain.DocumentTag    `json:"tag"`
	Status domain.DocumentStatus `json:"status,omitempty"`
}

type documentResponse struct {
	Document domain.Document       `json:"document"`
	Sync     compliance.SyncResult `json:"sync"`
}

type updateFieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

type caseFieldsResponse struct {
	Case domain.Case           `json:"case"`
	Sync compliance.SyncResult `json:"sync"`
}

type advanceRequest struct {
	Target domain.Stage `json:"target"`
}

type advanceResponse struct {
	Gate compliance.GateResult  `json:"gate"`
	Case *domain.Case           `json:"case,omitempty"`
	Sync *compliance.SyncResult `json:"sync,omitempty"`
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.GetCase(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docs, err := h.Store.ListDocuments(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caseResponse{Case: c, Documents: docs})
}

// EvaluateSnapshot runs the rule engine over a caller-supplied snapshot
// without touching persisted blockers.
func (h *Handler) EvaluateSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap domain.CaseSnapshot
	if err := decodeJSON(w, r, &snap); err != nil {
		h.writeError(w, r, err)
		return
	}
	if snap.OrganizationID == "" {
		h.writeError(w, r, badRequest("organization_id is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	candidates, err := h.Engine.Evaluate(ctx, snap.OrganizationID, snap)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blockers": candidates})
}

func (h *Handler) EvaluateCase(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := h.Store.LoadSnapshot(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	candidates, err := h.Engine.Evaluate(ctx, snap.OrganizationID, snap)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_id": caseID, "blockers": candidates})
}

func (h *Handler) SyncCase(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Reconciler.Sync(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncedResponse{Sync: res})
}

func (h *Handler) ListBlockers(w http.ResponseWriter, r *http.Request, caseID string) {
	includeResolved := false
	if v := r.URL.Query().Get("include_resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, r, badRequest("include_resolved must be a boolean"))
			return
		}
		includeResolved = b
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Store.GetCase(ctx, caseID); err != nil {
		h.writeError(w, r, err)
		return
	}
	blockers, err := h.Store.ListBlockers(ctx, caseID, includeResolved)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case_id": caseID, "blockers": blockers})
}

func (h *Handler) CheckGate(w http.ResponseWriter, r *http.Request, caseID string) {
	target := domain.Stage(r.URL.Query().Get("target"))
	if target == "" {
		h.writeError(w, r, badRequest("target query parameter is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Gate.CanAdvance(ctx, caseID, target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CheckClose(w http.ResponseWriter, r *http.Request, caseID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Gate.CanClose(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdvanceCase moves a case to the target stage when the gate allows it.
// A denied advance answers 409 with the blocking rules.
func (h *Handler) AdvanceCase(w http.ResponseWriter, r *http.Request, caseID string) {
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	gate, err := h.Gate.CanAdvance(ctx, caseID, req.Target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !gate.Allowed {
		writeJSON(w, http.StatusConflict, advanceResponse{Gate: gate})
		return
	}
	if err := h.Store.SetCaseStage(ctx, caseID, req.Target); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Reconciler.Sync(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.Store.GetCase(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Info("case advanced", "case_id", caseID, "stage", string(req.Target))
	writeJSON(w, http.StatusOK, advanceResponse{Gate: gate, Case: &c, Sync: &res})
}

func (h *Handler) UpdateFields(w http.ResponseWriter, r *http.Request, caseID string) {
	var req updateFieldsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Fields) == 0 {
		h.writeError(w, r, badRequest("fields must not be empty"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	c, err := h.Store.UpdateCaseFields(ctx, caseID, req.Fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Reconciler.Sync(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caseFieldsResponse{Case: c, Sync: res})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request, caseID string) {
	var req createDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Tag == "" {
		h.writeError(w, r, badRequest("tag is required"))
		return
	}
	if !req.Tag.Known() {
		h.writeError(w, r, badRequest("unknown document tag %q", req.Tag))
		return
	}
	if req.Name == "" {
		req.Name = req.Tag.Label()
	}
	if req.Status == "" {
		req.Status = domain.DocumentGenerated
	}
	switch {
	case !req.Status.Valid():
		h.writeError(w, r, badRequest("unknown document status %q", req.Status))
		return
	case req.Status == domain.DocumentSentForSignature:
		h.writeError(w, r, badRequest("status %s is set by signature requests", req.Status))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	now := h.now().UTC()
	doc := domain.Document{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		Name:      req.Name,
		Tag:       req.Tag,
		Status:    req.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.CreateDocument(ctx, doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Reconciler.Sync(ctx, caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse{Document: doc, Sync: res})
}
