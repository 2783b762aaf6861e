package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"casegate/internal/domain"
	"casegate/internal/signature"
)

type createSignatureRequest struct {
	Signers []signature.SignerInput `json:"signers"`
}

type signatureRequestResponse struct {
	Envelope *domain.Envelope `json:"envelope"`
	Document domain.Document  `json:"document"`
}

// CreateSignatureRequest issues an envelope for a document. The document is
// linked to the envelope and marked sent even when no event handler is
// subscribed to the provider.
func (h *Handler) CreateSignatureRequest(w http.ResponseWriter, r *http.Request, documentID string) {
	var req createSignatureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	doc, err := h.Store.GetDocument(ctx, documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if doc.Status == domain.DocumentArchived {
		h.writeError(w, r, badRequest("document %s is archived", doc.ID))
		return
	}

	env, err := h.Provider.CreateEnvelope(ctx, doc.ID, doc.Name, req.Signers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err = h.Store.GetDocument(ctx, documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if doc.EnvelopeID == nil || *doc.EnvelopeID != env.ID {
		if err := h.Store.AttachEnvelope(ctx, doc.ID, env.ID, env.Status, h.now().UTC()); err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.Store.SetDocumentStatus(ctx, doc.ID, domain.DocumentSentForSignature); err != nil {
			h.writeError(w, r, err)
			return
		}
		if _, err := h.Reconciler.Sync(ctx, doc.CaseID); err != nil {
			h.writeError(w, r, err)
			return
		}
		if doc, err = h.Store.GetDocument(ctx, documentID); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, signatureRequestResponse{Envelope: env, Document: doc})
}

func (h *Handler) GetEnvelope(w http.ResponseWriter, r *http.Request, envelopeID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	env, err := h.Provider.GetEnvelope(ctx, envelopeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) GetSigningURL(w http.ResponseWriter, r *http.Request, envelopeID, signerID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	link, err := h.Provider.GetSigningURL(ctx, envelopeID, signerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

type envelopeAction func(ctx context.Context, envelopeID string) (*domain.Envelope, error)

type signerAction func(ctx context.Context, envelopeID, signerID string) (*domain.Envelope, error)

func (h *Handler) runEnvelopeAction(w http.ResponseWriter, r *http.Request, envelopeID string, action envelopeAction) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	env, err := action(ctx, envelopeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) runSignerAction(w http.ResponseWriter, r *http.Request, envelopeID, signerID string, action signerAction) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	env, err := action(ctx, envelopeID, signerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) SignEnvelope(w http.ResponseWriter, r *http.Request, envelopeID, signerID string) {
	h.runSignerAction(w, r, envelopeID, signerID, h.Provider.SimulateSign)
}

func (h *Handler) DeclineEnvelope(w http.ResponseWriter, r *http.Request, envelopeID, signerID string) {
	h.runSignerAction(w, r, envelopeID, signerID, h.Provider.SimulateDecline)
}

func (h *Handler) CancelEnvelope(w http.ResponseWriter, r *http.Request, envelopeID string) {
	h.runEnvelopeAction(w, r, envelopeID, h.Provider.CancelEnvelope)
}

func (h *Handler) ResendEnvelope(w http.ResponseWriter, r *http.Request, envelopeID string) {
	h.runEnvelopeAction(w, r, envelopeID, h.Provider.ResendNotification)
}

// VerifySigningLink validates the token on a minted signing link. The
// result is advisory and never gates a sign or decline call.
func (h *Handler) VerifySigningLink(w http.ResponseWriter, r *http.Request, envelopeID, signerID string) {
	q := r.URL.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		h.writeError(w, r, badRequest("expires must be a unix timestamp"))
		return
	}
	if err := h.URLs.Verify(envelopeID, signerID, expires, q.Get("token"), h.now()); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	env, err := h.Provider.GetEnvelope(ctx, envelopeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	signer, ok := env.Signer(signerID)
	if !ok {
		h.writeError(w, r, fmt.Errorf("signer %s: %w", signerID, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"envelope_id":   env.ID,
		"document_name": env.DocumentName,
		"envelope":      env.Status,
		"signer":        signer,
	})
}
