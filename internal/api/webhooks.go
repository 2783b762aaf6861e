package api

import (
	"io"
	"net/http"
)

const maxWebhookBytes = 1 << 20

// ReceiveSignatureWebhook accepts a vendor envelope event. The body is
// verified against X-Signature and handed to durable processing keyed by
// the event id, so a redelivery is acknowledged without running twice.
func (h *Handler) ReceiveSignatureWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		h.writeError(w, r, badRequest("failed to read body"))
		return
	}
	if len(body) > maxWebhookBytes {
		h.writeError(w, r, badRequest("body exceeds size limit"))
		return
	}

	ev, err := h.Verifier.Decode(r.Header, body)
	if err != nil {
		h.Logger.Warn("rejected webhook", "error", err)
		h.writeError(w, r, err)
		return
	}

	started, err := h.Dispatcher.DispatchEvent(r.Context(), ev)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := "accepted"
	if !started {
		status = "duplicate"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id": ev.ID,
		"type":     ev.Type,
		"status":   status,
	})
}
