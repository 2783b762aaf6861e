package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/compliance/evaluate", h.EvaluateSnapshot)
		if h.Verifier != nil && h.Dispatcher != nil {
			r.Post("/webhooks/signature", h.ReceiveSignatureWebhook)
		}

		r.Route("/cases/{caseId}", func(r chi.Router) {
			caseRoute := func(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					fn(w, r, chi.URLParam(r, "caseId"))
				}
			}
			r.Get("/", caseRoute(h.GetCase))
			r.Get("/compliance", caseRoute(h.EvaluateCase))
			r.Post("/sync", caseRoute(h.SyncCase))
			r.Get("/blockers", caseRoute(h.ListBlockers))
			r.Get("/gate", caseRoute(h.CheckGate))
			r.Get("/close-check", caseRoute(h.CheckClose))
			r.Post("/advance", caseRoute(h.AdvanceCase))
			r.Patch("/fields", caseRoute(h.UpdateFields))
			r.Post("/documents", caseRoute(h.CreateDocument))
		})

		r.Post("/documents/{documentId}/signature-requests", func(w http.ResponseWriter, r *http.Request) {
			h.CreateSignatureRequest(w, r, chi.URLParam(r, "documentId"))
		})

		r.Route("/envelopes/{envelopeId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetEnvelope(w, r, chi.URLParam(r, "envelopeId"))
			})
			r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
				h.CancelEnvelope(w, r, chi.URLParam(r, "envelopeId"))
			})
			r.Post("/resend", func(w http.ResponseWriter, r *http.Request) {
				h.ResendEnvelope(w, r, chi.URLParam(r, "envelopeId"))
			})
			r.Route("/signers/{signerId}", func(r chi.Router) {
				r.Post("/signing-url", func(w http.ResponseWriter, r *http.Request) {
					h.GetSigningURL(w, r, chi.URLParam(r, "envelopeId"), chi.URLParam(r, "signerId"))
				})
				r.Post("/sign", func(w http.ResponseWriter, r *http.Request) {
					h.SignEnvelope(w, r, chi.URLParam(r, "envelopeId"), chi.URLParam(r, "signerId"))
				})
				r.Post("/decline", func(w http.ResponseWriter, r *http.Request) {
					h.DeclineEnvelope(w, r, chi.URLParam(r, "envelopeId"), chi.URLParam(r, "signerId"))
				})
			})
		})

		r.Get("/sign/{envelopeId}/{signerId}", func(w http.ResponseWriter, r *http.Request) {
			h.VerifySigningLink(w, r, chi.URLParam(r, "envelopeId"), chi.URLParam(r, "signerId"))
		})

		r.Route("/orgs/{orgId}/rules", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.ListRules(w, r, chi.URLParam(r, "orgId"))
			})
			r.Put("/{ruleId}", func(w http.ResponseWriter, r *http.Request) {
				h.PutRule(w, r, chi.URLParam(r, "orgId"), chi.URLParam(r, "ruleId"))
			})
		})
	})

	return r
}
