package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteMiddleware holds the optional per-route middleware. Nil entries are skipped.
type RouteMiddleware struct {
	// RateLimit guards the OAuth routes.
	RateLimit func(http.Handler) http.Handler
	// Idempotency guards routes that create state.
	Idempotency func(http.Handler) http.Handler
}

func (m RouteMiddleware) chain(mws ...func(http.Handler) http.Handler) chi.Middlewares {
	var out chi.Middlewares
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, mw RouteMiddleware) {
	r.Get("/health", Health)

	// Authenticated by the per-connection signature, not by the caller.
	r.Post("/api/v1/webhooks/github", h.HandleGitHubWebhook)
	r.Post("/api/v1/webhooks/github/{connectionID}", h.HandleGitHubWebhook)

	r.Route("/api/v1/github", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.chain(mw.RateLimit)...)
			r.With(mw.chain(mw.Idempotency)...).Post("/oauth/start", h.StartOAuth)
			r.Get("/oauth/callback", h.OAuthCallback)
		})

		r.Get("/connections/{id}/health", h.GetConnectionHealth)
		r.Post("/connections/{id}/invalidate", h.InvalidateConnection)
		r.Post("/webhook-config", h.CreateWebhookConfig)
	})
}
