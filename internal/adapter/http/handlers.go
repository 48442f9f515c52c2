package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
	"github.com/Strob0t/TaskForge/internal/service"
)

// GitHub webhook headers.
const (
	headerGitHubEvent     = "X-GitHub-Event"
	headerGitHubDelivery  = "X-GitHub-Delivery"
	headerGitHubSignature = "X-Hub-Signature-256"
)

const defaultWebhookBodyLimit = 25 << 20 // GitHub caps payloads at 25 MB

// Handlers holds the HTTP handlers of the GitHub integration.
type Handlers struct {
	Webhooks         *service.WebhookService
	OAuth            *service.OAuthService
	Connections      *service.ConnectionService
	WebhookBodyLimit int64
}

// HandleGitHubWebhook handles POST /api/v1/webhooks/github and
// POST /api/v1/webhooks/github/{connectionID}.
//
// Every delivery that passes signature verification is answered with 200,
// including ones that were skipped, so GitHub does not redeliver them.
func (h *Handlers) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	limit := h.WebhookBodyLimit
	if limit <= 0 {
		limit = defaultWebhookBodyLimit
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	d := webhook.Delivery{
		ID:           r.Header.Get(headerGitHubDelivery),
		ConnectionID: urlParam(r, "connectionID"),
		Event:        webhook.EventType(r.Header.Get(headerGitHubEvent)),
		Signature:    r.Header.Get(headerGitHubSignature),
		Body:         body,
		ReceivedAt:   time.Now().UTC(),
	}

	res, err := h.Webhooks.Process(r.Context(), d)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, domain.ErrInvalidSignature.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type oauthStartRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
}

// StartOAuth handles POST /api/v1/github/oauth/start.
func (h *Handlers) StartOAuth(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[oauthStartRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.UserID, "user_id") || !requireField(w, req.ProjectID, "project_id") {
		return
	}

	start, err := h.OAuth.Start(r.Context(), req.UserID, req.ProjectID)
	if err != nil {
		writeDomainError(w, r, err, "authorization could not be started")
		return
	}
	writeJSON(w, http.StatusOK, start)
}

// OAuthCallback handles GET /api/v1/github/oauth/callback.
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// The user declined on GitHub. The state is still burned so it
		// cannot be replayed with a forged code.
		_, _ = h.OAuth.Callback(r.Context(), q.Get("state"), "")
		writeError(w, http.StatusUnauthorized, domain.ErrAuthentication.Error())
		return
	}

	res, err := h.OAuth.Callback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		writeDomainError(w, r, err, "authorization failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetConnectionHealth handles GET /api/v1/github/connections/{id}/health.
func (h *Handlers) GetConnectionHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.Connections.Health(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "connection not found")
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// InvalidateConnection handles POST /api/v1/github/connections/{id}/invalidate.
// The product calls it after changing a connection so cached lookups are dropped.
func (h *Handlers) InvalidateConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.Connections.Invalidate(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, r, err, "connection not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webhookConfigRequest struct {
	CallbackURL string `json:"callback_url"`
}

// CreateWebhookConfig handles POST /api/v1/github/webhook-config. It returns
// the hook registration, including a fresh unique secret, that the product
// sends to GitHub.
func (h *Handlers) CreateWebhookConfig(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[webhookConfigRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	cfg, err := h.Connections.WebhookConfig(r.Context(), req.CallbackURL)
	if err != nil {
		writeDomainError(w, r, err, "webhook config unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
