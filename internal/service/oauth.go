package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/TaskForge/internal/adapter/otel"
	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/oauth"
	"github.com/Strob0t/TaskForge/internal/port/oauthprovider"
	"github.com/Strob0t/TaskForge/internal/resilience"
)

// OAuthService drives the GitHub OAuth authorization-code flow.
type OAuthService struct {
	states   *OAuthStateStore
	provider oauthprovider.Provider
	breaker  *resilience.Breaker
	metrics  *cfotel.Metrics
}

// AuthorizationStart is what the client needs to send the user to GitHub.
type AuthorizationStart struct {
	URL       string `json:"authorization_url"`
	State     string `json:"state"`
	RequestID string `json:"request_id"`
}

// NewOAuthService creates an OAuthService. breaker may be nil.
func NewOAuthService(states *OAuthStateStore, provider oauthprovider.Provider, breaker *resilience.Breaker) *OAuthService {
	return &OAuthService{states: states, provider: provider, breaker: breaker}
}

// SetMetrics attaches metric instruments.
func (s *OAuthService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Start issues a fresh state for (userID, projectID) and returns the provider
// URL carrying it.
func (s *OAuthService) Start(ctx context.Context, userID, projectID string) (*AuthorizationStart, error) {
	st, err := s.states.Generate(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "oauth authorization started", "user_id", userID, "project_id", projectID, "oauth_request_id", st.RequestID)
	return &AuthorizationStart{
		URL:       s.provider.AuthCodeURL(st.Token),
		State:     st.Token,
		RequestID: st.RequestID,
	}, nil
}

// Callback redeems state and exchanges code for a token. A bad state fails
// with domain.ErrInvalidState before the provider is contacted; a missing or
// rejected code fails with domain.ErrAuthentication.
func (s *OAuthService) Callback(ctx context.Context, state, code string) (*oauth.CallbackResult, error) {
	ctx, span := cfotel.StartOAuthCallbackSpan(ctx)
	defer span.End()

	res, err := s.callback(ctx, state, code)
	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "oauth callback rejected", "error", err)
	}
	if s.metrics != nil {
		s.metrics.OAuthCallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return res, err
}

func (s *OAuthService) callback(ctx context.Context, state, code string) (*oauth.CallbackResult, error) {
	st, err := s.states.ValidateAndConsume(ctx, state)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code missing: %w", domain.ErrAuthentication)
	}

	// Only transport and server failures count against the breaker.
	var tok *oauthprovider.Token
	var refused error
	exchange := func() error {
		t, err := s.provider.Exchange(ctx, code)
		if errors.Is(err, domain.ErrAuthentication) {
			refused = err
			return nil
		}
		tok = t
		return err
	}
	if s.breaker != nil {
		err = s.breaker.Execute(exchange)
	} else {
		err = exchange()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, err
	}
	if refused != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", refused)
	}
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w: %w", domain.ErrAuthentication, err)
	}

	slog.InfoContext(ctx, "oauth authorization completed", "user_id", st.UserID, "project_id", st.ProjectID, "oauth_request_id", st.RequestID)
	return &oauth.CallbackResult{
		UserID:      st.UserID,
		ProjectID:   st.ProjectID,
		RequestID:   st.RequestID,
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       tok.Scope,
		ExpiresAt:   tok.Expiry,
	}, nil
}
