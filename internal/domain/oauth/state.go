// Package oauth defines the one-time authorization state used by the GitHub
// OAuth flow.
package oauth

import "time"

// StateTTL is the hard lifetime of an authorization state, counted from
// CreatedAt and independent of consumption.
const StateTTL = 15 * time.Minute

// AuthorizationState binds one authorization attempt to a (user, project) pair.
// Consumed only ever moves from false to true.
type AuthorizationState struct {
	Token     string    `json:"token"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
	Consumed  bool      `json:"consumed"`
}

// Expired reports whether s is older than ttl at now.
func (s *AuthorizationState) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// CallbackResult is handed to the product once the provider redirect has been
// validated and the code exchanged. The product owns what happens next.
type CallbackResult struct {
	UserID      string    `json:"user_id"`
	ProjectID   string    `json:"project_id"`
	RequestID   string    `json:"request_id"`
	AccessToken string    `json:"-"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}
