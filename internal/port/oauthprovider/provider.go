// Package oauthprovider defines the port to the external OAuth provider.
package oauthprovider

import (
	"context"
	"time"
)

// Token is the result of a successful authorization code exchange.
type Token struct {
	AccessToken string
	TokenType   string
	Scope       string
	Expiry      time.Time
}

// Provider builds authorization URLs and exchanges authorization codes.
type Provider interface {
	// AuthCodeURL returns the provider URL the user is redirected to.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token. A code the
	// provider refused fails with domain.ErrAuthentication; any other error
	// means the provider could not be reached or failed.
	Exchange(ctx context.Context, code string) (*Token, error)
}
