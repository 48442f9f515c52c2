// Package githuboauth implements the OAuth provider port against GitHub.
package githuboauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/Strob0t/TaskForge/internal/config"
	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/port/oauthprovider"
)

const exchangeTimeout = 15 * time.Second

// Provider exchanges GitHub authorization codes.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	secret     func() string
}

var _ oauthprovider.Provider = (*Provider)(nil)

// New creates a GitHub provider from cfg.
func New(cfg config.GitHub) *Provider {
	return NewWithEndpoint(cfg, github.Endpoint)
}

// NewWithEndpoint creates a provider against a custom endpoint, such as a
// GitHub Enterprise server.
func NewWithEndpoint(cfg config.GitHub, endpoint oauth2.Endpoint) *Provider {
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{Timeout: exchangeTimeout},
	}
}

// WithClientSecret makes the provider read the client secret from fn on every
// exchange so a rotated secret takes effect without a restart.
func (p *Provider) WithClientSecret(fn func() string) *Provider {
	p.secret = fn
	return p
}

// AuthCodeURL returns the GitHub authorization URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauthprovider.Token, error) {
	cfg := p.config
	if p.secret != nil {
		c := *p.config
		c.ClientSecret = p.secret()
		cfg = &c
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := cfg.Exchange(ctx, code)
	if rejected(err) {
		return nil, fmt.Errorf("github token exchange: %w: %w", domain.ErrAuthentication, err)
	}
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}
	scope, _ := tok.Extra("scope").(string)
	return &oauthprovider.Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
		Expiry:      tok.Expiry,
	}, nil
}

// rejected reports whether GitHub answered and refused the code. GitHub
// reports bad codes with an error body, sometimes under a 200 status.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode != "" {
		return true
	}
	return re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
}
