// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid input.
var ErrValidation = errors.New("validation failed")

// ErrInvalidSignature indicates a webhook payload whose signature is missing or wrong.
// Nothing may be created or mutated once this is returned.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrInvalidState is the single error returned for every OAuth state failure
// (blank, unknown, expired, replayed, superseded). Callers must not distinguish
// between the causes in anything user-visible.
var ErrInvalidState = errors.New("invalid or expired state")

// ErrParse indicates a malformed or incomplete webhook payload.
var ErrParse = errors.New("malformed payload")

// ErrDuplicateDelivery indicates a webhook delivery that is already being handled
// by another request. It is a success-no-op, never a failure.
var ErrDuplicateDelivery = errors.New("duplicate delivery")

// ErrAuthentication indicates a failed OAuth callback other than a bad state,
// such as a missing or rejected authorization code.
var ErrAuthentication = errors.New("authentication failed")
