// Package auth provides the authentication boundary for sharefs. The real
// identity provider lives outside the system; this package only validates a
// presented credential and yields the principal id it stands for.
package auth

import (
	"context"
	"errors"
)

// ErrAuthenticationFailed is returned when a credential cannot be validated.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator defines the interface for principal authentication
type Authenticator interface {
	// Authenticate validates a token and returns the associated principal id
	Authenticate(ctx context.Context, token string) (principalID string, err error)
}
