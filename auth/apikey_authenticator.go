package auth

import (
	"context"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys, each
// mapped to a principal id.
type APIKeyAuthenticator struct {
	principals map[string]string
}

// NewAPIKeyAuthenticator creates a new API key authenticator from a
// key -> principal id mapping.
func NewAPIKeyAuthenticator(keys map[string]string) *APIKeyAuthenticator {
	principals := make(map[string]string, len(keys))
	for key, principalID := range keys {
		if key != "" && principalID != "" {
			principals[key] = principalID
		}
	}
	return &APIKeyAuthenticator{principals: principals}
}

// Authenticate validates a token and returns the associated principal id
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	principalID, ok := a.principals[token]
	if !ok {
		return "", ErrAuthenticationFailed
	}
	return principalID, nil
}
