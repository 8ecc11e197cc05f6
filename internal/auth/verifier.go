package auth

import (
	"context"
	"errors"
)

// TokenVerifier validates a bearer token and yields the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// ChainVerifier accepts a token when any of its verifiers accepts it.
type ChainVerifier []TokenVerifier

// Verify tries each verifier in order and joins the failures when none succeeds.
func (c ChainVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	if len(c) == 0 {
		return Claims{}, errors.New("auth: no token verifiers configured")
	}
	var failures []error
	for _, verifier := range c {
		claims, err := verifier.Verify(ctx, token)
		if err == nil {
			return claims, nil
		}
		failures = append(failures, err)
	}
	return Claims{}, errors.Join(failures...)
}
