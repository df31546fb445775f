package main

import (
	"context"
	"errors"

	"github.com/mnemos/mnemos/pkg/store"
)

// staticTokenAuthenticator checks a bearer token against the configured
// single-owner API token. Mnemos has exactly one owner per instance, so
// there is no per-user token table to look up — every valid token
// resolves to the same owner.
type staticTokenAuthenticator struct {
	token   string
	store   *store.Store
	ownerID string
}

func (a *staticTokenAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	if a.token == "" || token != a.token {
		return "", errors.New("invalid token")
	}
	return a.ownerID, nil
}
