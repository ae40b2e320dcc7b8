package testutil

import (
	"errors"
	"net/http"

	"titulaciones/internal/platform/middleware"
)

var _ middleware.BearerValidator = StaticBearer{}

// StaticBearer is a BearerValidator that accepts a fixed set of tokens.
type StaticBearer map[string]*middleware.BearerClaims

func (s StaticBearer) ValidateToken(token string) (*middleware.BearerClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return claims, nil
}

// WithBearer sets an Authorization header carrying token.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

