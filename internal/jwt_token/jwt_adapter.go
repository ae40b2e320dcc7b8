package jwttoken

import (
	"time"

	"titulaciones/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *AccessTokenClaims) *middleware.BearerClaims {
	out := &middleware.BearerClaims{
		Subject:       claims.Subject,
		CNonce:        claims.CNonce,
		CredentialIDs: claims.CredentialIDs,
		JTI:           claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}

// JWTServiceAdapter exposes the service to the bearer middleware, which
// validates against the wall clock.
type JWTServiceAdapter struct {
	service *JWTService
	now     func() time.Time
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service, now: time.Now}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.BearerClaims, error) {
	claims, err := a.service.ValidateToken(tokenString, a.now())
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
