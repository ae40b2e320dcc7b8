package jwttoken

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"titulaciones/internal/keys"
	dErrors "titulaciones/pkg/domain-errors"
)

// AccessTokenClaims is the payload of a wallet access token. Subject carries
// the redeemed pre-authorized code.
type AccessTokenClaims struct {
	CNonce        string   `json:"cnonce"`
	CredentialIDs []string `json:"credentials,omitempty"`
	jwt.RegisteredClaims
}

// JWTService mints and validates ES256K access tokens with the issuer key.
type JWTService struct {
	key    *keys.KeyMaterial
	issuer string
	ttl    time.Duration
}

func NewJWTService(key *keys.KeyMaterial, issuer string, ttl time.Duration) *JWTService {
	return &JWTService{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
	}
}

// TTL returns the access token lifetime.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

func (s *JWTService) GenerateAccessToken(
	subject string,
	cnonce string,
	credentialIDs []string,
	now time.Time) (string, error) {
	token := jwt.NewWithClaims(keys.SigningMethodES256K, AccessTokenClaims{
		CNonce:        cnonce,
		CredentialIDs: slices.Clone(credentialIDs),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	token.Header["kid"] = s.key.KeyID()

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "failed to sign access token")
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, issuer and expiry against now.
func (s *JWTService) ValidateToken(tokenString string, now time.Time) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
		return s.key.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{keys.AlgES256K}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidToken, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid token claims")
	}
	if claims.Subject == "" || claims.CNonce == "" {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "token missing subject or nonce")
	}
	return claims, nil
}
