package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/httputil"
	"titulaciones/pkg/requestcontext"
)

// BearerValidator validates wallet access tokens.
type BearerValidator interface {
	ValidateToken(tokenString string) (*BearerClaims, error)
}

// BearerClaims represents the claims the credential endpoint needs.
type BearerClaims struct {
	Subject       string
	CNonce        string
	CredentialIDs []string
	JTI           string
	ExpiresAt     time.Time
}

type contextKeyClaims struct{}

// GetBearerClaims retrieves the validated claims from the context.
func GetBearerClaims(ctx context.Context) *BearerClaims {
	claims, ok := ctx.Value(contextKeyClaims{}).(*BearerClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithBearerClaims stores validated claims; exported for handler tests.
func WithBearerClaims(ctx context.Context, claims *BearerClaims) context.Context {
	ctx = requestcontext.WithTokenSubject(ctx, claims.Subject)
	return context.WithValue(ctx, contextKeyClaims{}, claims)
}

// RequireBearer rejects requests without a valid access token.
func RequireBearer(validator BearerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidToken, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidToken, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithBearerClaims(ctx, claims)))
		})
	}
}
