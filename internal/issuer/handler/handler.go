package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"titulaciones/internal/issuer/credential"
	"titulaciones/internal/issuer/models"
	"titulaciones/internal/issuer/service"
	"titulaciones/internal/platform/metrics"
	"titulaciones/internal/platform/middleware"
	ratelimit "titulaciones/internal/ratelimit/models"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/httputil"
	"titulaciones/pkg/platform/middleware/metadata"
	"titulaciones/pkg/platform/middleware/requesttime"
)

const maxBodyBytes = 64 << 10

// Service is the issuance flow the handler drives.
type Service interface {
	CreateOffer(ctx context.Context, req *models.CreateOfferRequest) (*models.CreateOfferResult, error)
	RedeemForToken(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error)
	IssueCredential(ctx context.Context, in service.IssueCredentialInput) (*models.CredentialResult, error)
}

// RateLimiter guards an endpoint class.
type RateLimiter interface {
	RateLimit(class ratelimit.EndpointClass) func(http.Handler) http.Handler
}

// Config is the static part of the wallet-facing surface. A nil Limiter
// leaves every endpoint unlimited.
type Config struct {
	TokenPath string
	Metadata  models.IssuerMetadata
	JWKS      map[string]any
	Timeout   time.Duration
	Limiter   RateLimiter
}

// Handler serves the OID4VCI pre-authorized code endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator middleware.BearerValidator
	metrics   *metrics.Metrics
	cfg       Config
}

// New creates an issuer Handler.
func New(svc Service, validator middleware.BearerValidator, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.TokenPath == "" {
		cfg.TokenPath = "/token"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Handler{
		logger:    logger,
		service:   svc,
		validator: validator,
		metrics:   m,
		cfg:       cfg,
	}
}

// Register registers the issuer routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(metadata.ClientMetadata)
		r.Use(requesttime.Middleware)
		r.Use(middleware.Timeout(h.cfg.Timeout))
		r.Use(middleware.LatencyMiddleware(h.metrics))

		r.Get("/.well-known/openid-credential-issuer", h.handleMetadata)
		r.Get("/.well-known/jwks.json", h.handleJWKS)

		r.With(h.limit(ratelimit.ClassOffer), middleware.ContentTypeJSON).
			Post("/credentialOfferTitulacionDigital", h.handleCreateOffer)
		r.With(h.limit(ratelimit.ClassToken)).Post(h.cfg.TokenPath, h.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(h.limit(ratelimit.ClassCredential))
			r.Use(middleware.RequireBearer(h.validator, h.logger))
			r.With(middleware.ContentTypeJSON).Post("/credentials", h.handleCredential)
		})
	})
}

func (h *Handler) limit(class ratelimit.EndpointClass) func(http.Handler) http.Handler {
	if h.cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.cfg.Limiter.RateLimit(class)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.cfg.Metadata)
}

func (h *Handler) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.cfg.JWKS)
}

func (h *Handler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateOfferRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.CreateOffer(ctx, &req)
	if err != nil {
		h.fail(ctx, w, "failed to create credential offer", err)
		return
	}
	h.logger.InfoContext(ctx, "credential offer created",
		"request_id", middleware.GetRequestID(ctx),
		"credentials", req.CredentialIDs(),
		"user_pin_required", res.Pin != "",
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Cache-Control", "no-store")

	req, err := parseTokenRequest(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid token request body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid request body"))
		return
	}

	res, err := h.service.RedeemForToken(ctx, req)
	if err != nil {
		h.fail(ctx, w, "token request rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// parseTokenRequest accepts the form encoding OAuth mandates and the JSON
// body some wallets send.
func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*models.TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req models.TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &models.TokenRequest{
		GrantType:         r.PostForm.Get("grant_type"),
		PreAuthorizedCode: r.PostForm.Get("pre-authorized_code"),
		UserPin:           r.PostForm.Get("user_pin"),
	}, nil
}

func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := middleware.GetBearerClaims(ctx)
	if claims == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidToken, "missing access token"))
		return
	}

	var req models.CredentialRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.IssueCredential(ctx, service.IssueCredentialInput{
		Token: credential.TokenBinding{
			Subject:   claims.Subject,
			CNonce:    claims.CNonce,
			ExpiresAt: claims.ExpiresAt,
		},
		CredentialIDs: claims.CredentialIDs,
		Request:       &req,
	})
	if err != nil {
		h.fail(ctx, w, "credential request rejected", err)
		return
	}
	h.logger.InfoContext(ctx, "credential issued",
		"request_id", middleware.GetRequestID(ctx),
		"credential_id", res.Credential.ID,
		"holder", res.Credential.CredentialSubject.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
			return false
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// fail logs client errors at warn and everything else at error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	}
	if de, ok := dErrors.From(err); ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
	} else {
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
