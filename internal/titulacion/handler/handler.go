package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"titulaciones/internal/platform/metrics"
	"titulaciones/internal/platform/middleware"
	"titulaciones/internal/titulacion/models"
	"titulaciones/internal/titulacion/service"
	dErrors "titulaciones/pkg/domain-errors"
	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/platform/httputil"
	"titulaciones/pkg/platform/middleware/admin"
)

// Service is the record API the handler drives.
type Service interface {
	List(ctx context.Context, id string) ([]models.Titulacion, error)
	Get(ctx context.Context, id string) (*models.Titulacion, error)
	Update(ctx context.Context, id string, record models.Titulacion) (*models.Titulacion, error)
	Revoke(ctx context.Context, id string) (*service.RevokeResult, error)
	Status(ctx context.Context, id string) (*service.Status, error)
	History(ctx context.Context, id string) ([]audit.Event, error)
}

// Handler serves the /titulaciones record endpoints.
type Handler struct {
	logger     *slog.Logger
	service    Service
	metrics    *metrics.Metrics
	adminToken string
	timeout    time.Duration
}

// New creates a record Handler. Mutations require adminToken in X-Admin-Token.
// timeout bounds each request and must exceed the ledger write timeout.
func New(svc Service, logger *slog.Logger, m *metrics.Metrics, adminToken string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Handler{
		logger:     logger,
		service:    svc,
		metrics:    m,
		adminToken: adminToken,
		timeout:    timeout,
	}
}

// Register registers the record routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.LatencyMiddleware(h.metrics))

		r.Get("/titulaciones", h.handleList)
		r.Get("/titulaciones/{id}", h.handleGet)
		r.Get("/titulaciones/{id}/status", h.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
			r.With(middleware.ContentTypeJSON).Put("/titulaciones/{id}", h.handleUpdate)
			r.Delete("/titulaciones/{id}", h.handleRevoke)
			r.Get("/titulaciones/{id}/audit", h.handleHistory)
		})
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.List(ctx, r.URL.Query().Get("id"))
	if err != nil {
		h.fail(ctx, w, "failed to list titulaciones", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to get titulacion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body models.Titulacion
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.WarnContext(ctx, "invalid titulacion update body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.Update(ctx, id, body)
	if err != nil {
		h.fail(ctx, w, "failed to update titulacion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	result, err := h.service.Revoke(ctx, id)
	if err != nil {
		if dErrors.Retryable(err) {
			h.logger.ErrorContext(ctx, "revocation ledger unavailable",
				"request_id", middleware.GetRequestID(ctx),
				"codigo_titulacion", id,
				"error", err.Error(),
			)
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
				"error":             string(dErrors.CodeLedgerDown),
				"error_description": "could not reach the revocation registry, retry the request",
				"retry":             true,
			})
			return
		}
		h.fail(ctx, w, "failed to revoke titulacion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.Status(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if dErrors.Retryable(err) {
			w.Header().Set("Retry-After", "5")
		}
		h.fail(ctx, w, "failed to read revocation status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.History(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to read audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
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
