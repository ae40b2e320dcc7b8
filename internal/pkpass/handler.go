package pkpass

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"titulaciones/internal/issuer/models"
	"titulaciones/internal/platform/middleware"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/httputil"
)

// GenerateRequest carries the credential to package.
type GenerateRequest struct {
	Credential *models.VerifiableCredential `json:"credential"`
}

// Handler serves POST /generate-pkpass.
type Handler struct {
	builder *Builder
	logger  *slog.Logger
}

func NewHandler(builder *Builder, logger *slog.Logger) *Handler {
	return &Handler{builder: builder, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.With(middleware.ContentTypeJSON).Post("/generate-pkpass", h.handleGenerate)
	})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid pkpass request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	archive, err := h.builder.Build(req.Credential)
	if err != nil {
		if de, ok := dErrors.From(err); ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
			h.logger.WarnContext(ctx, "pkpass request rejected", "request_id", requestID, "error", err.Error())
		} else {
			h.logger.ErrorContext(ctx, "failed to generate pkpass", "request_id", requestID, "error", err.Error())
		}
		httputil.WriteError(w, err)
		return
	}

	filename := "titulacion-" + req.Credential.CredentialSubject.HasTitulacion.CodigoTitulacion + ".pkpass"
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(archive); err != nil {
		h.logger.WarnContext(ctx, "failed to write pkpass", "request_id", requestID, "error", err.Error())
	}
}
