package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"titulaciones/internal/titulacion/catalog"
	"titulaciones/internal/titulacion/handler/mocks"
	"titulaciones/internal/titulacion/models"
	"titulaciones/internal/titulacion/service"
	dErrors "titulaciones/pkg/domain-errors"
	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type TitulacionHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	record  models.Titulacion
}

const adminToken = "s3cret"

func TestTitulacionHandlerSuite(t *testing.T) {
	suite.Run(t, new(TitulacionHandlerSuite))
}

func (s *TitulacionHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger, nil, adminToken, 0).Register(s.router)

	s.record = catalog.NewUVa().All()[2]
}

func (s *TitulacionHandlerSuite) withAdmin(req *http.Request) *http.Request {
	req.Header.Set("X-Admin-Token", adminToken)
	return req
}

func (s *TitulacionHandlerSuite) TestList() {
	s.Run("all", func() {
		s.service.EXPECT().List(gomock.Any(), "").Return([]models.Titulacion{s.record}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		out := testutil.UnmarshalResponse[[]models.Titulacion](s.T(), rr)
		s.Equal([]models.Titulacion{s.record}, *out)
	})

	s.Run("query id not found", func() {
		s.service.EXPECT().List(gomock.Any(), "1").Return(nil, dErrors.New(dErrors.CodeNotFound, "titulacion not found"))
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones?id=1"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *TitulacionHandlerSuite) TestGet() {
	rec := s.record
	s.service.EXPECT().Get(gomock.Any(), "83639").Return(&rec, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones/83639"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("Ingenieria Informatica", testutil.UnmarshalResponse[models.Titulacion](s.T(), rr).NombreTitulacion)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
}

func (s *TitulacionHandlerSuite) TestUpdate() {
	s.Run("requires admin token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/titulaciones/83639", s.record))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("requires json", func() {
		req := s.withAdmin(testutil.NewRequest(s.T(), http.MethodPut, "/titulaciones/83639"))
		req.Header.Set("Content-Type", "text/plain")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusUnsupportedMediaType)
	})

	s.Run("no change is 404", func() {
		s.service.EXPECT().Update(gomock.Any(), "83639", s.record).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "titulacion unchanged"))
		req := s.withAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/titulaciones/83639", s.record))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("updated", func() {
		updated := s.record
		updated.NotaMedia = "9"
		s.service.EXPECT().Update(gomock.Any(), "83639", updated).Return(&updated, nil)
		req := s.withAdmin(testutil.NewJSONRequest(s.T(), http.MethodPut, "/titulaciones/83639", updated))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.Equal("9", testutil.UnmarshalResponse[models.Titulacion](s.T(), rr).NotaMedia)
	})

	s.Run("malformed body", func() {
		req := s.withAdmin(testutil.NewRequest(s.T(), http.MethodPut, "/titulaciones/83639"))
		req.Header.Set("Content-Type", "application/json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *TitulacionHandlerSuite) TestRevoke() {
	s.Run("requires admin token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/titulaciones/83639"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("revoked", func() {
		s.service.EXPECT().Revoke(gomock.Any(), "83639").Return(&service.RevokeResult{
			Message: "titulacion 83639 revoked",
			Revoked: true,
			Hash:    "0xabc",
		}, nil)
		rr := testutil.DoRequest(s.router, s.withAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/titulaciones/83639")))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(true, body["revoked"])
		s.Equal("titulacion 83639 revoked", body["message"])
	})

	s.Run("ledger down asks for a retry", func() {
		s.service.EXPECT().Revoke(gomock.Any(), "83639").
			Return(nil, dErrors.New(dErrors.CodeLedgerDown, "dial tcp: connection refused"))
		rr := testutil.DoRequest(s.router, s.withAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/titulaciones/83639")))
		body := testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "ledger_unavailable")
		s.Equal(true, body["retry"])
		s.Contains(body["error_description"], "retry")
	})

	s.Run("ledger rejection is not retryable", func() {
		s.service.EXPECT().Revoke(gomock.Any(), "83639").
			Return(nil, dErrors.New(dErrors.CodeLedgerRejected, "revocation transaction reverted"))
		rr := testutil.DoRequest(s.router, s.withAdmin(testutil.NewRequest(s.T(), http.MethodDelete, "/titulaciones/83639")))
		body := testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "ledger_rejected")
		s.NotContains(body, "retry")
	})
}

func (s *TitulacionHandlerSuite) TestStatus() {
	s.service.EXPECT().Status(gomock.Any(), "83639").
		Return(&service.Status{CodigoTitulacion: "83639", Hash: "0xabc", Revoked: false}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones/83639/status"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	out := testutil.UnmarshalResponse[service.Status](s.T(), rr)
	s.Equal("0xabc", out.Hash)
	s.False(out.Revoked)
}

func (s *TitulacionHandlerSuite) TestHistory() {
	s.Run("requires admin token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones/83639/audit"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("returns events", func() {
		s.service.EXPECT().History(gomock.Any(), "83639").Return([]audit.Event{
			{Subject: "83639", Action: string(audit.EventTitulacionUpdated), ActorID: "admin"},
		}, nil)
		rr := testutil.DoRequest(s.router, s.withAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/titulaciones/83639/audit")))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		out := testutil.UnmarshalResponse[[]audit.Event](s.T(), rr)
		s.Require().Len(*out, 1)
		s.Equal("admin", (*out)[0].ActorID)
	})
}
