package store_test

import (
	"context"
	"errors"

	"github.com/stretchr/testify/suite"

	"titulaciones/internal/titulacion/catalog"
	"titulaciones/internal/titulacion/models"
	"titulaciones/pkg/platform/sentinel"
)

type titulacionStore interface {
	Seed(ctx context.Context, records []models.Titulacion) error
	List(ctx context.Context) ([]models.Titulacion, error)
	FindByCode(ctx context.Context, code string) (*models.Titulacion, error)
	Update(ctx context.Context, record models.Titulacion) (bool, error)
	MarkRevoked(ctx context.Context, code string) error
}

// contractSuite holds behaviour every record store must share. Concrete
// suites embed it and set store in SetupTest.
type contractSuite struct {
	suite.Suite
	store titulacionStore
}

func (s *contractSuite) seed() {
	s.Require().NoError(s.store.Seed(context.Background(), catalog.NewUVa().All()))
}

func (s *contractSuite) TestSeedIsIdempotent() {
	ctx := context.Background()
	s.seed()
	s.Require().NoError(s.store.MarkRevoked(ctx, "83639"))
	s.seed()

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 3)

	r, err := s.store.FindByCode(ctx, "83639")
	s.Require().NoError(err)
	s.True(r.Revocada, "reseeding must not reset existing rows")
}

func (s *contractSuite) TestFindByCode() {
	s.seed()

	r, err := s.store.FindByCode(context.Background(), "82639")
	s.Require().NoError(err)
	s.Equal("Filosofia", r.NombreTitulacion)

	_, err = s.store.FindByCode(context.Background(), "99999")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *contractSuite) TestUpdate() {
	ctx := context.Background()
	s.seed()
	r, err := s.store.FindByCode(ctx, "81639")
	s.Require().NoError(err)

	s.Run("no change reports false", func() {
		changed, err := s.store.Update(ctx, *r)
		s.Require().NoError(err)
		s.False(changed)
	})

	s.Run("changed field is stored", func() {
		updated := *r
		updated.NotaMedia = "7.25"
		changed, err := s.store.Update(ctx, updated)
		s.Require().NoError(err)
		s.True(changed)

		got, err := s.store.FindByCode(ctx, "81639")
		s.Require().NoError(err)
		s.Equal("7.25", got.NotaMedia)
	})

	s.Run("revocada is not writable through update", func() {
		s.Require().NoError(s.store.MarkRevoked(ctx, "81639"))
		got, err := s.store.FindByCode(ctx, "81639")
		s.Require().NoError(err)

		attempt := *got
		attempt.Revocada = false
		attempt.Promocion = "2022"
		changed, err := s.store.Update(ctx, attempt)
		s.Require().NoError(err)
		s.True(changed)

		after, err := s.store.FindByCode(ctx, "81639")
		s.Require().NoError(err)
		s.True(after.Revocada)
		s.Equal("2022", after.Promocion)
	})

	s.Run("unknown code is not found", func() {
		ghost := *r
		ghost.CodigoTitulacion = "00000"
		_, err := s.store.Update(ctx, ghost)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *contractSuite) TestMarkRevokedUnknown() {
	err := s.store.MarkRevoked(context.Background(), "00000")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}
