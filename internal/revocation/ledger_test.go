package revocation_test

//go:generate mockgen -source=registry.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"titulaciones/internal/platform/metrics"
	"titulaciones/internal/revocation"
	"titulaciones/internal/revocation/mocks"
	titmodels "titulaciones/internal/titulacion/models"
	dErrors "titulaciones/pkg/domain-errors"
	"titulaciones/pkg/platform/circuit"
	"titulaciones/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx     context.Context
	hash    revocation.ContentHash
	metrics *metrics.Metrics
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	h, err := revocation.HashOf(titmodels.Subject{
		CodigoTitulacion: "83639",
		Tipo:             titmodels.TipoGrado,
		NombreTitulacion: "Ingeniería Informática",
		NotaMedia:        "8.6",
	})
	s.Require().NoError(err)
	s.hash = h
}

func (s *LedgerSuite) TestRevokeIsIdempotent() {
	registry := revocation.NewInMemoryRegistry()
	ledger := revocation.NewLedger(registry, revocation.WithMetrics(s.metrics))

	revoked, err := ledger.IsRevoked(s.ctx, s.hash)
	s.Require().NoError(err)
	s.False(revoked)

	first, err := ledger.Revoke(s.ctx, s.hash)
	s.Require().NoError(err)
	s.False(first.AlreadyRevoked)
	s.NotEmpty(first.TxHash)
	s.Equal(s.hash.String(), first.Hash)

	second, err := ledger.Revoke(s.ctx, s.hash)
	s.Require().NoError(err)
	s.True(second.AlreadyRevoked)
	s.Empty(second.TxHash)

	s.Equal(1, registry.Transactions(), "second revoke must not submit a transaction")
	revoked, err = ledger.IsRevoked(s.ctx, s.hash)
	s.Require().NoError(err)
	s.True(revoked)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Revocations.WithLabelValues(revocation.OutcomeRevoked)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Revocations.WithLabelValues(revocation.OutcomeAlreadyRevoked)))
}

func (s *LedgerSuite) TestConcurrentRevokeSubmitsOnce() {
	registry := revocation.NewInMemoryRegistry()
	ledger := revocation.NewLedger(registry)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Revoke(s.ctx, s.hash)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
	s.Equal(1, registry.Transactions())
}

func (s *LedgerSuite) TestRevertedRaceIsTolerated() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	ledger := revocation.NewLedger(registry)

	gomock.InOrder(
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil),
		registry.EXPECT().RevokeTitulacion(gomock.Any(), s.hash).
			Return(nil, fmt.Errorf("execution reverted: %w", sentinel.ErrRejected)),
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(true, nil),
	)

	receipt, err := ledger.Revoke(s.ctx, s.hash)
	s.Require().NoError(err)
	s.True(receipt.AlreadyRevoked)
}

func (s *LedgerSuite) TestRevertedWithoutRevocationIsRejected() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	ledger := revocation.NewLedger(registry)

	gomock.InOrder(
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil),
		registry.EXPECT().RevokeTitulacion(gomock.Any(), s.hash).
			Return(nil, fmt.Errorf("execution reverted: %w", sentinel.ErrRejected)),
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil),
	)

	_, err := ledger.Revoke(s.ctx, s.hash)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))
	s.False(dErrors.Retryable(err))
}

func (s *LedgerSuite) TestConnectivityFailureIsRetryable() {
	s.Run("read fails", func() {
		ctrl := gomock.NewController(s.T())
		registry := mocks.NewMockRegistry(ctrl)
		ledger := revocation.NewLedger(registry)
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).
			Return(false, fmt.Errorf("dial tcp: %w", sentinel.ErrUnavailable))

		_, err := ledger.Revoke(s.ctx, s.hash)
		s.True(dErrors.HasCode(err, dErrors.CodeLedgerDown))
		s.True(dErrors.Retryable(err))
	})

	s.Run("write fails then retry succeeds", func() {
		registry := revocation.NewInMemoryRegistry()
		ledger := revocation.NewLedger(registry)
		registry.FailNextWrite(fmt.Errorf("rpc: %w", sentinel.ErrUnavailable))

		_, err := ledger.Revoke(s.ctx, s.hash)
		s.True(dErrors.HasCode(err, dErrors.CodeLedgerDown))

		receipt, err := ledger.Revoke(s.ctx, s.hash)
		s.Require().NoError(err)
		s.False(receipt.AlreadyRevoked)
	})
}

func (s *LedgerSuite) TestConfirmationTimeout() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	ledger := revocation.NewLedger(registry, revocation.WithTimeout(20*time.Millisecond))

	registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil)
	registry.EXPECT().RevokeTitulacion(gomock.Any(), s.hash).
		DoAndReturn(func(ctx context.Context, _ revocation.ContentHash) (*revocation.Receipt, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := ledger.Revoke(s.ctx, s.hash)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerDown))
	s.True(errors.Is(err, context.DeadlineExceeded))
}

func (s *LedgerSuite) TestCircuitOpensAfterFailures() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	ledger := revocation.NewLedger(registry, revocation.WithBreaker(breaker), revocation.WithMetrics(s.metrics))

	registry.EXPECT().IsRevoked(gomock.Any(), s.hash).
		Return(false, sentinel.ErrUnavailable).Times(2)

	for range 2 {
		_, err := ledger.IsRevoked(s.ctx, s.hash)
		s.Error(err)
	}
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LedgerCircuitOpen))

	// no registry call while open
	_, err := ledger.Revoke(s.ctx, s.hash)
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerDown))
}

func (s *LedgerSuite) TestCacheShortCircuitsReads() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	cache := mocks.NewMockStatusCache(ctrl)
	ledger := revocation.NewLedger(registry, revocation.WithCache(cache))

	s.Run("hit skips registry", func() {
		cache.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(true, nil)
		revoked, err := ledger.IsRevoked(s.ctx, s.hash)
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("miss reads registry and remembers positive", func() {
		cache.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil)
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(true, nil)
		cache.EXPECT().MarkRevoked(gomock.Any(), s.hash).Return(nil)
		revoked, err := ledger.IsRevoked(s.ctx, s.hash)
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("cache error falls through", func() {
		cache.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, errors.New("redis down"))
		registry.EXPECT().IsRevoked(gomock.Any(), s.hash).Return(false, nil)
		revoked, err := ledger.IsRevoked(s.ctx, s.hash)
		s.Require().NoError(err)
		s.False(revoked)
	})
}

func (s *LedgerSuite) TestCallerCancellationDoesNotAbortSharedRevoke() {
	registry := revocation.NewInMemoryRegistry()
	ledger := revocation.NewLedger(registry)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, _ = ledger.Revoke(ctx, s.hash)

	s.Eventually(func() bool {
		revoked, err := registry.IsRevoked(s.ctx, s.hash)
		return err == nil && revoked
	}, time.Second, 5*time.Millisecond)
}
