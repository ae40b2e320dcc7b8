package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"titulaciones/internal/issuer/credential"
	issuerhandler "titulaciones/internal/issuer/handler"
	"titulaciones/internal/issuer/janitor"
	issuermodels "titulaciones/internal/issuer/models"
	issuerservice "titulaciones/internal/issuer/service"
	"titulaciones/internal/issuer/store/nonce"
	"titulaciones/internal/issuer/store/offer"
	jwttoken "titulaciones/internal/jwt_token"
	"titulaciones/internal/keys"
	"titulaciones/internal/pkpass"
	"titulaciones/internal/platform/config"
	"titulaciones/internal/platform/httpserver"
	"titulaciones/internal/platform/logger"
	"titulaciones/internal/platform/metrics"
	"titulaciones/internal/platform/postgres"
	"titulaciones/internal/platform/redis"
	rlmiddleware "titulaciones/internal/ratelimit/middleware"
	rlmodels "titulaciones/internal/ratelimit/models"
	rlstore "titulaciones/internal/ratelimit/store"
	"titulaciones/internal/revocation"
	"titulaciones/internal/revocation/cache"
	"titulaciones/internal/revocation/ethereum"
	"titulaciones/internal/titulacion/catalog"
	titulacionhandler "titulaciones/internal/titulacion/handler"
	titulacionmodels "titulaciones/internal/titulacion/models"
	titulacionservice "titulaciones/internal/titulacion/service"
	titulacionstore "titulaciones/internal/titulacion/store"
	audit "titulaciones/pkg/platform/audit"
	auditpublisher "titulaciones/pkg/platform/audit/publisher"
	auditkafka "titulaciones/pkg/platform/audit/store/kafka"
	auditmemory "titulaciones/pkg/platform/audit/store/memory"
	auditpostgres "titulaciones/pkg/platform/audit/store/postgres"
	"titulaciones/pkg/platform/circuit"
)

const shutdownGrace = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("titulaciones exited", "error", err)
		os.Exit(1)
	}
}

// recordStore is what both the record API and the issuer need from the
// titulacion store.
type recordStore interface {
	titulacionservice.Store
	Seed(ctx context.Context, records []titulacionmodels.Titulacion) error
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	m := metrics.New()

	key, err := loadIssuerKey(cfg.Issuer, log)
	if err != nil {
		return err
	}

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}

	records, err := buildRecordStore(ctx, db)
	if err != nil {
		return err
	}

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeAudit)
	publisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(256),
		auditpublisher.WithLogger(log),
	)
	closers = append(closers, publisher.Close)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		closers = append(closers, func() { _ = rdb.Close() })
	}

	ledger, closeLedger, err := buildLedger(ctx, cfg, rdb, log, m)
	if err != nil {
		return err
	}
	closers = append(closers, closeLedger)
	limiter, limiterSweeper := buildLimiter(cfg.RateLimit, rdb, log, m)

	offers := offer.New(
		offer.WithTTL(cfg.TTL.Offer),
		offer.WithPinLength(cfg.Issuer.PinLength),
	)
	nonces := nonce.New(cfg.TTL.CNonce)
	tokens := jwttoken.NewJWTService(key, cfg.Issuer.BaseURL, cfg.TTL.AccessToken)
	signer := credential.NewSigner(key, cfg.Issuer.DisplayName,
		credential.NewProofVerifier(cfg.Issuer.BaseURL, cfg.TTL.ProofMaxAge), nonces)

	issuer := issuerservice.New(
		issuerservice.Config{
			CredentialIssuer: cfg.Issuer.BaseURL,
			UserPinRequired:  cfg.Issuer.UserPinRequired,
		},
		offers, nonces, tokens, signer, records, ledger,
		issuerservice.WithAuditPublisher(publisher),
		issuerservice.WithMetrics(m),
		issuerservice.WithLogger(log),
	)
	titulaciones := titulacionservice.New(records, issuer, publisher, log)

	router := chi.NewRouter()
	issuerhandler.New(issuer, jwttoken.NewJWTServiceAdapter(tokens), log, m, issuerhandler.Config{
		TokenPath: cfg.Issuer.TokenPath,
		Metadata: issuermodels.NewIssuerMetadata(issuermodels.MetadataParams{
			BaseURL:         cfg.Issuer.BaseURL,
			TokenPath:       cfg.Issuer.TokenPath,
			IssuerName:      cfg.Issuer.DisplayName,
			Locale:          cfg.Issuer.Locale,
			CredentialID:    cfg.Issuer.CredentialID,
			CredentialName:  cfg.Issuer.CredentialName,
			LogoURL:         cfg.Issuer.LogoURL,
			LogoAltText:     cfg.Issuer.LogoAltText,
			BackgroundColor: cfg.Issuer.BackgroundColor,
			TextColor:       cfg.Issuer.TextColor,
		}),
		JWKS:    issuerJWKS(key),
		Limiter: limiter,
	}).Register(router)
	// Record mutations wait on the ledger, so they get its timeout plus slack.
	titulacionhandler.New(titulaciones, log, m, cfg.AdminToken, cfg.RecordTimeout()).Register(router)
	pkpass.NewHandler(pkpass.NewBuilder(pkpass.Config{
		TypeIdentifier:   cfg.Pass.TypeIdentifier,
		TeamIdentifier:   cfg.Pass.TeamIdentifier,
		OrganizationName: cfg.Pass.OrganizationName,
		BackgroundColor:  cfg.Issuer.BackgroundColor,
		ForegroundColor:  cfg.Issuer.TextColor,
	}, signer), log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router, httpserver.WithWriteTimeout(cfg.WriteTimeout()))
	sweepers := map[string]janitor.Sweeper{
		"offer": offers,
		"nonce": nonces,
	}
	if limiterSweeper != nil {
		sweepers["ratelimit"] = limiterSweeper
	}
	sweeper := janitor.New(sweepers, log, m)

	log.Info("starting titulaciones issuer",
		"addr", cfg.Addr,
		"issuer", cfg.Issuer.BaseURL,
		"did", signer.IssuerDID(),
		"ledger", cfg.LedgerEnabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, shutdownGrace, log)
	})
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.TTL.JanitorTick)
	})
	return g.Wait()
}

func loadIssuerKey(cfg config.IssuerConfig, log *slog.Logger) (*keys.KeyMaterial, error) {
	if cfg.PrivateKeyHex == "" {
		log.Warn("PRIVATE_KEY_ISSUER not set, using an ephemeral issuer key")
		return keys.Generate()
	}
	key, err := keys.FromHex(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("load issuer key: %w", err)
	}
	return key, nil
}

func issuerJWKS(key *keys.KeyMaterial) map[string]any {
	jwk := map[string]any{
		"kid": key.KeyID(),
		"alg": key.Algorithm(),
		"use": "sig",
	}
	for k, v := range key.PublicJWK() {
		jwk[k] = v
	}
	return map[string]any{"keys": []any{jwk}}
}

func buildRecordStore(ctx context.Context, db *sql.DB) (recordStore, error) {
	var store recordStore = titulacionstore.NewInMemoryTitulacionStore()
	if db != nil {
		store = titulacionstore.NewPostgres(db)
	}
	if err := store.Seed(ctx, catalog.NewUVa().All()); err != nil {
		return nil, fmt.Errorf("seed titulaciones: %w", err)
	}
	return store, nil
}

// buildAuditStore prefers Kafka, then Postgres, then memory.
func buildAuditStore(ctx context.Context, cfg config.Server, db *sql.DB, log *slog.Logger) (audit.Store, func(), error) {
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		store, err := auditkafka.New(ctx, cfg.Kafka.Brokers, auditkafka.WithTopic(cfg.Kafka.Topic))
		if err != nil {
			return nil, nil, fmt.Errorf("connect audit kafka: %w", err)
		}
		log.Info("audit events to kafka", "topic", store.Topic())
		return store, store.Close, nil
	case db != nil:
		log.Info("audit events to postgres")
		return auditpostgres.New(db), func() {}, nil
	default:
		log.Warn("audit events kept in memory")
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
}

func buildLedger(ctx context.Context, cfg config.Server, rdb *redis.Client, log *slog.Logger, m *metrics.Metrics) (*revocation.Ledger, func(), error) {
	var registry revocation.Registry
	closeFn := func() {}
	if cfg.LedgerEnabled() {
		eth, err := ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          cfg.Ledger.RPCURL,
			ContractAddress: cfg.Ledger.ContractAddress,
			ChainID:         cfg.Ledger.ChainID,
			SenderKeyHex:    cfg.Ledger.SenderKeyHex,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect revocation registry: %w", err)
		}
		registry = eth
		closeFn = eth.Close
	} else {
		log.Warn("LEDGER_RPC_URL not set, using an in-process revocation registry")
		registry = revocation.NewInMemoryRegistry()
	}

	var statusCache revocation.StatusCache = cache.NewInMemoryStatusCache()
	if rdb != nil {
		statusCache = cache.NewRedisStatusCache(rdb.Client, cache.WithStatusTTL(cfg.Redis.StatusTTL))
	}

	ledger := revocation.NewLedger(registry,
		revocation.WithTimeout(cfg.Ledger.Timeout),
		revocation.WithCache(statusCache),
		revocation.WithBreaker(circuit.New("revocation-registry",
			circuit.WithFailureThreshold(cfg.Ledger.FailureThreshold),
			circuit.WithCooldown(cfg.Ledger.Cooldown),
		)),
		revocation.WithLogger(log),
		revocation.WithMetrics(m),
	)
	return ledger, closeFn, nil
}

// buildLimiter shares counters through Redis when it is configured. The
// in-memory store is returned as a janitor sweeper since its idle keys
// never expire on their own.
func buildLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger, m *metrics.Metrics) (*rlmiddleware.Middleware, janitor.Sweeper) {
	limits := map[rlmodels.EndpointClass]rlmodels.Limit{
		rlmodels.ClassToken:      {Requests: cfg.Token, Window: cfg.Window},
		rlmodels.ClassOffer:      {Requests: cfg.Offer, Window: cfg.Window},
		rlmodels.ClassCredential: {Requests: cfg.Credential, Window: cfg.Window},
	}
	opts := []rlmiddleware.Option{
		rlmiddleware.WithDisabled(cfg.Disabled),
		rlmiddleware.WithMetrics(m),
	}
	if rdb != nil {
		return rlmiddleware.New(rlstore.NewRedisBucketStore(rdb.Client), limits, log, opts...), nil
	}
	memory := rlstore.NewInMemoryBucketStore()
	return rlmiddleware.New(memory, limits, log, opts...), memory
}
