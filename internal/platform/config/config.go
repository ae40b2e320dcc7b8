package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"titulaciones/pkg/platform/strutil"
)

// Server captures everything cmd/server needs to wire the issuer.
type Server struct {
	Addr       string
	LogLevel   string
	AdminToken string

	Issuer    IssuerConfig
	TTL       TTLConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
	Ledger    LedgerConfig
	Pass      PassConfig
	RateLimit RateLimitConfig
}

// IssuerConfig describes the public face of the credential issuer.
type IssuerConfig struct {
	BaseURL         string
	DisplayName     string
	Locale          string
	PrivateKeyHex   string
	TokenPath       string
	PinLength       int
	UserPinRequired bool

	// Display metadata for the supported credential.
	CredentialID    string
	CredentialName  string
	LogoURL         string
	LogoAltText     string
	BackgroundColor string
	TextColor       string
}

type TTLConfig struct {
	Offer       time.Duration
	AccessToken time.Duration
	CNonce      time.Duration
	ProofMaxAge time.Duration
	JanitorTick time.Duration
}

// RedisConfig holds the revocation status cache connection. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StatusTTL    time.Duration
}

// PostgresConfig holds the record and audit database. Empty DSN keeps records in memory.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// KafkaConfig holds the audit sink. No brokers keeps audit in memory or Postgres.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LedgerConfig holds the revocation registry contract. Empty RPCURL uses an
// in-process registry, which is only suitable for development.
type LedgerConfig struct {
	RPCURL           string
	ContractAddress  string
	ChainID          int64
	SenderKeyHex     string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// PassConfig identifies generated wallet passes.
type PassConfig struct {
	TypeIdentifier   string
	TeamIdentifier   string
	OrganizationName string
}

// RateLimitConfig bounds wallet-facing requests per client IP. A zero
// budget leaves that endpoint unlimited.
type RateLimitConfig struct {
	Disabled   bool
	Window     time.Duration
	Token      int
	Offer      int
	Credential int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	cfg := Server{
		Addr:       getEnv("ADDR", ":9000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),
		Issuer: IssuerConfig{
			BaseURL:         strings.TrimSuffix(getEnv("ISSUER_BASE_URL", "http://localhost:9000"), "/"),
			DisplayName:     getEnv("ISSUER_NAME", "Universidad de Valladolid"),
			Locale:          getEnv("ISSUER_LOCALE", "es-ES"),
			PrivateKeyHex:   os.Getenv("PRIVATE_KEY_ISSUER"),
			TokenPath:       getEnv("TOKEN_PATH", "/token"),
			PinLength:       getInt("PIN_LENGTH", 4, &errs),
			UserPinRequired: getBool("USER_PIN_REQUIRED", true, &errs),
			CredentialID:    getEnv("CREDENTIAL_SUPPORTED_ID", "TitulacionDigital"),
			CredentialName:  getEnv("CREDENTIAL_DISPLAY_NAME", "Titulación Digital UVa"),
			LogoURL:         os.Getenv("CREDENTIAL_DISPLAY_LOGO_URL"),
			LogoAltText:     getEnv("CREDENTIAL_DISPLAY_LOGO_ALT_TEXT", "Logo UVa"),
			BackgroundColor: getEnv("CREDENTIAL_DISPLAY_BACKGROUND_COLOR", "#5b0c2b"),
			TextColor:       getEnv("CREDENTIAL_DISPLAY_TEXT_COLOR", "#ffffff"),
		},
		TTL: TTLConfig{
			Offer:       getDuration("OFFER_TTL", 200*time.Second, &errs),
			AccessToken: getDuration("TOKEN_TTL", 200*time.Second, &errs),
			CNonce:      getDuration("CNONCE_TTL", 300*time.Second, &errs),
			ProofMaxAge: getDuration("PROOF_MAX_AGE", 5*time.Minute, &errs),
			JanitorTick: getDuration("JANITOR_INTERVAL", 30*time.Second, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
			StatusTTL:    getDuration("REVOCATION_CACHE_TTL", 24*time.Hour, &errs),
		},
		Postgres: PostgresConfig{
			DSN:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 10, &errs),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 5, &errs),
		},
		Kafka: KafkaConfig{
			Brokers: strutil.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "titulaciones.audit"),
		},
		Ledger: LedgerConfig{
			RPCURL:           os.Getenv("LEDGER_RPC_URL"),
			ContractAddress:  os.Getenv("LEDGER_CONTRACT_ADDRESS"),
			ChainID:          int64(getInt("LEDGER_CHAIN_ID", 1337, &errs)),
			SenderKeyHex:     os.Getenv("LEDGER_SENDER_KEY"),
			Timeout:          getDuration("LEDGER_TIMEOUT", 60*time.Second, &errs),
			FailureThreshold: getInt("LEDGER_BREAKER_THRESHOLD", 5, &errs),
			Cooldown:         getDuration("LEDGER_BREAKER_COOLDOWN", 30*time.Second, &errs),
		},
		Pass: PassConfig{
			TypeIdentifier:   getEnv("PASS_TYPE_IDENTIFIER", "pass.es.uva.titulacion"),
			TeamIdentifier:   os.Getenv("PASS_TEAM_IDENTIFIER"),
			OrganizationName: getEnv("PASS_ORGANIZATION_NAME", "Universidad de Valladolid"),
		},
		RateLimit: RateLimitConfig{
			Disabled:   getBool("RATE_LIMIT_DISABLED", false, &errs),
			Window:     getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs),
			Token:      getInt("RATE_LIMIT_TOKEN", 10, &errs),
			Offer:      getInt("RATE_LIMIT_OFFER", 30, &errs),
			Credential: getInt("RATE_LIMIT_CREDENTIAL", 30, &errs),
		},
	}
	if cfg.Issuer.PinLength <= 0 {
		errs = append(errs, fmt.Errorf("PIN_LENGTH must be positive, got %d", cfg.Issuer.PinLength))
	}
	if !strings.HasPrefix(cfg.Issuer.TokenPath, "/") {
		errs = append(errs, fmt.Errorf("TOKEN_PATH must start with /, got %q", cfg.Issuer.TokenPath))
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"OFFER_TTL", cfg.TTL.Offer},
		{"TOKEN_TTL", cfg.TTL.AccessToken},
		{"CNONCE_TTL", cfg.TTL.CNonce},
		{"PROOF_MAX_AGE", cfg.TTL.ProofMaxAge},
		{"JANITOR_INTERVAL", cfg.TTL.JanitorTick},
		{"LEDGER_TIMEOUT", cfg.Ledger.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.value))
		}
	}
	return cfg, errors.Join(errs...)
}

// recordSlack covers the record store and audit work around a ledger call.
const recordSlack = 30 * time.Second

// minWriteTimeout is the floor for the server-wide write deadline.
const minWriteTimeout = 90 * time.Second

// RecordTimeout bounds record mutations, which wait on the ledger.
func (s Server) RecordTimeout() time.Duration {
	return s.Ledger.Timeout + recordSlack
}

// WriteTimeout is the server write deadline. It always outlasts
// RecordTimeout so a handler timeout answer still reaches the client.
func (s Server) WriteTimeout() time.Duration {
	return max(s.RecordTimeout()+recordSlack/2, minWriteTimeout)
}

// LedgerEnabled reports whether a real registry contract is configured.
func (s Server) LedgerEnabled() bool {
	return s.Ledger.RPCURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getBool(key string, fallback bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

// getDuration accepts Go durations ("90s") or bare seconds ("90").
func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
