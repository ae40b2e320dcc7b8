package offer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"titulaciones/internal/issuer/models"
	"titulaciones/pkg/platform/sentinel"
)

const (
	defaultTTL       = 200 * time.Second
	defaultPinLength = 4
	codeBytes        = 32
	maxCodeAttempts  = 5
)

// Error Contract:
// - ErrNotFound when the code is unknown
// - ErrConflict when an explicit code is taken, live or swept
// - ErrAlreadyUsed, ErrExpired, ErrInvalidPin from Redeem
//

// InMemoryOfferStore holds offer sessions for the lifetime of the process.
// Swept codes leave a tombstone so they keep their final answer and are
// never handed out again.
type InMemoryOfferStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.OfferSession
	tombstones map[string]tombstone
	ttl        time.Duration
	pinLength  int
	bcryptCost int
}

type tombstone struct {
	redeemed bool
}

func (t tombstone) err() error {
	if t.redeemed {
		return fmt.Errorf("pre-authorized code already redeemed: %w", sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("pre-authorized code expired: %w", sentinel.ErrExpired)
}

// Option configures the store.
type Option func(*InMemoryOfferStore)

// WithTTL sets how long a fresh offer stays redeemable.
func WithTTL(ttl time.Duration) Option {
	return func(s *InMemoryOfferStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPinLength sets the number of digits of generated PINs.
func WithPinLength(n int) Option {
	return func(s *InMemoryOfferStore) {
		if n > 0 {
			s.pinLength = n
		}
	}
}

// WithBcryptCost sets the PIN hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *InMemoryOfferStore) {
		s.bcryptCost = cost
	}
}

// New constructs an empty offer store.
func New(opts ...Option) *InMemoryOfferStore {
	s := &InMemoryOfferStore{
		sessions:   make(map[string]*models.OfferSession),
		tombstones: make(map[string]tombstone),
		ttl:        defaultTTL,
		pinLength:  defaultPinLength,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured offer lifetime.
func (s *InMemoryOfferStore) TTL() time.Duration {
	return s.ttl
}

// Create stores a new session and returns it together with the clear PIN
// (empty when no PIN is required). An empty code gets a random one.
func (s *InMemoryOfferStore) Create(_ context.Context, code string, credentialIDs []string, pinRequired bool, now time.Time) (*models.OfferSession, string, error) {
	session := &models.OfferSession{
		CredentialIDs:   slices.Clone(credentialIDs),
		UserPinRequired: pinRequired,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
	}

	var pin string
	if pinRequired {
		var err error
		pin, err = generatePin(s.pinLength)
		if err != nil {
			return nil, "", fmt.Errorf("generate pin: %w", err)
		}
		session.PinHash, err = bcrypt.GenerateFromPassword([]byte(pin), s.bcryptCost)
		if err != nil {
			return nil, "", fmt.Errorf("hash pin: %w", err)
		}
	}

	if code != "" {
		session.PreAuthorizedCode = code
		if err := s.insert(session); err != nil {
			return nil, "", err
		}
		return session.Clone(), pin, nil
	}

	for range maxCodeAttempts {
		generated, err := generateCode()
		if err != nil {
			return nil, "", fmt.Errorf("generate code: %w", err)
		}
		session.PreAuthorizedCode = generated
		err = s.insert(session)
		if err == nil {
			return session.Clone(), pin, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free pre-authorized code after %d attempts: %w", maxCodeAttempts, sentinel.ErrConflict)
}

func (s *InMemoryOfferStore) insert(session *models.OfferSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.PreAuthorizedCode]; exists {
		return fmt.Errorf("pre-authorized code already in use: %w", sentinel.ErrConflict)
	}
	if _, swept := s.tombstones[session.PreAuthorizedCode]; swept {
		return fmt.Errorf("pre-authorized code already used before: %w", sentinel.ErrConflict)
	}
	s.sessions[session.PreAuthorizedCode] = session
	return nil
}

// FindByCode returns a copy of the session.
func (s *InMemoryOfferStore) FindByCode(_ context.Context, code string) (*models.OfferSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	if !ok {
		return nil, fmt.Errorf("offer session not found: %w", sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

// Redeem validates and marks the session redeemed. Among concurrent callers
// with a valid PIN exactly one succeeds; the rest see ErrAlreadyUsed.
//
// The bcrypt comparison runs outside the lock, so the flip is a
// compare-and-set on the redeemed flag under a second critical section.
func (s *InMemoryOfferStore) Redeem(_ context.Context, code, pin string, now time.Time) (*models.OfferSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[code]
	if !ok {
		t, swept := s.tombstones[code]
		s.mu.Unlock()
		if swept {
			return nil, t.err()
		}
		return nil, fmt.Errorf("offer session not found: %w", sentinel.ErrNotFound)
	}
	if err := session.CheckRedeemable(now); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	pinRequired := session.UserPinRequired
	pinHash := session.PinHash
	s.mu.Unlock()

	if pinRequired {
		if pin == "" || bcrypt.CompareHashAndPassword(pinHash, []byte(pin)) != nil {
			return nil, fmt.Errorf("pin mismatch: %w", sentinel.ErrInvalidPin)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok = s.sessions[code]
	if !ok {
		if t, swept := s.tombstones[code]; swept {
			return nil, t.err()
		}
		return nil, fmt.Errorf("offer session not found: %w", sentinel.ErrNotFound)
	}
	if err := session.CheckRedeemable(now); err != nil {
		return nil, err
	}
	session.MarkRedeemed(now)
	return session.Clone(), nil
}

// DeleteExpired removes sessions past their expiry and returns how many.
// Each removed code is replaced by a tombstone.
func (s *InMemoryOfferStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for code, session := range s.sessions {
		if session.IsExpired(now) {
			s.tombstones[code] = tombstone{redeemed: session.Redeemed}
			delete(s.sessions, code)
			deleted++
		}
	}
	return deleted, nil
}

func generateCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func generatePin(length int) (string, error) {
	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
