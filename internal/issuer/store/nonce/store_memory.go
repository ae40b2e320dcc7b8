package nonce

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"titulaciones/internal/issuer/models"
	"titulaciones/pkg/platform/sentinel"
)

const (
	defaultTTL = 300 * time.Second
	nonceBytes = 24
)

// InMemoryNonceStore tracks issued c_nonces until they are consumed or swept.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]*models.CNonce
	ttl    time.Duration
}

// New constructs an empty nonce store. A non-positive ttl uses the default.
func New(ttl time.Duration) *InMemoryNonceStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &InMemoryNonceStore{
		nonces: make(map[string]*models.CNonce),
		ttl:    ttl,
	}
}

// TTL returns the configured nonce lifetime.
func (s *InMemoryNonceStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates and stores a fresh nonce.
func (s *InMemoryNonceStore) Issue(_ context.Context, now time.Time) (*models.CNonce, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate c_nonce: %w", err)
	}
	n := &models.CNonce{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nonces[n.Value]; exists {
		return nil, fmt.Errorf("c_nonce collision: %w", sentinel.ErrConflict)
	}
	s.nonces[n.Value] = n
	c := *n
	return &c, nil
}

// Consume marks the nonce used. Exactly one concurrent caller succeeds.
func (s *InMemoryNonceStore) Consume(_ context.Context, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[value]
	if !ok {
		return fmt.Errorf("c_nonce not found: %w", sentinel.ErrNotFound)
	}
	if err := n.CheckConsumable(now); err != nil {
		return err
	}
	n.Consumed = true
	return nil
}

// DeleteExpired removes nonces past their expiry and returns how many.
func (s *InMemoryNonceStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for value, n := range s.nonces {
		if now.After(n.ExpiresAt) {
			delete(s.nonces, value)
			deleted++
		}
	}
	return deleted, nil
}
