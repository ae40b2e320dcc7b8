package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"titulaciones/pkg/platform/sentinel"
)

// InMemoryRegistry is a process-local registry for development and tests.
// It counts submitted transactions so idempotence can be asserted.
type InMemoryRegistry struct {
	mu       sync.Mutex
	revoked  map[ContentHash]bool
	txCount  int
	block    uint64
	failNext error
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{revoked: make(map[ContentHash]bool)}
}

func (r *InMemoryRegistry) IsRevoked(ctx context.Context, hash ContentHash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("registry read: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[hash], nil
}

// RevokeTitulacion behaves like the contract: revoking an already revoked
// hash reverts.
func (r *InMemoryRegistry) RevokeTitulacion(ctx context.Context, hash ContentHash) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("registry write: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}
	r.txCount++
	if r.revoked[hash] {
		return nil, fmt.Errorf("hash %s already revoked: %w", hash, sentinel.ErrRejected)
	}
	r.revoked[hash] = true
	r.block++
	tx := sha256.Sum256(append(hash[:], byte(r.txCount)))
	return &Receipt{
		TxHash:      "0x" + hex.EncodeToString(tx[:]),
		BlockNumber: r.block,
	}, nil
}

// Transactions returns how many revoke transactions were submitted.
func (r *InMemoryRegistry) Transactions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txCount
}

// FailNextWrite makes the next RevokeTitulacion return err without effect.
func (r *InMemoryRegistry) FailNextWrite(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}
