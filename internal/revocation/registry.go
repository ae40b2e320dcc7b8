package revocation

import (
	"context"
)

// Receipt describes the outcome of a revoke call.
type Receipt struct {
	Hash           string `json:"hash"`
	TxHash         string `json:"txHash,omitempty"`
	BlockNumber    uint64 `json:"blockNumber,omitempty"`
	AlreadyRevoked bool   `json:"alreadyRevoked"`
}

// Registry is the external revocation contract. RevokeTitulacion blocks until
// the transaction is confirmed or ctx ends. Adapters report network failures
// wrapped in sentinel.ErrUnavailable and reverted transactions wrapped in
// sentinel.ErrRejected.
type Registry interface {
	IsRevoked(ctx context.Context, hash ContentHash) (bool, error)
	RevokeTitulacion(ctx context.Context, hash ContentHash) (*Receipt, error)
}

// StatusCache remembers hashes known to be revoked. Revocation is one-way, so
// only positive answers are cached.
type StatusCache interface {
	IsRevoked(ctx context.Context, hash ContentHash) (bool, error)
	MarkRevoked(ctx context.Context, hash ContentHash) error
}
