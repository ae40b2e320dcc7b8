package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and registry
// adapters return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrExpired: offer, nonce or token is past its TTL
//   - ErrAlreadyUsed: single-use value (pre-authorized code, c_nonce) already consumed
//   - ErrInvalidPin: offer requires a PIN and the supplied one does not match
//   - ErrConflict: key already taken
//   - ErrUnavailable: backend temporarily unreachable
//   - ErrRejected: backend refused the state change (e.g. reverted transaction)
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrInvalidPin  = errors.New("invalid pin")
	ErrUnavailable = errors.New("unavailable")
	ErrRejected    = errors.New("rejected")
)
