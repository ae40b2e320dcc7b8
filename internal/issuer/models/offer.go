package models

import (
	"fmt"
	"slices"
	"time"

	"titulaciones/pkg/platform/sentinel"
)

// OfferSession is a pending credential offer keyed by its pre-authorized code.
// Redeemed and expired are both terminal.
type OfferSession struct {
	PreAuthorizedCode string
	CredentialIDs     []string
	UserPinRequired   bool
	// PinHash is the bcrypt hash of the PIN; the clear PIN is only returned
	// once, to the offer creator.
	PinHash    []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Redeemed   bool
	RedeemedAt *time.Time
}

// IsExpired reports whether the offer can no longer be redeemed at now.
func (s *OfferSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CheckRedeemable validates every precondition except the PIN. Redeemed is
// checked first so a used code always reports already-used.
func (s *OfferSession) CheckRedeemable(now time.Time) error {
	if s.Redeemed {
		return fmt.Errorf("pre-authorized code already redeemed: %w", sentinel.ErrAlreadyUsed)
	}
	if s.IsExpired(now) {
		return fmt.Errorf("pre-authorized code expired at %s: %w", s.ExpiresAt.Format(time.RFC3339), sentinel.ErrExpired)
	}
	return nil
}

// MarkRedeemed flips the one-way redeemed flag.
func (s *OfferSession) MarkRedeemed(now time.Time) {
	s.Redeemed = true
	s.RedeemedAt = &now
}

// Clone returns a deep copy safe to hand outside a store lock.
func (s *OfferSession) Clone() *OfferSession {
	c := *s
	c.CredentialIDs = slices.Clone(s.CredentialIDs)
	c.PinHash = slices.Clone(s.PinHash)
	if s.RedeemedAt != nil {
		t := *s.RedeemedAt
		c.RedeemedAt = &t
	}
	return &c
}
