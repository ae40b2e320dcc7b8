package models

import (
	"fmt"
	"time"

	"titulaciones/pkg/platform/sentinel"
)

// CNonce is a one-time proof-of-possession challenge bound to an access token.
type CNonce struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// ExpiresIn is the remaining lifetime in whole seconds, as sent to wallets.
func (n *CNonce) ExpiresIn(now time.Time) int {
	if d := n.ExpiresAt.Sub(now); d > 0 {
		return int(d.Seconds())
	}
	return 0
}

// CheckConsumable validates that the nonce can still be consumed at now.
func (n *CNonce) CheckConsumable(now time.Time) error {
	if n.Consumed {
		return fmt.Errorf("c_nonce already consumed: %w", sentinel.ErrAlreadyUsed)
	}
	if now.After(n.ExpiresAt) {
		return fmt.Errorf("c_nonce expired: %w", sentinel.ErrExpired)
	}
	return nil
}
