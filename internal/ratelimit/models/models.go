package models

import (
	"time"
)

// EndpointClass groups wallet-facing endpoints that share a request budget.
type EndpointClass string

const (
	// ClassToken covers the token endpoint, where PIN guesses land.
	ClassToken EndpointClass = "token"
	// ClassOffer covers offer creation.
	ClassOffer EndpointClass = "offer"
	// ClassCredential covers credential issuance.
	ClassCredential EndpointClass = "credential"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassToken, ClassOffer, ClassCredential:
		return true
	}
	return false
}

// Limit is the budget for one endpoint class within a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Key scopes a counter to one class and client.
func Key(class EndpointClass, identifier string) string {
	return "ratelimit:" + string(class) + ":" + identifier
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// RateLimitExceededResponse is the 429 body.
type RateLimitExceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}
