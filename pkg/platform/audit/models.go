package audit

import (
	"context"
	"errors"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: a degree
	// credential was issued, a record changed, a credential was revoked.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected redemptions and proofs and ledger
	// failures. These feed alerting.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity and can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the entity acted on: a pre-authorized code, a titulación id
	// or a content hash.
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// ActorID is the holder DID or "admin" for record endpoints.
	ActorID      string `json:"actor_id,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
	ClientIP     string `json:"client_ip,omitempty"`
	Wallet       string `json:"wallet,omitempty"`
}

type AuditEvent string

const (
	// Issuance events
	EventOfferCreated       AuditEvent = "offer_created"
	EventTokenIssued        AuditEvent = "token_issued"
	EventTokenRejected      AuditEvent = "token_rejected"
	EventCredentialIssued   AuditEvent = "credential_issued"
	EventCredentialRejected AuditEvent = "credential_rejected"

	// Record events
	EventTitulacionUpdated AuditEvent = "titulacion_updated"
	EventTitulacionRevoked AuditEvent = "titulacion_revoked"
	EventRevocationFailed  AuditEvent = "revocation_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCredentialIssued:  CategoryCompliance,
	EventTitulacionUpdated: CategoryCompliance,
	EventTitulacionRevoked: CategoryCompliance,

	EventTokenRejected:      CategorySecurity,
	EventCredentialRejected: CategorySecurity,
	EventRevocationFailed:   CategorySecurity,

	EventOfferCreated: CategoryOperations,
	EventTokenIssued:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// ErrNotReadable is returned when the configured Store cannot read back.
var ErrNotReadable = errors.New("audit store does not support listing")

// Reader lists events for a subject. Not every Store can read back.
type Reader interface {
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
