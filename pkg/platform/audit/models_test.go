package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuditEventCategory(t *testing.T) {
	cases := map[AuditEvent]EventCategory{
		EventCredentialIssued:   CategoryCompliance,
		EventTitulacionRevoked:  CategoryCompliance,
		EventTokenRejected:      CategorySecurity,
		EventCredentialRejected: CategorySecurity,
		EventRevocationFailed:   CategorySecurity,
		EventOfferCreated:       CategoryOperations,
		AuditEvent("unknown"):   CategoryOperations,
	}
	for event, want := range cases {
		assert.Equal(t, want, event.Category(), string(event))
	}
}
