package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "titulaciones/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for _, e := range []audit.Event{
		{Subject: "ABC123", Action: string(audit.EventOfferCreated)},
		{Subject: "83639", Action: string(audit.EventTitulacionRevoked)},
		{Subject: "ABC123", Action: string(audit.EventTokenIssued)},
	} {
		require.NoError(t, s.Append(ctx, e))
	}

	t.Run("lists by subject in order", func(t *testing.T) {
		events, err := s.ListBySubject(ctx, "ABC123")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(audit.EventOfferCreated), events[0].Action)
		assert.Equal(t, string(audit.EventTokenIssued), events[1].Action)
	})

	t.Run("recent is bounded", func(t *testing.T) {
		events, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "83639", events[0].Subject)

		all, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		events, err := s.ListBySubject(ctx, "ABC123")
		require.NoError(t, err)
		events[0].Action = "mutated"

		again, err := s.ListBySubject(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, string(audit.EventOfferCreated), again[0].Action)
	})

	t.Run("clear", func(t *testing.T) {
		s.Clear()
		events, err := s.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
