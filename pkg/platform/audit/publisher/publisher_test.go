package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	audit "titulaciones/pkg/platform/audit"
	"titulaciones/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appendOnlyStore struct{}

func (appendOnlyStore) Append(context.Context, audit.Event) error { return nil }

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "ABC123",
		Action:  string(audit.EventOfferCreated),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventOfferCreated), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "83639",
		Action:  string(audit.EventTitulacionRevoked),
	})
	require.NoError(t, err)
	pub.Close()

	events, err := pub.List(context.Background(), "83639")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: "ABC123",
			Action:  string(audit.EventTokenIssued),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySubject(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		dropped int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Subject: "ABC123",
				Action:  string(audit.EventTokenRejected),
			})
			if err != nil {
				assert.EqualError(t, err, "audit buffer full")
				mu.Lock()
				dropped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.ListBySubject(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 50, len(events)+dropped)
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Subject: "x", Action: "y"})
	assert.Error(t, err)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Subject: "ABC123",
		Action:  string(audit.EventCredentialIssued),
	}))

	events, err := pub.List(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Subject:   "ABC123",
		Action:    string(audit.EventCredentialIssued),
		Timestamp: customTime,
	}))

	events, err := pub.List(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_MultipleEventsKeepOrder(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	actions := []audit.AuditEvent{
		audit.EventOfferCreated,
		audit.EventTokenIssued,
		audit.EventCredentialIssued,
	}
	for _, a := range actions {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "ABC123", Action: string(a)}))
	}

	result, err := pub.List(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Len(t, result, 3)
	for i, a := range actions {
		assert.Equal(t, string(a), result[i].Action)
	}

	other, err := pub.List(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPublisher_ListRequiresReader(t *testing.T) {
	pub := NewPublisher(appendOnlyStore{})

	_, err := pub.List(context.Background(), "ABC123")
	assert.True(t, errors.Is(err, audit.ErrNotReadable))
}
