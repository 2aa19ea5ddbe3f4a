package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPublisherSyncAppendsInline(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithPublisherClock(func() time.Time { return fixedNow }))

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionTransferCreated, TransferID: "req-1"}))

	events, err := store.List(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixedNow, events[0].Timestamp)
	assert.Equal(t, ActionTransferCreated, events[0].Action)
}

func TestPublisherSyncSurfacesStoreError(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewPublisher(storeFunc(func(context.Context, Event) error { return boom }))

	err := pub.Emit(context.Background(), Event{Action: ActionTransferExpired, TransferID: "req-1"})
	assert.ErrorIs(t, err, boom)
}

func TestPublisherAsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(64))

	for range 20 {
		require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionDeliveryFailed, TransferID: "req-2"}))
	}
	pub.Close()

	events, err := store.List(context.Background(), "req-2")
	require.NoError(t, err)
	assert.Len(t, events, 20)
}

func TestPublisherAsyncDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var stored int
	blocking := storeFunc(func(context.Context, Event) error {
		<-release
		mu.Lock()
		stored++
		mu.Unlock()
		return nil
	})
	pub := NewPublisher(blocking, WithAsyncBuffer(1))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionTransferCreated, TransferID: "req-3"}))
	}
	close(release)
	pub.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, stored, 1)
	assert.Less(t, stored, 10)
}

func TestPublisherEmitAfterCloseIsDropped(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionTransferCreated, TransferID: "req-4"}))
	events, _ := store.List(context.Background(), "req-4")
	assert.Empty(t, events)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var pub *Publisher
	assert.NoError(t, pub.Emit(context.Background(), Event{Action: ActionTransferCreated}))
	pub.Close()
}

func TestFanoutJoinsErrors(t *testing.T) {
	mem := NewInMemoryStore()
	boom := errors.New("unavailable")
	store := Fanout(storeFunc(func(context.Context, Event) error { return boom }), mem)

	err := store.Append(context.Background(), Event{Action: ActionConsentInitiated, ConsentID: "consent-1"})
	assert.ErrorIs(t, err, boom)

	events, _ := mem.List(context.Background(), "consent-1")
	assert.Len(t, events, 1, "later stores still receive the event")
}

type storeFunc func(context.Context, Event) error

func (f storeFunc) Append(ctx context.Context, e Event) error { return f(ctx, e) }
