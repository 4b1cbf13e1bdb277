package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/snapshot"
)

const testKey = "notifications-store"

func newTestStore(t *testing.T, persist snapshot.Store) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), persist, testKey, logger.Nop())
	require.NoError(t, err)
	return store
}

func TestAddPrependsUnread(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, snapshot.NewMemoryStore())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	orderA := uuid.New()
	orderB := uuid.New()
	first := store.Add(ctx, orderA, "order #aaaaaaaa is being processed")
	second := store.Add(ctx, orderB, "order #bbbbbbbb has been completed")

	state := store.Snapshot()
	require.Len(t, state.Items, 2)
	require.Equal(t, second.ID, state.Items[0].ID, "newest first")
	require.Equal(t, first.ID, state.Items[1].ID)
	require.Equal(t, 2, state.UnreadCount)
	require.False(t, state.Items[0].Read)
	require.Equal(t, fixed, state.Items[0].CreatedAt)
	require.NotEqual(t, first.ID, second.ID)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, snapshot.NewMemoryStore())

	n := store.Add(ctx, uuid.New(), "order #12345678 is being processed")
	store.Add(ctx, uuid.New(), "order #87654321 is being processed")

	state, found := store.MarkRead(ctx, n.ID)
	require.True(t, found)
	require.Equal(t, 1, state.UnreadCount)

	state, found = store.MarkRead(ctx, n.ID)
	require.True(t, found)
	require.Equal(t, 1, state.UnreadCount, "second markRead must not decrement again")

	state, found = store.MarkRead(ctx, uuid.New())
	require.False(t, found)
	require.Equal(t, 1, state.UnreadCount)
}

func TestMarkAllReadAndClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, snapshot.NewMemoryStore())

	for i := 0; i < 3; i++ {
		store.Add(ctx, uuid.New(), "msg")
	}
	state := store.MarkAllRead(ctx)
	require.Zero(t, state.UnreadCount)
	for _, item := range state.Items {
		require.True(t, item.Read)
	}

	state = store.Clear(ctx)
	require.Empty(t, state.Items)
	require.Zero(t, state.UnreadCount)
}

func TestUnreadCountMatchesUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, snapshot.NewMemoryStore())

	ids := make(chan uuid.UUID, 100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- store.Add(ctx, uuid.New(), "msg").ID
		}()
	}
	wg.Wait()
	close(ids)

	for id := range ids {
		wg.Add(2)
		go func(id uuid.UUID) {
			defer wg.Done()
			store.MarkRead(ctx, id)
		}(id)
		go func(id uuid.UUID) {
			defer wg.Done()
			store.MarkRead(ctx, id)
		}(id)
	}
	wg.Wait()

	state := store.Snapshot()
	require.Len(t, state.Items, 50)
	require.Equal(t, countUnread(state.Items), state.UnreadCount)
	require.Zero(t, state.UnreadCount)
}

func TestRestoreFromSnapshot(t *testing.T) {
	ctx := context.Background()
	persist := snapshot.NewMemoryStore()
	first := newTestStore(t, persist)

	n := first.Add(ctx, uuid.New(), "order #11111111 has been cancelled")
	first.Add(ctx, uuid.New(), "order #22222222 has been completed")
	first.MarkRead(ctx, n.ID)

	state := newTestStore(t, persist).Snapshot()
	require.Len(t, state.Items, 2)
	require.Equal(t, 1, state.UnreadCount)
}

func TestRestoreReconcilesUnreadCount(t *testing.T) {
	persist := snapshot.NewMemoryStore()
	blob := `{"version":1,"notifications":[
		{"id":"` + uuid.NewString() + `","orderId":"` + uuid.NewString() + `","message":"a","read":false},
		{"id":"` + uuid.NewString() + `","orderId":"` + uuid.NewString() + `","message":"b","read":true}
	],"unreadCount":7}`
	require.NoError(t, persist.Save(context.Background(), testKey, []byte(blob)))

	state := newTestStore(t, persist).Snapshot()
	require.Equal(t, 1, state.UnreadCount)
}

func TestRestoreToleratesCorruptBlob(t *testing.T) {
	persist := snapshot.NewMemoryStore()
	require.NoError(t, persist.Save(context.Background(), testKey, []byte("not json")))

	state := newTestStore(t, persist).Snapshot()
	require.Empty(t, state.Items)
	require.Zero(t, state.UnreadCount)
}
