package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisReminderStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisReminderStore(client, "test", zerolog.Nop()), mr
}

func TestRedisPopDueReminders(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	created := now.Add(-time.Hour)
	id, err := store.AddReminder(ctx, 1, 10, "ping", now.Add(-time.Minute), created)
	require.NoError(t, err)

	due, err := store.PopDueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, int64(1), due[0].OwnerID)
	assert.Equal(t, int64(10), due[0].TargetID)
	assert.Equal(t, "ping", due[0].Message)
	assert.True(t, due[0].DueAt.Equal(now.Add(-time.Minute)))
	assert.True(t, due[0].CreatedAt.Equal(created))

	due, err = store.PopDueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Nothing is left behind.
	assert.False(t, mr.Exists(fmt.Sprintf("test:reminder:%d", id)))
	assert.False(t, mr.Exists("test:reminders:owner:1"))
}

func TestRedisPopKeepsFutureReminders(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	_, _ = store.AddReminder(ctx, 1, 10, "later", now.Add(time.Hour), now)
	_, _ = store.AddReminder(ctx, 1, 10, "now", now, now)
	_, _ = store.AddReminder(ctx, 1, 10, "earlier", now.Add(-time.Hour), now)

	due, err := store.PopDueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "earlier", due[0].Message)
	assert.Equal(t, "now", due[1].Message)

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := store.ListReminders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "later", list[0].Message)
}

func TestRedisListReminders(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 12; i > 0; i-- {
		_, err := store.AddReminder(ctx, 1, 10, fmt.Sprintf("r%d", i), now.Add(time.Duration(i)*time.Minute), now)
		require.NoError(t, err)
	}
	_, _ = store.AddReminder(ctx, 2, 20, "other", now.Add(time.Minute), now)

	list, err := store.ListReminders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 12)
	for i, r := range list {
		assert.Equal(t, fmt.Sprintf("r%d", i+1), r.Message)
	}

	list, err = store.ListReminders(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisConcurrentPops(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	const total = 100
	for i := 0; i < total; i++ {
		_, err := store.AddReminder(ctx, int64(i%5), 10, fmt.Sprintf("r%d", i), now.Add(-time.Duration(i)*time.Second), now)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				due, err := store.PopDueReminders(ctx, now)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				for _, r := range due {
					seen[r.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "reminder %d popped %d times", id, n)
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.AddReminder(context.Background(), 1, 10, "x", time.Now(), time.Now())
	assert.Error(t, err)
	_, err = store.PopDueReminders(context.Background(), time.Now())
	assert.Error(t, err)
}
