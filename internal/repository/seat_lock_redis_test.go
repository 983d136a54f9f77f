package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisSeatLockRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisSeatLockRepo(rdb, "test"), mr
}

func TestRedisSeatLockRepo_AcquireRefreshConflict(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	acq, err := repo.TryAcquire(ctx, 5, 10, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
	assert.True(t, acq.IsNew)
	assert.Equal(t, t0.Add(lease), acq.ExpiresAt)

	later := t0.Add(time.Minute)
	acq, err = repo.TryAcquire(ctx, 5, 10, "sess-a", later.Add(lease), later)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
	assert.False(t, acq.IsNew, "re-entry refreshes the existing lock")
	assert.Equal(t, later.Add(lease), acq.ExpiresAt)

	acq, err = repo.TryAcquire(ctx, 5, 10, "sess-b", later.Add(lease), later)
	require.NoError(t, err)
	assert.False(t, acq.Acquired)
	assert.Equal(t, later.Add(lease), acq.ExpiresAt, "conflict reports the holder's expiry")
}

func TestRedisSeatLockRepo_ExpiredLockIsTakenOver(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	_, err := repo.TryAcquire(ctx, 5, 10, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)

	past := t0.Add(lease + time.Second)
	locks, err := repo.ListActive(ctx, 5, past)
	require.NoError(t, err)
	assert.Empty(t, locks, "expired lock must not be listed")

	acq, err := repo.TryAcquire(ctx, 5, 10, "sess-b", past.Add(lease), past)
	require.NoError(t, err)
	assert.True(t, acq.Acquired)
	assert.True(t, acq.IsNew)

	// The previous holder no longer owns anything.
	n, err := repo.ReleaseAll(ctx, "sess-a")
	require.NoError(t, err)
	assert.Zero(t, n)

	locks, err = repo.ListActive(ctx, 5, past)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "sess-b", locks[0].SessionID)
}

func TestRedisSeatLockRepo_ReleaseOnlyByOwner(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	_, err := repo.TryAcquire(ctx, 5, 10, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)

	ok, err := repo.Release(ctx, 5, 10, "sess-b")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Release(ctx, 5, 10, "sess-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Release(ctx, 5, 10, "sess-a")
	require.NoError(t, err)
	assert.False(t, ok)

	locks, err := repo.ListActive(ctx, 5, t0)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestRedisSeatLockRepo_ReleaseAllScopedToSession(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	for _, seat := range []uint64{10, 11} {
		_, err := repo.TryAcquire(ctx, 5, seat, "sess-a", t0.Add(lease), t0)
		require.NoError(t, err)
	}
	_, err := repo.TryAcquire(ctx, 6, 10, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)
	_, err = repo.TryAcquire(ctx, 5, 12, "sess-b", t0.Add(lease), t0)
	require.NoError(t, err)

	n, err := repo.ReleaseAll(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	locks, err := repo.ListActive(ctx, 5, t0)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, uint64(12), locks[0].SeatID)
	assert.Equal(t, "sess-b", locks[0].SessionID)
}

func TestRedisSeatLockRepo_ListOwnedAndReleaseSeats(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	_, err := repo.TryAcquire(ctx, 5, 11, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)
	_, err = repo.TryAcquire(ctx, 5, 10, "sess-a", t0.Add(lease), t0)
	require.NoError(t, err)
	_, err = repo.TryAcquire(ctx, 5, 12, "sess-b", t0.Add(lease), t0)
	require.NoError(t, err)

	owned, err := repo.ListOwned(ctx, 5, "sess-a", t0)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, uint64(10), owned[0].SeatID)
	assert.Equal(t, uint64(11), owned[1].SeatID)
	assert.Equal(t, t0, owned[0].CreatedAt)

	n, err := repo.ReleaseSeats(ctx, 5, "sess-a", []uint64{10, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "seat 12 belongs to another session")
}

func TestRedisSeatLockRepo_SweepExpired(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	_, err := repo.TryAcquire(ctx, 5, 10, "sess-a", t0.Add(time.Minute), t0)
	require.NoError(t, err)
	_, err = repo.TryAcquire(ctx, 5, 11, "sess-a", t0.Add(2*time.Minute), t0)
	require.NoError(t, err)
	_, err = repo.TryAcquire(ctx, 5, 12, "sess-b", t0.Add(10*time.Minute), t0)
	require.NoError(t, err)

	now := t0.Add(3 * time.Minute)
	n, err := repo.SweepExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "batch limit is honoured")

	n, err = repo.SweepExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.False(t, mr.Exists("test:lock:5:10"))
	assert.False(t, mr.Exists("test:lock:5:11"))
	assert.True(t, mr.Exists("test:lock:5:12"))

	members, err := mr.SMembers("test:session:sess-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"5:12"}, members)
	assert.False(t, mr.Exists("test:session:sess-a"), "emptied session set is removed")
}
