package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// Redis layout, all keys under a common prefix:
//
//	<p>:lock:<show>:<seat>   hash {session, expires_at, created_at}  (unix ms)
//	<p>:show:<show>          zset seat -> expires_at
//	<p>:session:<session>    set  "<show>:<seat>"
//	<p>:expiry               zset "<show>:<seat>" -> expires_at
//
// Expiry is logical: every script compares expires_at with the caller's
// now, so a stale hash is never reported as held.  The scripts build some
// keys from the prefix at run time and therefore assume a single Redis
// node, not a cluster.

var acquireLockScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'session', 'expires_at')
local holder = cur[1]
local exp = tonumber(cur[2])
local now = tonumber(ARGV[2])
local fresh = 1
if holder and exp and exp > now then
    if holder ~= ARGV[1] then
        return {0, 0, exp}
    end
    fresh = 0
elseif holder and holder ~= ARGV[1] then
    redis.call('SREM', ARGV[6] .. ':session:' .. holder, ARGV[5])
end
if fresh == 1 then
    redis.call('HSET', KEYS[1], 'session', ARGV[1], 'expires_at', ARGV[3], 'created_at', ARGV[2])
else
    redis.call('HSET', KEYS[1], 'expires_at', ARGV[3])
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
redis.call('SADD', KEYS[3], ARGV[5])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[5])
return {1, fresh, tonumber(ARGV[3])}
`)

var releaseLockScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'session') ~= ARGV[1] then
    return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
redis.call('SREM', KEYS[3], ARGV[3])
redis.call('ZREM', KEYS[4], ARGV[3])
return 1
`)

var releaseSessionScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local removed = 0
for _, m in ipairs(members) do
    local sep = string.find(m, ':', 1, true)
    local show = string.sub(m, 1, sep - 1)
    local seat = string.sub(m, sep + 1)
    local lockKey = ARGV[2] .. ':lock:' .. m
    if redis.call('HGET', lockKey, 'session') == ARGV[1] then
        redis.call('DEL', lockKey)
        redis.call('ZREM', ARGV[2] .. ':show:' .. show, seat)
        redis.call('ZREM', KEYS[2], m)
        removed = removed + 1
    end
end
redis.call('DEL', KEYS[1])
return removed
`)

var listActiveScript = redis.NewScript(`
local seats = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[1], '+inf')
local now = tonumber(ARGV[1])
local out = {}
for _, seat in ipairs(seats) do
    local v = redis.call('HMGET', ARGV[2] .. ':lock:' .. ARGV[3] .. ':' .. seat, 'session', 'expires_at', 'created_at')
    local exp = tonumber(v[2])
    if v[1] and exp and exp > now then
        table.insert(out, seat)
        table.insert(out, v[1])
        table.insert(out, v[2])
        table.insert(out, v[3] or '0')
    end
end
return out
`)

var sweepExpiredScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local now = tonumber(ARGV[1])
local removed = 0
for _, m in ipairs(members) do
    local lockKey = ARGV[3] .. ':lock:' .. m
    local v = redis.call('HMGET', lockKey, 'session', 'expires_at')
    local exp = tonumber(v[2])
    if v[1] and exp and exp <= now then
        local sep = string.find(m, ':', 1, true)
        redis.call('DEL', lockKey)
        redis.call('ZREM', ARGV[3] .. ':show:' .. string.sub(m, 1, sep - 1), string.sub(m, sep + 1))
        redis.call('SREM', ARGV[3] .. ':session:' .. v[1], m)
        removed = removed + 1
    end
    redis.call('ZREM', KEYS[1], m)
end
return removed
`)

// RedisSeatLockRepo is a seat lock store backed by Redis.  Each operation
// runs as one Lua script, which Redis executes atomically, so two sessions
// racing for a seat cannot both observe it free.
type RedisSeatLockRepo struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisSeatLockRepo returns a store using keys under prefix (default
// "seatlock").
func NewRedisSeatLockRepo(rdb redis.Scripter, prefix string) *RedisSeatLockRepo {
	if prefix == "" {
		prefix = "seatlock"
	}
	return &RedisSeatLockRepo{rdb: rdb, prefix: prefix}
}

func (r *RedisSeatLockRepo) lockKey(showID, seatID uint64) string {
	return fmt.Sprintf("%s:lock:%d:%d", r.prefix, showID, seatID)
}
func (r *RedisSeatLockRepo) showKey(showID uint64) string {
	return fmt.Sprintf("%s:show:%d", r.prefix, showID)
}
func (r *RedisSeatLockRepo) sessionKey(sessionID string) string {
	return r.prefix + ":session:" + sessionID
}
func (r *RedisSeatLockRepo) expiryKey() string { return r.prefix + ":expiry" }

func member(showID, seatID uint64) string {
	return strconv.FormatUint(showID, 10) + ":" + strconv.FormatUint(seatID, 10)
}

// TryAcquire creates, takes over (when expired) or refreshes (when owned
// by sessionID) the lock on a seat.
func (r *RedisSeatLockRepo) TryAcquire(ctx context.Context, showID, seatID uint64, sessionID string, expiresAt, now time.Time) (model.Acquisition, error) {
	keys := []string{r.lockKey(showID, seatID), r.showKey(showID), r.sessionKey(sessionID), r.expiryKey()}
	res, err := acquireLockScript.Run(ctx, r.rdb, keys,
		sessionID,
		now.UnixMilli(),
		expiresAt.UnixMilli(),
		seatID,
		member(showID, seatID),
		r.prefix,
	).Int64Slice()
	if err != nil {
		return model.Acquisition{}, fmt.Errorf("acquire seat lock show=%d seat=%d: %w", showID, seatID, err)
	}
	if len(res) != 3 {
		return model.Acquisition{}, fmt.Errorf("acquire seat lock: unexpected script result %v", res)
	}
	return model.Acquisition{
		Acquired:  res[0] == 1,
		IsNew:     res[1] == 1,
		ExpiresAt: time.UnixMilli(res[2]).UTC(),
	}, nil
}

// Release deletes the lock on a seat only if it is owned by sessionID.
func (r *RedisSeatLockRepo) Release(ctx context.Context, showID, seatID uint64, sessionID string) (bool, error) {
	keys := []string{r.lockKey(showID, seatID), r.showKey(showID), r.sessionKey(sessionID), r.expiryKey()}
	n, err := releaseLockScript.Run(ctx, r.rdb, keys, sessionID, seatID, member(showID, seatID)).Int64()
	if err != nil {
		return false, fmt.Errorf("release seat lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseAll removes every lock owned by sessionID and returns the count.
func (r *RedisSeatLockRepo) ReleaseAll(ctx context.Context, sessionID string) (int64, error) {
	n, err := releaseSessionScript.Run(ctx, r.rdb,
		[]string{r.sessionKey(sessionID), r.expiryKey()},
		sessionID, r.prefix,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("release session locks: %w", err)
	}
	return n, nil
}

// ReleaseSeats removes the session's locks on the given seats of a show.
func (r *RedisSeatLockRepo) ReleaseSeats(ctx context.Context, showID uint64, sessionID string, seatIDs []uint64) (int64, error) {
	var n int64
	for _, seatID := range seatIDs {
		ok, err := r.Release(ctx, showID, seatID, sessionID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ListActive returns every unexpired lock for a show ordered by seat id.
func (r *RedisSeatLockRepo) ListActive(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error) {
	vals, err := listActiveScript.Run(ctx, r.rdb,
		[]string{r.showKey(showID)},
		now.UnixMilli(), r.prefix, showID,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("list active locks: %w", err)
	}
	locks := make([]model.SeatLock, 0, len(vals)/4)
	for i := 0; i+3 < len(vals); i += 4 {
		seatID, err := strconv.ParseUint(vals[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("list active locks: bad seat id %q", vals[i])
		}
		exp, _ := strconv.ParseInt(vals[i+2], 10, 64)
		created, _ := strconv.ParseInt(vals[i+3], 10, 64)
		locks = append(locks, model.SeatLock{
			ShowID:    showID,
			SeatID:    seatID,
			SessionID: vals[i+1],
			ExpiresAt: time.UnixMilli(exp).UTC(),
			CreatedAt: time.UnixMilli(created).UTC(),
		})
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].SeatID < locks[j].SeatID })
	return locks, nil
}

// ListOwned returns the unexpired locks held by sessionID for a show.
func (r *RedisSeatLockRepo) ListOwned(ctx context.Context, showID uint64, sessionID string, now time.Time) ([]model.SeatLock, error) {
	all, err := r.ListActive(ctx, showID, now)
	if err != nil {
		return nil, err
	}
	owned := all[:0]
	for _, l := range all {
		if l.SessionID == sessionID {
			owned = append(owned, l)
		}
	}
	return owned, nil
}

// SweepExpired deletes up to limit expired locks and returns the count.  A
// limit <= 0 removes all of them.
func (r *RedisSeatLockRepo) SweepExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	n, err := sweepExpiredScript.Run(ctx, r.rdb,
		[]string{r.expiryKey()},
		now.UnixMilli(), limit, r.prefix,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("sweep expired locks: %w", err)
	}
	return n, nil
}
