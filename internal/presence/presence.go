// Package presence tracks which users hold at least one open real-time
// connection to this application instance. Membership is reference counted per
// user: a second connection from the same user keeps them online after the
// first one closes.
//
// Presence answers "can the local hub reach this user", so counts are scoped to
// the instance that owns the sockets. A crashed instance's counts expire with
// its key instead of pinning users online.
package presence

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"task_tracker/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// Store is implemented by RedisStore and MemoryStore.
type Store interface {
	MarkOnline(ctx context.Context, userID int64) error
	MarkOffline(ctx context.Context, userID int64) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// RedisStore keeps a hash user_id -> open connection count under a key owned
// by one instance. The key carries a TTL that Run keeps refreshing.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
	log *slog.Logger
}

func NewRedisStore(rdb *redis.Client, instanceID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: keyPrefix + instanceID,
		ttl: ttl,
		log: logger.With("component", "presence", "instance", instanceID),
	}
}

// decrScript decrements the counter and drops the field once it reaches zero,
// so a duplicate disconnect never leaves a negative count behind.
var decrScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 0
end
return n
`)

func (s *RedisStore) MarkOnline(ctx context.Context, userID int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, s.key, strconv.FormatInt(userID, 10), 1)
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) MarkOffline(ctx context.Context, userID int64) error {
	return decrScript.Run(ctx, s.rdb, []string{s.key}, strconv.FormatInt(userID, 10)).Err()
}

func (s *RedisStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.HGet(ctx, s.key, strconv.FormatInt(userID, 10)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Run refreshes the key TTL every third of it until ctx is cancelled.
func (s *RedisStore) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.rdb.Expire(ctx, s.key, s.ttl).Err(); err != nil && ctx.Err() == nil {
				s.log.Warn("presence heartbeat failed", "error", err)
			}
		}
	}
}

// Clear drops every count this instance holds.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}

// MemoryStore is the single-instance variant.
type MemoryStore struct {
	mu     sync.RWMutex
	counts map[int64]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[int64]int)}
}

func (s *MemoryStore) MarkOnline(_ context.Context, userID int64) error {
	s.mu.Lock()
	s.counts[userID]++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MarkOffline(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[userID] <= 1 {
		delete(s.counts, userID)
		return nil
	}
	s.counts[userID]--
	return nil
}

func (s *MemoryStore) IsOnline(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[userID] > 0, nil
}
