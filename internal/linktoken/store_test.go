package linktoken

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewToken_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewToken()
		require.Regexp(t, `^[0-9a-f]{32}$`, tok)
		require.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
}

func TestIssue_DeepLink(t *testing.T) {
	s := NewStore(NewMemoryBackend(), "https://t.me/TaskBot/")
	link, err := s.Issue(context.Background(), 5, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "https://t.me/TaskBot?start="+link.Token, link.URL)
	assert.Equal(t, time.Minute, link.ExpiresIn)
}

func TestRedeem_RoundTripOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "https://t.me/TaskBot")

	link, err := s.Issue(ctx, 77, 10*time.Minute)
	require.NoError(t, err)

	uid, ok, err := s.Peek(ctx, link.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(77), uid)

	uid, ok, err = s.Redeem(ctx, link.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(77), uid)

	_, ok, err = s.Redeem(ctx, link.Token)
	require.NoError(t, err)
	assert.False(t, ok, "second redemption must fail")
}

func TestRedeem_Expired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore(NewMemoryBackendWithClock(clock.Now), "https://t.me/TaskBot")

	link, err := s.Issue(ctx, 1, 600*time.Second)
	require.NoError(t, err)

	clock.Advance(600 * time.Second)

	_, ok, err := s.Redeem(ctx, link.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedeem_UnknownAndMalformed(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "https://t.me/TaskBot")

	for _, tok := range []string{"", "short", strings.Repeat("z", 32), NewToken()} {
		_, ok, err := s.Redeem(ctx, tok)
		require.NoError(t, err)
		assert.False(t, ok, "token %q", tok)
	}
}

func TestRedeem_ConcurrentExactlyOne(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), "https://t.me/TaskBot")
	link, err := s.Issue(ctx, 9, time.Minute)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := s.Redeem(ctx, link.Token); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	s := NewStore(NewMemoryBackendWithClock(clock.Now), "https://t.me/TaskBot")

	active, err := s.CooldownActive(ctx, 555)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, s.StartCooldown(ctx, 555, 10*time.Second))
	active, err = s.CooldownActive(ctx, 555)
	require.NoError(t, err)
	assert.True(t, active)

	clock.Advance(11 * time.Second)
	active, err = s.CooldownActive(ctx, 555)
	require.NoError(t, err)
	assert.False(t, active)
}

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisBackendIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	defer rdb.Close()

	ctx := context.Background()
	s := NewStore(NewRedisBackend(rdb), "https://t.me/TaskBot")

	link, err := s.Issue(ctx, 31, 2*time.Second)
	require.NoError(t, err)

	uid, ok, err := s.Redeem(ctx, link.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(31), uid)

	_, ok, err = s.Redeem(ctx, link.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	expiring, err := s.Issue(ctx, 32, time.Second)
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)
	_, ok, err = s.Redeem(ctx, expiring.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}
