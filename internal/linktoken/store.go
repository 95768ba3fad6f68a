// Package linktoken issues and redeems one-time tokens that bind an external
// messaging identity to an account.
package linktoken

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	tokenPrefix    = "tg_link:"
	cooldownPrefix = "confirm_tg_cooldown:"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Backend is a key-value store with TTLs and an atomic get-and-delete.
type Backend interface {
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Get(ctx context.Context, key string) (int64, bool, error)
	GetDel(ctx context.Context, key string) (int64, bool, error)
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Link is what the account owner receives when requesting a binding.
type Link struct {
	Token     string        `json:"link_token"`
	URL       string        `json:"telegram_link"`
	ExpiresIn time.Duration `json:"-"`
}

type Store struct {
	backend  Backend
	entryURL string
}

// NewStore builds a store whose deep links point at entryURL, e.g. https://t.me/MyBot.
func NewStore(backend Backend, entryURL string) *Store {
	return &Store{backend: backend, entryURL: strings.TrimRight(entryURL, "/")}
}

// NewToken returns 32 lowercase hex characters from a random (v4) UUID.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// DeepLink embeds token as the bot's start argument.
func DeepLink(entryURL, token string) string {
	return entryURL + "?start=" + token
}

func (s *Store) Issue(ctx context.Context, userID int64, ttl time.Duration) (Link, error) {
	token := NewToken()
	if err := s.backend.Set(ctx, tokenPrefix+token, userID, ttl); err != nil {
		return Link{}, err
	}
	return Link{Token: token, URL: DeepLink(s.entryURL, token), ExpiresIn: ttl}, nil
}

// Peek resolves a token without consuming it.
func (s *Store) Peek(ctx context.Context, token string) (int64, bool, error) {
	if !tokenPattern.MatchString(token) {
		return 0, false, nil
	}
	return s.backend.Get(ctx, tokenPrefix+token)
}

// Redeem atomically reads and invalidates a token. Unknown, expired and already
// redeemed tokens all yield ok=false.
func (s *Store) Redeem(ctx context.Context, token string) (int64, bool, error) {
	if !tokenPattern.MatchString(token) {
		return 0, false, nil
	}
	return s.backend.GetDel(ctx, tokenPrefix+token)
}

// CooldownActive reports whether identity redeemed a token within its cooldown window.
func (s *Store) CooldownActive(ctx context.Context, identity int64) (bool, error) {
	return s.backend.Exists(ctx, cooldownPrefix+strconv.FormatInt(identity, 10))
}

// StartCooldown opens the cooldown window after a successful redemption.
func (s *Store) StartCooldown(ctx context.Context, identity int64, window time.Duration) error {
	_, err := s.backend.SetNX(ctx, cooldownPrefix+strconv.FormatInt(identity, 10), window)
	return err
}
