package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"task_tracker/internal/domain"
	"task_tracker/internal/linktoken"
	"task_tracker/internal/logger"
)

type LinkTokens interface {
	Issue(ctx context.Context, userID int64, ttl time.Duration) (linktoken.Link, error)
	Peek(ctx context.Context, token string) (int64, bool, error)
	Redeem(ctx context.Context, token string) (int64, bool, error)
	CooldownActive(ctx context.Context, identity int64) (bool, error)
	StartCooldown(ctx context.Context, identity int64, window time.Duration) error
}

type TelegramBinder interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	BindTelegram(ctx context.Context, userID, telegramID int64, consume func(context.Context) error) error
	UnbindTelegram(ctx context.Context, userID int64) error
}

// LinkService binds a Telegram account to a user through a one-time deep link.
type LinkService struct {
	tokens   LinkTokens
	users    TelegramBinder
	tokenTTL time.Duration
	cooldown time.Duration
	log      *slog.Logger
}

func NewLinkService(tokens LinkTokens, users TelegramBinder, tokenTTL, cooldown time.Duration) *LinkService {
	return &LinkService{
		tokens:   tokens,
		users:    users,
		tokenTTL: tokenTTL,
		cooldown: cooldown,
		log:      logger.With("component", "link_service"),
	}
}

func (s *LinkService) IssueLink(ctx context.Context, userID int64) (linktoken.Link, error) {
	link, err := s.tokens.Issue(ctx, userID, s.tokenTTL)
	if err != nil {
		return linktoken.Link{}, err
	}
	s.log.Info("telegram link issued", "user_id", userID)
	return link, nil
}

// Confirm redeems code for telegramID and returns a fresh session for the
// linked user. A conflicting binding leaves the code usable.
func (s *LinkService) Confirm(ctx context.Context, code string, telegramID int64) (TokenPair, error) {
	limited, err := s.tokens.CooldownActive(ctx, telegramID)
	if err != nil {
		return TokenPair{}, err
	}
	if limited {
		return TokenPair{}, ErrLinkRateLimited
	}

	userID, ok, err := s.tokens.Peek(ctx, code)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrInvalidLinkCode
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, err
	}

	err = s.users.BindTelegram(ctx, userID, telegramID, func(ctx context.Context) error {
		redeemed, ok, err := s.tokens.Redeem(ctx, code)
		if err != nil {
			return err
		}
		if !ok || redeemed != userID {
			return ErrInvalidLinkCode
		}
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrConflict):
		s.log.Warn("telegram already linked", "user_id", userID, "telegram_id", telegramID)
		return TokenPair{}, ErrTelegramAlreadyLinked
	case errors.Is(err, domain.ErrNotFound):
		return TokenPair{}, ErrUserNotFound
	case err != nil:
		return TokenPair{}, err
	}

	if err := s.tokens.StartCooldown(ctx, telegramID, s.cooldown); err != nil {
		s.log.Warn("failed to start link cooldown", "telegram_id", telegramID, "error", err)
	}
	s.log.Info("telegram linked", "user_id", userID, "telegram_id", telegramID)

	return GenerateTokenPair(userID)
}

func (s *LinkService) Unlink(ctx context.Context, userID int64) error {
	if err := s.users.UnbindTelegram(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.log.Info("telegram unlinked", "user_id", userID)
	return nil
}
