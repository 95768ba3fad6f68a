package repository

import (
	"context"
	"errors"
	"fmt"

	"task_tracker/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, telegram_id, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.TelegramID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, telegram_id, created_at
		 FROM users
		 WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.TelegramID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username)
		 VALUES ($1)
		 RETURNING id, created_at`,
		u.Username,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username already taken", domain.ErrValidation)
	}
	return err
}

// TelegramID returns the linked external identity, ok=false when none is linked.
func (r *UserRepository) TelegramID(ctx context.Context, userID int64) (int64, bool, error) {
	var tgID *int64
	err := r.db.QueryRow(ctx, `SELECT telegram_id FROM users WHERE id = $1`, userID).Scan(&tgID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if tgID == nil {
		return 0, false, nil
	}
	return *tgID, true, nil
}

// BindTelegram links telegramID to userID inside one transaction. The user row
// and any current holder of telegramID are locked before the check; consume runs
// after the check passes and aborts the bind when it fails.
func (r *UserRepository) BindTelegram(ctx context.Context, userID, telegramID int64, consume func(context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	var holder int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE telegram_id = $1 FOR UPDATE`, telegramID).Scan(&holder)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return err
	case holder != userID:
		return fmt.Errorf("%w: telegram account is linked to another user", domain.ErrConflict)
	}

	if err := consume(ctx); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET telegram_id = $2 WHERE id = $1`, userID, telegramID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: telegram account is linked to another user", domain.ErrConflict)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *UserRepository) UnbindTelegram(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET telegram_id = NULL WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
