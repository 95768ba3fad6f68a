package repository

import (
	"context"
	"errors"
	"fmt"

	"task_tracker/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ListRepository struct {
	db *pgxpool.Pool
}

func NewListRepository(db *pgxpool.Pool) *ListRepository {
	return &ListRepository{db: db}
}

func (r *ListRepository) CreateList(ctx context.Context, l *domain.ListTask) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO task_lists (name, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 RETURNING id`,
		l.Name, l.OwnerID, l.CreatedAt,
	).Scan(&l.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: list with this name already exists", domain.ErrValidation)
	}
	return err
}

// GetListForOwner returns ErrNotFound for lists owned by someone else.
func (r *ListRepository) GetListForOwner(ctx context.Context, id, ownerID int64) (*domain.ListTask, error) {
	var l domain.ListTask
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at, updated_at
		 FROM task_lists
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&l.ID, &l.Name, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.CreatedAt = domain.Timestamp(l.CreatedAt)
	l.UpdatedAt = domain.Timestamp(l.UpdatedAt)
	return &l, nil
}

// UpdateList is scoped to the owner; a list owned by someone else is ErrNotFound.
func (r *ListRepository) UpdateList(ctx context.Context, l *domain.ListTask) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE task_lists SET name = $3, updated_at = $4
		 WHERE id = $1 AND owner_id = $2`,
		l.ID, l.OwnerID, l.Name, l.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: list with this name already exists", domain.ErrValidation)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ListRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.ListTask, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, owner_id, created_at, updated_at
		 FROM task_lists
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.ListTask
	for rows.Next() {
		var l domain.ListTask
		if err := rows.Scan(&l.ID, &l.Name, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = domain.Timestamp(l.CreatedAt)
		l.UpdatedAt = domain.Timestamp(l.UpdatedAt)
		res = append(res, &l)
	}
	return res, rows.Err()
}
