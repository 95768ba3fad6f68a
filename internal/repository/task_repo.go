package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task_tracker/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `t.id, t.name, t.description, t.status, t.assigned_to, t.list_id, l.owner_id,
	t.complete_before, t.created_at, t.updated_at`

type TaskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var status string
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &status, &t.AssignedTo, &t.ListID, &t.ListOwnerID,
		&t.CompleteBefore, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = domain.Timestamp(t.CreatedAt)
	t.UpdatedAt = domain.Timestamp(t.UpdatedAt)
	if t.CompleteBefore != nil {
		cb := t.CompleteBefore.UTC()
		t.CompleteBefore = &cb
	}
	return &t, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, sql string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *domain.Task) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO tasks (name, description, status, assigned_to, list_id, complete_before, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		t.Name, t.Description, string(t.Status), t.AssignedTo, t.ListID, t.CompleteBefore, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: task with this name already exists in the list", domain.ErrValidation)
	}
	return err
}

func (r *TaskRepository) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN task_lists l ON l.id = t.list_id
		 WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

// GetTaskForUser applies the owned-or-assigned scope in the query itself.
func (r *TaskRepository) GetTaskForUser(ctx context.Context, id, userID int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN task_lists l ON l.id = t.list_id
		 WHERE t.id = $1 AND (l.owner_id = $2 OR t.assigned_to = $2)`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

// UpdateTask is a compare-and-swap on updated_at: the row is written only if it
// still carries expected.
func (r *TaskRepository) UpdateTask(ctx context.Context, t *domain.Task, expected time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks
		 SET name = $2, description = $3, status = $4, assigned_to = $5, complete_before = $6, updated_at = $7
		 WHERE id = $1 AND updated_at = $8`,
		t.ID, t.Name, t.Description, string(t.Status), t.AssignedTo, t.CompleteBefore, t.UpdatedAt, expected,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: task with this name already exists in the list", domain.ErrValidation)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: task was modified by another user", domain.ErrConflict)
	}
	return nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) ListByList(ctx context.Context, listID int64) ([]*domain.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN task_lists l ON l.id = t.list_id
		 WHERE t.list_id = $1
		 ORDER BY t.created_at DESC, t.id DESC`, listID)
}

func (r *TaskRepository) ListAssigned(ctx context.Context, userID int64) ([]*domain.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN task_lists l ON l.id = t.list_id
		 WHERE t.assigned_to = $1
		 ORDER BY t.created_at DESC, t.id DESC`, userID)
}

// ListOverdueCandidates returns lapsed tasks that are not yet Completed or Overdue.
func (r *TaskRepository) ListOverdueCandidates(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	return r.queryTasks(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t JOIN task_lists l ON l.id = t.list_id
		 WHERE t.complete_before < $1 AND t.status NOT IN ('completed', 'overdue')
		 ORDER BY t.complete_before`, now)
}
