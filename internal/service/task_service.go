package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"task_tracker/internal/domain"
	"task_tracker/internal/logger"
	"task_tracker/internal/notify"
)

const maxNameLength = 200

type TaskStore interface {
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTaskForUser(ctx context.Context, id, userID int64) (*domain.Task, error)
	UpdateTask(ctx context.Context, t *domain.Task, expected time.Time) error
	DeleteTask(ctx context.Context, id int64) error
	ListByList(ctx context.Context, listID int64) ([]*domain.Task, error)
	ListAssigned(ctx context.Context, userID int64) ([]*domain.Task, error)
}

type ListStore interface {
	CreateList(ctx context.Context, l *domain.ListTask) error
	GetListForOwner(ctx context.Context, id, ownerID int64) (*domain.ListTask, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.ListTask, error)
	UpdateList(ctx context.Context, l *domain.ListTask) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Notifier receives every committed task mutation.
type Notifier interface {
	Dispatch(ctx context.Context, ch notify.Change)
}

// Optional tells an absent JSON field apart from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type CreateTaskInput struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	AssignedTo     *int64     `json:"assigned_to"`
	CompleteBefore *time.Time `json:"complete_before"`
}

// TaskPatch carries the fields a client wants changed plus the updated_at it
// last observed.
type TaskPatch struct {
	Name           *string             `json:"name"`
	Description    *string             `json:"description"`
	Status         *domain.TaskStatus  `json:"status"`
	AssignedTo     Optional[int64]     `json:"assigned_to"`
	CompleteBefore Optional[time.Time] `json:"complete_before"`
	UpdatedAt      string              `json:"updated_at"`
}

// TaskService orchestrates task mutations: read, guard, write, then dispatch.
type TaskService struct {
	tasks    TaskStore
	lists    ListStore
	users    UserLookup
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger
}

func NewTaskService(tasks TaskStore, lists ListStore, users UserLookup, notifier Notifier) *TaskService {
	return &TaskService{
		tasks:    tasks,
		lists:    lists,
		users:    users,
		notifier: notifier,
		now:      time.Now,
		log:      logger.With("component", "task_service"),
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len([]rune(name)) > maxNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", domain.ErrValidation, maxNameLength)
	}
	return name, nil
}

func (s *TaskService) CreateList(ctx context.Context, ownerID int64, name string) (*domain.ListTask, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	now := domain.Timestamp(s.now())
	l := &domain.ListTask{Name: name, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	if err := s.lists.CreateList(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *TaskService) ListLists(ctx context.Context, ownerID int64) ([]*domain.ListTask, error) {
	return s.lists.ListByOwner(ctx, ownerID)
}

func (s *TaskService) GetList(ctx context.Context, ownerID, listID int64) (*domain.ListTask, error) {
	return s.lists.GetListForOwner(ctx, listID, ownerID)
}

// UpdateList renames a list the caller owns.
func (s *TaskService) UpdateList(ctx context.Context, ownerID, listID int64, name string) (*domain.ListTask, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	l, err := s.lists.GetListForOwner(ctx, listID, ownerID)
	if err != nil {
		return nil, err
	}
	if l.Name == name {
		return l, nil
	}
	l.Name = name
	l.UpdatedAt = domain.Timestamp(s.now())
	if err := s.lists.UpdateList(ctx, l); err != nil {
		return nil, err
	}
	s.log.Info("list renamed", "list_id", l.ID, "user_id", ownerID)
	return l, nil
}

func (s *TaskService) ListTasksInList(ctx context.Context, ownerID, listID int64) ([]*domain.Task, error) {
	if _, err := s.lists.GetListForOwner(ctx, listID, ownerID); err != nil {
		return nil, err
	}
	return s.tasks.ListByList(ctx, listID)
}

func (s *TaskService) ensureUser(ctx context.Context, userID *int64) error {
	if userID == nil {
		return nil
	}
	_, err := s.users.GetByID(ctx, *userID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: assigned user %d does not exist", domain.ErrValidation, *userID)
	}
	return err
}

func normalizeDeadline(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := domain.Timestamp(*t)
	return &ts
}

// CreateTask adds a task to a list owned by userID.
func (s *TaskService) CreateTask(ctx context.Context, userID, listID int64, in CreateTaskInput) (*domain.Task, error) {
	list, err := s.lists.GetListForOwner(ctx, listID, userID)
	if err != nil {
		return nil, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	t := domain.NewTask(list, name, in.Description, in.AssignedTo, normalizeDeadline(in.CompleteBefore), s.now())
	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	s.log.Info("task created", "task_id", t.ID, "list_id", listID, "user_id", userID)
	s.notifier.Dispatch(ctx, notify.Change{Task: t.Clone(), Action: notify.ActionCreated})
	return t, nil
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID int64) (*domain.Task, error) {
	return s.tasks.GetTaskForUser(ctx, taskID, userID)
}

func (s *TaskService) ListAssigned(ctx context.Context, userID int64) ([]*domain.Task, error) {
	return s.tasks.ListAssigned(ctx, userID)
}

// UpdateTask applies patch if patch.UpdatedAt still matches the stored
// fingerprint. Two updates carrying the same stale value cannot both win.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID int64, patch TaskPatch) (*domain.Task, error) {
	cur, err := s.tasks.GetTaskForUser(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckVersion(cur.UpdatedAt, patch.UpdatedAt); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if patch.Name != nil {
		name, err := validateName(*patch.Name)
		if err != nil {
			return nil, err
		}
		next.Name = name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.CompleteBefore.Set {
		next.CompleteBefore = normalizeDeadline(patch.CompleteBefore.Value)
	}
	if patch.AssignedTo.Set {
		if err := s.ensureUser(ctx, patch.AssignedTo.Value); err != nil {
			return nil, err
		}
		next.SetAssignee(patch.AssignedTo.Value)
	}
	if patch.Status != nil {
		if err := s.applyStatus(next, *patch.Status); err != nil {
			return nil, err
		}
	}
	next.Touch(s.now())

	if err := s.tasks.UpdateTask(ctx, next, cur.UpdatedAt); err != nil {
		return nil, err
	}

	action := notify.ActionUpdated
	if !domain.SameUser(cur.AssignedTo, next.AssignedTo) {
		action = notify.ActionAssigned
	}
	s.log.Info("task updated", "task_id", next.ID, "user_id", userID, "action", action)
	s.notifier.Dispatch(ctx, notify.Change{Task: next.Clone(), Action: action, PreviousAssignee: cur.AssignedTo})
	return next, nil
}

// applyStatus allows the one manual edge of the lifecycle, Pending to
// InProgress. Completed is reached only through CompleteTask and Overdue only
// through the sweeper; the lifecycle has no backward edges.
func (s *TaskService) applyStatus(t *domain.Task, to domain.TaskStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, to)
	}
	if to == t.Status {
		return nil
	}
	switch to {
	case domain.StatusCompleted:
		return fmt.Errorf("%w: use the complete action to finish a task", domain.ErrValidation)
	case domain.StatusOverdue:
		return fmt.Errorf("%w: overdue is set by the deadline sweep", domain.ErrValidation)
	}
	if !domain.CanTransition(t.Status, to) {
		return fmt.Errorf("%w: cannot change status from %s to %s", domain.ErrValidation, t.Status, to)
	}
	if t.AssignedTo == nil {
		return fmt.Errorf("%w: task must be assigned before it is started", domain.ErrValidation)
	}
	t.Status = domain.StatusInProgress
	return nil
}

// CompleteTask marks the caller's assigned task completed. It reports false,
// without writing or notifying, when the task is not InProgress.
func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID int64) (*domain.Task, bool, error) {
	cur, err := s.tasks.GetTaskForUser(ctx, taskID, userID)
	if err != nil {
		return nil, false, err
	}
	if cur.AssignedTo == nil || *cur.AssignedTo != userID {
		return nil, false, fmt.Errorf("%w: only the assignee can complete the task", ErrForbidden)
	}

	next := cur.Clone()
	if !next.MarkCompleted(s.now()) {
		return cur, false, nil
	}
	if err := s.tasks.UpdateTask(ctx, next, cur.UpdatedAt); err != nil {
		return nil, false, err
	}

	s.log.Info("task completed", "task_id", next.ID, "user_id", userID)
	s.notifier.Dispatch(ctx, notify.Change{Task: next.Clone(), Action: notify.ActionUpdated, PreviousAssignee: cur.AssignedTo})
	return next, true, nil
}

// DeleteTask removes a task. Only the list owner may delete.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID int64) error {
	cur, err := s.tasks.GetTaskForUser(ctx, taskID, userID)
	if err != nil {
		return err
	}
	if cur.ListOwnerID != userID {
		return fmt.Errorf("%w: only the list owner can delete the task", ErrForbidden)
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	s.log.Info("task deleted", "task_id", taskID, "user_id", userID)
	s.notifier.Dispatch(ctx, notify.Change{Task: cur, Action: notify.ActionDeleted, PreviousAssignee: cur.AssignedTo})
	return nil
}
