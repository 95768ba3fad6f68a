package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"task_tracker/internal/domain"
)

// MemoryStore keeps users, lists and tasks in process. It backs DEV_MODE and
// the tests, and follows the same not-found, conflict and CAS rules as the
// Postgres repositories.
type MemoryStore struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]*domain.User
	lists map[int64]*domain.ListTask
	tasks map[int64]*domain.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*domain.User),
		lists: make(map[int64]*domain.ListTask),
		tasks: make(map[int64]*domain.Task),
	}
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

// users

func (s *MemoryStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: username already taken", domain.ErrValidation)
		}
	}
	u.ID = s.nextID()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = domain.Timestamp(time.Now())
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) TelegramID(_ context.Context, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.TelegramID == nil {
		return 0, false, nil
	}
	return *u.TelegramID, true, nil
}

// BindTelegram holds the store lock across check, consume and write, which
// gives the same atomicity the Postgres transaction provides.
func (s *MemoryStore) BindTelegram(ctx context.Context, userID, telegramID int64, consume func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range s.users {
		if other.ID != userID && other.TelegramID != nil && *other.TelegramID == telegramID {
			return fmt.Errorf("%w: telegram account is linked to another user", domain.ErrConflict)
		}
	}
	if err := consume(ctx); err != nil {
		return err
	}
	id := telegramID
	u.TelegramID = &id
	return nil
}

func (s *MemoryStore) UnbindTelegram(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.TelegramID = nil
	return nil
}

// lists

func (s *MemoryStore) CreateList(_ context.Context, l *domain.ListTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.lists {
		if existing.Name == l.Name {
			return fmt.Errorf("%w: list with this name already exists", domain.ErrValidation)
		}
	}
	l.ID = s.nextID()
	cp := *l
	s.lists[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetListForOwner(_ context.Context, id, ownerID int64) (*domain.ListTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[id]
	if !ok || l.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) UpdateList(_ context.Context, l *domain.ListTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.lists[l.ID]
	if !ok || cur.OwnerID != l.OwnerID {
		return domain.ErrNotFound
	}
	for _, existing := range s.lists {
		if existing.ID != l.ID && existing.Name == l.Name {
			return fmt.Errorf("%w: list with this name already exists", domain.ErrValidation)
		}
	}
	cur.Name = l.Name
	cur.UpdatedAt = l.UpdatedAt
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID int64) ([]*domain.ListTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*domain.ListTask
	for _, l := range s.lists {
		if l.OwnerID == ownerID {
			cp := *l
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

// tasks

func (s *MemoryStore) CreateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkTaskName(t); err != nil {
		return err
	}
	t.ID = s.nextID()
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) checkTaskName(t *domain.Task) error {
	for _, existing := range s.tasks {
		if existing.ID != t.ID && existing.ListID == t.ListID && existing.Name == t.Name {
			return fmt.Errorf("%w: task with this name already exists in the list", domain.ErrValidation)
		}
	}
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id int64) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) GetTaskForUser(_ context.Context, id, userID int64) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || !t.VisibleTo(userID) {
		return nil, domain.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, t *domain.Task, expected time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !cur.UpdatedAt.Equal(expected) {
		return fmt.Errorf("%w: task was modified by another user", domain.ErrConflict)
	}
	if err := s.checkTaskName(t); err != nil {
		return err
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) filterTasks(keep func(*domain.Task) bool) []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []*domain.Task
	for _, t := range s.tasks {
		if keep(t) {
			res = append(res, t.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res
}

func (s *MemoryStore) ListByList(_ context.Context, listID int64) ([]*domain.Task, error) {
	return s.filterTasks(func(t *domain.Task) bool { return t.ListID == listID }), nil
}

func (s *MemoryStore) ListAssigned(_ context.Context, userID int64) ([]*domain.Task, error) {
	return s.filterTasks(func(t *domain.Task) bool {
		return t.AssignedTo != nil && *t.AssignedTo == userID
	}), nil
}

func (s *MemoryStore) ListOverdueCandidates(_ context.Context, now time.Time) ([]*domain.Task, error) {
	return s.filterTasks(func(t *domain.Task) bool { return t.IsOverdueAt(now) }), nil
}
