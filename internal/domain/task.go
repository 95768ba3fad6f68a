package domain

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOverdue    TaskStatus = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// Terminal statuses are never left automatically.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusOverdue
}

// transitions lists every allowed status change. Completed and Overdue have none.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress, StatusOverdue},
	StatusInProgress: {StatusCompleted, StatusOverdue},
}

// CanTransition reports whether from -> to is an edge of the task lifecycle.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ListTask struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Task struct {
	ID             int64      `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Description    string     `db:"description" json:"description"`
	Status         TaskStatus `db:"status" json:"status"`
	AssignedTo     *int64     `db:"assigned_to" json:"assigned_to"`
	ListID         int64      `db:"list_id" json:"list_tasks"`
	ListOwnerID    int64      `db:"owner_id" json:"list_owner"`
	CompleteBefore *time.Time `db:"complete_before" json:"complete_before"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsCompleted mirrors the legacy boolean flag for clients.
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// NewTask builds a task in its initial state. A task created with an assignee
// starts InProgress within the same write.
func NewTask(list *ListTask, name, description string, assignedTo *int64, completeBefore *time.Time, now time.Time) *Task {
	ts := Timestamp(now)
	t := &Task{
		Name:           name,
		Description:    description,
		Status:         StatusPending,
		ListID:         list.ID,
		ListOwnerID:    list.OwnerID,
		CompleteBefore: completeBefore,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	t.SetAssignee(assignedTo)
	return t
}

// SetAssignee changes the assignee and reports whether it actually changed.
// Assigning someone to a pending task promotes it to InProgress.
func (t *Task) SetAssignee(userID *int64) bool {
	changed := !sameUser(t.AssignedTo, userID)
	if userID != nil {
		id := *userID
		t.AssignedTo = &id
	} else {
		t.AssignedTo = nil
	}
	if t.AssignedTo != nil && t.Status == StatusPending {
		t.Status = StatusInProgress
	}
	return changed
}

// MarkCompleted succeeds only from InProgress. A false result is not an error.
func (t *Task) MarkCompleted(now time.Time) bool {
	if t.Status != StatusInProgress {
		return false
	}
	t.Status = StatusCompleted
	t.Touch(now)
	return true
}

// IsOverdueAt reports whether the deadline lapsed before now and the task can
// still move to Overdue.
func (t *Task) IsOverdueAt(now time.Time) bool {
	return t.CompleteBefore != nil && t.CompleteBefore.Before(now) && !t.Status.Terminal()
}

// MarkOverdue is safe to call repeatedly; only the first call on an eligible
// task returns true.
func (t *Task) MarkOverdue(now time.Time) bool {
	if !t.IsOverdueAt(now) {
		return false
	}
	t.Status = StatusOverdue
	t.Touch(now)
	return true
}

// Touch bumps the concurrency fingerprint after a mutation.
func (t *Task) Touch(now time.Time) {
	ts := Timestamp(now)
	if !ts.After(t.UpdatedAt) {
		ts = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = ts
}

// Clone returns a deep copy so callers can keep the pre-mutation state.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	if t.CompleteBefore != nil {
		cb := *t.CompleteBefore
		c.CompleteBefore = &cb
	}
	return &c
}

// VisibleTo is the owned-or-assigned access rule.
func (t *Task) VisibleTo(userID int64) bool {
	return t.ListOwnerID == userID || (t.AssignedTo != nil && *t.AssignedTo == userID)
}

func sameUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SameUser compares two optional user references.
func SameUser(a, b *int64) bool {
	return sameUser(a, b)
}
