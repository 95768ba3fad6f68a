package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"task_tracker/internal/domain"
	"task_tracker/internal/logger"
	"task_tracker/internal/notify"
	"task_tracker/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitWriter(io.Discard, "error", false)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (n *recordingNotifier) Dispatch(_ context.Context, ch notify.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, ch)
}

func (n *recordingNotifier) all() []notify.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Change(nil), n.changes...)
}

type taskFixture struct {
	svc      *TaskService
	store    *repository.MemoryStore
	notifier *recordingNotifier
	owner    int64
	alice    int64
	bob      int64
	list     *domain.ListTask
	clock    time.Time
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	f := &taskFixture{store: store, notifier: &recordingNotifier{}}
	for _, name := range []string{"owner", "alice", "bob"} {
		u := &domain.User{Username: name}
		require.NoError(t, store.Create(ctx, u))
		switch name {
		case "owner":
			f.owner = u.ID
		case "alice":
			f.alice = u.ID
		case "bob":
			f.bob = u.ID
		}
	}

	f.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc = NewTaskService(store, store, store, f.notifier)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}

	list, err := f.svc.CreateList(ctx, f.owner, "Groceries")
	require.NoError(t, err)
	f.list = list
	return f
}

func ptr(v int64) *int64 { return &v }

func TestCreateTask_WithAssigneeStartsInProgress(t *testing.T) {
	f := newTaskFixture(t)

	task, err := f.svc.CreateTask(testContext(t), f.owner, f.list.ID, CreateTaskInput{Name: "Milk", AssignedTo: ptr(f.alice)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, task.Status)

	changes := f.notifier.all()
	require.Len(t, changes, 1)
	assert.Equal(t, notify.ActionCreated, changes[0].Action)
	assert.Nil(t, changes[0].PreviousAssignee)
}

func TestCreateTask_Validation(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	_, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Eggs", AssignedTo: ptr(9999)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateTask(ctx, f.alice, f.list.ID, CreateTaskInput{Name: "Eggs"})
	assert.ErrorIs(t, err, domain.ErrNotFound, "only the list owner may add tasks")

	_, err = f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Eggs"})
	require.NoError(t, err)
	_, err = f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Eggs"})
	assert.ErrorIs(t, err, domain.ErrValidation, "names are unique within a list")

	assert.Len(t, f.notifier.all(), 1)
}

func TestUpdateTask_ReassignDispatchesPreviousAssignee(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Bread", AssignedTo: ptr(f.bob)})
	require.NoError(t, err)

	patch := TaskPatch{
		AssignedTo: Optional[int64]{Set: true, Value: ptr(f.alice)},
		UpdatedAt:  domain.FormatVersion(task.UpdatedAt),
	}
	updated, err := f.svc.UpdateTask(ctx, f.owner, task.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, f.alice, *updated.AssignedTo)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))

	changes := f.notifier.all()
	require.Len(t, changes, 2)
	last := changes[1]
	assert.Equal(t, notify.ActionAssigned, last.Action)
	require.NotNil(t, last.PreviousAssignee)
	assert.Equal(t, f.bob, *last.PreviousAssignee)
}

func TestUpdateTask_VersionGuard(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Tea"})
	require.NoError(t, err)

	name := "Green tea"
	for _, version := range []string{
		"",
		"yesterday",
		domain.FormatVersion(task.UpdatedAt.Add(-time.Second)),
		task.UpdatedAt.In(time.FixedZone("UTC+3", 3*3600)).Format(time.RFC3339Nano),
	} {
		_, err := f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Name: &name, UpdatedAt: version})
		assert.ErrorIs(t, err, domain.ErrConflict, "version %q", version)
	}

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Name: &name, UpdatedAt: domain.FormatVersion(task.UpdatedAt)})
	require.NoError(t, err)
}

func TestUpdateTask_ConcurrentStaleVersionOneWinner(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Coffee"})
	require.NoError(t, err)
	version := domain.FormatVersion(task.UpdatedAt)

	var clockMu sync.Mutex
	now := f.clock
	f.svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := "attempt"
			_, err := f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Description: &desc, UpdatedAt: version})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
}

func TestUpdateTask_NotVisible(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Juice"})
	require.NoError(t, err)

	_, err = f.svc.UpdateTask(ctx, f.bob, task.ID, TaskPatch{UpdatedAt: domain.FormatVersion(task.UpdatedAt)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateTask_StatusEdges(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Soup"})
	require.NoError(t, err)

	for _, status := range []domain.TaskStatus{domain.StatusInProgress, domain.StatusCompleted, domain.StatusOverdue, "done"} {
		s := status
		_, err := f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Status: &s, UpdatedAt: domain.FormatVersion(task.UpdatedAt)})
		assert.ErrorIs(t, err, domain.ErrValidation, "status %s", status)
	}
}

func TestUpdateTask_CannotCompleteOrRewind(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Dishes", AssignedTo: ptr(f.alice)})
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, task.Status)

	_, _, err = f.svc.CompleteTask(ctx, f.owner, task.ID)
	require.ErrorIs(t, err, ErrForbidden)

	completed := domain.StatusCompleted
	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Status: &completed, UpdatedAt: domain.FormatVersion(task.UpdatedAt)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{
		Status:     &completed,
		AssignedTo: Optional[int64]{Set: true},
		UpdatedAt:  domain.FormatVersion(task.UpdatedAt),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	pending := domain.StatusPending
	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{Status: &pending, UpdatedAt: domain.FormatVersion(task.UpdatedAt)})
	assert.ErrorIs(t, err, domain.ErrValidation, "in_progress has no edge back to pending")

	stored, err := f.svc.GetTask(ctx, f.owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	require.NotNil(t, stored.AssignedTo)
	assert.Equal(t, f.alice, *stored.AssignedTo)
	assert.Equal(t, task.UpdatedAt, stored.UpdatedAt, "rejected patches write nothing")
}

func TestUpdateTask_StartWithAssigneeInSamePatch(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Mop"})
	require.NoError(t, err)

	started := domain.StatusInProgress
	got, err := f.svc.UpdateTask(ctx, f.owner, task.ID, TaskPatch{
		Status:     &started,
		AssignedTo: Optional[int64]{Set: true, Value: ptr(f.alice)},
		UpdatedAt:  domain.FormatVersion(task.UpdatedAt),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestTaskPatch_UnmarshalDistinguishesNull(t *testing.T) {
	var p TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"assigned_to": null, "updated_at": "x"}`), &p))
	assert.True(t, p.AssignedTo.Set)
	assert.Nil(t, p.AssignedTo.Value)
	assert.False(t, p.CompleteBefore.Set)

	p = TaskPatch{}
	require.NoError(t, json.Unmarshal([]byte(`{"assigned_to": 5, "complete_before": "2026-01-02T03:04:05Z"}`), &p))
	require.NotNil(t, p.AssignedTo.Value)
	assert.Equal(t, int64(5), *p.AssignedTo.Value)
	require.NotNil(t, p.CompleteBefore.Value)
	assert.Equal(t, 2026, p.CompleteBefore.Value.Year())
}

func TestCompleteTask(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Rice", AssignedTo: ptr(f.alice)})
	require.NoError(t, err)

	_, _, err = f.svc.CompleteTask(ctx, f.owner, task.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	done, ok, err := f.svc.CompleteTask(ctx, f.alice, task.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	dispatched := len(f.notifier.all())

	again, ok, err := f.svc.CompleteTask(ctx, f.alice, task.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, done.UpdatedAt, again.UpdatedAt)
	assert.Len(t, f.notifier.all(), dispatched, "a no-op completion dispatches nothing")
}

func TestDeleteTask(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	task, err := f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "Salt", AssignedTo: ptr(f.alice)})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteTask(ctx, f.alice, task.ID), ErrForbidden)
	require.NoError(t, f.svc.DeleteTask(ctx, f.owner, task.ID))

	changes := f.notifier.all()
	last := changes[len(changes)-1]
	assert.Equal(t, notify.ActionDeleted, last.Action)
	assert.True(t, domain.SameUser(last.PreviousAssignee, last.Task.AssignedTo))

	_, err = f.svc.GetTask(ctx, f.owner, task.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListsAndAssigned(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	_, err := f.svc.CreateList(ctx, f.owner, "Groceries")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "A", AssignedTo: ptr(f.alice)})
	require.NoError(t, err)
	_, err = f.svc.CreateTask(ctx, f.owner, f.list.ID, CreateTaskInput{Name: "B"})
	require.NoError(t, err)

	lists, err := f.svc.ListLists(ctx, f.owner)
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	tasks, err := f.svc.ListTasksInList(ctx, f.owner, f.list.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = f.svc.ListTasksInList(ctx, f.alice, f.list.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assigned, err := f.svc.ListAssigned(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "A", assigned[0].Name)

	got, err := f.svc.GetTask(ctx, f.alice, assigned[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)
}

func TestUpdateList(t *testing.T) {
	f := newTaskFixture(t)
	ctx := testContext(t)

	other, err := f.svc.CreateList(ctx, f.owner, "Hardware")
	require.NoError(t, err)

	renamed, err := f.svc.UpdateList(ctx, f.owner, f.list.ID, "  Weekly groceries ")
	require.NoError(t, err)
	assert.Equal(t, "Weekly groceries", renamed.Name)
	assert.True(t, renamed.UpdatedAt.After(f.list.UpdatedAt))

	_, err = f.svc.UpdateList(ctx, f.owner, f.list.ID, "Hardware")
	assert.ErrorIs(t, err, domain.ErrValidation, "names stay unique")

	_, err = f.svc.UpdateList(ctx, f.owner, other.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.UpdateList(ctx, f.alice, f.list.ID, "Mine now")
	assert.ErrorIs(t, err, domain.ErrNotFound, "only the owner sees the list")

	got, err := f.svc.GetList(ctx, f.owner, f.list.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly groceries", got.Name)
}
