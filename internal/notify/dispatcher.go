// Package notify fans a task mutation out to the interested users, choosing
// between a real-time push and an external chat message per recipient.
//
// Delivery is best effort and at most once. Nothing here returns an error to
// the mutation that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"task_tracker/internal/domain"
	"task_tracker/internal/logger"
)

// Pusher delivers a frame to every live connection of a user. Zero
// connections is a no-op.
type Pusher interface {
	SendToUser(userID int64, frame []byte)
}

// Messenger sends a text message to an external chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Presence interface {
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// Directory resolves the external chat identity registered for a user.
type Directory interface {
	TelegramID(ctx context.Context, userID int64) (int64, bool, error)
}

// Change describes one committed task mutation. PreviousAssignee is the
// assignee read before the write; the caller computes it.
type Change struct {
	Task             *domain.Task
	Action           string
	PreviousAssignee *int64
}

type Dispatcher struct {
	pusher    Pusher
	presence  Presence
	directory Directory
	messenger Messenger
	timeout   time.Duration

	wg  sync.WaitGroup
	log *slog.Logger
}

// NewDispatcher wires the channels. messenger may be nil, in which case
// offline recipients simply get nothing.
func NewDispatcher(pusher Pusher, presence Presence, directory Directory, messenger Messenger, sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		pusher:    pusher,
		presence:  presence,
		directory: directory,
		messenger: messenger,
		timeout:   sendTimeout,
		log:       logger.With("component", "notify"),
	}
}

// Dispatch emits a task_updated refresh to every online recipient and a
// task_notify message to the assignees affected by the change.
func (d *Dispatcher) Dispatch(ctx context.Context, ch Change) {
	defer d.recoverPanic("dispatch", ch.Task)

	t := ch.Task
	refresh, err := json.Marshal(Frame{Type: TypeTaskUpdated, Action: ch.Action, Task: t})
	if err != nil {
		d.log.Error("marshal refresh frame", "task_id", t.ID, "error", err)
		return
	}

	for _, uid := range recipients(t, ch.PreviousAssignee) {
		if d.online(ctx, uid) {
			d.pusher.SendToUser(uid, refresh)
			count(channelRealtime, kindRefresh, outcomeSent)
		}
	}

	if domain.SameUser(ch.PreviousAssignee, t.AssignedTo) {
		return
	}
	if t.AssignedTo != nil {
		d.deliver(ctx, *t.AssignedTo, Frame{Type: TypeTaskNotify, Action: ch.Action, Task: t, Message: assignedMessage(t)})
	}
	if ch.PreviousAssignee != nil {
		d.deliver(ctx, *ch.PreviousAssignee, Frame{Type: TypeTaskNotify, Action: ch.Action, Task: t, Message: unassignedMessage(t)})
	}
}

// NotifyOverdue is called after a task moved to Overdue: a refresh for
// everyone involved, then an alert for the assignee only.
func (d *Dispatcher) NotifyOverdue(ctx context.Context, t *domain.Task) {
	d.Dispatch(ctx, Change{Task: t, Action: ActionUpdated, PreviousAssignee: t.AssignedTo})

	defer d.recoverPanic("overdue", t)
	if t.AssignedTo == nil {
		return
	}
	d.deliver(ctx, *t.AssignedTo, Frame{Type: TypeTaskNotify, Action: ActionOverdue, Task: t, Message: overdueMessage(t)})
}

// Wait blocks until in-flight external sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight sends or until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recipients is {new assignee} ∪ {previous assignee} ∪ {list owner}, in that order.
func recipients(t *domain.Task, previous *int64) []int64 {
	out := make([]int64, 0, 3)
	add := func(id int64) {
		for _, existing := range out {
			if existing == id {
				return
			}
		}
		out = append(out, id)
	}
	if t.AssignedTo != nil {
		add(*t.AssignedTo)
	}
	if previous != nil {
		add(*previous)
	}
	if t.ListOwnerID != 0 {
		add(t.ListOwnerID)
	}
	return out
}

func (d *Dispatcher) online(ctx context.Context, userID int64) bool {
	online, err := d.presence.IsOnline(ctx, userID)
	if err != nil {
		d.log.Warn("presence lookup failed, treating user as offline", "user_id", userID, "error", err)
		return false
	}
	return online
}

// deliver routes one notify message: push when online, otherwise the external
// chat if the user linked one, otherwise drop.
func (d *Dispatcher) deliver(ctx context.Context, userID int64, f Frame) {
	if d.online(ctx, userID) {
		data, err := json.Marshal(f)
		if err != nil {
			d.log.Error("marshal notify frame", "task_id", f.Task.ID, "error", err)
			return
		}
		d.pusher.SendToUser(userID, data)
		count(channelRealtime, kindNotify, outcomeSent)
		return
	}

	if d.messenger == nil {
		count(channelNone, kindNotify, outcomeDropped)
		return
	}

	chatID, ok, err := d.directory.TelegramID(ctx, userID)
	if err != nil {
		d.log.Warn("telegram id lookup failed", "user_id", userID, "error", err)
		count(channelNone, kindNotify, outcomeDropped)
		return
	}
	if !ok {
		d.log.Debug("user offline without telegram, notification dropped", "user_id", userID, "action", f.Action)
		count(channelNone, kindNotify, outcomeDropped)
		return
	}

	// fire and forget; the request context may be gone by the time this runs
	sendCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.recoverPanic("telegram send", f.Task)

		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		if err := d.messenger.SendMessage(ctx, chatID, f.Message); err != nil {
			d.log.Error("telegram delivery failed", "user_id", userID, "task_id", f.Task.ID, "error", err)
			count(channelTelegram, kindNotify, outcomeFailed)
			return
		}
		count(channelTelegram, kindNotify, outcomeSent)
	}()
}

func (d *Dispatcher) recoverPanic(stage string, t *domain.Task) {
	if r := recover(); r != nil {
		var taskID int64
		if t != nil {
			taskID = t.ID
		}
		d.log.Error("notification panic recovered", "stage", stage, "task_id", taskID, "panic", r)
	}
}
