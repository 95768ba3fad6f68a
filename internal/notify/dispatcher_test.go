package notify

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitWriter(io.Discard, "error", false)
}

type pushed struct {
	userID int64
	frame  Frame
}

type fakePusher struct {
	mu   sync.Mutex
	sent []pushed
}

func (p *fakePusher) SendToUser(userID int64, data []byte) {
	var f Frame
	_ = json.Unmarshal(data, &f)
	p.mu.Lock()
	p.sent = append(p.sent, pushed{userID: userID, frame: f})
	p.mu.Unlock()
}

func (p *fakePusher) byType(typ string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, s := range p.sent {
		if s.frame.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

type fakePresence map[int64]bool

func (p fakePresence) IsOnline(_ context.Context, uid int64) (bool, error) {
	return p[uid], nil
}

type errPresence struct{}

func (errPresence) IsOnline(context.Context, int64) (bool, error) {
	return false, errors.New("redis down")
}

type fakeDirectory map[int64]int64

func (d fakeDirectory) TelegramID(_ context.Context, uid int64) (int64, bool, error) {
	id, ok := d[uid]
	return id, ok, nil
}

type message struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu   sync.Mutex
	msgs []message
	err  error
	wait time.Duration
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.wait > 0 {
		select {
		case <-time.After(m.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.msgs = append(m.msgs, message{chatID: chatID, text: text})
	m.mu.Unlock()
	return nil
}

func (m *fakeMessenger) all() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message(nil), m.msgs...)
}

const (
	owner int64 = 1
	userA int64 = 2
	userB int64 = 3
)

func ptr(v int64) *int64 { return &v }

func sampleTask(assignee *int64) *domain.Task {
	return &domain.Task{
		ID:          10,
		Name:        "Write report",
		Status:      domain.StatusInProgress,
		AssignedTo:  assignee,
		ListID:      100,
		ListOwnerID: owner,
	}
}

func TestDispatch_FanOutAllOnline(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	d := NewDispatcher(p, fakePresence{owner: true, userA: true, userB: true}, fakeDirectory{}, m, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionAssigned, PreviousAssignee: ptr(userB)})
	d.Wait()

	refresh := p.byType(TypeTaskUpdated)
	require.Len(t, refresh, 3)
	got := map[int64]int{}
	for _, r := range refresh {
		got[r.userID]++
		assert.Equal(t, ActionAssigned, r.frame.Action)
	}
	assert.Equal(t, map[int64]int{owner: 1, userA: 1, userB: 1}, got)

	notify := p.byType(TypeTaskNotify)
	require.Len(t, notify, 2)
	for _, n := range notify {
		assert.NotEqual(t, owner, n.userID, "list owner must not receive notify messages")
		switch n.userID {
		case userA:
			assert.Equal(t, "You have been assigned a task: Write report", n.frame.Message)
		case userB:
			assert.Equal(t, "Task 'Write report' is no longer assigned to you", n.frame.Message)
		}
	}
	assert.Empty(t, m.all())
}

func TestDispatch_OfflineFallsBackToTelegram(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	dir := fakeDirectory{owner: 9001, userA: 9002, userB: 9003}
	d := NewDispatcher(p, fakePresence{}, dir, m, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionUpdated, PreviousAssignee: ptr(userB)})
	d.Wait()

	assert.Empty(t, p.sent)
	msgs := m.all()
	require.Len(t, msgs, 2)
	chats := map[int64]bool{}
	for _, msg := range msgs {
		chats[msg.chatID] = true
	}
	assert.True(t, chats[9002])
	assert.True(t, chats[9003])
	assert.False(t, chats[9001], "owner never receives an external message")
}

func TestDispatch_SameAssigneeNoNotify(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	d := NewDispatcher(p, fakePresence{owner: true, userA: true}, fakeDirectory{}, m, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionUpdated, PreviousAssignee: ptr(userA)})
	d.Wait()

	assert.Len(t, p.byType(TypeTaskUpdated), 2)
	assert.Empty(t, p.byType(TypeTaskNotify))
}

func TestDispatch_CreatedWithAssignee(t *testing.T) {
	p := &fakePusher{}
	d := NewDispatcher(p, fakePresence{owner: true, userA: true}, fakeDirectory{}, nil, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionCreated})

	assert.Len(t, p.byType(TypeTaskUpdated), 2)
	notify := p.byType(TypeTaskNotify)
	require.Len(t, notify, 1)
	assert.Equal(t, userA, notify[0].userID)
}

func TestDispatch_OfflineWithoutTelegramDropped(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	d := NewDispatcher(p, fakePresence{owner: true}, fakeDirectory{}, m, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionAssigned})
	d.Wait()

	assert.Len(t, p.byType(TypeTaskUpdated), 1, "only the online owner gets a refresh")
	assert.Empty(t, p.byType(TypeTaskNotify))
	assert.Empty(t, m.all())
}

func TestDispatch_ExternalFailureSwallowed(t *testing.T) {
	m := &fakeMessenger{err: errors.New("telegram 502")}
	d := NewDispatcher(&fakePusher{}, fakePresence{}, fakeDirectory{userA: 1}, m, time.Second)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionAssigned})
		d.Wait()
	})
}

func TestDispatch_ExternalTimeoutBounded(t *testing.T) {
	m := &fakeMessenger{wait: time.Hour}
	d := NewDispatcher(&fakePusher{}, fakePresence{}, fakeDirectory{userA: 1}, m, 50*time.Millisecond)

	start := time.Now()
	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionAssigned})
	d.Wait()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, m.all())
}

func TestDispatch_PresenceErrorTreatedOffline(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	d := NewDispatcher(p, errPresence{}, fakeDirectory{userA: 77}, m, time.Second)

	d.Dispatch(context.Background(), Change{Task: sampleTask(ptr(userA)), Action: ActionAssigned})
	d.Wait()

	assert.Empty(t, p.sent)
	require.Len(t, m.all(), 1)
	assert.Equal(t, int64(77), m.all()[0].chatID)
}

func TestNotifyOverdue_AssigneeOnly(t *testing.T) {
	p := &fakePusher{}
	m := &fakeMessenger{}
	d := NewDispatcher(p, fakePresence{owner: true, userA: true}, fakeDirectory{}, m, time.Second)

	task := sampleTask(ptr(userA))
	task.Status = domain.StatusOverdue
	d.NotifyOverdue(context.Background(), task)
	d.Wait()

	assert.Len(t, p.byType(TypeTaskUpdated), 2)
	notify := p.byType(TypeTaskNotify)
	require.Len(t, notify, 1)
	assert.Equal(t, userA, notify[0].userID)
	assert.Equal(t, ActionOverdue, notify[0].frame.Action)
	assert.Equal(t, "Task 'Write report' is overdue!", notify[0].frame.Message)
}

func TestNotifyOverdue_OfflineAssigneeGetsTelegram(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(&fakePusher{}, fakePresence{}, fakeDirectory{owner: 1, userA: 2}, m, time.Second)

	d.NotifyOverdue(context.Background(), sampleTask(ptr(userA)))
	d.Wait()

	msgs := m.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].chatID)
}

func TestRecipients_Dedup(t *testing.T) {
	task := sampleTask(ptr(owner))
	assert.Equal(t, []int64{owner}, recipients(task, ptr(owner)))
	assert.Equal(t, []int64{userA, userB, owner}, recipients(sampleTask(ptr(userA)), ptr(userB)))
}
