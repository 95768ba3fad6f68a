package notify

import (
	"fmt"

	"task_tracker/internal/domain"
)

// frame types
const (
	TypeTaskUpdated = "task_updated"
	TypeTaskNotify  = "task_notify"
)

// actions
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionAssigned = "assigned"
	ActionDeleted  = "deleted"
	ActionOverdue  = "overdue"
)

// Frame is the outbound real-time message. Message is set only on task_notify.
type Frame struct {
	Type    string       `json:"type"`
	Action  string       `json:"action"`
	Task    *domain.Task `json:"task"`
	Message string       `json:"message,omitempty"`
}

func assignedMessage(t *domain.Task) string {
	return fmt.Sprintf("You have been assigned a task: %s", t.Name)
}

func unassignedMessage(t *domain.Task) string {
	return fmt.Sprintf("Task '%s' is no longer assigned to you", t.Name)
}

func overdueMessage(t *domain.Task) string {
	return fmt.Sprintf("Task '%s' is overdue!", t.Name)
}
