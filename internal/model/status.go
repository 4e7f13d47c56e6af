package model

import "strings"

// TaskStatus is the workspace-facing status of a backend task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

var terminalBackendStatuses = map[string]bool{
	"done":   true,
	"failed": true,
}

// IsTerminalBackendStatus reports whether the backend will make no further
// progress on a task with this status.
func IsTerminalBackendStatus(status string) bool {
	return terminalBackendStatuses[status]
}

// MapBackendStatus folds the backend status enum into the workspace status
// plus a rough progress percentage.
func MapBackendStatus(status string) (TaskStatus, int) {
	switch strings.ToLower(status) {
	case "done", "completed":
		return TaskStatusDone, 100
	case "review":
		return TaskStatusReview, 85
	case "planned", "todo":
		return TaskStatusTodo, 10
	case "running", "in_progress":
		return TaskStatusInProgress, 55
	default:
		return TaskStatusBlocked, 20
	}
}
