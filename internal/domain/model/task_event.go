package model

import "time"

type TaskEventKind string

const (
	TaskEventState    TaskEventKind = "STATE"
	TaskEventProgress TaskEventKind = "PROGRESS"
	TaskEventResult   TaskEventKind = "RESULT"
	TaskEventError    TaskEventKind = "ERROR"
)

// TaskEvent is an append-only log entry tied to a task. Immutable once written.
type TaskEvent struct {
	ID        int64
	TaskID    string
	Kind      TaskEventKind
	Payload   map[string]any
	CreatedAt time.Time
}

func NewTaskEvent(taskID string, kind TaskEventKind, payload map[string]any) *TaskEvent {
	return &TaskEvent{
		TaskID:    taskID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
