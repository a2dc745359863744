package model

import "time"

type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the task state machine:
// QUEUED -> IN_PROGRESS -> {COMPLETED|FAILED|CANCELLED}, with the manual
// cancel edge allowed from any non-terminal state. Terminal states absorb.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case TaskStatusInProgress:
		return s == TaskStatusQueued || s == TaskStatusInProgress
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	case TaskStatusQueued:
		return false
	}
	return false
}

// InferenceTask is one unit of requested try-on work, tracked end-to-end.
// JobID is the remote provider's handle for the work backing the task.
type InferenceTask struct {
	ID       string
	UserID   string
	Provider string
	JobID    string

	Status   TaskStatus
	Progress float64

	PersonKey   string
	GarmentKeys []string
	MaskKey     string
	ResultKey   string

	ErrorMessage string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

func NewInferenceTask(id, userID, personKey string, garmentKeys []string, maskKey string) *InferenceTask {
	now := time.Now()
	return &InferenceTask{
		ID:          id,
		UserID:      userID,
		Status:      TaskStatusQueued,
		PersonKey:   personKey,
		GarmentKeys: garmentKeys,
		MaskKey:     maskKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ApplyStatus moves the task to next and stamps the matching timestamps.
// Callers must check CanTransitionTo first; ApplyStatus does not validate.
func (t *InferenceTask) ApplyStatus(next TaskStatus, progress float64) {
	now := time.Now()
	t.Status = next
	t.Progress = progress
	t.UpdatedAt = now
	switch next {
	case TaskStatusCompleted:
		t.Progress = 100
		t.CompletedAt = &now
	case TaskStatusCancelled:
		t.CancelledAt = &now
	}
}
