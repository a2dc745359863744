package web

import (
	"context"
	"sync"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/usecase"
)

// --- Mock use cases (the handler's collaborators) ---

type mockTaskUC struct {
	mu         sync.Mutex
	tasks      map[string]*model.InferenceTask
	SubmitErr  error
	CancelErr  error
	ResultErr  error
	lastSubmit usecase.SubmitRequest
}

func newMockTaskUC() *mockTaskUC {
	return &mockTaskUC{tasks: make(map[string]*model.InferenceTask)}
}

func (m *mockTaskUC) Submit(ctx context.Context, userID string, req usecase.SubmitRequest) (*model.InferenceTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	m.lastSubmit = req
	task := model.NewInferenceTask("task-1", userID, req.PersonKey, req.GarmentKeys, req.MaskKey)
	task.JobID = "job-1"
	m.tasks[task.ID] = task
	return task, nil
}

func (m *mockTaskUC) Get(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok || t.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (m *mockTaskUC) List(ctx context.Context, userID string, offset, limit int) ([]*model.InferenceTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.InferenceTask
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTaskUC) Events(ctx context.Context, userID, taskID string) ([]*model.TaskEvent, error) {
	if _, err := m.Get(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return []*model.TaskEvent{model.NewTaskEvent(taskID, model.TaskEventState, map[string]any{"status": "QUEUED"})}, nil
}

func (m *mockTaskUC) Cancel(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	if m.CancelErr != nil {
		return nil, m.CancelErr
	}
	t, err := m.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	t.ApplyStatus(model.TaskStatusCancelled, t.Progress)
	return t, nil
}

func (m *mockTaskUC) ResultURL(ctx context.Context, userID, taskID string) (string, string, error) {
	if m.ResultErr != nil {
		return "", "", m.ResultErr
	}
	t, err := m.Get(ctx, userID, taskID)
	if err != nil {
		return "", "", err
	}
	if t.Status != model.TaskStatusCompleted || t.ResultKey == "" {
		return "", "", domain.ErrTaskNotReady
	}
	return "https://signed.example/" + t.ResultKey, t.ResultKey, nil
}

type mockReconciler struct {
	mu          sync.Mutex
	taskUC      *mockTaskUC
	PollErr     error
	WebhookErr  error
	webhookSeen []string // jobID|status pairs
}

func (m *mockReconciler) PollStatus(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	if m.PollErr != nil {
		return nil, m.PollErr
	}
	return m.taskUC.Get(ctx, userID, taskID)
}

func (m *mockReconciler) HandleWebhook(ctx context.Context, jobID, status string, rawBody []byte, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WebhookErr != nil {
		return m.WebhookErr
	}
	if jobID == "" || status == "" {
		return domain.ErrInvalidArgument
	}
	m.webhookSeen = append(m.webhookSeen, jobID+"|"+status)
	return nil
}

func (m *mockReconciler) ReconcileTask(ctx context.Context, taskID string) (*model.InferenceTask, error) {
	t, ok := m.taskUC.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (m *mockReconciler) AbortTask(ctx context.Context, taskID, reason string) error { return nil }

type mockStatusCache struct {
	mu    sync.RWMutex
	store map[string]model.TaskStatus
}

func newMockStatusCache() *mockStatusCache {
	return &mockStatusCache{store: make(map[string]model.TaskStatus)}
}

func (m *mockStatusCache) GetStatus(ctx context.Context, taskID string) (model.TaskStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[taskID]
	return s, ok, nil
}

func (m *mockStatusCache) SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[taskID] = status
	return nil
}
