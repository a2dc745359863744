// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/adapter"
	"vton-backend/internal/domain/ports/repository"
)

// memTaskRepo is a small in-memory implementation used by unit tests.
type memTaskRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.InferenceTask
	saveErr error // used by tests to simulate save failures
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{store: make(map[string]*model.InferenceTask)}
}

func (m *memTaskRepo) Save(ctx context.Context, tx repository.Tx, task *model.InferenceTask) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.store[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.InferenceTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.InferenceTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.store {
		if t.JobID == jobID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTaskRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.InferenceTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.InferenceTask
	for _, t := range m.store {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memEventRepo struct {
	mu     sync.RWMutex
	events []*model.TaskEvent
}

func newMemEventRepo() *memEventRepo { return &memEventRepo{} }

func (m *memEventRepo) Append(ctx context.Context, tx repository.Tx, event *model.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

func (m *memEventRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string) ([]*model.TaskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TaskEvent
	for _, e := range m.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// byKind counts events of one kind for a task.
func (m *memEventRepo) byKind(taskID string, kind model.TaskEventKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.events {
		if e.TaskID == taskID && e.Kind == kind {
			n++
		}
	}
	return n
}

type memDeliveryRepo struct {
	mu              sync.RWMutex
	deliveries      []*model.WebhookDelivery
	hasProcessedErr error // simulates a degraded duplicate check
}

func newMemDeliveryRepo() *memDeliveryRepo { return &memDeliveryRepo{} }

func (m *memDeliveryRepo) Save(ctx context.Context, tx repository.Tx, d *model.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = int64(len(m.deliveries) + 1)
	cp := *d
	m.deliveries = append(m.deliveries, &cp)
	return nil
}

func (m *memDeliveryRepo) HasProcessed(ctx context.Context, tx repository.Tx, jobID, status string) (bool, error) {
	if m.hasProcessedErr != nil {
		return false, m.hasProcessedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.deliveries {
		if d.JobID == jobID && d.Status == status && d.Processed {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDeliveryRepo) MarkProcessed(ctx context.Context, tx repository.Tx, deliveryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.ID == deliveryID {
			d.MarkProcessed()
			return nil
		}
	}
	return domain.ErrNotFound
}

// memTxManager runs the function without a real transaction; the in-memory
// repos ignore the tx handle anyway.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// stubProvider scripts provider responses per test.
type stubProvider struct {
	mu        sync.Mutex
	createErr error
	cancelErr error
	statusErr error
	status    *adapter.JobStatus
	created   int
	cancelled []string
	lastInput adapter.JobInput
	nextJobID string
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) CreateJob(ctx context.Context, input adapter.JobInput, webhookURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created++
	s.lastInput = input
	if s.nextJobID == "" {
		s.nextJobID = "job-1"
	}
	return s.nextJobID, nil
}

func (s *stubProvider) GetJobStatus(ctx context.Context, jobID string) (*adapter.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	if s.status == nil {
		return &adapter.JobStatus{JobID: jobID, State: adapter.JobStateQueued}, nil
	}
	cp := *s.status
	cp.JobID = jobID
	return &cp, nil
}

func (s *stubProvider) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return s.cancelErr
}

// memStorage keeps objects in a map and signs URLs with a fixed prefix.
type memStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	getErr  error
	putErr  error
}

func newMemStorage() *memStorage { return &memStorage{objects: make(map[string][]byte)} }

func (m *memStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type stubScheduler struct {
	mu        sync.Mutex
	scheduled [][2]string
}

func (s *stubScheduler) Schedule(taskID, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, [2]string{taskID, jobID})
}

// memStatusCache implements StatusCache for tests.
type memStatusCache struct {
	mu    sync.RWMutex
	store map[string]model.TaskStatus
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{store: make(map[string]model.TaskStatus)}
}

func (m *memStatusCache) GetStatus(ctx context.Context, taskID string) (model.TaskStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[taskID]
	return s, ok, nil
}

func (m *memStatusCache) SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[taskID] = status
	return nil
}
