package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vton-backend/internal/config"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/infra/worker"
	"vton-backend/internal/usecase"
)

var _ usecase.ReconcilerUseCase = (*scriptedReconciler)(nil)

// scriptedReconciler returns a fixed status sequence, then sticks on the
// last entry.
type scriptedReconciler struct {
	mu       sync.Mutex
	sequence []model.TaskStatus
	calls    int
	aborts   []string
}

func (s *scriptedReconciler) ReconcileTask(ctx context.Context, taskID string) (*model.InferenceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.sequence) {
		i = len(s.sequence) - 1
	}
	s.calls++
	task := model.NewInferenceTask(taskID, "u1", "p", []string{"g"}, "")
	task.Status = s.sequence[i]
	return task, nil
}

func (s *scriptedReconciler) AbortTask(ctx context.Context, taskID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts = append(s.aborts, reason)
	return nil
}

func (s *scriptedReconciler) PollStatus(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	return nil, nil
}

func (s *scriptedReconciler) HandleWebhook(ctx context.Context, jobID, status string, rawBody []byte, payload map[string]any) error {
	return nil
}

func (s *scriptedReconciler) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]string(nil), s.aborts...)
}

func testWatcher(rec usecase.ReconcilerUseCase, maxAttempts int) (*CompletionWatcher, *worker.Pool, context.CancelFunc) {
	log := zerolog.Nop()
	pool := worker.NewPool(1, &log)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	w := NewCompletionWatcher(config.PollingConfig{
		Interval:    time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
		MaxAttempts: maxAttempts,
		Timeout:     time.Second,
	}, rec, pool, &log)
	return w, pool, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCompletionWatcher(t *testing.T) {
	t.Run("stops once the task is terminal", func(t *testing.T) {
		rec := &scriptedReconciler{sequence: []model.TaskStatus{
			model.TaskStatusQueued,
			model.TaskStatusInProgress,
			model.TaskStatusCompleted,
		}}
		w, pool, cancel := testWatcher(rec, 20)
		defer cancel()
		defer pool.Stop()

		w.Schedule("t1", "job-1")
		waitFor(t, func() bool { calls, _ := rec.snapshot(); return calls >= 3 })

		time.Sleep(20 * time.Millisecond)
		calls, aborts := rec.snapshot()
		if calls != 3 {
			t.Fatalf("reconcile calls = %d, want exactly 3", calls)
		}
		if len(aborts) != 0 {
			t.Fatalf("no abort expected, got %v", aborts)
		}
	})

	t.Run("exhausted attempts abort the task", func(t *testing.T) {
		rec := &scriptedReconciler{sequence: []model.TaskStatus{model.TaskStatusInProgress}}
		w, pool, cancel := testWatcher(rec, 3)
		defer cancel()
		defer pool.Stop()

		w.Schedule("t1", "job-1")
		waitFor(t, func() bool { _, aborts := rec.snapshot(); return len(aborts) == 1 })

		_, aborts := rec.snapshot()
		if aborts[0] == "" {
			t.Fatal("abort reason should describe the exhaustion")
		}
	})
}
