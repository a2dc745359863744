package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vton-backend/internal/config"
	"vton-backend/internal/infra/worker"
	"vton-backend/internal/usecase"
)

var _ usecase.CompletionScheduler = (*CompletionWatcher)(nil)

// CompletionWatcher backstops the webhook path. Each submitted task gets
// a bounded background poll loop against the provider; if the webhook
// arrives first the loop observes the terminal state and exits, if the
// provider goes silent the loop eventually fails the task so it never
// hangs in a non-terminal state.
type CompletionWatcher struct {
	reconciler  usecase.ReconcilerUseCase
	pool        *worker.Pool
	interval    time.Duration
	maxInterval time.Duration
	maxAttempts int
	timeout     time.Duration
	log         *zerolog.Logger
}

func NewCompletionWatcher(cfg config.PollingConfig, reconciler usecase.ReconcilerUseCase, pool *worker.Pool, logger *zerolog.Logger) *CompletionWatcher {
	wlog := logger.With().Str("component", "CompletionWatcher").Logger()
	return &CompletionWatcher{
		reconciler:  reconciler,
		pool:        pool,
		interval:    cfg.Interval,
		maxInterval: cfg.MaxInterval,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
		log:         &wlog,
	}
}

// Schedule enqueues the watch loop for one task. A full worker queue is
// logged and dropped; the client's own polling still drives the task.
func (w *CompletionWatcher) Schedule(taskID, jobID string) {
	err := w.pool.Submit(func(ctx context.Context) error {
		return w.watch(ctx, taskID, jobID)
	})
	if err != nil {
		w.log.Warn().Err(err).Str("task_id", taskID).Msg("completion watch not scheduled")
	}
}

func (w *CompletionWatcher) watch(ctx context.Context, taskID, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	interval := w.interval
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return w.abort(taskID, jobID, "provider did not complete in time")
		case <-time.After(interval):
		}

		task, err := w.reconciler.ReconcileTask(ctx, taskID)
		if err != nil {
			w.log.Warn().Err(err).Str("task_id", taskID).Int("attempt", attempt).Msg("reconcile attempt failed")
			continue
		}
		if task.Status.IsTerminal() {
			w.log.Info().Str("task_id", taskID).Str("status", string(task.Status)).Int("attempt", attempt).Msg("task reached terminal state")
			return nil
		}

		// Back off while the job sits in queue.
		if interval < w.maxInterval {
			interval *= 2
			if interval > w.maxInterval {
				interval = w.maxInterval
			}
		}
	}
	return w.abort(taskID, jobID, fmt.Sprintf("no terminal state after %d polls", w.maxAttempts))
}

// abort runs on a fresh context; the watch context is already spent.
func (w *CompletionWatcher) abort(taskID, jobID, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w.log.Warn().Str("task_id", taskID).Str("job_id", jobID).Str("reason", reason).Msg("aborting stalled task")
	return w.reconciler.AbortTask(ctx, taskID, reason)
}
