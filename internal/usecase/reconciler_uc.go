// File: internal/usecase/reconciler_uc.go
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/adapter"
	"vton-backend/internal/domain/ports/repository"
	"vton-backend/internal/infra/metrics"
)

// Compile-time check
var _ ReconcilerUseCase = (*reconcilerUC)(nil)

// ReconcilerUseCase merges the two status update paths (client poll and
// provider webhook) into one authoritative per-task record.
type ReconcilerUseCase interface {
	// PollStatus fetches the provider's view synchronously and persists
	// it only when it differs from the stored record.
	PollStatus(ctx context.Context, userID, taskID string) (*model.InferenceTask, error)

	// HandleWebhook applies one provider callback. Duplicate deliveries
	// are absorbed and return nil so the provider stops retrying.
	HandleWebhook(ctx context.Context, jobID, reportedStatus string, rawBody []byte, payload map[string]any) error

	// ReconcileTask is PollStatus for background workers: no ownership
	// check, caller already holds the task id.
	ReconcileTask(ctx context.Context, taskID string) (*model.InferenceTask, error)

	// AbortTask fails a non-terminal task with the given reason. A task
	// already in a terminal state is left untouched.
	AbortTask(ctx context.Context, taskID, reason string) error
}

// StatusCache mirrors the latest known task status into a shared store so
// operators and sibling processes can read it without hitting Postgres.
type StatusCache interface {
	GetStatus(ctx context.Context, taskID string) (model.TaskStatus, bool, error)
	SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error
}

type reconcilerUC struct {
	tasks      repository.TaskRepository
	events     repository.TaskEventRepository
	deliveries repository.WebhookDeliveryRepository
	tm         repository.TransactionManager
	provider   adapter.TryOnProvider
	storage    adapter.ObjectStorage
	dedup      *IdempotencyCache
	cache      StatusCache
	http       *http.Client
	log        *zerolog.Logger
}

func NewReconcilerUseCase(
	tasks repository.TaskRepository,
	events repository.TaskEventRepository,
	deliveries repository.WebhookDeliveryRepository,
	tm repository.TransactionManager,
	provider adapter.TryOnProvider,
	storage adapter.ObjectStorage,
	dedup *IdempotencyCache,
	cache StatusCache,
	logger *zerolog.Logger,
) *reconcilerUC {
	return &reconcilerUC{
		tasks:      tasks,
		events:     events,
		deliveries: deliveries,
		tm:         tm,
		provider:   provider,
		storage:    storage,
		dedup:      dedup,
		cache:      cache,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        logger,
	}
}

func mapJobState(s adapter.JobState) model.TaskStatus {
	switch s {
	case adapter.JobStateQueued:
		return model.TaskStatusQueued
	case adapter.JobStateInProgress:
		return model.TaskStatusInProgress
	case adapter.JobStateCompleted:
		return model.TaskStatusCompleted
	case adapter.JobStateCancelled:
		return model.TaskStatusCancelled
	default:
		// FAILED, NOT_FOUND and anything unrecognized
		return model.TaskStatusFailed
	}
}

func (r *reconcilerUC) PollStatus(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	task, err := r.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, domain.ErrNotFound
	}
	metrics.IncPollingRequest(string(task.Status))
	return r.reconcile(ctx, task, taskID)
}

func (r *reconcilerUC) ReconcileTask(ctx context.Context, taskID string) (*model.InferenceTask, error) {
	task, err := r.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	return r.reconcile(ctx, task, taskID)
}

func (r *reconcilerUC) reconcile(ctx context.Context, task *model.InferenceTask, taskID string) (*model.InferenceTask, error) {
	// Terminal states absorb; no provider call, no event.
	if task.Status.IsTerminal() {
		return task, nil
	}
	if task.JobID == "" {
		return task, nil
	}

	st, err := r.provider.GetJobStatus(ctx, task.JobID)
	if err != nil {
		// Degraded operation: a stale status beats a failed request.
		r.log.Warn().Err(err).Str("task_id", taskID).Str("job_id", task.JobID).Msg("provider status fetch failed, serving last known state")
		return task, nil
	}

	next := mapJobState(st.State)
	progress := task.Progress
	if st.Progress > progress {
		progress = st.Progress
	}
	errMsg := st.Error
	if st.State == adapter.JobStateNotFound {
		errMsg = "provider job not found or expired"
	}

	if next == task.Status && progress == task.Progress {
		// Nothing changed; avoid redundant writes and event-log entries.
		return task, nil
	}

	if err := r.applyUpdate(ctx, task, next, progress, errMsg, st.Output); err != nil {
		r.log.Error().Err(err).Str("task_id", taskID).Msg("apply polled update failed")
		return task, nil
	}
	return task, nil
}

func (r *reconcilerUC) AbortTask(ctx context.Context, taskID, reason string) error {
	task, err := r.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return nil
	}
	return r.applyUpdate(ctx, task, model.TaskStatusFailed, task.Progress, reason, nil)
}

func (r *reconcilerUC) HandleWebhook(ctx context.Context, jobID, reportedStatus string, rawBody []byte, payload map[string]any) error {
	if jobID == "" || reportedStatus == "" {
		return domain.ErrInvalidArgument
	}
	start := time.Now()
	defer func() { metrics.ObserveWebhookProcessing(time.Since(start)) }()

	// Fast path: already handled within the TTL window.
	if r.dedup.IsDuplicate(jobID, reportedStatus) {
		metrics.IncWebhookReceived(reportedStatus, "duplicate")
		return nil
	}

	// Durable fallback: the cache is lost on restart, the delivery table
	// is not.
	processed, err := r.deliveries.HasProcessed(ctx, nil, jobID, reportedStatus)
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", jobID).Msg("durable duplicate check failed, continuing")
	} else if processed {
		r.dedup.MarkSeen(jobID, reportedStatus)
		metrics.IncWebhookReceived(reportedStatus, "duplicate")
		return nil
	}

	task, err := r.tasks.FindByJobID(ctx, nil, jobID)
	if err != nil {
		metrics.IncWebhookReceived(reportedStatus, "orphan")
		return err
	}

	delivery := model.NewWebhookDelivery(task.ID, jobID, reportedStatus, rawBody)
	next := mapJobState(adapter.JobState(strings.ToUpper(reportedStatus)))

	err = r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := r.deliveries.Save(ctx, tx, delivery); err != nil {
			return fmt.Errorf("persist delivery: %w", err)
		}

		// Re-read inside the transaction so a racing poll write is seen.
		fresh, err := r.tasks.FindByID(ctx, tx, task.ID)
		if err == nil {
			task = fresh
		}

		if task.Status.IsTerminal() {
			// Absorbing rule: never raise, never append an event.
			r.log.Info().Str("task_id", task.ID).Str("job_id", jobID).
				Str("status", string(task.Status)).Str("reported", reportedStatus).
				Msg("dropping webhook for terminal task")
		} else {
			progress := webhookProgress(next, payload, task.Progress)
			errMsg, _ := payload["error"].(string)
			output, _ := payload["output"].(map[string]any)
			if err := r.applyUpdateTx(ctx, tx, task, next, progress, errMsg, output); err != nil {
				return err
			}
		}

		delivery.MarkProcessed()
		return r.deliveries.MarkProcessed(ctx, tx, delivery.ID)
	})
	if err != nil {
		metrics.IncWebhookReceived(reportedStatus, "error")
		return err
	}

	r.dedup.MarkSeen(jobID, reportedStatus)
	metrics.IncWebhookReceived(reportedStatus, "processed")
	return nil
}

// webhookProgress picks the progress value for a webhook-driven update.
// Providers rarely report numbers, so IN_PROGRESS defaults to 75 (the
// job reached the GPU) unless the payload carries an explicit figure.
func webhookProgress(next model.TaskStatus, payload map[string]any, current float64) float64 {
	if v, ok := payload["progress"].(float64); ok && v > current {
		return v
	}
	if next == model.TaskStatusInProgress && current < 75 {
		return 75
	}
	return current
}

func (r *reconcilerUC) applyUpdate(ctx context.Context, task *model.InferenceTask, next model.TaskStatus, progress float64, errMsg string, output map[string]any) error {
	return r.applyUpdateTx(ctx, nil, task, next, progress, errMsg, output)
}

// applyUpdateTx performs one reconciled transition: mutate the record,
// append the matching event, persist, mirror to the status cache.
func (r *reconcilerUC) applyUpdateTx(ctx context.Context, tx repository.Tx, task *model.InferenceTask, next model.TaskStatus, progress float64, errMsg string, output map[string]any) error {
	if next != task.Status && !task.Status.CanTransitionTo(next) {
		r.log.Info().Str("task_id", task.ID).
			Str("from", string(task.Status)).Str("to", string(next)).
			Msg("dropping disallowed transition")
		return nil
	}
	if next == task.Status && progress == task.Progress {
		// Identical report: a redelivery that slipped past the duplicate
		// checks, or a concurrent writer already applied it. Writing here
		// would duplicate the event stream.
		return nil
	}

	kind := model.TaskEventState
	payload := map[string]any{"status": string(next)}

	switch next {
	case model.TaskStatusCompleted:
		key, err := r.extractAndStoreResult(ctx, task.ID, output)
		if err != nil {
			// No image at any known key path: fail with a descriptive
			// error instead of crashing or completing with nothing.
			next = model.TaskStatusFailed
			errMsg = err.Error()
			kind = model.TaskEventError
			payload = map[string]any{"status": string(next), "error": errMsg}
		} else {
			task.ResultKey = key
			kind = model.TaskEventResult
			payload = map[string]any{"status": string(next), "result_key": key}
		}
	case model.TaskStatusFailed:
		if errMsg == "" {
			errMsg = "provider reported failure"
		}
		kind = model.TaskEventError
		payload = map[string]any{"status": string(next), "error": errMsg}
	}

	if next == task.Status {
		// Progress-only change.
		task.Progress = progress
		task.UpdatedAt = time.Now()
		kind = model.TaskEventProgress
		payload = map[string]any{"progress": progress}
	} else {
		task.ApplyStatus(next, progress)
		task.ErrorMessage = errMsg
	}

	if err := r.tasks.Save(ctx, tx, task); err != nil {
		return fmt.Errorf("persist task update: %w", err)
	}
	if err := r.events.Append(ctx, tx, model.NewTaskEvent(task.ID, kind, payload)); err != nil {
		return fmt.Errorf("append task event: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.SetStatus(ctx, task.ID, task.Status); err != nil {
			r.log.Warn().Err(err).Str("task_id", task.ID).Msg("status cache write failed")
		}
	}
	if task.Status.IsTerminal() {
		metrics.IncTaskFinished(string(task.Status))
	}
	return nil
}

// Result payloads are nested and providers disagree on the key; try each
// known path in a fixed priority order.
func extractResultImage(output map[string]any) (string, error) {
	if output == nil {
		return "", domain.ErrNoResultImage
	}
	if inner, ok := output["output"].(map[string]any); ok {
		if img, ok := inner["output"].(string); ok && img != "" {
			return img, nil
		}
	}
	if img, ok := output["output"].(string); ok && img != "" {
		return img, nil
	}
	for _, k := range []string{"image_url", "result_image", "image", "base64_image"} {
		if img, ok := output[k].(string); ok && img != "" {
			return img, nil
		}
	}
	return "", domain.ErrNoResultImage
}

func (r *reconcilerUC) extractAndStoreResult(ctx context.Context, taskID string, output map[string]any) (string, error) {
	img, err := extractResultImage(output)
	if err != nil {
		return "", err
	}

	var data []byte
	switch {
	case strings.HasPrefix(img, "data:"):
		_, b64, found := strings.Cut(img, ",")
		if !found {
			return "", fmt.Errorf("%w: malformed data url", domain.ErrNoResultImage)
		}
		data, err = base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrNoResultImage, err)
		}
	case strings.HasPrefix(img, "http://"), strings.HasPrefix(img, "https://"):
		data, err = r.fetch(ctx, img)
		if err != nil {
			return "", fmt.Errorf("download result image: %w", err)
		}
	default:
		data, err = base64.StdEncoding.DecodeString(img)
		if err != nil {
			return "", fmt.Errorf("%w: unrecognized payload", domain.ErrNoResultImage)
		}
	}

	key := fmt.Sprintf("results/%s/result_%d.jpg", taskID, time.Now().Unix())
	if err := r.storage.Put(ctx, key, data, "image/jpeg"); err != nil {
		// Persistence failure degrades the result to the raw payload in
		// the delivery log; the task still completes.
		r.log.Error().Err(err).Str("task_id", taskID).Msg("store result image failed")
		return "", nil
	}
	return key, nil
}

func (r *reconcilerUC) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(resp.Body)
}
