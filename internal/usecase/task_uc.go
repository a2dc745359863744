// File: internal/usecase/task_uc.go
package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/domain/ports/adapter"
	"vton-backend/internal/domain/ports/repository"
	"vton-backend/internal/infra/metrics"
)

// Compile-time check
var _ TaskUseCase = (*taskUC)(nil)

const resultURLTTL = time.Hour

// SubmitRequest carries validated input references for one try-on job.
type SubmitRequest struct {
	PersonKey     string
	GarmentKeys   []string
	MaskKey       string
	Steps         int
	GuidanceScale float64
}

type TaskUseCase interface {
	Submit(ctx context.Context, userID string, req SubmitRequest) (*model.InferenceTask, error)
	Get(ctx context.Context, userID, taskID string) (*model.InferenceTask, error)
	List(ctx context.Context, userID string, offset, limit int) ([]*model.InferenceTask, error)
	Events(ctx context.Context, userID, taskID string) ([]*model.TaskEvent, error)
	Cancel(ctx context.Context, userID, taskID string) (*model.InferenceTask, error)
	ResultURL(ctx context.Context, userID, taskID string) (url, key string, err error)
}

// CompletionScheduler starts a bounded background watcher for a submitted job.
type CompletionScheduler interface {
	Schedule(taskID, jobID string)
}

type taskUC struct {
	tasks      repository.TaskRepository
	events     repository.TaskEventRepository
	provider   adapter.TryOnProvider
	fallback   adapter.ImageGenerator // optional synchronous chain
	storage    adapter.ObjectStorage
	scheduler  CompletionScheduler
	webhookURL string
	log        *zerolog.Logger
}

func NewTaskUseCase(
	tasks repository.TaskRepository,
	events repository.TaskEventRepository,
	provider adapter.TryOnProvider,
	fallback adapter.ImageGenerator,
	storage adapter.ObjectStorage,
	scheduler CompletionScheduler,
	webhookURL string,
	logger *zerolog.Logger,
) *taskUC {
	return &taskUC{
		tasks:      tasks,
		events:     events,
		provider:   provider,
		fallback:   fallback,
		storage:    storage,
		scheduler:  scheduler,
		webhookURL: webhookURL,
		log:        logger,
	}
}

// Submit persists a QUEUED task, creates exactly one remote job, and
// returns the task. If the provider cannot be reached after the row is
// persisted, the row is transitioned to FAILED rather than left QUEUED
// with no remote job behind it.
func (u *taskUC) Submit(ctx context.Context, userID string, req SubmitRequest) (*model.InferenceTask, error) {
	if userID == "" || req.PersonKey == "" || len(req.GarmentKeys) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if req.Steps <= 0 {
		req.Steps = 50
	}
	if req.GuidanceScale <= 0 {
		req.GuidanceScale = 2.5
	}

	task := model.NewInferenceTask(uuid.NewString(), userID, req.PersonKey, req.GarmentKeys, req.MaskKey)
	if err := u.tasks.Save(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}
	u.appendEvent(ctx, task.ID, model.TaskEventState, map[string]any{
		"status":  string(model.TaskStatusQueued),
		"message": "task created, waiting for processing",
	})
	metrics.IncTaskCreated(u.provider.Name())

	input, err := u.buildJobInput(ctx, req)
	if err != nil {
		u.failSubmission(ctx, task, err)
		return nil, err
	}

	jobID, err := u.provider.CreateJob(ctx, input, u.webhookURL)
	if err != nil {
		if u.fallback != nil {
			u.log.Warn().Err(err).Str("task_id", task.ID).Msg("job submission failed, switching to synchronous generation")
			u.runFallback(task, input)
			return task, nil
		}
		u.failSubmission(ctx, task, err)
		return nil, fmt.Errorf("create remote job: %w", err)
	}

	task.JobID = jobID
	task.Provider = u.provider.Name()
	task.UpdatedAt = time.Now()
	if err := u.tasks.Save(ctx, nil, task); err != nil {
		// The remote job exists; keep the task alive and let the
		// reconciler catch up on the next poll or webhook.
		u.log.Error().Err(err).Str("task_id", task.ID).Str("job_id", jobID).Msg("persist job id failed")
	}

	if u.scheduler != nil {
		u.scheduler.Schedule(task.ID, jobID)
	}
	return task, nil
}

// runFallback generates the image on the synchronous chain while the
// task stays IN_PROGRESS; the client's polling observes completion the
// same way it would on the webhook path. Runs detached because hosted
// generators can take minutes.
func (u *taskUC) runFallback(task *model.InferenceTask, input adapter.JobInput) {
	task.ApplyStatus(model.TaskStatusInProgress, 10)
	task.Provider = u.fallback.Name()
	if err := u.tasks.Save(context.Background(), nil, task); err != nil {
		u.log.Error().Err(err).Str("task_id", task.ID).Msg("persist fallback start failed")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		img, err := u.fallback.GenerateTryOnImage(ctx, input)

		// The user may have cancelled while generation ran; terminal
		// states absorb.
		if fresh, ferr := u.tasks.FindByID(ctx, nil, task.ID); ferr == nil {
			if fresh.Status.IsTerminal() {
				return
			}
			task = fresh
		}

		if err != nil {
			task.ApplyStatus(model.TaskStatusFailed, task.Progress)
			task.ErrorMessage = err.Error()
			if saveErr := u.tasks.Save(ctx, nil, task); saveErr != nil {
				u.log.Error().Err(saveErr).Str("task_id", task.ID).Msg("persist fallback failure")
			}
			u.appendEvent(ctx, task.ID, model.TaskEventError, map[string]any{
				"status": string(model.TaskStatusFailed),
				"error":  err.Error(),
			})
			metrics.IncTaskFinished(string(model.TaskStatusFailed))
			return
		}

		key := fmt.Sprintf("results/%s/result_%d.jpg", task.ID, time.Now().Unix())
		if err := u.storage.Put(ctx, key, img, "image/jpeg"); err != nil {
			u.log.Error().Err(err).Str("task_id", task.ID).Msg("store fallback result failed")
			key = ""
		}
		task.ResultKey = key
		task.ApplyStatus(model.TaskStatusCompleted, 100)
		if err := u.tasks.Save(ctx, nil, task); err != nil {
			u.log.Error().Err(err).Str("task_id", task.ID).Msg("persist fallback completion")
		}
		u.appendEvent(ctx, task.ID, model.TaskEventResult, map[string]any{
			"status":     string(model.TaskStatusCompleted),
			"result_key": key,
		})
		metrics.IncTaskFinished(string(model.TaskStatusCompleted))
	}()
}

func (u *taskUC) failSubmission(ctx context.Context, task *model.InferenceTask, cause error) {
	task.ApplyStatus(model.TaskStatusFailed, task.Progress)
	task.ErrorMessage = cause.Error()
	if err := u.tasks.Save(ctx, nil, task); err != nil {
		u.log.Error().Err(err).Str("task_id", task.ID).Msg("mark task failed after submission error")
		return
	}
	u.appendEvent(ctx, task.ID, model.TaskEventError, map[string]any{
		"status": string(model.TaskStatusFailed),
		"error":  cause.Error(),
	})
	metrics.IncTaskFinished(string(model.TaskStatusFailed))
}

func (u *taskUC) buildJobInput(ctx context.Context, req SubmitRequest) (adapter.JobInput, error) {
	person, err := u.loadAsDataURL(ctx, req.PersonKey)
	if err != nil {
		return adapter.JobInput{}, fmt.Errorf("load person image: %w", err)
	}
	// Only the first garment is composed; extra references stay on the
	// task record for later batching.
	garment, err := u.loadAsDataURL(ctx, req.GarmentKeys[0])
	if err != nil {
		return adapter.JobInput{}, fmt.Errorf("load garment image: %w", err)
	}
	var mask string
	if req.MaskKey != "" {
		mask, err = u.loadAsDataURL(ctx, req.MaskKey)
		if err != nil {
			return adapter.JobInput{}, fmt.Errorf("load mask image: %w", err)
		}
	}
	return adapter.JobInput{
		Person:        person,
		Garment:       garment,
		Mask:          mask,
		Steps:         req.Steps,
		GuidanceScale: req.GuidanceScale,
	}, nil
}

func (u *taskUC) loadAsDataURL(ctx context.Context, key string) (string, error) {
	data, err := u.storage.Get(ctx, key)
	if err != nil {
		return "", err
	}
	mime := "image/jpeg"
	if strings.HasSuffix(strings.ToLower(key), ".png") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (u *taskUC) Get(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	task, err := u.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

// List pages through the user's tasks, newest first.
func (u *taskUC) List(ctx context.Context, userID string, offset, limit int) ([]*model.InferenceTask, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.tasks.ListByUser(ctx, nil, userID, offset, limit)
}

func (u *taskUC) Events(ctx context.Context, userID, taskID string) ([]*model.TaskEvent, error) {
	if _, err := u.Get(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return u.events.ListByTask(ctx, nil, taskID)
}

// Cancel requests provider-side cancellation and moves the task to
// CANCELLED. Tasks already terminal cannot be cancelled.
func (u *taskUC) Cancel(ctx context.Context, userID, taskID string) (*model.InferenceTask, error) {
	task, err := u.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, domain.ErrTaskTerminal
	}
	if task.JobID != "" {
		if err := u.provider.CancelJob(ctx, task.JobID); err != nil {
			// Cancelling is best effort: the local record still moves to
			// CANCELLED and the terminal-absorbing rule drops any late
			// provider update.
			u.log.Warn().Err(err).Str("task_id", taskID).Str("job_id", task.JobID).Msg("provider cancel failed")
		}
	}
	task.ApplyStatus(model.TaskStatusCancelled, task.Progress)
	if err := u.tasks.Save(ctx, nil, task); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}
	u.appendEvent(ctx, task.ID, model.TaskEventState, map[string]any{
		"status":  string(model.TaskStatusCancelled),
		"message": "task cancelled by user",
	})
	metrics.IncTaskFinished(string(model.TaskStatusCancelled))
	return task, nil
}

func (u *taskUC) ResultURL(ctx context.Context, userID, taskID string) (string, string, error) {
	task, err := u.Get(ctx, userID, taskID)
	if err != nil {
		return "", "", err
	}
	if task.Status != model.TaskStatusCompleted || task.ResultKey == "" {
		return "", "", domain.ErrTaskNotReady
	}
	url, err := u.storage.SignedURL(ctx, task.ResultKey, resultURLTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign result url: %w", err)
	}
	return url, task.ResultKey, nil
}

func (u *taskUC) appendEvent(ctx context.Context, taskID string, kind model.TaskEventKind, payload map[string]any) {
	if err := u.events.Append(ctx, nil, model.NewTaskEvent(taskID, kind, payload)); err != nil {
		u.log.Error().Err(err).Str("task_id", taskID).Str("kind", string(kind)).Msg("append task event failed")
	}
}
