// File: internal/usecase/task_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
)

func newTestTaskUC(tasks *memTaskRepo, events *memEventRepo, prov *stubProvider, store *memStorage, sched *stubScheduler) *taskUC {
	log := zerolog.Nop()
	return NewTaskUseCase(tasks, events, prov, nil, store, sched, "https://api.example.com/api/v1/tryon/webhook", &log)
}

func seedImages(store *memStorage) {
	store.objects["uploads/u1/person.jpg"] = []byte("person-bytes")
	store.objects["uploads/u1/garment.jpg"] = []byte("garment-bytes")
}

func TestTaskUC_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("success persists task with job id and schedules a watch", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{nextJobID: "job-42"}, newMemStorage(), &stubScheduler{}
		seedImages(store)
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task, err := uc.Submit(ctx, "u1", SubmitRequest{
			PersonKey:   "uploads/u1/person.jpg",
			GarmentKeys: []string{"uploads/u1/garment.jpg"},
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if task.Status != model.TaskStatusQueued {
			t.Fatalf("status = %s, want QUEUED", task.Status)
		}
		if task.JobID != "job-42" || task.Provider != "stub" {
			t.Fatalf("job binding wrong: %q/%q", task.JobID, task.Provider)
		}
		saved, _ := tasks.FindByID(ctx, nil, task.ID)
		if saved.JobID != "job-42" {
			t.Fatal("job id not persisted")
		}
		if len(sched.scheduled) != 1 || sched.scheduled[0][1] != "job-42" {
			t.Fatalf("watch not scheduled: %v", sched.scheduled)
		}
		if prov.created != 1 {
			t.Fatalf("exactly one remote job expected, got %d", prov.created)
		}
		if events.byKind(task.ID, model.TaskEventState) != 1 {
			t.Fatal("creation STATE event missing")
		}
	})

	t.Run("provider failure marks the task FAILED, not stuck QUEUED", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{createErr: errors.New("gpu pool down")}, newMemStorage(), &stubScheduler{}
		seedImages(store)
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task, err := uc.Submit(ctx, "u1", SubmitRequest{
			PersonKey:   "uploads/u1/person.jpg",
			GarmentKeys: []string{"uploads/u1/garment.jpg"},
		})
		if err == nil {
			t.Fatal("expected submission error")
		}
		if task != nil {
			t.Fatal("no task should be returned on failure")
		}
		// The record still exists, in FAILED.
		var failed *model.InferenceTask
		for id := range tasks.store {
			failed, _ = tasks.FindByID(ctx, nil, id)
		}
		if failed == nil || failed.Status != model.TaskStatusFailed {
			t.Fatalf("persisted task should be FAILED, got %+v", failed)
		}
		if failed.ErrorMessage == "" {
			t.Fatal("failure reason should be recorded")
		}
		if events.byKind(failed.ID, model.TaskEventError) != 1 {
			t.Fatal("ERROR event missing")
		}
		if len(sched.scheduled) != 0 {
			t.Fatal("nothing to watch on failed submission")
		}
	})

	t.Run("missing person image fails before any remote call", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		_, err := uc.Submit(ctx, "u1", SubmitRequest{
			PersonKey:   "uploads/u1/missing.jpg",
			GarmentKeys: []string{"uploads/u1/garment.jpg"},
		})
		if err == nil {
			t.Fatal("expected error for missing image")
		}
		if prov.created != 0 {
			t.Fatal("no remote job should be created")
		}
	})

	t.Run("validation rejects empty input", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		if _, err := uc.Submit(ctx, "u1", SubmitRequest{}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
		if _, err := uc.Submit(ctx, "", SubmitRequest{PersonKey: "p", GarmentKeys: []string{"g"}}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("data url carries the stored image", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		seedImages(store)
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		if _, err := uc.Submit(ctx, "u1", SubmitRequest{
			PersonKey:   "uploads/u1/person.jpg",
			GarmentKeys: []string{"uploads/u1/garment.jpg"},
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if got := prov.lastInput.Person; got != "data:image/jpeg;base64,cGVyc29uLWJ5dGVz" {
			t.Fatalf("person data url = %q", got)
		}
		if prov.lastInput.Steps != 50 || prov.lastInput.GuidanceScale != 2.5 {
			t.Fatalf("defaults not applied: %+v", prov.lastInput)
		}
	})
}

func TestTaskUC_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels a running task and requests provider cancel", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task := model.NewInferenceTask("t1", "u1", "p", []string{"g"}, "")
		task.JobID = "job-9"
		task.ApplyStatus(model.TaskStatusInProgress, 50)
		_ = tasks.Save(ctx, nil, task)

		got, err := uc.Cancel(ctx, "u1", "t1")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != model.TaskStatusCancelled || got.CancelledAt == nil {
			t.Fatalf("not cancelled: %+v", got)
		}
		if len(prov.cancelled) != 1 || prov.cancelled[0] != "job-9" {
			t.Fatalf("provider cancel: %v", prov.cancelled)
		}
	})

	t.Run("provider cancel failure still cancels locally", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{cancelErr: errors.New("api down")}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task := model.NewInferenceTask("t1", "u1", "p", []string{"g"}, "")
		task.JobID = "job-9"
		_ = tasks.Save(ctx, nil, task)

		got, err := uc.Cancel(ctx, "u1", "t1")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if got.Status != model.TaskStatusCancelled {
			t.Fatalf("status = %s, want CANCELLED", got.Status)
		}
	})

	t.Run("terminal task cannot be cancelled", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task := model.NewInferenceTask("t1", "u1", "p", []string{"g"}, "")
		task.ApplyStatus(model.TaskStatusCompleted, 100)
		_ = tasks.Save(ctx, nil, task)

		if _, err := uc.Cancel(ctx, "u1", "t1"); !errors.Is(err, domain.ErrTaskTerminal) {
			t.Fatalf("err = %v, want ErrTaskTerminal", err)
		}
	})

	t.Run("foreign task is invisible", func(t *testing.T) {
		tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
		uc := newTestTaskUC(tasks, events, prov, store, sched)

		task := model.NewInferenceTask("t1", "u1", "p", []string{"g"}, "")
		_ = tasks.Save(ctx, nil, task)

		if _, err := uc.Cancel(ctx, "u2", "t1"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestTaskUC_List(t *testing.T) {
	ctx := context.Background()
	tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
	uc := newTestTaskUC(tasks, events, prov, store, sched)

	_ = tasks.Save(ctx, nil, model.NewInferenceTask("t1", "u1", "p", []string{"g"}, ""))
	_ = tasks.Save(ctx, nil, model.NewInferenceTask("t2", "u1", "p", []string{"g"}, ""))
	_ = tasks.Save(ctx, nil, model.NewInferenceTask("t3", "u2", "p", []string{"g"}, ""))

	got, err := uc.List(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("tasks = %d, want 2", len(got))
	}
	for _, task := range got {
		if task.UserID != "u1" {
			t.Fatalf("foreign task leaked: %s", task.ID)
		}
	}
}

func TestTaskUC_ResultURL(t *testing.T) {
	ctx := context.Background()
	tasks, events, prov, store, sched := newMemTaskRepo(), newMemEventRepo(), &stubProvider{}, newMemStorage(), &stubScheduler{}
	uc := newTestTaskUC(tasks, events, prov, store, sched)

	task := model.NewInferenceTask("t1", "u1", "p", []string{"g"}, "")
	_ = tasks.Save(ctx, nil, task)

	t.Run("not ready before completion", func(t *testing.T) {
		if _, _, err := uc.ResultURL(ctx, "u1", "t1"); !errors.Is(err, domain.ErrTaskNotReady) {
			t.Fatalf("err = %v, want ErrTaskNotReady", err)
		}
	})

	t.Run("signed url after completion", func(t *testing.T) {
		task.ResultKey = "results/t1/result_1.jpg"
		task.ApplyStatus(model.TaskStatusCompleted, 100)
		_ = tasks.Save(ctx, nil, task)

		url, key, err := uc.ResultURL(ctx, "u1", "t1")
		if err != nil {
			t.Fatalf("result url: %v", err)
		}
		if key != "results/t1/result_1.jpg" || url == "" {
			t.Fatalf("got %q %q", url, key)
		}
	})
}
