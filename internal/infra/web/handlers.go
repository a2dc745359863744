package web

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/model"
	"vton-backend/internal/usecase"
)

const maxWebhookBody = 10 << 20 // provider payloads may inline a base64 image

type createRequest struct {
	PersonKey     string   `json:"person_key"`
	GarmentKeys   []string `json:"garment_keys"`
	MaskKey       string   `json:"mask_key"`
	Steps         int      `json:"steps"`
	GuidanceScale float64  `json:"guidance_scale"`
}

type taskResponse struct {
	TaskID       string  `json:"task_id"`
	Status       string  `json:"status"`
	Progress     float64 `json:"progress"`
	ErrorMessage string  `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func toTaskResponse(t *model.InferenceTask) taskResponse {
	return taskResponse{
		TaskID:       t.ID,
		Status:       string(t.Status),
		Progress:     t.Progress,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto the HTTP taxonomy. Internal
// detail stays in logs; clients get generic text.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "task not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrTaskTerminal):
		http.Error(w, "task already finished", http.StatusConflict)
	case errors.Is(err, domain.ErrTaskNotReady):
		http.Error(w, "result not ready", http.StatusTooEarly)
	case errors.Is(err, domain.ErrUnauthenticated):
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) createHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		task, err := s.taskUC.Submit(r.Context(), UserID(r.Context()), usecase.SubmitRequest{
			PersonKey:     req.PersonKey,
			GarmentKeys:   req.GarmentKeys,
			MaskKey:       req.MaskKey,
			Steps:         req.Steps,
			GuidanceScale: req.GuidanceScale,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeError(w, err)
				return
			}
			// The task row may exist in FAILED; surface a gateway error so
			// the client retries with a fresh submission.
			http.Error(w, "job submission failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, toTaskResponse(task))
	}
}

func (s *Server) listHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		tasks, err := s.taskUC.List(r.Context(), UserID(r.Context()), offset, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]taskResponse, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, toTaskResponse(t))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		// Cached terminal status short-circuits the provider round trip.
		if st, ok, err := s.statusCache.GetStatus(r.Context(), taskID); err == nil && ok && st.IsTerminal() {
			task, err := s.taskUC.Get(r.Context(), UserID(r.Context()), taskID)
			if err != nil {
				writeError(w, err)
				return
			}
			s.setPollHints(w, task)
			writeJSON(w, http.StatusOK, toTaskResponse(task))
			return
		}

		task, err := s.reconciler.PollStatus(r.Context(), UserID(r.Context()), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		s.setPollHints(w, task)
		writeJSON(w, http.StatusOK, toTaskResponse(task))
	}
}

// setPollHints tells the client whether and how fast to keep polling.
// The interval is jittered so a burst of clients spreads out.
func (s *Server) setPollHints(w http.ResponseWriter, task *model.InferenceTask) {
	if task.Status.IsTerminal() {
		w.Header().Set("X-Poll-Stop", "true")
		return
	}
	w.Header().Set("X-Poll-Stop", "false")

	interval := s.polling.Interval
	if half := int64(interval) / 2; half > 0 {
		interval += time.Duration(rand.Int63n(half))
	}
	if interval > s.polling.MaxInterval {
		interval = s.polling.MaxInterval
	}
	w.Header().Set("X-Poll-Interval", strconv.FormatFloat(interval.Seconds(), 'f', 1, 64))
	w.Header().Set("X-Poll-Max-Attempts", strconv.Itoa(s.polling.MaxAttempts))
	w.Header().Set("X-Poll-Timeout", strconv.Itoa(int(s.polling.Timeout.Seconds())))
}

func (s *Server) resultsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		url, key, err := s.taskUC.ResultURL(r.Context(), UserID(r.Context()), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			TaskID    string `json:"task_id"`
			ResultKey string `json:"result_key"`
			ResultURL string `json:"result_url"`
			ExpiresIn int    `json:"expires_in"`
		}{taskID, key, url, 3600})
	}
}

func (s *Server) cancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		task, err := s.taskUC.Cancel(r.Context(), UserID(r.Context()), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toTaskResponse(task))
	}
}

func (s *Server) eventsHandler() http.HandlerFunc {
	type eventResponse struct {
		Kind      string         `json:"kind"`
		Payload   map[string]any `json:"payload"`
		CreatedAt string         `json:"created_at"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		events, err := s.taskUC.Events(r.Context(), UserID(r.Context()), taskID)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]eventResponse, 0, len(events))
		for _, e := range events {
			out = append(out, eventResponse{
				Kind:      string(e.Kind),
				Payload:   e.Payload,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// webhookHandler accepts provider callbacks. The signature is computed
// over the raw body, so the body is read before any JSON decoding.
func (s *Server) webhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		sig := r.Header.Get("X-Webhook-Signature")
		if !s.verifier.Verify(body, sig) {
			writeError(w, domain.ErrUnauthenticated)
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		jobID, _ := payload["id"].(string)
		if jobID == "" {
			jobID, _ = payload["job_id"].(string)
		}
		status, _ := payload["status"].(string)

		err = s.reconciler.HandleWebhook(r.Context(), jobID, status, body, payload)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "missing job id or status", http.StatusBadRequest)
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "unknown job", http.StatusNotFound)
		default:
			http.Error(w, "processing failed", http.StatusInternalServerError)
		}
	}
}

// tokenHandler issues demo tokens. Not a production login; it exists so
// the API is exercisable end to end without an identity provider.
func (s *Server) tokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "user_id required", http.StatusBadRequest)
			return
		}
		token, err := s.auth.Mint(req.UserID)
		if err != nil {
			http.Error(w, "token issuance failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "bearer",
		})
	}
}
