// File: internal/infra/adapters/provider/runpod_adapter.go

// Package provider holds adapters for remote GPU try-on services.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/ports/adapter"
	"vton-backend/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.TryOnProvider = (*RunPodAdapter)(nil)

// RunPodAdapter drives a RunPod serverless endpoint.
// Endpoint config may be a bare endpoint id or a full URL; a trailing
// /run segment is stripped so both the dashboard's copy-paste URL and
// the raw id work.
// Run path: POST {base}/run, status: GET {base}/status/{id},
// cancel: POST {base}/cancel/{id}. Authorization: Bearer <API token>.
type RunPodAdapter struct {
	apiToken string
	base     string // e.g., https://api.runpod.ai/v2/<endpoint-id>
	client   *http.Client
}

func NewRunPodAdapter(apiToken, endpoint string, timeout time.Duration) (*RunPodAdapter, error) {
	if apiToken == "" {
		return nil, errors.New("runpod api token empty")
	}
	base, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RunPodAdapter{
		apiToken: apiToken,
		base:     base,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// normalizeEndpoint turns either an endpoint id or a full endpoint URL
// into the base URL the run/status/cancel paths hang off.
func normalizeEndpoint(endpoint string) (string, error) {
	e := strings.TrimSpace(endpoint)
	if e == "" {
		return "", errors.New("runpod endpoint empty")
	}
	e = strings.TrimRight(e, "/")
	e = strings.TrimSuffix(e, "/run")
	if strings.HasPrefix(e, "http://") || strings.HasPrefix(e, "https://") {
		return e, nil
	}
	return "https://api.runpod.ai/v2/" + e, nil
}

func (r *RunPodAdapter) Name() string { return "runpod" }

func (r *RunPodAdapter) CreateJob(ctx context.Context, input adapter.JobInput, webhookURL string) (string, error) {
	reqBody := struct {
		Input   adapter.JobInput `json:"input"`
		Webhook string           `json:"webhook,omitempty"`
	}{Input: input, Webhook: webhookURL}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/run", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiToken)

	start := time.Now()
	resp, err := r.client.Do(req)
	metrics.ObserveProviderCall(r.Name(), "create", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("runpod run http %d", resp.StatusCode)
	}
	var payload struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", errors.New("runpod run response missing job id")
	}
	return payload.ID, nil
}

func (r *RunPodAdapter) GetJobStatus(ctx context.Context, jobID string) (*adapter.JobStatus, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/status/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+r.apiToken)

	start := time.Now()
	resp, err := r.client.Do(req)
	metrics.ObserveProviderCall(r.Name(), "status", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &adapter.JobStatus{JobID: jobID, State: adapter.JobStateNotFound}, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("runpod status http %d", resp.StatusCode)
	}
	var payload struct {
		ID     string         `json:"id"`
		Status string         `json:"status"`
		Output map[string]any `json:"output"`
		Error  string         `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &adapter.JobStatus{
		JobID:  jobID,
		State:  mapRunPodState(payload.Status),
		Output: payload.Output,
		Error:  payload.Error,
	}, nil
}

func (r *RunPodAdapter) CancelJob(ctx context.Context, jobID string) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/cancel/"+jobID, nil)
	req.Header.Set("Authorization", "Bearer "+r.apiToken)

	start := time.Now()
	resp, err := r.client.Do(req)
	metrics.ObserveProviderCall(r.Name(), "cancel", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("runpod cancel http %d", resp.StatusCode)
	}
	return nil
}

func mapRunPodState(s string) adapter.JobState {
	switch strings.ToUpper(s) {
	case "IN_QUEUE":
		return adapter.JobStateQueued
	case "IN_PROGRESS":
		return adapter.JobStateInProgress
	case "COMPLETED":
		return adapter.JobStateCompleted
	case "CANCELLED":
		return adapter.JobStateCancelled
	case "FAILED", "TIMED_OUT":
		return adapter.JobStateFailed
	default:
		return adapter.JobStateFailed
	}
}
