// File: internal/infra/adapters/provider/fashn_adapter.go
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vton-backend/internal/domain/ports/adapter"
	"vton-backend/internal/infra/metrics"
)

var _ adapter.ImageGenerator = (*FashnAdapter)(nil)

const (
	fashnDefaultBase  = "https://api.fashn.ai/v1"
	fashnModel        = "tryon-v1.6"
	fashnPollInterval = 2 * time.Second
	fashnWaitBudget   = 3 * time.Minute
)

// FashnAdapter calls the FASHN try-on API. FASHN has no webhook, so the
// adapter exposes the synchronous ImageGenerator capability: it submits
// a prediction and waits on GET /predictions/{id} until a terminal state.
type FashnAdapter struct {
	apiKey string
	base   string
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewFashnAdapter(apiKey, base string) (*FashnAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("fashn api key empty")
	}
	if base == "" {
		base = fashnDefaultBase
	}
	return &FashnAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 60 * time.Second},
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *FashnAdapter) Name() string { return "fashn" }

func (f *FashnAdapter) GenerateTryOnImage(ctx context.Context, input adapter.JobInput) ([]byte, error) {
	id, err := f.run(ctx, input)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(fashnWaitBudget)
	for {
		st, err := f.prediction(ctx, id)
		if err != nil {
			return nil, err
		}
		switch st.Status {
		case "completed":
			return f.fetchOutput(ctx, st.Output)
		case "failed", "canceled":
			if st.Error != "" {
				return nil, fmt.Errorf("fashn prediction %s: %s", st.Status, st.Error)
			}
			return nil, fmt.Errorf("fashn prediction %s", st.Status)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("fashn prediction %s still %s after %s", id, st.Status, fashnWaitBudget)
		}
		if err := f.sleep(ctx, fashnPollInterval); err != nil {
			return nil, err
		}
	}
}

func (f *FashnAdapter) run(ctx context.Context, input adapter.JobInput) (string, error) {
	reqBody := struct {
		ModelName string `json:"model_name"`
		Inputs    struct {
			ModelImage   string `json:"model_image"`
			GarmentImage string `json:"garment_image"`
			Category     string `json:"category"`
		} `json:"inputs"`
	}{ModelName: fashnModel}
	reqBody.Inputs.ModelImage = input.Person
	reqBody.Inputs.GarmentImage = input.Garment
	reqBody.Inputs.Category = "auto"

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, f.base+"/run", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ObserveProviderCall(f.Name(), "create", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fashn run http %d", resp.StatusCode)
	}
	var payload struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Error != "" {
		return "", fmt.Errorf("fashn run: %s", payload.Error)
	}
	if payload.ID == "" {
		return "", errors.New("fashn run response missing prediction id")
	}
	return payload.ID, nil
}

type fashnPrediction struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

func (f *FashnAdapter) prediction(ctx context.Context, id string) (*fashnPrediction, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/predictions/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ObserveProviderCall(f.Name(), "status", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fashn prediction http %d", resp.StatusCode)
	}
	var p fashnPrediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// fetchOutput resolves the first prediction output, which may be a CDN
// URL or an inline data URL, to image bytes.
func (f *FashnAdapter) fetchOutput(ctx context.Context, output []string) ([]byte, error) {
	if len(output) == 0 {
		return nil, errors.New("fashn prediction completed without output")
	}
	src := output[0]
	if strings.HasPrefix(src, "data:") {
		_, b64, ok := strings.Cut(src, ",")
		if !ok {
			return nil, errors.New("malformed data url in fashn output")
		}
		return base64.StdEncoding.DecodeString(b64)
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fashn output fetch http %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
