package adapter

import "context"

// JobInput carries the images a provider needs, as data URLs or raw base64.
type JobInput struct {
	Person        string  `json:"person"`
	Garment       string  `json:"cloth"`
	Mask          string  `json:"mask,omitempty"`
	Steps         int     `json:"steps"`
	GuidanceScale float64 `json:"guidance_scale"`
}

// JobState is the provider-reported lifecycle of a remote job.
type JobState string

const (
	JobStateQueued     JobState = "IN_QUEUE"
	JobStateInProgress JobState = "IN_PROGRESS"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateFailed     JobState = "FAILED"
	JobStateCancelled  JobState = "CANCELLED"
	JobStateNotFound   JobState = "NOT_FOUND"
)

// JobStatus is a point-in-time view of a remote job. Output is the raw
// provider payload; its image may sit at one of several key paths.
type JobStatus struct {
	JobID    string
	State    JobState
	Progress float64 // 0 when the provider does not report progress
	Output   map[string]any
	Error    string
}

// TryOnProvider is the port for the remote GPU job API.
type TryOnProvider interface {
	// Name identifies the provider in logs, metrics and task records.
	Name() string

	// CreateJob submits the work and returns the provider-assigned job id.
	CreateJob(ctx context.Context, input JobInput, webhookURL string) (string, error)

	// GetJobStatus fetches the current state of a job.
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)

	// CancelJob requests cancellation of a running job.
	CancelJob(ctx context.Context, jobID string) error
}

// ImageGenerator is the synchronous capability: produce a composed try-on
// image in one call, however long that takes. Implementations may wrap an
// asynchronous job API with an internal wait loop.
type ImageGenerator interface {
	Name() string
	GenerateTryOnImage(ctx context.Context, input JobInput) ([]byte, error)
}
