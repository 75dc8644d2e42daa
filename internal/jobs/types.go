package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/smart-budget/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeMirrorTransaction copies a stored transaction to the analytics mirror.
	JobTypeMirrorTransaction JobType = "mirror_transaction"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// MirrorTransactionJob copies one stored transaction to the analytics mirror.
type MirrorTransactionJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Transaction is the row as returned by the store.
	Transaction domain.StoredTransaction `json:"transaction"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *MirrorTransactionJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *MirrorTransactionJob) GetType() JobType {
	return JobTypeMirrorTransaction
}

// GetStatus implements the Job interface.
func (j *MirrorTransactionJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishMirrorTransaction publishes a mirror job.
	PublishMirrorTransaction(ctx context.Context, job *MirrorTransactionJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *MirrorTransactionJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*MirrorTransactionJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*MirrorTransactionJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// TransactionID filters jobs by stored transaction id (0 = any).
	TransactionID int64

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
