package jobs

import (
	"context"
	"time"
)

// JobType identifies a ledger maintenance job.
type JobType string

const (
	// JobTypeReconcileAccount recomputes running balances for one account.
	JobTypeReconcileAccount JobType = "reconcile_account"
	// JobTypeDetectTransfers runs the transfer matching pass.
	JobTypeDetectTransfers JobType = "detect_transfers"
	// JobTypeDetectRecurring runs recurrence and income detection.
	JobTypeDetectRecurring JobType = "detect_recurring"
	// JobTypeRunPipeline runs the full detection pipeline.
	JobTypeRunPipeline JobType = "run_pipeline"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// LedgerJob is one queued maintenance pass over the ledger. AccountID is set
// for per-account jobs and empty for ledger-wide passes.
type LedgerJob struct {
	JobID     string  `json:"job_id"`
	Type      JobType `json:"type"`
	AccountID string  `json:"account_id,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the failure detail of the last attempt.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues ledger jobs. The abstraction leaves room for queue
// backends other than the in-memory one (Cloud Tasks, Pub/Sub).
type Publisher interface {
	Publish(ctx context.Context, job *LedgerJob) error
	Close() error
}

// JobHandler processes one job. A returned error marks the attempt failed
// and eligible for retry.
type JobHandler func(ctx context.Context, job *LedgerJob) error

// Consumer pulls jobs off the queue and runs them through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	// Stop drains in-flight jobs before returning.
	Stop(ctx context.Context) error
}

// JobStore persists job state so status survives across requests.
type JobStore interface {
	SaveJob(ctx context.Context, job *LedgerJob) error
	GetJob(ctx context.Context, jobID string) (*LedgerJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*LedgerJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Type      JobType
	AccountID string
	Status    JobStatus
	Limit     int
	Offset    int
}
