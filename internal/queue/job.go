package queue

import (
	"time"

	"github.com/ignite/mailblast/internal/domain"
)

// JobStatus enumerates the lifecycle of a single delivery job.
// Transitions: pending → processing → {completed | pending (retry) | failed}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is one recipient's delivery attempt within a campaign, with its own
// retry state. Jobs are mutated only through CampaignQueue methods so the
// stats counters stay consistent.
type Job struct {
	ID                 int              `json:"id"`
	Recipient          domain.Recipient `json:"recipient"`
	Status             JobStatus        `json:"status"`
	Attempts           int              `json:"attempts"`
	MaxRetries         int              `json:"max_retries"`
	ScheduledAt        time.Time        `json:"scheduled_at"`
	LastError          string           `json:"last_error,omitempty"`
	TransportMessageID string           `json:"transport_message_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

// IsTerminal returns true once the job can no longer transition.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
