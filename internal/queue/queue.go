// Package queue holds the in-memory delivery queue for a single campaign:
// one job per resolved recipient plus live aggregate stats. All state shared
// between workers lives behind the queue mutex; claim-and-mark is the atomic
// test-and-set that keeps two workers off the same job.
package queue

import (
	"sync"
	"time"

	"github.com/ignite/mailblast/internal/domain"
)

// Options are the per-campaign run options.
type Options struct {
	// Concurrency is the number of workers pulling from the queue.
	Concurrency int `json:"concurrency"`
	// MaxRetries is the number of retries after the first failed attempt;
	// a job fails terminally after MaxRetries+1 attempts. Zero means no
	// retries; negative means use the engine default.
	MaxRetries int `json:"max_retries"`
	// JobDelay is the inter-job stagger D: job i becomes eligible at
	// now + floor(i/Concurrency)*JobDelay.
	JobDelay time.Duration `json:"job_delay"`
	// BackoffUnit scales the retry delay: attempt n reschedules the job
	// n*BackoffUnit into the future.
	BackoffUnit time.Duration `json:"backoff_unit"`
	// RatePerMinute caps sends per minute across the campaign's workers.
	// Zero disables throttling. Requires Redis.
	RatePerMinute int `json:"rate_per_minute"`
}

// Stats is a consistent snapshot of job counts by status.
// Pending+Processing+Completed+Failed always equals Total.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// CampaignQueue owns the ordered jobs for one campaign together with cached
// campaign metadata and run options.
type CampaignQueue struct {
	CampaignID string
	Campaign   *domain.Campaign
	Template   *domain.Template // nil when the campaign uses its inline body
	Opts       Options

	mu    sync.Mutex
	jobs  []*Job
	stats Stats
}

// New builds a queue with one job per recipient. ScheduledAt is staggered
// linearly across the configured concurrency: job i becomes eligible at
// now + floor(i/C)*D, spreading load instead of bursting all workers at once.
func New(campaign *domain.Campaign, tpl *domain.Template, recipients []domain.Recipient, opts Options, now time.Time) *CampaignQueue {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	q := &CampaignQueue{
		CampaignID: campaign.ID,
		Campaign:   campaign,
		Template:   tpl,
		Opts:       opts,
		jobs:       make([]*Job, 0, len(recipients)),
	}

	for i, r := range recipients {
		wave := time.Duration(i/opts.Concurrency) * opts.JobDelay
		q.jobs = append(q.jobs, &Job{
			ID:          i + 1,
			Recipient:   r,
			Status:      JobPending,
			MaxRetries:  opts.MaxRetries,
			ScheduledAt: now.Add(wave),
			CreatedAt:   now,
		})
	}

	q.stats = Stats{Total: len(q.jobs), Pending: len(q.jobs)}
	return q
}

// ClaimDue atomically claims the first pending job whose scheduled time has
// arrived, marking it processing. Returns nil when no job is due.
func (q *CampaignQueue) ClaimDue(now time.Time) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		if j.Status == JobPending && !j.ScheduledAt.After(now) {
			j.Status = JobProcessing
			q.stats.Pending--
			q.stats.Processing++
			return j
		}
	}
	return nil
}

// MarkCompleted transitions a claimed job to completed and records the
// transport-assigned message ID.
func (q *CampaignQueue) MarkCompleted(j *Job, messageID string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j.Attempts++
	j.Status = JobCompleted
	j.TransportMessageID = messageID
	j.CompletedAt = &now
	q.stats.Processing--
	q.stats.Completed++
}

// MarkAttemptFailed records a failed attempt on a claimed job. When attempts
// are exhausted the job fails terminally and true is returned; otherwise the
// job goes back to pending with a strictly increasing backoff delay.
func (q *CampaignQueue) MarkAttemptFailed(j *Job, attemptErr error, now time.Time) (terminal bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failLocked(j, attemptErr, now)
}

// FailIfProcessing applies MarkAttemptFailed only when the job is still
// claimed. Used to reclaim a job whose attempt aborted without reaching a
// normal outcome; applied is false when the job already left processing.
func (q *CampaignQueue) FailIfProcessing(j *Job, attemptErr error, now time.Time) (terminal, applied bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.Status != JobProcessing {
		return false, false
	}
	return q.failLocked(j, attemptErr, now), true
}

func (q *CampaignQueue) failLocked(j *Job, attemptErr error, now time.Time) (terminal bool) {
	j.Attempts++
	j.LastError = attemptErr.Error()

	if j.Attempts > j.MaxRetries {
		j.Status = JobFailed
		j.CompletedAt = &now
		q.stats.Processing--
		q.stats.Failed++
		return true
	}

	j.Status = JobPending
	j.ScheduledAt = now.Add(time.Duration(j.Attempts) * q.Opts.BackoffUnit)
	q.stats.Processing--
	q.stats.Pending++
	return false
}

// Stats returns a consistent snapshot of the counters.
func (q *CampaignQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// AllTerminal reports whether every job has reached completed or failed.
func (q *CampaignQueue) AllTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats.Completed+q.stats.Failed == q.stats.Total
}

// Jobs returns a copy of the job list for inspection. Recipient and timing
// fields are value copies; callers cannot mutate queue state through them.
func (q *CampaignQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Job, len(q.jobs))
	for i, j := range q.jobs {
		out[i] = *j
	}
	return out
}
