package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/mailblast/internal/domain"
	"github.com/ignite/mailblast/internal/events"
	"github.com/ignite/mailblast/internal/pkg/logger"
	"github.com/ignite/mailblast/internal/queue"
	"github.com/ignite/mailblast/internal/transport"
)

// worker repeatedly claims due jobs until the campaign stops or every job is
// terminal. The stop flag is checked between iterations only; an attempt in
// flight always finishes.
func (r *Registry) worker(ctx context.Context, entry *campaignEntry, num int) {
	defer entry.wg.Done()

	for entry.processing.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if finished := r.workerTick(ctx, entry, num); finished {
			return
		}
	}
}

// workerTick runs one iteration of the polling loop. A panic anywhere in the
// iteration is recovered and logged so one misbehaving job cannot kill the
// worker or starve the queue; the claimed job is routed through the normal
// failure path so it never sticks in processing.
func (r *Registry) workerTick(ctx context.Context, entry *campaignEntry, num int) (finished bool) {
	var job *queue.Job
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("worker recovered",
				"campaign_id", entry.queue.CampaignID,
				"worker", num,
				"panic", fmt.Sprintf("%v", rec))
			if job != nil {
				cause := fmt.Errorf("attempt aborted: %v", rec)
				if terminal, applied := entry.queue.FailIfProcessing(job, cause, time.Now()); applied {
					r.recordFailure(ctx, entry, job, cause, terminal)
				}
			}
			sleepCtx(ctx, r.cfg.PollInterval)
			finished = false
		}
	}()

	job = entry.queue.ClaimDue(time.Now())
	if job == nil {
		if entry.queue.AllTerminal() {
			r.finalize(entry)
			return true
		}
		// Bounded poll: nothing due yet, back off briefly.
		sleepCtx(ctx, r.cfg.PollInterval)
		return false
	}

	r.deliver(ctx, entry, job)
	return false
}

// deliver performs exactly one delivery attempt for a claimed job and always
// leaves it in a well-defined status. Render and transport errors are
// converted into the retry/terminal-failure path, never propagated.
func (r *Registry) deliver(ctx context.Context, entry *campaignEntry, job *queue.Job) {
	q := entry.queue
	started := q.Stats()
	r.bus.Publish(events.Event{
		Kind:       events.JobStarted,
		CampaignID: q.CampaignID,
		JobID:      job.ID,
		Recipient:  job.Recipient.Address,
		Stats:      &started,
	})

	messageID, attemptErr := r.attempt(ctx, entry, job)

	now := time.Now()
	if attemptErr == nil {
		q.MarkCompleted(job, messageID, now)
		if err := r.store.PersistDeliveryOutcome(ctx, q.CampaignID, job.Recipient, domain.DeliveryCompleted, messageID, ""); err != nil {
			logger.Error("persist delivery outcome failed",
				"campaign_id", q.CampaignID, "recipient", job.Recipient.Address, "error", err)
		}
		stats := q.Stats()
		r.bus.Publish(events.Event{
			Kind:       events.JobCompleted,
			CampaignID: q.CampaignID,
			JobID:      job.ID,
			Recipient:  job.Recipient.Address,
			MessageID:  messageID,
			Stats:      &stats,
		})
		return
	}

	terminal := q.MarkAttemptFailed(job, attemptErr, now)
	r.recordFailure(ctx, entry, job, attemptErr, terminal)
}

// recordFailure handles the bookkeeping after a failed attempt has been
// marked on the queue: a retry is only logged, a terminal failure persists
// the outcome and announces it.
func (r *Registry) recordFailure(ctx context.Context, entry *campaignEntry, job *queue.Job, attemptErr error, terminal bool) {
	q := entry.queue
	if !terminal {
		// Back to pending with increased backoff; nothing durable recorded yet.
		logger.Debug("delivery attempt failed, retrying",
			"campaign_id", q.CampaignID, "job_id", job.ID, "error", attemptErr)
		return
	}

	if err := r.store.PersistDeliveryOutcome(ctx, q.CampaignID, job.Recipient, domain.DeliveryFailed, "", attemptErr.Error()); err != nil {
		logger.Error("persist delivery outcome failed",
			"campaign_id", q.CampaignID, "recipient", job.Recipient.Address, "error", err)
	}
	stats := q.Stats()
	r.bus.Publish(events.Event{
		Kind:       events.JobFailed,
		CampaignID: q.CampaignID,
		JobID:      job.ID,
		Recipient:  job.Recipient.Address,
		Error:      attemptErr.Error(),
		Stats:      &stats,
	})
	logger.Warn("job failed terminally",
		"campaign_id", q.CampaignID, "job_id", job.ID,
		"recipient", job.Recipient.Address, "error", attemptErr)
}

// attempt renders the message and hands it to the transport.
func (r *Registry) attempt(ctx context.Context, entry *campaignEntry, job *queue.Job) (string, error) {
	q := entry.queue
	vars := r.variables(q, job)

	body, err := r.renderBody(q, vars)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	// Subjects carry placeholders too; simple substitution never fails.
	subject, _ := r.renderers[domain.EngineSimple].Render(q.Campaign.Subject, vars)

	if err := entry.throttle.wait(ctx); err != nil {
		return "", fmt.Errorf("throttle: %w", err)
	}

	res, err := r.transport.Send(ctx, &transport.Message{
		CampaignID:  q.CampaignID,
		RecipientID: job.Recipient.ExternalID,
		FromName:    q.Campaign.FromName,
		FromEmail:   q.Campaign.FromEmail,
		ReplyTo:     q.Campaign.ReplyTo,
		To:          job.Recipient.Address,
		ToName:      job.Recipient.DisplayName,
		Subject:     subject,
		HTMLBody:    body,
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// renderBody picks the stored template (honoring its engine) or the
// campaign's inline body, and renders it with the variable bag.
func (r *Registry) renderBody(q *queue.CampaignQueue, vars map[string]string) (string, error) {
	body := q.Campaign.Body
	engineName := domain.EngineSimple
	if q.Template != nil {
		body = q.Template.Body
		if q.Template.Engine != "" {
			engineName = q.Template.Engine
		}
	}
	renderer, ok := r.renderers[engineName]
	if !ok {
		renderer = r.renderers[domain.EngineSimple]
	}
	return renderer.Render(body, vars)
}

// variables merges campaign-level variables with per-recipient ones. The
// recipient keys win on collision.
func (r *Registry) variables(q *queue.CampaignQueue, job *queue.Job) map[string]string {
	vars := make(map[string]string, len(q.Campaign.Variables)+3)
	for k, v := range q.Campaign.Variables {
		vars[k] = v
	}
	vars["email"] = job.Recipient.Address
	vars["name"] = job.Recipient.DisplayName
	if job.Recipient.ExternalID != "" {
		vars["recipient_id"] = job.Recipient.ExternalID
	}
	return vars
}

// finalize runs exactly once per campaign, by whichever worker first observes
// all jobs terminal. It computes the final status, persists the aggregate
// counters, announces completion, and releases the worker pool. The queue
// entry stays registered for status queries until the cleanup sweep.
func (r *Registry) finalize(entry *campaignEntry) {
	if !entry.finalized.CompareAndSwap(false, true) {
		return
	}

	q := entry.queue
	stats := q.Stats()

	var status domain.CampaignStatus
	switch {
	case stats.Failed == 0:
		status = domain.CampaignSent
	case stats.Completed > 0:
		status = domain.CampaignPartialSuccess
	default:
		status = domain.CampaignFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.PersistCampaignFinal(ctx, q.CampaignID, status, domain.Totals{
		Total:     stats.Total,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	}); err != nil {
		logger.Error("persist campaign final failed", "campaign_id", q.CampaignID, "error", err)
	}

	entry.processing.Store(false)
	now := time.Now()
	entry.finishedAt.Store(&now)
	if entry.cancel != nil {
		entry.cancel()
	}

	r.bus.Publish(events.Event{
		Kind:           events.CampaignCompleted,
		CampaignID:     q.CampaignID,
		CampaignStatus: string(status),
		Stats:          &stats,
	})
	logger.Info("campaign completed",
		"campaign_id", q.CampaignID,
		"status", string(status),
		"completed", stats.Completed,
		"failed", stats.Failed)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
