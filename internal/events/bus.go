// Package events is the lifecycle notification bus. The engine publishes,
// observers (SSE clients, tests, dashboards) subscribe; the queue never knows
// who is listening.
package events

import (
	"sync"
	"time"

	"github.com/ignite/mailblast/internal/queue"
)

// Kind enumerates the lifecycle event kinds.
type Kind string

const (
	CampaignQueued    Kind = "campaign_queued"
	ProcessingStarted Kind = "processing_started"
	JobStarted        Kind = "job_started"
	JobCompleted      Kind = "job_completed"
	JobFailed         Kind = "job_failed"
	CampaignCompleted Kind = "campaign_completed"
	CampaignStopped   Kind = "campaign_stopped"
)

// Event is a single lifecycle notification. Recipient, JobID and Error are
// set only on job-level events; Stats is a snapshot taken at publish time.
type Event struct {
	Kind           Kind         `json:"kind"`
	CampaignID     string       `json:"campaign_id"`
	JobID          int          `json:"job_id,omitempty"`
	Recipient      string       `json:"recipient,omitempty"`
	Error          string       `json:"error,omitempty"`
	MessageID      string       `json:"message_id,omitempty"`
	CampaignStatus string       `json:"campaign_status,omitempty"`
	Stats          *queue.Stats `json:"stats,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Bus fans events out to subscriber channels. Publish never blocks: slow
// subscribers drop events rather than stalling the workers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

// Subscribe registers a listener under id and returns its channel.
// The channel is buffered; events overflowing the buffer are dropped.
func (b *Bus) Subscribe(id string) <-chan Event {
	ch := make(chan Event, 256)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()
}

// Publish stamps the event and fans it out without blocking.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
