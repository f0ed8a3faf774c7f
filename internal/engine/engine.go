// Package engine implements the bulk-delivery core: the process-wide campaign
// registry, per-campaign worker pools, the delivery executor with retry and
// backoff, finalization, cooperative stop, and the cleanup sweep.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailblast/internal/domain"
	"github.com/ignite/mailblast/internal/events"
	"github.com/ignite/mailblast/internal/pkg/distlock"
	"github.com/ignite/mailblast/internal/pkg/logger"
	"github.com/ignite/mailblast/internal/queue"
	"github.com/ignite/mailblast/internal/template"
	"github.com/ignite/mailblast/internal/transport"
)

// Setup errors surfaced synchronously to the caller. Delivery-level errors
// never reach the caller; they live on the jobs and the event stream.
var (
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrNoRecipients        = errors.New("campaign resolved zero recipients")
	ErrRecipientResolution = errors.New("recipient resolution failed")
	ErrCampaignNotQueued   = errors.New("campaign not queued")
)

// Store is the durable persistence collaborator. Outcome writes must be
// upserts: the executor may call them repeatedly for the same key.
type Store interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	PersistDeliveryOutcome(ctx context.Context, campaignID string, r domain.Recipient, status domain.DeliveryStatus, messageID, lastError string) error
	PersistCampaignFinal(ctx context.Context, campaignID string, status domain.CampaignStatus, totals domain.Totals) error
}

// RecipientResolver expands a campaign's recipient specification into
// concrete entries.
type RecipientResolver interface {
	ResolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Recipient, error)
}

// Config carries engine-wide settings. Redis and LockDB are optional; without
// them the enqueue lock degrades to in-process-only and throttling is off.
type Config struct {
	Defaults      queue.Options
	PollInterval  time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
	Redis         *redis.Client
	LockDB        *sql.DB
}

func (c Config) withDefaults() Config {
	if c.Defaults.Concurrency <= 0 {
		c.Defaults.Concurrency = 5
	}
	if c.Defaults.MaxRetries < 0 {
		c.Defaults.MaxRetries = 0
	}
	if c.Defaults.BackoffUnit <= 0 {
		c.Defaults.BackoffUnit = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	return c
}

// campaignEntry is one registry slot: a queue plus its worker pool state.
type campaignEntry struct {
	queue      *queue.CampaignQueue
	processing atomic.Bool
	finalized  atomic.Bool
	finishedAt atomic.Pointer[time.Time]
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	throttle   *throttle
	createdAt  time.Time
}

func (e *campaignEntry) done() bool { return e.finishedAt.Load() != nil }

// Registry is the process-wide map from campaign ID to active delivery state.
// It is constructed once at service start and injected wherever campaigns are
// launched or inspected. Queue state is in-memory only; durable status lives
// in the Store.
type Registry struct {
	store     Store
	resolver  RecipientResolver
	transport transport.Transport
	renderers map[string]template.Renderer
	bus       *events.Bus
	cfg       Config

	mu        sync.Mutex
	campaigns map[string]*campaignEntry

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewRegistry creates a registry and starts its cleanup sweeper.
func NewRegistry(store Store, resolver RecipientResolver, tr transport.Transport, bus *events.Bus, cfg Config) *Registry {
	r := &Registry{
		store:     store,
		resolver:  resolver,
		transport: tr,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		campaigns: make(map[string]*campaignEntry),
		stopSweep: make(chan struct{}),
		renderers: map[string]template.Renderer{
			domain.EngineSimple: template.NewSimpleRenderer(),
			domain.EngineLiquid: template.NewLiquidRenderer(),
		},
	}
	go r.sweepLoop()
	return r
}

// Bus returns the event bus observers should subscribe to.
func (r *Registry) Bus() *events.Bus { return r.bus }

// Enqueue resolves a campaign's recipients and registers a delivery queue for
// it. Returns false without error when the campaign already has an active
// queue (idempotency guard) or another replica holds the launch lock. No
// delivery attempts happen here.
func (r *Registry) Enqueue(ctx context.Context, campaignID string, opts queue.Options) (bool, error) {
	opts = r.mergeOptions(opts)

	r.mu.Lock()
	if e, ok := r.campaigns[campaignID]; ok && !e.done() {
		r.mu.Unlock()
		logger.Warn("campaign already queued", "campaign_id", campaignID)
		return false, nil
	}
	r.mu.Unlock()

	// Cross-replica guard: two processes must not double-launch one campaign.
	lock := distlock.New(r.cfg.Redis, r.cfg.LockDB, "campaign:enqueue:"+campaignID, time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Warn("enqueue lock unavailable, continuing", "campaign_id", campaignID, "error", err)
	} else if !acquired {
		logger.Warn("campaign is being launched by another process", "campaign_id", campaignID)
		return false, nil
	} else {
		defer lock.Release(ctx)
	}

	c, err := r.store.GetCampaign(ctx, campaignID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, ErrCampaignNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load campaign: %w", err)
	}

	recipients, err := r.resolver.ResolveRecipients(ctx, c)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRecipientResolution, err)
	}
	if len(recipients) == 0 {
		return false, ErrNoRecipients
	}

	var tpl *domain.Template
	if c.TemplateID != nil && *c.TemplateID != "" {
		tpl, err = r.store.GetTemplate(ctx, *c.TemplateID)
		if err != nil {
			return false, fmt.Errorf("load template %s: %w", *c.TemplateID, err)
		}
	}

	now := time.Now()
	entry := &campaignEntry{
		queue:     queue.New(c, tpl, recipients, opts, now),
		createdAt: now,
	}

	r.mu.Lock()
	if e, ok := r.campaigns[campaignID]; ok && !e.done() {
		r.mu.Unlock()
		logger.Warn("campaign already queued", "campaign_id", campaignID)
		return false, nil
	}
	r.campaigns[campaignID] = entry
	r.mu.Unlock()

	stats := entry.queue.Stats()
	r.bus.Publish(events.Event{Kind: events.CampaignQueued, CampaignID: campaignID, Stats: &stats})
	logger.Info("campaign queued",
		"campaign_id", campaignID,
		"recipients", len(recipients),
		"concurrency", opts.Concurrency,
		"max_retries", opts.MaxRetries)
	return true, nil
}

// StartProcessing spawns the campaign's worker pool. Returns false when the
// campaign is already processing or already finished; ErrCampaignNotQueued
// when no queue is registered.
func (r *Registry) StartProcessing(campaignID string) (bool, error) {
	r.mu.Lock()
	entry, ok := r.campaigns[campaignID]
	r.mu.Unlock()
	if !ok {
		return false, ErrCampaignNotQueued
	}
	if entry.done() {
		logger.Warn("campaign already finished", "campaign_id", campaignID)
		return false, nil
	}
	if !entry.processing.CompareAndSwap(false, true) {
		logger.Warn("campaign already processing", "campaign_id", campaignID)
		return false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry.cancel = cancel
	entry.throttle = newThrottle(r.cfg.Redis, campaignID, entry.queue.Opts.RatePerMinute)

	for i := 0; i < entry.queue.Opts.Concurrency; i++ {
		entry.wg.Add(1)
		go r.worker(ctx, entry, i)
	}

	stats := entry.queue.Stats()
	r.bus.Publish(events.Event{Kind: events.ProcessingStarted, CampaignID: campaignID, Stats: &stats})
	logger.Info("campaign processing started",
		"campaign_id", campaignID,
		"workers", entry.queue.Opts.Concurrency)
	return true, nil
}

// StopProcessing flips the cooperative cancellation flag. Workers exit after
// their current iteration; the attempt in flight finishes naturally. The
// campaign persists as cancelled and its queue is retained until cleanup.
func (r *Registry) StopProcessing(campaignID string) (bool, error) {
	r.mu.Lock()
	entry, ok := r.campaigns[campaignID]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	if !entry.finalized.CompareAndSwap(false, true) {
		return false, nil
	}
	if !entry.processing.CompareAndSwap(true, false) {
		// Queued but never started: mark finished so cleanup reclaims it.
		now := time.Now()
		entry.finishedAt.Store(&now)
		return false, nil
	}

	now := time.Now()
	entry.finishedAt.Store(&now)

	stats := entry.queue.Stats()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.PersistCampaignFinal(ctx, campaignID, domain.CampaignCancelled, domain.Totals{
		Total:     stats.Total,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	}); err != nil {
		logger.Error("persist cancelled status failed", "campaign_id", campaignID, "error", err)
	}

	r.bus.Publish(events.Event{
		Kind:           events.CampaignStopped,
		CampaignID:     campaignID,
		CampaignStatus: string(domain.CampaignCancelled),
		Stats:          &stats,
	})
	logger.Info("campaign stopped", "campaign_id", campaignID, "completed", stats.Completed, "pending", stats.Pending)
	return true, nil
}

// GetQueueStatus returns a stats snapshot, or nil when no queue is registered.
func (r *Registry) GetQueueStatus(campaignID string) *queue.Stats {
	r.mu.Lock()
	entry, ok := r.campaigns[campaignID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s := entry.queue.Stats()
	return &s
}

// Jobs returns a copy of the campaign's job list for inspection, or nil when
// no queue is registered.
func (r *Registry) Jobs(campaignID string) []queue.Job {
	r.mu.Lock()
	entry, ok := r.campaigns[campaignID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return entry.queue.Jobs()
}

// Close stops the sweeper and all campaign workers, waiting for them to exit.
func (r *Registry) Close() {
	r.sweepOnce.Do(func() { close(r.stopSweep) })

	r.mu.Lock()
	entries := make([]*campaignEntry, 0, len(r.campaigns))
	for _, e := range r.campaigns {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.processing.Store(false)
		if e.cancel != nil {
			e.cancel()
		}
	}
	for _, e := range entries {
		e.wg.Wait()
	}
}

func (r *Registry) mergeOptions(opts queue.Options) queue.Options {
	d := r.cfg.Defaults
	if opts.Concurrency <= 0 {
		opts.Concurrency = d.Concurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = d.MaxRetries
	}
	if opts.JobDelay <= 0 {
		opts.JobDelay = d.JobDelay
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = d.BackoffUnit
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = d.RatePerMinute
	}
	return opts
}
