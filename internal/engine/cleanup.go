package engine

import (
	"time"

	"github.com/ignite/mailblast/internal/pkg/logger"
)

// sweepLoop periodically reclaims finished campaign queues. This is purely a
// memory-management concern: the sweep is the only place a registry entry is
// deleted outright.
func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.stopSweep:
			return
		}
	}
}

// sweep removes entries that are not processing and have either finished
// (completed or stopped) or gone fully terminal, once older than the
// retention window. Returns the number of entries removed.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.campaigns {
		if e.processing.Load() {
			continue
		}

		var age time.Duration
		if fin := e.finishedAt.Load(); fin != nil {
			age = now.Sub(*fin)
		} else if e.queue.AllTerminal() {
			age = now.Sub(e.createdAt)
		} else {
			continue
		}

		if age > r.cfg.Retention {
			delete(r.campaigns, id)
			removed++
			logger.Info("campaign queue reclaimed", "campaign_id", id, "age", age.String())
		}
	}
	return removed
}
