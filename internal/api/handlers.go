package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailblast/internal/engine"
	"github.com/ignite/mailblast/internal/queue"
)

// Handlers exposes the delivery engine over HTTP.
type Handlers struct {
	registry *engine.Registry
}

// NewHandlers creates the handler set around a registry.
func NewHandlers(registry *engine.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// sendRequest carries optional per-campaign run options. Omitted fields fall
// back to the engine defaults. MaxRetries is a pointer so an explicit 0
// ("no retries") is distinguishable from absent.
type sendRequest struct {
	Concurrency   int  `json:"concurrency"`
	MaxRetries    *int `json:"max_retries"`
	JobDelayMS    int  `json:"job_delay_ms"`
	BackoffMS     int  `json:"backoff_ms"`
	RatePerMinute int  `json:"rate_per_minute"`
}

// SendCampaign enqueues and starts a campaign.
// POST /api/campaigns/{campaignID}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	var req sendRequest
	if r.Body != nil {
		// An empty body means "use defaults".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	opts := queue.Options{
		Concurrency:   req.Concurrency,
		MaxRetries:    -1, // engine default unless the request names a value
		JobDelay:      time.Duration(req.JobDelayMS) * time.Millisecond,
		BackoffUnit:   time.Duration(req.BackoffMS) * time.Millisecond,
		RatePerMinute: req.RatePerMinute,
	}
	if req.MaxRetries != nil {
		opts.MaxRetries = *req.MaxRetries
	}

	queued, err := h.registry.Enqueue(r.Context(), campaignID, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !queued {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"queued": false,
			"error":  "campaign already queued",
		})
		return
	}

	started, err := h.registry.StartProcessing(campaignID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":  true,
		"started": started,
		"stats":   h.registry.GetQueueStatus(campaignID),
	})
}

// StopCampaign cooperatively stops a running campaign.
// POST /api/campaigns/{campaignID}/stop
func (h *Handlers) StopCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	stopped, err := h.registry.StopProcessing(campaignID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stopped": stopped,
		"stats":   h.registry.GetQueueStatus(campaignID),
	})
}

// CampaignStatus returns the live queue stats for a campaign.
// GET /api/campaigns/{campaignID}/status
func (h *Handlers) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	stats := h.registry.GetQueueStatus(campaignID)
	if stats == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "no active queue for campaign",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID,
		"stats":       stats,
	})
}

// CampaignJobs returns per-job delivery state for a campaign.
// GET /api/campaigns/{campaignID}/jobs
func (h *Handlers) CampaignJobs(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	jobs := h.registry.Jobs(campaignID)
	if jobs == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "no active queue for campaign",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID,
		"jobs":        jobs,
	})
}

// HealthCheck reports liveness.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrCampaignNotFound), errors.Is(err, engine.ErrCampaignNotQueued):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNoRecipients), errors.Is(err, engine.ErrRecipientResolution):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
