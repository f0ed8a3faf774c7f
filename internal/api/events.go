package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/mailblast/internal/pkg/logger"
)

// StreamEvents bridges the engine's event bus onto an SSE response so
// dashboards can watch campaign progress live.
// GET /api/events/stream
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID := uuid.New().String()
	ch := h.registry.Bus().Subscribe(subID)
	defer h.registry.Bus().Unsubscribe(subID)

	// Push the headers out so clients see the stream open immediately; events
	// published from here on are already buffered on the subscription.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger.Debug("sse client connected", "subscriber", subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
			flusher.Flush()
		}
	}
}
