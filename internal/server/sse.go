package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/events"
)

// handleProgressStream serves one prospect's progress as server-sent
// events. The stream opens with a `connected` event, relays bus events as
// they happen, and closes itself after a terminal event. Idle streams get a
// keepalive so intermediaries do not cut them.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	prospectID := chi.URLParam(r, "prospectID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.bus.Subscribe(prospectID)
	defer s.bus.Unsubscribe(sub)

	log := s.log.With(zap.String("prospect_id", prospectID))
	log.Debug("progress stream opened")

	connected := events.New(events.TypeConnected, prospectID, map[string]any{
		"queue_position": s.queue.PositionFor(prospectID),
	})
	if !s.writeEvent(w, flusher, connected) {
		return
	}

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client went away; drop the subscriber, never touch the job.
			log.Debug("progress stream client disconnected")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				// Bus closed the stream after a terminal event.
				log.Debug("progress stream closed")
				return
			}
			if !s.writeEvent(w, flusher, ev) {
				return
			}
			keepalive.Reset(s.keepalive)

		case <-keepalive.C:
			if !s.writeEvent(w, flusher, events.New(events.TypeKeepalive, prospectID, nil)) {
				return
			}
		}
	}
}

// writeEvent writes one SSE frame. A false return means the connection is
// gone and the handler should exit.
func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, ev events.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn("event marshal failed", zap.String("event_type", string(ev.Type)), zap.Error(err))
		return true
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
