package reconcile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/events"
)

// Watcher consumes one prospect's server-sent progress stream and feeds it
// into a Tracker. A dropped stream is reported and NOT re-opened: a fresh
// stream cannot replay missed step events, so polling takes over instead.
type Watcher struct {
	baseURL string
	http    *http.Client
	tracker *Tracker
	log     *zap.Logger
}

// NewWatcher creates a watcher against an API base URL like
// "http://localhost:8080". The client must have no timeout set: the stream
// is long-lived by design.
func NewWatcher(baseURL string, tracker *Tracker) *Watcher {
	return &Watcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tracker: tracker,
		log:     zap.L().With(zap.String("component", "reconcile.watcher")),
	}
}

// Watch opens the progress stream for a prospect and pumps events into the
// tracker until the stream ends. It returns nil when the stream closed after
// a terminal event, and an error when the connection was lost mid-job.
func (w *Watcher) Watch(ctx context.Context, prospectID string) error {
	w.tracker.Track(prospectID)

	url := fmt.Sprintf("%s/api/enhancement-progress/%s", w.baseURL, prospectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "watcher: create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := w.http.Do(req)
	if err != nil {
		w.tracker.HandleStreamLost(prospectID)
		return eris.Wrap(err, "watcher: open stream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		w.tracker.HandleStreamLost(prospectID)
		return eris.Errorf("watcher: unexpected status %d", resp.StatusCode)
	}

	sawTerminal := false
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			w.log.Warn("unparseable stream event",
				zap.String("prospect_id", prospectID),
				zap.Error(err),
			)
			continue
		}
		if ev.ProspectID == "" {
			ev.ProspectID = prospectID
		}

		w.tracker.HandleEvent(ev)
		if ev.Type.Terminal() {
			sawTerminal = true
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		w.tracker.HandleStreamLost(prospectID)
		return eris.Wrap(err, "watcher: read stream")
	}
	if !sawTerminal && ctx.Err() == nil {
		// Server closed the stream before the job finished.
		w.tracker.HandleStreamLost(prospectID)
		return eris.New("watcher: stream ended before terminal event")
	}
	return nil
}
