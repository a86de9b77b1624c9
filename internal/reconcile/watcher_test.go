package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
)

func sseHandler(t *testing.T, evs []events.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, ev := range evs {
			payload, err := json.Marshal(ev)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func TestWatcherPumpsEventsIntoTracker(t *testing.T) {
	stream := []events.Event{
		events.New(events.TypeConnected, "p1", nil),
		events.New(events.TypeProcessingStarted, "p1", nil),
		events.New(events.StepStarted(model.FieldGroupNAICS), "p1", nil),
		events.New(events.StepCompleted(model.FieldGroupNAICS), "p1", map[string]any{
			"skipped": false,
			"data":    map[string]any{"naics_code": "561210"},
		}),
		events.New(events.TypeCompleted, "p1", nil),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/enhancement-progress/p1", r.URL.Path)
		sseHandler(t, stream)(w, r)
	}))
	defer srv.Close()

	tr := NewTracker(WithCleanupDelay(time.Minute))
	defer tr.Stop()
	w := NewWatcher(srv.URL, tr)

	err := w.Watch(context.Background(), "p1")
	require.NoError(t, err)

	s, ok := tr.Get("p1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.True(t, s.StreamActive)
	assert.Equal(t, "561210", s.Progress[model.FieldGroupNAICS].Data["naics_code"])
}

func TestWatcherReportsDroppedStream(t *testing.T) {
	// Server closes the stream before any terminal event.
	stream := []events.Event{
		events.New(events.TypeConnected, "p1", nil),
		events.New(events.TypeProcessingStarted, "p1", nil),
	}
	srv := httptest.NewServer(sseHandler(t, stream))
	defer srv.Close()

	tr := NewTracker()
	defer tr.Stop()
	w := NewWatcher(srv.URL, tr)

	err := w.Watch(context.Background(), "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before terminal event")

	s, ok := tr.Get("p1")
	require.True(t, ok)
	assert.True(t, s.ConnectionLost)
}

func TestWatcherNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such prospect", http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewTracker()
	defer tr.Stop()
	w := NewWatcher(srv.URL, tr)

	err := w.Watch(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWatcherSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, ": comment line\n\n")
		payload, _ := json.Marshal(events.New(events.TypeCompleted, "p1", nil))
		fmt.Fprintf(w, "data: %s\n\n", payload)
	}))
	defer srv.Close()

	tr := NewTracker(WithCleanupDelay(time.Minute))
	defer tr.Stop()
	w := NewWatcher(srv.URL, tr)

	err := w.Watch(context.Background(), "p1")
	require.NoError(t, err)

	s, _ := tr.Get("p1")
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestWatcherCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		payload, _ := json.Marshal(events.New(events.TypeConnected, "p1", nil))
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr := NewTracker()
	defer tr.Stop()
	w := NewWatcher(srv.URL, tr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// A deliberate cancel is not a connection-loss error.
	err := w.Watch(ctx, "p1")
	require.NoError(t, err)

	s, _ := tr.Get("p1")
	assert.False(t, s.ConnectionLost)
}
