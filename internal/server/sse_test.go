package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
)

// openStream connects to a prospect's progress stream and returns a reader
// over its frames.
func openStream(t *testing.T, env *testEnv, prospectID string) (*bufio.Scanner, func()) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/enhancement-progress/"+prospectID, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	return bufio.NewScanner(resp.Body), func() { resp.Body.Close() }
}

// nextEvent reads frames until the next data event.
func nextEvent(t *testing.T, scanner *bufio.Scanner) events.Event {
	t.Helper()
	done := make(chan events.Event, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			done <- ev
			return
		}
	}()
	select {
	case ev := <-done:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return events.Event{}
	}
}

func TestProgressStreamConnectedFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	resp.Body.Close()

	scanner, cleanup := openStream(t, env, p.ID)
	defer cleanup()

	ev := nextEvent(t, scanner)
	assert.Equal(t, events.TypeConnected, ev.Type)
	assert.Equal(t, p.ID, ev.ProspectID)
	assert.Equal(t, float64(1), ev.Data["queue_position"])
}

func TestProgressStreamDeliversJobLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{
		"prospect_id":  p.ID,
		"field_groups": []string{"titles"},
	})
	resp.Body.Close()

	scanner, cleanup := openStream(t, env, p.ID)
	defer cleanup()
	require.Equal(t, events.TypeConnected, nextEvent(t, scanner).Type)

	env.worker.Start()

	var seen []events.Type
	for {
		ev := nextEvent(t, scanner)
		if ev.Type == events.TypeKeepalive {
			continue
		}
		seen = append(seen, ev.Type)
		if ev.Type.Terminal() {
			break
		}
	}

	assert.Equal(t, []events.Type{
		events.TypeProcessingStarted,
		events.StepStarted(model.FieldGroupTitles),
		events.StepCompleted(model.FieldGroupTitles),
		events.TypeCompleted,
	}, seen)

	// The terminal event closes the stream server-side. Drain the frame's
	// trailing blank line first; nothing but EOF may follow it.
	for scanner.Scan() {
		require.Empty(t, scanner.Text())
	}
	assert.NoError(t, scanner.Err())
}

func TestProgressStreamKeepalive(t *testing.T) {
	env := newTestEnv(t) // keepalive is 1s in the test env
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	scanner, cleanup := openStream(t, env, p.ID)
	defer cleanup()
	require.Equal(t, events.TypeConnected, nextEvent(t, scanner).Type)

	ev := nextEvent(t, scanner)
	assert.Equal(t, events.TypeKeepalive, ev.Type)
}

func TestProgressStreamClientDisconnectLeavesJobAlone(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	jobID := decodeBody(t, resp)["queue_item_id"].(string)

	scanner, cleanup := openStream(t, env, p.ID)
	require.Equal(t, events.TypeConnected, nextEvent(t, scanner).Type)
	cleanup() // client drops the stream

	// The subscriber goes away but the job stays queued.
	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(p.ID) == 0
	}, 2*time.Second, 20*time.Millisecond)

	job := env.queue.GetJob(jobID)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusPending, job.Status)
}
