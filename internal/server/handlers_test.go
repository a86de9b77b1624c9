package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/registry"
	"github.com/sells-group/prospect-dash/internal/store"
)

// stubEnricher satisfies the worker without touching any LLM.
type stubEnricher struct{}

func (stubEnricher) Enrich(_ context.Context, _ *model.Prospect, group model.FieldGroup) (*model.EnrichmentPatch, map[string]any, error) {
	title := "enriched " + string(group)
	return &model.EnrichmentPatch{EnhancedTitle: &title}, map[string]any{"enhanced_title": title}, nil
}

type testEnv struct {
	server *httptest.Server
	store  store.Store
	queue  *queue.Queue
	worker *queue.Worker
	bus    *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	bus := events.NewBus()
	q := queue.New(queue.WithBus(bus), queue.WithMaxPending(10))
	w := queue.NewWorker(q, bus, st, stubEnricher{}, queue.WorkerConfig{JobTimeout: 5 * time.Second})
	t.Cleanup(w.Stop)

	reg, err := registry.ParseSources([]byte(`
sources:
  - code: va
    name: VA Opportunities
    agency: Department of Veterans Affairs
`))
	require.NoError(t, err)

	s := New(Config{
		Queue:          q,
		Worker:         w,
		Bus:            bus,
		Store:          st,
		Registry:       reg,
		Keepalive:      time.Second,
		BulkBatchLimit: 5,
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: st, queue: q, worker: w, bus: bus}
}

func (e *testEnv) seedProspect(t *testing.T, p model.Prospect) *model.Prospect {
	t.Helper()
	out, err := e.store.CreateProspect(context.Background(), &p)
	require.NoError(t, err)
	return out
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestEnhanceSingle(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "Roof repair"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{
		"prospect_id":  p.ID,
		"field_groups": []string{"naics", "titles"},
		"user_id":      "tester",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["queue_item_id"])
	assert.Equal(t, float64(1), body["position"])

	job := env.queue.GetJob(body["queue_item_id"].(string))
	require.NotNil(t, job)
	assert.Equal(t, []model.FieldGroup{model.FieldGroupNAICS, model.FieldGroupTitles}, job.FieldGroups)
	assert.Equal(t, "tester", job.RequestedBy)
}

func TestEnhanceSingleDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "Roof repair"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "already queued")
}

func TestEnhanceSingleUnknownProspect(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestEnhanceSingleValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.postJSON(t, "/api/enhance-single", map[string]any{
		"prospect_id":  p.ID,
		"field_groups": []string{"bogus"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "unknown field group")
}

func TestEnhanceBulkExplicitIDs(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.seedProspect(t, model.Prospect{Title: "a"})
	p2 := env.seedProspect(t, model.Prospect{Title: "b"})

	resp := env.postJSON(t, "/api/enhance-bulk", map[string]any{
		"prospect_ids": []string{p1.ID, p2.ID},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["prospect_count"])

	job := env.queue.GetJob(body["queue_item_id"].(string))
	require.NotNil(t, job)
	assert.Equal(t, model.JobKindBulk, job.Kind)
}

func TestEnhanceBulkSweepsBacklog(t *testing.T) {
	env := newTestEnv(t)
	env.seedProspect(t, model.Prospect{Title: "a"})
	env.seedProspect(t, model.Prospect{Title: "b"})
	env.seedProspect(t, model.Prospect{Title: "c"})

	resp := env.postJSON(t, "/api/enhance-bulk", map[string]any{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, float64(3), decodeBody(t, resp)["prospect_count"])
}

func TestEnhanceBulkEmptyBacklog(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postJSON(t, "/api/enhance-bulk", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestEnhanceBulkOverLimit(t *testing.T) {
	env := newTestEnv(t)
	ids := make([]string, 6) // limit is 5 in the test env
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	resp := env.postJSON(t, "/api/enhance-bulk", map[string]any{"prospect_ids": ids})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp)["error"], "exceeds limit")
}

func TestCancelPendingJob(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	jobID := decodeBody(t, resp)["queue_item_id"].(string)

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/enhancement-queue/"+jobID, nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	assert.Equal(t, true, decodeBody(t, delResp)["cancelled"])

	// Second cancel: the job is terminal now.
	delResp2, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, delResp2.StatusCode)
	delResp2.Body.Close()
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/api/enhancement-queue/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestQueueStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "x"})

	resp := env.postJSON(t, "/api/enhance-single", map[string]any{"prospect_id": p.ID})
	resp.Body.Close()

	statusResp, err := http.Get(env.server.URL + "/api/queue/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)

	var st queue.Status
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&st))
	statusResp.Body.Close()

	assert.False(t, st.WorkerRunning)
	assert.Equal(t, 1, st.QueueSize)
	require.Len(t, st.PendingItems, 1)
	assert.Equal(t, p.ID, st.PendingItems[0].ProspectID)
}

func TestWorkerControls(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/queue/start-worker", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["worker_running"])
	assert.True(t, env.worker.Running())

	resp = env.postJSON(t, "/api/queue/stop-worker", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decodeBody(t, resp)["worker_running"])
	assert.False(t, env.worker.Running())
}

func TestListProspects(t *testing.T) {
	env := newTestEnv(t)
	env.seedProspect(t, model.Prospect{SourceCode: "va", Title: "Roof repair"})
	env.seedProspect(t, model.Prospect{SourceCode: "gsa", Title: "Window cleaning"})

	resp, err := http.Get(env.server.URL + "/api/prospects/?source=va")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])

	resp, err = http.Get(env.server.URL + "/api/prospects/?limit=bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetProspect(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedProspect(t, model.Prospect{Title: "Roof repair"})

	resp, err := http.Get(env.server.URL + "/api/prospects/" + p.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.Prospect
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, "Roof repair", got.Title)

	resp, err = http.Get(env.server.URL + "/api/prospects/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSources(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/sources")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "va", sources[0].(map[string]any)["code"])
}
