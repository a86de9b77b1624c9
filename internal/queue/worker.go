package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/store"
)

// Enricher is the LLM enrichment function the worker drives. It is the only
// long-blocking operation in the loop and must honor ctx cancellation.
type Enricher interface {
	Enrich(ctx context.Context, p *model.Prospect, group model.FieldGroup) (*model.EnrichmentPatch, map[string]any, error)
}

// ProspectStore is the subset of the prospect store the worker needs.
type ProspectStore interface {
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	ApplyEnrichment(ctx context.Context, id string, group model.FieldGroup, patch model.EnrichmentPatch) error
}

// WorkerConfig bounds job processing.
type WorkerConfig struct {
	// JobTimeout is the per-job wall-clock bound. One stuck LLM call must
	// not starve the queue. Default 2 minutes.
	JobTimeout time.Duration
	// Freshness is the staleness window for the force-redo skip check.
	// Zero means enriched data never goes stale.
	Freshness time.Duration
}

// DefaultWorkerConfig returns the production bounds.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		JobTimeout: 2 * time.Minute,
		Freshness:  7 * 24 * time.Hour,
	}
}

// Worker is the single consumer loop over the queue. Exactly one job is
// processing at any instant. Start and Stop are explicit; Stop is graceful
// and lets the in-flight job finish.
type Worker struct {
	queue    *Queue
	bus      *events.Bus
	store    ProspectStore
	enricher Enricher
	cfg      WorkerConfig
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker wires a worker to its queue, bus, store and enricher.
func NewWorker(q *Queue, bus *events.Bus, st ProspectStore, enricher Enricher, cfg WorkerConfig) *Worker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultWorkerConfig().JobTimeout
	}
	return &Worker{
		queue:    q,
		bus:      bus,
		store:    st,
		enricher: enricher,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "queue.worker")),
	}
}

// Running reports whether the consumer loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start launches the consumer loop. Starting an already-running worker is a
// no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.queue.SetWorkerRunning(true)

	go w.loop(ctx, w.done)
	w.log.Info("worker started")
}

// Stop halts the loop gracefully: the in-flight job finishes all its steps
// before the loop exits. Blocks until the loop has stopped.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.queue.SetWorkerRunning(false)
	w.log.Info("worker stopped")
}

// loop drains the queue, then parks on the wake channel until new work
// arrives or the worker is stopped.
func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		// Drain everything currently pending.
		for {
			if ctx.Err() != nil {
				return
			}
			job := w.queue.Dequeue()
			if job == nil {
				break
			}
			w.runJob(job)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.queue.Wake():
		}
	}
}

// runJob executes every requested field group of one job. Job-level errors
// are terminal for the job, never for the loop.
func (w *Worker) runJob(job *model.EnhancementJob) {
	log := w.log.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	log.Info("processing job",
		zap.Int("prospects", job.ProspectCount()),
		zap.Bool("force_redo", job.ForceRedo),
	)

	// The job context bounds wall-clock time. It is deliberately not
	// derived from the loop context: Stop() must let this job finish.
	jobCtx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()

	var jobErr error
	for _, prospectID := range jobProspects(job) {
		if err := w.runProspect(jobCtx, job, prospectID); err != nil {
			jobErr = err
			break
		}
	}

	switch {
	case jobErr == nil:
		if err := w.queue.Complete(job.ID); err != nil {
			log.Error("failed to complete job", zap.Error(err))
		}
		w.publishTerminal(job, events.TypeCompleted, "")
		log.Info("job completed")
	case eris.Is(jobErr, ErrJobTimeout):
		if err := w.queue.Fail(job.ID, jobErr); err != nil {
			log.Error("failed to fail job", zap.Error(err))
		}
		w.publishTerminal(job, events.TypeTimeout, jobErr.Error())
		log.Warn("job timed out", zap.Duration("timeout", w.cfg.JobTimeout))
	default:
		if err := w.queue.Fail(job.ID, jobErr); err != nil {
			log.Error("failed to fail job", zap.Error(err))
		}
		w.publishTerminal(job, events.TypeFailed, jobErr.Error())
		log.Warn("job failed", zap.Error(jobErr))
	}
}

// runProspect processes all requested field groups for one prospect.
// Step failures are recorded per group and never abort the job; only
// system-level faults (prospect gone, job timeout) return an error.
func (w *Worker) runProspect(ctx context.Context, job *model.EnhancementJob, prospectID string) error {
	p, err := w.store.GetProspect(ctx, prospectID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrProspectGone, "prospect %s", prospectID)
		}
		if ctx.Err() != nil {
			return eris.Wrapf(ErrJobTimeout, "loading prospect %s", prospectID)
		}
		return eris.Wrapf(err, "load prospect %s", prospectID)
	}

	w.bus.Publish(events.New(events.TypeProcessingStarted, prospectID, map[string]any{
		"job_id":       job.ID,
		"field_groups": job.FieldGroups,
	}))

	now := time.Now().UTC()
	for _, group := range job.FieldGroups {
		if ctx.Err() != nil {
			return eris.Wrapf(ErrJobTimeout, "before step %s", group)
		}

		w.bus.Publish(events.New(events.StepStarted(group), prospectID, map[string]any{
			"job_id": job.ID,
			"step":   string(group),
		}))

		// Fresh data and no force_redo: skip without touching the LLM.
		if !job.ForceRedo && p.HasFreshData(group, w.cfg.Freshness, now) {
			w.bus.Publish(events.New(events.StepCompleted(group), prospectID, map[string]any{
				"job_id":  job.ID,
				"step":    string(group),
				"skipped": true,
			}))
			continue
		}

		patch, fields, err := w.enricher.Enrich(ctx, p, group)
		if err != nil {
			// Job timed out underneath the step: terminal for the job.
			if ctx.Err() != nil {
				return eris.Wrapf(ErrJobTimeout, "during step %s", group)
			}
			stepErr := &StepError{Group: group, Err: err}
			w.log.Warn("enrichment step failed",
				zap.String("job_id", job.ID),
				zap.String("prospect_id", prospectID),
				zap.String("step", string(group)),
				zap.Error(err),
			)
			w.bus.Publish(events.New(events.StepFailed(group), prospectID, map[string]any{
				"job_id": job.ID,
				"step":   string(group),
				"error":  stepErr.Error(),
			}))
			continue
		}

		if err := w.store.ApplyEnrichment(ctx, prospectID, group, *patch); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				return eris.Wrapf(ErrProspectGone, "prospect %s deleted mid-processing", prospectID)
			}
			if ctx.Err() != nil {
				return eris.Wrapf(ErrJobTimeout, "persisting step %s", group)
			}
			w.bus.Publish(events.New(events.StepFailed(group), prospectID, map[string]any{
				"job_id": job.ID,
				"step":   string(group),
				"error":  err.Error(),
			}))
			continue
		}
		p.Apply(group, *patch, time.Now().UTC())

		w.bus.Publish(events.New(events.StepCompleted(group), prospectID, map[string]any{
			"job_id":  job.ID,
			"step":    string(group),
			"skipped": false,
			"data":    fields,
		}))
	}

	return nil
}

// publishTerminal emits the job's terminal event to every covered prospect.
func (w *Worker) publishTerminal(job *model.EnhancementJob, t events.Type, errMsg string) {
	data := map[string]any{"job_id": job.ID}
	if errMsg != "" {
		data["error"] = errMsg
	}
	for _, pid := range jobProspects(job) {
		w.bus.Publish(events.New(t, pid, data))
	}
}
