// Package monitoring gathers queue and store health metrics, evaluates
// them against thresholds and pushes webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/model"
	"github.com/sells-group/prospect-dash/internal/queue"
	"github.com/sells-group/prospect-dash/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Queue metrics.
	WorkerRunning bool    `json:"worker_running"`
	QueueSize     int     `json:"queue_size"`
	Processing    bool    `json:"processing"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsCancelled int     `json:"jobs_cancelled"`
	JobFailRate   float64 `json:"job_fail_rate"`

	// Prospect metrics.
	ProspectsTotal    int `json:"prospects_total"`
	ProspectsEnhanced int `json:"prospects_enhanced"`

	CollectedAt time.Time `json:"collected_at"`
}

// Snapshotter abstracts the queue for collection; satisfied by
// *queue.Queue.
type Snapshotter interface {
	Snapshot() queue.Status
}

// ProspectCounter abstracts the store for collection.
type ProspectCounter interface {
	Counts(ctx context.Context) (store.Counts, error)
}

// Collector gathers metrics from the queue and the prospect store.
type Collector struct {
	queue Snapshotter
	store ProspectCounter
}

// NewCollector creates a metrics collector.
func NewCollector(q Snapshotter, st ProspectCounter) *Collector {
	return &Collector{queue: q, store: st}
}

// Collect gathers a snapshot of system metrics. The job counters cover the
// queue's bounded recent-history window.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	st := c.queue.Snapshot()
	snap.WorkerRunning = st.WorkerRunning
	snap.QueueSize = st.QueueSize
	snap.Processing = st.CurrentItem != nil
	for _, item := range st.RecentCompleted {
		switch item.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
		case model.JobStatusFailed:
			snap.JobsFailed++
		case model.JobStatusCancelled:
			snap.JobsCancelled++
		}
	}
	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}

	counts, err := c.store.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect prospect counts")
	}
	snap.ProspectsTotal = counts.Total
	snap.ProspectsEnhanced = counts.Enhanced

	return snap, nil
}
