// Package queue implements the in-memory enhancement queue: an ordered
// pending list consumed by a single worker, plus a bounded history of
// terminal jobs for poll-based reconciliation. Queue state lives and dies
// with the process.
package queue

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
)

// Queue is the priority queue store. All mutating operations share one
// mutex; Snapshot copies under the same lock so readers always observe a
// consistent point-in-time view.
type Queue struct {
	mu sync.Mutex

	pending []*entry
	current *model.EnhancementJob
	recent  []*model.EnhancementJob // ring, oldest first

	maxPending    int
	recentHistory int
	nextSeq       uint64

	workerRunning bool

	// wake is signalled on enqueue so a parked worker picks up new work
	// without polling. Buffered so Enqueue never blocks.
	wake chan struct{}

	bus *events.Bus // optional; position updates for pending individual jobs
}

type entry struct {
	job *model.EnhancementJob
	seq uint64 // insertion order; ties within a priority are never reordered
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxPending caps the pending list. Zero means unbounded.
func WithMaxPending(n int) Option {
	return func(q *Queue) { q.maxPending = n }
}

// WithRecentHistory sets the terminal-job ring size.
func WithRecentHistory(n int) Option {
	return func(q *Queue) { q.recentHistory = n }
}

// WithBus attaches an event bus for queue position updates.
func WithBus(bus *events.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// DefaultRecentHistory is the terminal-job ring size when not configured.
const DefaultRecentHistory = 50

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		recentHistory: DefaultRecentHistory,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Wake returns the channel the worker parks on while the queue is empty.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Enqueue inserts a pending job in priority order and returns its 1-based
// queue position. It fails with ErrDuplicateJob when a non-terminal job
// already covers any of the job's prospects, and ErrQueueFull when the
// pending cap is reached.
func (q *Queue) Enqueue(job *model.EnhancementJob) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		return 0, eris.Wrapf(ErrQueueFull, "pending=%d", len(q.pending))
	}

	for _, pid := range jobProspects(job) {
		if blocker := q.nonTerminalForLocked(pid); blocker != nil {
			return 0, eris.Wrapf(ErrDuplicateJob, "prospect %s held by job %s", pid, blocker.ID)
		}
	}

	e := &entry{job: job, seq: q.nextSeq}
	q.nextSeq++

	// Insert after every entry with priority <= ours: priority order with
	// FIFO ties by insertion.
	pos := len(q.pending)
	for i, p := range q.pending {
		if p.job.Priority > job.Priority {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = e

	q.publishPositionsLocked()
	q.signalLocked()

	return pos + 1, nil
}

// Dequeue atomically removes the highest-priority pending job, marks it
// processing and records it as current. Returns nil when the queue is empty
// or another job is still processing.
func (q *Queue) Dequeue() *model.EnhancementJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil || len(q.pending) == 0 {
		return nil
	}

	e := q.pending[0]
	q.pending = q.pending[1:]
	e.job.Start()
	q.current = e.job

	q.publishPositionsLocked()
	return e.job
}

// Cancel removes a pending job. It returns false — an expected outcome, not
// an error — when the job is unknown, already processing, or terminal.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.pending {
		if e.job.ID != jobID {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		e.job.Cancel()
		q.pushRecentLocked(e.job)
		q.publishPositionsLocked()
		return true
	}
	return false
}

// Complete moves the current job to the terminal ring.
func (q *Queue) Complete(jobID string) error {
	return q.finish(jobID, nil)
}

// Fail moves the current job to the terminal ring with an error.
func (q *Queue) Fail(jobID string, jobErr error) error {
	if jobErr == nil {
		jobErr = eris.New("job failed")
	}
	return q.finish(jobID, jobErr)
}

func (q *Queue) finish(jobID string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil || q.current.ID != jobID {
		return eris.Errorf("job %s is not the current job", jobID)
	}

	if jobErr != nil {
		q.current.Fail(jobErr)
	} else {
		q.current.Complete()
	}
	q.pushRecentLocked(q.current)
	q.current = nil

	// More pending work means the worker should run another iteration.
	if len(q.pending) > 0 {
		q.signalLocked()
	}
	return nil
}

// GetJob looks up a job by ID across pending, current and recent.
func (q *Queue) GetJob(jobID string) *model.EnhancementJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && q.current.ID == jobID {
		return q.current
	}
	for _, e := range q.pending {
		if e.job.ID == jobID {
			return e.job
		}
	}
	for _, j := range q.recent {
		if j.ID == jobID {
			return j
		}
	}
	return nil
}

// SetWorkerRunning records whether the consumer loop is active, for
// snapshots.
func (q *Queue) SetWorkerRunning(running bool) {
	q.mu.Lock()
	q.workerRunning = running
	q.mu.Unlock()
}

// PositionFor returns the 1-based pending position of a prospect's job, or
// 0 if the prospect has no pending job.
func (q *Queue) PositionFor(prospectID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.pending {
		for _, pid := range jobProspects(e.job) {
			if pid == prospectID {
				return i + 1
			}
		}
	}
	return 0
}

// locked helpers

func (q *Queue) nonTerminalForLocked(prospectID string) *model.EnhancementJob {
	if q.current != nil {
		for _, pid := range jobProspects(q.current) {
			if pid == prospectID {
				return q.current
			}
		}
	}
	for _, e := range q.pending {
		for _, pid := range jobProspects(e.job) {
			if pid == prospectID {
				return e.job
			}
		}
	}
	return nil
}

func (q *Queue) pushRecentLocked(job *model.EnhancementJob) {
	q.recent = append(q.recent, job)
	if n := q.recentHistory; n > 0 && len(q.recent) > n {
		q.recent = q.recent[len(q.recent)-n:]
	}
}

func (q *Queue) signalLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// publishPositionsLocked broadcasts fresh queue positions for every pending
// individual job's prospect. No-op without a bus or subscribers.
func (q *Queue) publishPositionsLocked() {
	if q.bus == nil {
		return
	}
	for i, e := range q.pending {
		if e.job.Kind != model.JobKindIndividual {
			continue
		}
		q.bus.Publish(events.New(events.TypeQueuePositionUpdate, e.job.ProspectID, map[string]any{
			"queue_item_id": e.job.ID,
			"position":      i + 1,
			"queue_size":    len(q.pending),
		}))
	}
}

func jobProspects(job *model.EnhancementJob) []string {
	if job.Kind == model.JobKindBulk {
		return job.ProspectIDs
	}
	return []string{job.ProspectID}
}

// Status is the poll-based snapshot of the whole queue, the reconciliation
// source of truth for clients without an active stream.
type Status struct {
	WorkerRunning   bool            `json:"worker_running"`
	CurrentItem     *ItemSummary    `json:"current_item,omitempty"`
	QueueSize       int             `json:"queue_size"`
	PendingItems    []PendingItem   `json:"pending_items"`
	RecentCompleted []CompletedItem `json:"recent_completed"`
}

// ItemSummary identifies the job being processed.
type ItemSummary struct {
	ID            string          `json:"id"`
	Kind          model.JobKind   `json:"kind"`
	ProspectID    string          `json:"prospect_id,omitempty"`
	ProspectCount int             `json:"prospect_count,omitempty"`
	Status        model.JobStatus `json:"status"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
}

// PendingItem is one queued job with its dequeue position.
type PendingItem struct {
	ID            string          `json:"id"`
	Kind          model.JobKind   `json:"kind"`
	Priority      int             `json:"priority"`
	ProspectID    string          `json:"prospect_id,omitempty"`
	ProspectCount int             `json:"prospect_count,omitempty"`
	Position      int             `json:"position"`
	Status        model.JobStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CompletedItem is one terminal job from the recent ring.
type CompletedItem struct {
	ID           string          `json:"id"`
	Kind         model.JobKind   `json:"kind"`
	ProspectID   string          `json:"prospect_id,omitempty"`
	Status       model.JobStatus `json:"status"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Snapshot returns a read-only projection of the queue. It copies under the
// lock and never blocks the worker beyond that copy.
func (q *Queue) Snapshot() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		WorkerRunning: q.workerRunning,
		QueueSize:     len(q.pending),
		PendingItems:  make([]PendingItem, 0, len(q.pending)),
	}

	if q.current != nil {
		st.CurrentItem = &ItemSummary{
			ID:            q.current.ID,
			Kind:          q.current.Kind,
			ProspectID:    q.current.ProspectID,
			ProspectCount: q.current.ProspectCount(),
			Status:        q.current.Status,
			StartedAt:     q.current.StartedAt,
		}
	}

	for i, e := range q.pending {
		st.PendingItems = append(st.PendingItems, PendingItem{
			ID:            e.job.ID,
			Kind:          e.job.Kind,
			Priority:      e.job.Priority,
			ProspectID:    e.job.ProspectID,
			ProspectCount: e.job.ProspectCount(),
			Position:      i + 1,
			Status:        e.job.Status,
			CreatedAt:     e.job.CreatedAt,
		})
	}

	// Newest first, mirroring how the dashboard lists recent outcomes.
	for i := len(q.recent) - 1; i >= 0; i-- {
		j := q.recent[i]
		st.RecentCompleted = append(st.RecentCompleted, CompletedItem{
			ID:           j.ID,
			Kind:         j.Kind,
			ProspectID:   j.ProspectID,
			Status:       j.Status,
			CompletedAt:  j.CompletedAt,
			ErrorMessage: j.Error,
		})
	}

	return st
}
