package queue

import (
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-dash/internal/events"
	"github.com/sells-group/prospect-dash/internal/model"
)

func TestEnqueueReturnsPosition(t *testing.T) {
	q := New()

	pos, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, "tester"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, "tester"))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestEnqueueRejectsDuplicateProspect(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, "tester"))
	require.NoError(t, err)

	_, err = q.Enqueue(model.NewIndividualJob("p1", nil, true, "tester"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateJob))
}

func TestEnqueueRejectsProspectHeldByBulkJob(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewBulkJob([]string{"p1", "p2"}, nil, false, "tester"))
	require.NoError(t, err)

	_, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, "tester"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateJob))
}

func TestEnqueueRejectsProspectHeldByCurrentJob(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, "tester"))
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())

	// Still processing: a second job for p1 is a duplicate.
	_, err = q.Enqueue(model.NewIndividualJob("p1", nil, false, "tester"))
	assert.True(t, eris.Is(err, ErrDuplicateJob))
}

func TestEnqueueAfterTerminalSucceeds(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "tester")
	_, err := q.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())
	require.NoError(t, q.Complete(job.ID))

	// Terminal jobs release the prospect.
	_, err = q.Enqueue(model.NewIndividualJob("p1", nil, false, "tester"))
	assert.NoError(t, err)
}

func TestEnqueueQueueFull(t *testing.T) {
	q := New(WithMaxPending(2))

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, ""))
	require.NoError(t, err)
	_, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, ""))
	require.NoError(t, err)

	_, err = q.Enqueue(model.NewIndividualJob("p3", nil, false, ""))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrQueueFull))
}

func TestIndividualJobsOutrankBulk(t *testing.T) {
	q := New()

	bulk := model.NewBulkJob([]string{"b1", "b2"}, nil, false, "")
	_, err := q.Enqueue(bulk)
	require.NoError(t, err)

	ind := model.NewIndividualJob("p1", nil, false, "")
	pos, err := q.Enqueue(ind)
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "individual job jumps ahead of bulk")

	got := q.Dequeue()
	require.NotNil(t, got)
	assert.Equal(t, ind.ID, got.ID)
}

func TestFIFOWithinSamePriority(t *testing.T) {
	q := New()

	var ids []string
	for i := 0; i < 5; i++ {
		job := model.NewIndividualJob(fmt.Sprintf("p%d", i), nil, false, "")
		_, err := q.Enqueue(job)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	for _, want := range ids {
		got := q.Dequeue()
		require.NotNil(t, got)
		assert.Equal(t, want, got.ID)
		require.NoError(t, q.Complete(got.ID))
	}
}

func TestDequeueBlockedWhileProcessing(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, ""))
	require.NoError(t, err)
	_, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, ""))
	require.NoError(t, err)

	first := q.Dequeue()
	require.NotNil(t, first)
	assert.Equal(t, model.JobStatusProcessing, first.Status)

	// Single consumer: nothing else dequeues until the current job finishes.
	assert.Nil(t, q.Dequeue())

	require.NoError(t, q.Complete(first.ID))
	second := q.Dequeue()
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCancelPendingJob(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)

	assert.True(t, q.Cancel(job.ID))
	assert.Equal(t, model.JobStatusCancelled, job.Status)
	assert.Nil(t, q.Dequeue())

	// Cancelled jobs land in the recent ring.
	st := q.Snapshot()
	require.Len(t, st.RecentCompleted, 1)
	assert.Equal(t, model.JobStatusCancelled, st.RecentCompleted[0].Status)
}

func TestCancelProcessingJobRefused(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())

	assert.False(t, q.Cancel(job.ID))
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestCancelUnknownJobRefused(t *testing.T) {
	q := New()
	assert.False(t, q.Cancel("nope"))
}

func TestCancelTerminalJobRefused(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())
	require.NoError(t, q.Complete(job.ID))

	assert.False(t, q.Cancel(job.ID))
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestFailRecordsError(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())
	require.NoError(t, q.Fail(job.ID, eris.New("llm unreachable")))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "llm unreachable")

	st := q.Snapshot()
	require.Len(t, st.RecentCompleted, 1)
	assert.Contains(t, st.RecentCompleted[0].ErrorMessage, "llm unreachable")
}

func TestRecentRingEvictsOldest(t *testing.T) {
	q := New(WithRecentHistory(3))

	var ids []string
	for i := 0; i < 5; i++ {
		job := model.NewIndividualJob(fmt.Sprintf("p%d", i), nil, false, "")
		_, err := q.Enqueue(job)
		require.NoError(t, err)
		require.NotNil(t, q.Dequeue())
		require.NoError(t, q.Complete(job.ID))
		ids = append(ids, job.ID)
	}

	st := q.Snapshot()
	require.Len(t, st.RecentCompleted, 3)
	// Newest first: jobs 4, 3, 2 survive; 0 and 1 evicted.
	assert.Equal(t, ids[4], st.RecentCompleted[0].ID)
	assert.Equal(t, ids[3], st.RecentCompleted[1].ID)
	assert.Equal(t, ids[2], st.RecentCompleted[2].ID)
}

func TestSnapshotReflectsState(t *testing.T) {
	q := New()
	q.SetWorkerRunning(true)

	current := model.NewIndividualJob("p0", nil, false, "")
	_, err := q.Enqueue(current)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())

	pending := model.NewIndividualJob("p1", []model.FieldGroup{model.FieldGroupNAICS}, false, "")
	_, err = q.Enqueue(pending)
	require.NoError(t, err)

	st := q.Snapshot()
	assert.True(t, st.WorkerRunning)
	require.NotNil(t, st.CurrentItem)
	assert.Equal(t, current.ID, st.CurrentItem.ID)
	assert.Equal(t, model.JobStatusProcessing, st.CurrentItem.Status)
	assert.Equal(t, 1, st.QueueSize)
	require.Len(t, st.PendingItems, 1)
	assert.Equal(t, pending.ID, st.PendingItems[0].ID)
	assert.Equal(t, 1, st.PendingItems[0].Position)
}

func TestSnapshotIdempotentWithoutMutation(t *testing.T) {
	q := New()

	job := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())
	require.NoError(t, q.Complete(job.ID))
	_, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, ""))
	require.NoError(t, err)

	first := q.Snapshot()
	second := q.Snapshot()
	assert.Equal(t, first, second)
}

func TestPositionFor(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, ""))
	require.NoError(t, err)
	_, err = q.Enqueue(model.NewIndividualJob("p2", nil, false, ""))
	require.NoError(t, err)
	_, err = q.Enqueue(model.NewBulkJob([]string{"b1", "b2"}, nil, false, ""))
	require.NoError(t, err)

	assert.Equal(t, 1, q.PositionFor("p1"))
	assert.Equal(t, 2, q.PositionFor("p2"))
	assert.Equal(t, 3, q.PositionFor("b2"))
	assert.Equal(t, 0, q.PositionFor("ghost"))
}

func TestCancelPublishesFreshPositions(t *testing.T) {
	bus := events.NewBus()
	q := New(WithBus(bus))

	first := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(first)
	require.NoError(t, err)
	second := model.NewIndividualJob("p2", nil, false, "")
	_, err = q.Enqueue(second)
	require.NoError(t, err)

	sub := bus.Subscribe("p2")
	defer bus.Unsubscribe(sub)

	require.True(t, q.Cancel(first.ID))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.TypeQueuePositionUpdate, ev.Type)
		assert.Equal(t, second.ID, ev.Data["queue_item_id"])
		assert.Equal(t, 1, ev.Data["position"])
		assert.Equal(t, 1, ev.Data["queue_size"])
	default:
		t.Fatal("no position update published after cancel")
	}
}

func TestWakeSignalledOnEnqueue(t *testing.T) {
	q := New()

	_, err := q.Enqueue(model.NewIndividualJob("p1", nil, false, ""))
	require.NoError(t, err)

	select {
	case <-q.Wake():
	default:
		t.Fatal("wake channel not signalled")
	}
}

func TestGetJobAcrossStates(t *testing.T) {
	q := New()

	done := model.NewIndividualJob("p1", nil, false, "")
	_, err := q.Enqueue(done)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())
	require.NoError(t, q.Complete(done.ID))

	current := model.NewIndividualJob("p2", nil, false, "")
	_, err = q.Enqueue(current)
	require.NoError(t, err)
	require.NotNil(t, q.Dequeue())

	pending := model.NewIndividualJob("p3", nil, false, "")
	_, err = q.Enqueue(pending)
	require.NoError(t, err)

	assert.Equal(t, done, q.GetJob(done.ID))
	assert.Equal(t, current, q.GetJob(current.ID))
	assert.Equal(t, pending, q.GetJob(pending.ID))
	assert.Nil(t, q.GetJob("ghost"))
}
