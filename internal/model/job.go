package model

import (
	"time"

	"github.com/google/uuid"
)

// JobKind distinguishes single-prospect jobs from bulk batches.
type JobKind string

const (
	JobKindIndividual JobKind = "individual"
	JobKindBulk       JobKind = "bulk"
)

// JobStatus represents the lifecycle state of an enhancement job.
//
// Legal transitions: pending → processing → {completed, failed},
// or pending → cancelled. Nothing else.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal returns true for completed, failed and cancelled.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Dequeue priorities: lower dequeues first. Individual jobs always outrank
// bulk batches; within the same kind the queue is FIFO by enqueue order.
const (
	PriorityIndividual = 10
	PriorityBulk       = 50
)

// EnhancementJob is one unit of enqueued enhancement work.
type EnhancementJob struct {
	ID          string       `json:"id"`
	Kind        JobKind      `json:"kind"`
	ProspectID  string       `json:"prospect_id,omitempty"`  // individual
	ProspectIDs []string     `json:"prospect_ids,omitempty"` // bulk
	FieldGroups []FieldGroup `json:"field_groups"`
	ForceRedo   bool         `json:"force_redo"`
	Priority    int          `json:"priority"`
	Status      JobStatus    `json:"status"`
	RequestedBy string       `json:"requested_by,omitempty"`
	Error       string       `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProspectCount returns the number of prospects the job covers.
func (j *EnhancementJob) ProspectCount() int {
	if j.Kind == JobKindBulk {
		return len(j.ProspectIDs)
	}
	return 1
}

// NewIndividualJob creates a pending job for one prospect. Passing no field
// groups requests all four.
func NewIndividualJob(prospectID string, groups []FieldGroup, forceRedo bool, requestedBy string) *EnhancementJob {
	return &EnhancementJob{
		ID:          uuid.New().String(),
		Kind:        JobKindIndividual,
		ProspectID:  prospectID,
		FieldGroups: normalizeGroups(groups),
		ForceRedo:   forceRedo,
		Priority:    PriorityIndividual,
		Status:      JobStatusPending,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewBulkJob creates a pending bulk job over a set of prospects.
func NewBulkJob(prospectIDs []string, groups []FieldGroup, forceRedo bool, requestedBy string) *EnhancementJob {
	return &EnhancementJob{
		ID:          uuid.New().String(),
		Kind:        JobKindBulk,
		ProspectIDs: prospectIDs,
		FieldGroups: normalizeGroups(groups),
		ForceRedo:   forceRedo,
		Priority:    PriorityBulk,
		Status:      JobStatusPending,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
	}
}

// normalizeGroups defaults to all four groups in canonical order, and
// reorders any explicit subset into canonical order.
func normalizeGroups(groups []FieldGroup) []FieldGroup {
	if len(groups) == 0 {
		out := make([]FieldGroup, len(CanonicalFieldGroups))
		copy(out, CanonicalFieldGroups)
		return out
	}
	requested := make(map[FieldGroup]bool, len(groups))
	for _, g := range groups {
		requested[g] = true
	}
	var out []FieldGroup
	for _, g := range CanonicalFieldGroups {
		if requested[g] {
			out = append(out, g)
		}
	}
	return out
}

// Start marks the job processing.
func (j *EnhancementJob) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
}

// Complete marks the job completed.
func (j *EnhancementJob) Complete() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
}

// Fail marks the job failed with an error message.
func (j *EnhancementJob) Fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = &now
}

// Cancel marks a pending job cancelled.
func (j *EnhancementJob) Cancel() {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
}
