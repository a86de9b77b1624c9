package queue

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-dash/internal/model"
)

// ErrDuplicateJob is returned by Enqueue when a non-terminal job already
// exists for the prospect. User-recoverable; surfaced as 409 Conflict.
var ErrDuplicateJob = eris.New("enhancement already queued for prospect")

// ErrQueueFull is returned by Enqueue when the pending queue has reached its
// configured cap.
var ErrQueueFull = eris.New("enhancement queue is full")

// ErrJobTimeout marks a job that exceeded the per-job wall-clock bound.
var ErrJobTimeout = eris.New("enhancement job exceeded processing timeout")

// ErrProspectGone marks a job whose prospect was deleted mid-processing.
// This is the system-level fault that fails a job outright.
var ErrProspectGone = eris.New("prospect no longer exists")

// StepError records one field group's failure within a job. Step errors
// never abort the job; the worker records them and continues.
type StepError struct {
	Group model.FieldGroup
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("enrichment step %s: %v", e.Group, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
