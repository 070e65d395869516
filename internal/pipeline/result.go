package pipeline

import (
	"time"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// PipelineResult is the outcome of one Process call.
type PipelineResult struct {
	Ref           string
	Status        constants.Status
	ReceiptID     string
	FailureReason constants.FailureReason
	// Attempts counts external calls made (analyzer and store).
	Attempts int
	// Stage is the last working stage entered before the execution finished.
	Stage    constants.Stage
	Receipt  *entity.CanonicalReceipt
	Degraded bool
	Err      error
	Duration time.Duration
}

func (r PipelineResult) Succeeded() bool { return r.Status == constants.StatusSucceeded }

// Execution is the mutable state of a single Process call.
type Execution struct {
	Ref           string
	ReceiptID     string
	Stage         constants.Stage
	Attempts      int
	LastErrorKind string
	Degraded      bool
}

func (e *Execution) succeed(r entity.CanonicalReceipt) PipelineResult {
	return PipelineResult{
		Ref:       e.Ref,
		Status:    constants.StatusSucceeded,
		ReceiptID: e.ReceiptID,
		Attempts:  e.Attempts,
		Stage:     e.Stage,
		Receipt:   &r,
		Degraded:  e.Degraded,
	}
}

func (e *Execution) fail(reason constants.FailureReason, err error) PipelineResult {
	return PipelineResult{
		Ref:           e.Ref,
		Status:        constants.StatusFailed,
		ReceiptID:     e.ReceiptID,
		FailureReason: reason,
		Attempts:      e.Attempts,
		Stage:         e.Stage,
		Degraded:      e.Degraded,
		Err:           err,
	}
}
