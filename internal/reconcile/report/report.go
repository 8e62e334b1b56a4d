// Package report records per-operation outcomes of a reconciliation run and
// aggregates them into a summary.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/op"
)

// Status is the outcome kind of a single operation
type Status string

const (
	StatusApplied Status = "applied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip reasons
const (
	ReasonDependencyFailed = "dependency-failed"
	ReasonCancelled        = "cancelled"
	ReasonDryRun           = "dry-run"
	ReasonUntracked        = "untracked"
)

// FailureClass classifies a failed operation.
type FailureClass string

const (
	// FailureTransient means retries were exhausted on timeouts or 5xx responses.
	FailureTransient FailureClass = "transient"
	// FailureAmbiguous means a non-idempotent call may or may not have taken effect.
	FailureAmbiguous FailureClass = "ambiguous"
	// FailureRejected means the remote refused the call.
	FailureRejected FailureClass = "rejected"
)

// OperationError is the terminal error of a failed operation.
type OperationError struct {
	Operation string
	Class     FailureClass
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Operation, e.Class, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Outcome is the recorded result of one planned operation.
type Outcome struct {
	Operation op.Operation  `json:"operation"`
	Status    Status        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	// Implicit marks a tag or credential that no definition declares.
	Implicit  bool          `json:"implicit,omitempty"`

	Err error `json:"-"`
}

// Applied builds the outcome of a successful operation.
func Applied(o op.Operation, attempts int, d time.Duration) Outcome {
	return Outcome{Operation: o, Status: StatusApplied, Attempts: attempts, Duration: d, Implicit: entity.IsImplicit(o.Desired)}
}

// Skipped builds the outcome of an operation that was never attempted.
func Skipped(o op.Operation, reason string) Outcome {
	return Outcome{Operation: o, Status: StatusSkipped, Reason: reason, Implicit: entity.IsImplicit(o.Desired)}
}

// Failed builds the outcome of an operation that failed terminally.
func Failed(o op.Operation, class FailureClass, err error, attempts int, d time.Duration) Outcome {
	opErr := &OperationError{Operation: o.String(), Class: class, Err: err}
	return Outcome{
		Operation: o,
		Status:    StatusFailed,
		Reason:    string(class),
		Error:     err.Error(),
		Attempts:  attempts,
		Duration:  d,
		Implicit:  entity.IsImplicit(o.Desired),
		Err:       opErr,
	}
}

// Result holds every outcome of a run, in plan order.
type Result struct {
	RunID      string       `json:"runId"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Outcomes   []Outcome    `json:"outcomes"`
	Preserved  []entity.Ref `json:"preserved,omitempty"`
}

// NewResult starts a result for a run over n operations.
func NewResult(n int, preserved []entity.Ref) *Result {
	return &Result{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, n),
		Preserved: append([]entity.Ref(nil), preserved...),
	}
}
