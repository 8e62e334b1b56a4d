package report

import (
	"fmt"
	"io"
	"strings"
)

// FailureEntry describes one failed operation in a summary.
type FailureEntry struct {
	Operation string       `json:"operation"`
	Class     FailureClass `json:"class"`
	Error     string       `json:"error"`
}

// Summary aggregates a result. Success is true only when nothing failed.
type Summary struct {
	RunID     string         `json:"runId"`
	Total     int            `json:"total"`
	Applied   int            `json:"applied"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Preserved int            `json:"preserved"`
	Failures  []FailureEntry `json:"failures,omitempty"`
	Success   bool           `json:"success"`

	firstErr error
}

// Summarize counts outcomes by status and collects failures.
func Summarize(r *Result) Summary {
	s := Summary{
		RunID:     r.RunID,
		Total:     len(r.Outcomes),
		Preserved: len(r.Preserved),
	}

	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusApplied:
			s.Applied++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
			s.Failures = append(s.Failures, FailureEntry{
				Operation: o.Operation.String(),
				Class:     FailureClass(o.Reason),
				Error:     o.Error,
			})
			if s.firstErr == nil {
				s.firstErr = o.Err
			}
		}
	}
	// Preserved entities count as skipped deletions.
	s.Skipped += s.Preserved

	s.Success = s.Failed == 0
	return s
}

// Err returns the first operation failure, or nil when the run succeeded.
func (s Summary) Err() error {
	if s.Success {
		return nil
	}
	return s.firstErr
}

// WriteText renders the result as a table followed by the summary line.
func WriteText(w io.Writer, r *Result) error {
	s := Summarize(r)

	if len(r.Outcomes) == 0 && len(r.Preserved) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to do: remote state matches definitions.")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-8s  %-50s  %s\n", "STATUS", "OPERATION", "DETAIL")
	fmt.Fprintf(&b, "%-8s  %-50s  %s\n", strings.Repeat("-", 8), strings.Repeat("-", 50), strings.Repeat("-", 30))
	for _, o := range r.Outcomes {
		detail := o.Reason
		if o.Error != "" {
			detail = fmt.Sprintf("%s: %s", o.Reason, o.Error)
		}
		if o.Implicit {
			detail = strings.TrimSpace("implicit " + detail)
		}
		fmt.Fprintf(&b, "%-8s  %-50s  %s\n", o.Status, o.Operation.String(), detail)
	}
	for _, ref := range r.Preserved {
		fmt.Fprintf(&b, "%-8s  %-50s  %s\n", StatusSkipped, "delete "+ref.String(), ReasonUntracked)
	}

	fmt.Fprintf(&b, "\n%d applied, %d skipped, %d failed", s.Applied, s.Skipped, s.Failed)
	if s.Preserved > 0 {
		fmt.Fprintf(&b, " (%d untracked preserved)", s.Preserved)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
