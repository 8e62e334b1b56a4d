package reconcile

import (
	"errors"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/loader"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/plan"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

// Process exit codes, one per blocking error class.
const (
	ExitOK                = 0
	ExitError             = 1
	ExitLoadError         = 2
	ExitRemoteUnavailable = 3
	ExitCyclicDependency  = 4
	ExitOperationFailed   = 5
)

// ExitCode maps an error returned by a run to its process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		loadErr   *loader.LoadError
		remoteErr *loader.RemoteUnavailableError
		cycleErr  *plan.CyclicDependencyError
		opErr     *report.OperationError
	)
	switch {
	case errors.As(err, &loadErr):
		return ExitLoadError
	case errors.As(err, &remoteErr):
		return ExitRemoteUnavailable
	case errors.As(err, &cycleErr):
		return ExitCyclicDependency
	case errors.As(err, &opErr):
		return ExitOperationFailed
	}
	return ExitError
}
