package bench

import (
	"time"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/fault"
)

// Report is the outcome of one backend session.
type Report struct {
	Backend string
	Kind    backend.Kind
	State   State

	Setup time.Duration
	Load  time.Duration

	// First is the result of the verbose run; it is the reported
	// classification.
	First *backend.Result

	Repeats        int
	RepeatsTook    time.Duration
	RepeatFailures int

	// Err is the fatal Setup/Load error or the first run's error.
	Err error
}

// OK reports whether the session produced a classification.
func (r *Report) OK() bool {
	return r.Err == nil && r.First != nil
}

// Code returns 0 on success or the failure code.
func (r *Report) Code() int32 {
	if r.OK() {
		return 0
	}
	if r.Err != nil {
		return fault.Code(r.Err)
	}
	return fault.NoResult.Code()
}
