// Package fault defines the closed set of failure kinds shared by every backend
// and the numeric codes they map to. Codes are stable across backends so that a
// harness, a guest module and an external driver all agree on them.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies one failure point of the benchmark pipeline.
type Kind int32

const (
	Unknown Kind = iota
	SessionCreation
	Optimization
	ThreadConfig
	ModelLoad
	ImageLoad
	ImageConversion
	ModelRun
	TensorExtract
	NoResult
	MissingArgument
)

var kindNames = map[Kind]string{
	Unknown:         "Unknown",
	SessionCreation: "SessionCreation",
	Optimization:    "Optimization",
	ThreadConfig:    "ThreadConfig",
	ModelLoad:       "ModelLoad",
	ImageLoad:       "ImageLoad",
	ImageConversion: "ImageConversion",
	ModelRun:        "ModelRun",
	TensorExtract:   "TensorExtract",
	NoResult:        "NoResult",
	MissingArgument: "MissingArgument",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// Code returns the negative exit code for the kind. Unknown maps to -1 so that
// it is never mistaken for a class index.
func (k Kind) Code() int32 {
	if k <= Unknown || k > MissingArgument {
		return -1
	}
	return -int32(k)
}

// FromCode maps a negative code back to its kind. Non-negative codes and codes
// outside the enumeration return Unknown.
func FromCode(code int32) Kind {
	if code >= 0 || code < -int32(MissingArgument) {
		return Unknown
	}
	return Kind(-code)
}

// Error is a failure tagged with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kind-tagged error from a format string.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Code returns the exit code for err; nil maps to 0.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	return KindOf(err).Code()
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
