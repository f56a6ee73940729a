package backend

import (
	"context"

	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/postprocess"
	"github.com/ekisa-team/synbench/internal/timing"
)

// Kind is the execution strategy of a backend.
type Kind string

const (
	KindNative  Kind = "native"
	KindGuest   Kind = "guest"
	KindProcess Kind = "process"
)

// Backend defines the core interface for all benchmark backends. Calls follow
// Setup, Load, any number of Run, then Close.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Kind returns the execution strategy.
	Kind() Kind

	// Setup prepares the execution environment.
	Setup(ctx context.Context) error

	// Load loads the model identified by a catalog handle.
	Load(ctx context.Context, model catalog.Handle) error

	// Run classifies one image with the loaded model.
	Run(ctx context.Context, req Request) (*Result, error)

	// Close releases every resource acquired since Setup.
	Close(ctx context.Context) error
}

// RepeatRunner is an optional interface for backends that repeat inference
// inside their own boundary instead of being called n times.
type RepeatRunner interface {
	Backend

	// RunRepeated runs req n times without per-phase output and returns the
	// last result.
	RunRepeated(ctx context.Context, req Request, n int) (*Result, error)
}

// Request identifies the inputs of one inference call.
type Request struct {
	Model catalog.Handle
	Image catalog.Handle

	// Verbose asks the backend to print its phase breakdown.
	Verbose bool
}

// Result is the outcome of one inference call.
type Result struct {
	Prediction postprocess.Prediction

	// Laps holds the phases the backend could observe. Backends that run
	// behind a process or sandbox boundary may leave it empty.
	Laps timing.Laps
}

// StreamChunk represents a single chunk of a driver's output stream.
type StreamChunk struct {
	// Data is the chunk content.
	Data []byte

	// Done indicates if this is the final chunk.
	Done bool

	// Error if something went wrong.
	Error error
}
