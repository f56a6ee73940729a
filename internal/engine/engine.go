package engine

import (
	"context"

	"github.com/ekisa-team/synbench/internal/preprocess"
)

// Engine is the inference engine collaborator. It owns graph loading,
// operator execution and optimisation; synbench only hands it model bytes and
// preprocessed tensors.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// Init prepares the engine environment.
	Init(ctx context.Context) error

	// Load parses and optimises a model.
	Load(ctx context.Context, model []byte) (Session, error)

	// Close releases the environment.
	Close() error
}

// Session is one loaded model. Sessions are not safe for concurrent use.
type Session interface {
	// Run executes the model on input and returns the raw output scores.
	Run(ctx context.Context, input *preprocess.Tensor) ([]float32, error)

	// Close releases the session.
	Close() error
}
