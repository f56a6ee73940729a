package fake

import (
	"context"
	"sync/atomic"

	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/preprocess"
)

// Engine is a configurable engine for contract tests. Every session returns a
// copy of Scores.
type Engine struct {
	Scores   []float32
	InitErr  error
	LoadErr  error
	RunErr   error
	CloseErr error

	// RunErrAfter fails every run after the first RunErrAfter successful ones
	// when RunErr is set and RunErrAfter > 0.
	RunErrAfter int64

	Inits  atomic.Int64
	Loads  atomic.Int64
	Runs   atomic.Int64
	Closed atomic.Bool

	LastModel []byte
	LastInput *preprocess.Tensor
}

// New returns an engine whose sessions produce scores.
func New(scores ...float32) *Engine {
	return &Engine{Scores: scores}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Init(ctx context.Context) error {
	e.Inits.Add(1)
	if e.InitErr != nil {
		return e.InitErr
	}
	return ctx.Err()
}

func (e *Engine) Load(ctx context.Context, model []byte) (engine.Session, error) {
	e.Loads.Add(1)
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	e.LastModel = append([]byte(nil), model...)
	return &Session{engine: e}, nil
}

func (e *Engine) Close() error {
	e.Closed.Store(true)
	return e.CloseErr
}

// Session is the fake engine's session.
type Session struct {
	engine *Engine
	closed bool
}

func (s *Session) Run(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	n := s.engine.Runs.Add(1)
	s.engine.LastInput = input
	if s.engine.RunErr != nil && n > s.engine.RunErrAfter {
		return nil, s.engine.RunErr
	}

	out := make([]float32, len(s.engine.Scores))
	copy(out, s.engine.Scores)
	return out, nil
}

func (s *Session) Close() error {
	s.closed = true
	return nil
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.Session = (*Session)(nil)
