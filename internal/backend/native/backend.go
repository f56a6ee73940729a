// Package native runs the classification pipeline in-process on an
// engine.Engine, reading model and image bytes through the bridge view.
package native

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/pipeline"
)

// Option configures a Backend.
type Option func(*Backend)

// WithLabelOffset sets the label index of the first score.
func WithLabelOffset(offset int32) Option {
	return func(b *Backend) {
		b.opts.LabelOffset = offset
	}
}

// WithInputSize overrides the model input size.
func WithInputSize(width, height int) Option {
	return func(b *Backend) {
		b.opts.Width, b.opts.Height = width, height
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend implements backend.Backend on top of an in-process engine.
type Backend struct {
	name     string
	engine   engine.Engine
	files    fs.FS
	catalogs *catalog.Set
	opts     pipeline.Options
	logger   *slog.Logger

	ready   bool
	session engine.Session
	model   catalog.Handle
}

// New creates a native backend. files must expose the models and images
// roots the catalogs were built from.
func New(name string, eng engine.Engine, files fs.FS, catalogs *catalog.Set, opts ...Option) *Backend {
	b := &Backend{
		name:     name,
		engine:   eng,
		files:    files,
		catalogs: catalogs,
		opts:     pipeline.DefaultOptions(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("backend", name)
	return b
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return b.name
}

// Kind returns backend.KindNative.
func (b *Backend) Kind() backend.Kind {
	return backend.KindNative
}

// Setup initialises the engine environment.
func (b *Backend) Setup(ctx context.Context) error {
	if b.ready {
		return nil
	}
	if err := b.engine.Init(ctx); err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.SessionCreation, "initialize environment", err)
		}
		return err
	}
	b.ready = true
	b.logger.Debug("Engine initialized", "engine", b.engine.Name())
	return nil
}

// Load reads the model behind handle and creates a session for it.
func (b *Backend) Load(ctx context.Context, model catalog.Handle) error {
	if !b.ready {
		return fault.New(fault.SessionCreation, "load model", backend.ErrNotReady)
	}

	name, err := b.catalogs.Models.Reverse(model)
	if err != nil {
		return fault.New(fault.ModelLoad, "resolve model", err)
	}

	data, err := fs.ReadFile(b.files, name)
	if err != nil {
		return fault.New(fault.ModelLoad, "read model", err)
	}

	session, err := b.engine.Load(ctx, data)
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.ModelLoad, "load model", err)
		}
		return err
	}

	if b.session != nil {
		if err := b.session.Close(); err != nil {
			b.logger.Warn("Failed to close previous session", "error", err)
		}
	}
	b.session = session
	b.model = model

	b.logger.Debug("Model loaded", "model", name, "bytes", len(data))
	return nil
}

// Run classifies req.Image with the loaded model.
func (b *Backend) Run(ctx context.Context, req backend.Request) (*backend.Result, error) {
	if b.session == nil {
		return nil, fault.New(fault.ModelRun, "run", backend.ErrNotLoaded)
	}
	if req.Model != b.model {
		if err := b.Load(ctx, req.Model); err != nil {
			return nil, err
		}
	}

	image, err := b.catalogs.Images.Reverse(req.Image)
	if err != nil {
		return nil, fault.New(fault.ImageLoad, "resolve image", err)
	}

	res, err := pipeline.Classify(ctx, b.files, image, b.session, b.opts)
	if err != nil {
		return nil, err
	}

	return &backend.Result{Prediction: res.Prediction, Laps: res.Laps}, nil
}

// Close releases the session and the engine.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Close())
		b.session = nil
	}
	if b.ready {
		errs = append(errs, b.engine.Close())
		b.ready = false
	}
	return errors.Join(errs...)
}

var _ backend.Backend = (*Backend)(nil)
