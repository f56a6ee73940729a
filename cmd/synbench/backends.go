package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/backend/guest"
	"github.com/ekisa-team/synbench/internal/backend/native"
	"github.com/ekisa-team/synbench/internal/backend/process"
	"github.com/ekisa-team/synbench/internal/bridge"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/config"
	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/engine/onnx"
	"github.com/ekisa-team/synbench/internal/mapsafe"
	"github.com/ekisa-team/synbench/internal/preprocess"
)

// newEngine creates the inference engine for a backend.
var newEngine = func(cfg *config.Config, b config.NamedBackend) engine.Engine {
	return onnx.New(onnx.Options{
		SharedLibraryPath: cfg.Runtime.ORTLibrary,
		OptimizationLevel: mapsafe.Get(b.Options, "optimization_level", 3),
		IntraOpThreads:    mapsafe.Get(b.Options, "intra_op_threads", 0),
		InterOpThreads:    mapsafe.Get(b.Options, "inter_op_threads", 0),
	})
}

// buildRegistry creates the enabled backends, keeping only those named in
// only when it is not empty.
func buildRegistry(cfg *config.Config, only []string, br *bridge.Bridge, catalogs *catalog.Set, out io.Writer, logger *slog.Logger) (*backend.Registry, error) {
	reg := backend.NewRegistry()

	for _, b := range cfg.EnabledBackends() {
		if len(only) > 0 && !slices.Contains(only, b.Name) {
			continue
		}

		created, err := newBackend(cfg, b, br, catalogs, out, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(created); err != nil {
			return nil, err
		}
		logger.Debug("Backend registered", "backend", b.Name, "type", b.Type)
	}

	if reg.Len() == 0 {
		return nil, fmt.Errorf("no backend selected")
	}
	for _, name := range only {
		if !slices.Contains(reg.Names(), name) {
			return nil, fmt.Errorf("backend %q is not configured or is disabled", name)
		}
	}
	return reg, nil
}

func newBackend(cfg *config.Config, b config.NamedBackend, br *bridge.Bridge, catalogs *catalog.Set, out io.Writer, logger *slog.Logger) (backend.Backend, error) {
	offset := cfg.LabelOffsetFor(b.BackendConfig)

	switch b.Type {
	case config.BackendTypeNative:
		return native.New(b.Name, newEngine(cfg, b), br.FS(), catalogs,
			native.WithLabelOffset(offset),
			native.WithInputSize(
				mapsafe.Get(b.Options, "input_width", preprocess.DefaultWidth),
				mapsafe.Get(b.Options, "input_height", preprocess.DefaultHeight),
			),
			native.WithLogger(logger),
		), nil

	case config.BackendTypeGuest:
		return guest.New(b.Name, guest.Config{
			ModulePath:          b.Module,
			CachePath:           b.Cache,
			CompilationCacheDir: b.CompilationCacheDir,
			InvalidateOnChange:  b.InvalidateOnChange,
			Patterns: catalog.Patterns{
				Models: cfg.Storage.ModelsPattern,
				Images: cfg.Storage.ImagesPattern,
			},
		}, newEngine(cfg, b), br,
			guest.WithLabelOffset(offset),
			guest.WithOutput(out),
			guest.WithLogger(logger),
		), nil

	case config.BackendTypeProcess:
		timeout, err := b.TimeoutDuration()
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		return process.New(b.Name, process.Config{
			Command: b.Command,
			Args:    b.Args,
			Timeout: timeout,
		}, catalogs,
			process.WithOutput(out),
			process.WithLogger(logger),
		), nil

	default:
		return nil, fmt.Errorf("backend %s: unknown type %q", b.Name, b.Type)
	}
}
