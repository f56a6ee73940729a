// Package guest runs a WebAssembly guest module under wazero. The guest sees
// only the bridge mounts and reaches the inference engine through the
// synbench_nn host module; its entry points are checked at link time.
package guest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/envvar"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/modcache"
	"github.com/ekisa-team/synbench/internal/postprocess"
)

// Mounts provides the guest file system configuration.
type Mounts interface {
	FSConfig() wazero.FSConfig
}

// Config holds the settings of one guest backend.
type Config struct {
	// ModulePath is the host path of the guest module.
	ModulePath string

	// CachePath defaults to modcache.CachePath(ModulePath).
	CachePath string

	// CompilationCacheDir holds wazero's compiled machine code across runs.
	// It defaults to CompilationCachePath(ModulePath).
	CompilationCacheDir string

	// InvalidateOnChange removes the cache file when the module changes.
	InvalidateOnChange bool

	// Patterns are exported to the guest so it catalogs the same files as
	// the host.
	Patterns catalog.Patterns
}

// Option configures a Backend.
type Option func(*Backend)

// WithLabelOffset sets the label offset exported to the guest as
// SYNBENCH_LABEL_OFFSET.
func WithLabelOffset(offset int32) Option {
	return func(b *Backend) {
		b.labelOffset = offset
	}
}

// WithOutput sets where the guest's stdout and stderr go.
func WithOutput(w io.Writer) Option {
	return func(b *Backend) {
		b.out = w
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend implements backend.Backend and backend.RepeatRunner.
type Backend struct {
	name   string
	cfg    Config
	engine engine.Engine
	mounts Mounts
	out    io.Writer
	logger *slog.Logger

	labelOffset int32

	runtime     wazero.Runtime
	compilation wazero.CompilationCache
	host        *host
	cache       *modcache.Cache[*compiledModule]
	invalidator *modcache.Invalidator

	compiled *compiledModule
	origin   modcache.Origin
	module   api.Module
	exports  exports
	model    catalog.Handle
}

// New creates a guest backend. eng serves the synbench_nn imports.
func New(name string, cfg Config, eng engine.Engine, mounts Mounts, opts ...Option) *Backend {
	if cfg.CachePath == "" && cfg.ModulePath != "" {
		cfg.CachePath = modcache.CachePath(cfg.ModulePath)
	}
	if cfg.CompilationCacheDir == "" && cfg.ModulePath != "" {
		cfg.CompilationCacheDir = CompilationCachePath(cfg.ModulePath)
	}

	b := &Backend{
		name:        name,
		cfg:         cfg,
		engine:      eng,
		mounts:      mounts,
		out:         io.Discard,
		logger:      slog.Default(),
		labelOffset: postprocess.DefaultLabelOffset,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("backend", name)
	return b
}

// CompilationCachePath returns the default compilation cache directory for a
// module: "<module>.wazero" next to it.
func CompilationCachePath(module string) string {
	return module + ".wazero"
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return b.name
}

// Kind returns backend.KindGuest.
func (b *Backend) Kind() backend.Kind {
	return backend.KindGuest
}

// Origin reports whether the module came from the cache or was compiled.
func (b *Backend) Origin() modcache.Origin {
	return b.origin
}

// Setup creates the runtime and instantiates WASI and the host module.
func (b *Backend) Setup(ctx context.Context) error {
	if b.runtime != nil {
		return nil
	}
	if b.cfg.ModulePath == "" {
		return fault.New(fault.SessionCreation, "setup", ErrNoModule)
	}

	if err := b.engine.Init(ctx); err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.SessionCreation, "initialize engine", err)
		}
		return err
	}

	// The cache entry only carries the module bytes; the machine code comes
	// back from this directory, so a cache hit skips compilation.
	cc, err := wazero.NewCompilationCacheWithDir(b.cfg.CompilationCacheDir)
	if err != nil {
		b.engine.Close()
		return fault.New(fault.SessionCreation, "open compilation cache", err)
	}
	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(cc)

	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		cc.Close(ctx)
		b.engine.Close()
		return fault.New(fault.SessionCreation, "instantiate wasi", err)
	}

	h := newHost(b.engine, b.logger)
	if _, err := h.instantiate(ctx, r); err != nil {
		r.Close(ctx)
		cc.Close(ctx)
		b.engine.Close()
		return fault.New(fault.SessionCreation, "instantiate host module", err)
	}

	if b.cfg.InvalidateOnChange {
		inv, err := modcache.Watch(b.cfg.ModulePath, b.cfg.CachePath)
		if err != nil {
			b.logger.Warn("Module cache invalidation disabled", "module", b.cfg.ModulePath, "error", err)
		} else {
			b.invalidator = inv
		}
	}

	b.runtime = r
	b.compilation = cc
	b.host = h
	b.cache = modcache.New(newCompiler(r), modcache.WithLogger(b.logger))
	return nil
}

// Load compiles or restores the guest module, links it and asks the guest to
// load model when it exports load_model.
func (b *Backend) Load(ctx context.Context, model catalog.Handle) error {
	if b.runtime == nil {
		return fault.New(fault.SessionCreation, "load", backend.ErrNotReady)
	}

	if b.module == nil {
		if err := b.instantiate(ctx); err != nil {
			return err
		}
	}

	if b.exports.loadModel {
		res, err := b.module.ExportedFunction(ExportLoadModel).Call(ctx, api.EncodeI32(int32(model)))
		if err != nil {
			return fault.New(fault.ModelLoad, ExportLoadModel, err)
		}
		if code := api.DecodeI32(res[0]); code < 0 {
			return fault.New(fault.FromCode(code), ExportLoadModel, fmt.Errorf("guest returned %d", code))
		}
	}

	b.model = model
	return nil
}

func (b *Backend) instantiate(ctx context.Context) error {
	compiled, origin, err := b.cache.LoadOrCompile(ctx, b.cfg.ModulePath, b.cfg.CachePath)
	if err != nil {
		return fault.New(fault.SessionCreation, "load module", err)
	}

	ex, err := link(compiled)
	if err != nil {
		compiled.Close(ctx)
		return fault.New(fault.SessionCreation, "link module", err)
	}

	out := newPrefixWriter(b.out, "["+b.name+"] ")
	mc := wazero.NewModuleConfig().
		WithName(b.name).
		WithArgs(b.name).
		WithEnv(envvar.SynbenchLabelOffset, strconv.Itoa(int(b.labelOffset))).
		WithEnv(envvar.SynbenchModelsPattern, b.cfg.Patterns.Models).
		WithEnv(envvar.SynbenchImagesPattern, b.cfg.Patterns.Images).
		WithFSConfig(b.mounts.FSConfig()).
		WithStdout(out).
		WithStderr(out).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions()
	if ex.initialize {
		mc = mc.WithStartFunctions(ExportInitialize)
	}

	mod, err := b.runtime.InstantiateModule(ctx, compiled.CompiledModule, mc)
	if err != nil {
		compiled.Close(ctx)
		return fault.New(fault.SessionCreation, "instantiate module", err)
	}

	b.compiled = compiled
	b.origin = origin
	b.module = mod
	b.exports = ex

	b.logger.Debug("Guest module ready", "module", b.cfg.ModulePath, "origin", origin)
	return nil
}

// Run performs one verbose inference, or one silent one when req.Verbose is
// false.
func (b *Backend) Run(ctx context.Context, req backend.Request) (*backend.Result, error) {
	repeats := uint32(1)
	if req.Verbose {
		repeats = 0
	}
	return b.call(ctx, req, repeats)
}

// RunRepeated lets the guest repeat inference n times and returns the final
// result.
func (b *Backend) RunRepeated(ctx context.Context, req backend.Request, n int) (*backend.Result, error) {
	if n < 1 {
		n = 1
	}
	return b.call(ctx, req, uint32(n))
}

func (b *Backend) call(ctx context.Context, req backend.Request, repeats uint32) (*backend.Result, error) {
	if b.module == nil {
		return nil, fault.New(fault.ModelRun, ExportRunInference, backend.ErrNotLoaded)
	}

	res, err := b.module.ExportedFunction(ExportRunInference).Call(ctx,
		api.EncodeI32(int32(req.Model)),
		api.EncodeI32(int32(req.Image)),
		api.EncodeU32(repeats),
	)
	if err != nil {
		return nil, fault.New(fault.ModelRun, ExportRunInference, err)
	}

	class := api.DecodeI32(res[0])
	if class < 0 {
		return nil, fault.New(fault.FromCode(class), ExportRunInference, fmt.Errorf("guest returned %d", class))
	}

	prediction := postprocess.Prediction{Class: class}
	if b.exports.lastScore {
		res, err := b.module.ExportedFunction(ExportLastScore).Call(ctx)
		if err != nil {
			return nil, fault.New(fault.TensorExtract, ExportLastScore, err)
		}
		prediction.Score = api.DecodeF32(res[0])
	}

	return &backend.Result{Prediction: prediction}, nil
}

// Close tears down the module, the runtime and the engine.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error

	if b.invalidator != nil {
		errs = append(errs, b.invalidator.Close())
		b.invalidator = nil
	}
	if b.runtime != nil {
		errs = append(errs, b.runtime.Close(ctx))
		errs = append(errs, b.compilation.Close(ctx))
		b.runtime = nil
		b.compilation = nil
		b.module = nil
		b.compiled = nil
		b.host.close()
		errs = append(errs, b.engine.Close())
	}

	return errors.Join(errs...)
}

var (
	_ backend.Backend      = (*Backend)(nil)
	_ backend.RepeatRunner = (*Backend)(nil)
)
