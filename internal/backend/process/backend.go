// Package process benchmarks an external driver program that follows the
// "<program> <model> <image> <repeats>" convention and prints
// "<image>: <class> (score: <score>)" on success.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/postprocess"
	"github.com/ekisa-team/synbench/internal/timing"
)

// DefaultTimeout bounds one driver invocation.
const DefaultTimeout = 10 * time.Minute

var (
	resultLine = regexp.MustCompile(`^(.+): (-?\d+) \(score: (.+)\)$`)
	// Only the per-call phases. Driver setup and summary lines are not laps.
	lapLine = regexp.MustCompile(`^(` + strings.Join([]string{
		regexp.QuoteMeta(timing.PhaseImageLoad),
		regexp.QuoteMeta(timing.PhaseExecution),
		regexp.QuoteMeta(timing.PhaseExtraction),
	}, "|") + `) took (\S+)$`)
)

// Config holds the settings of one process backend.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithOutput sets where driver output is echoed in verbose runs.
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
	name     string
	cfg      Config
	catalogs *catalog.Set
	out      io.Writer
	logger   *slog.Logger

	executor *backend.Executor
	model    string
}

// New creates a process backend.
func New(name string, cfg Config, catalogs *catalog.Set, opts ...Option) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	b := &Backend{
		name:     name,
		cfg:      cfg,
		catalogs: catalogs,
		out:      io.Discard,
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

// Kind returns backend.KindProcess.
func (b *Backend) Kind() backend.Kind {
	return backend.KindProcess
}

// Setup resolves the driver binary.
func (b *Backend) Setup(ctx context.Context) error {
	if b.executor != nil {
		return nil
	}
	executor, err := backend.NewExecutor(b.cfg.Command, b.cfg.Timeout)
	if err != nil {
		return fault.New(fault.SessionCreation, "resolve driver", err)
	}
	b.executor = executor
	return nil
}

// Load records the model name; the driver loads it on every invocation.
func (b *Backend) Load(ctx context.Context, model catalog.Handle) error {
	if b.executor == nil {
		return fault.New(fault.SessionCreation, "load", backend.ErrNotReady)
	}

	name, err := b.catalogs.Models.Reverse(model)
	if err != nil {
		return fault.New(fault.ModelLoad, "resolve model", err)
	}
	b.model = name
	return nil
}

// Run invokes the driver for a single inference.
func (b *Backend) Run(ctx context.Context, req backend.Request) (*backend.Result, error) {
	return b.invoke(ctx, req, 0, req.Verbose)
}

// RunRepeated lets the driver repeat inference n times. Its output is not
// echoed.
func (b *Backend) RunRepeated(ctx context.Context, req backend.Request, n int) (*backend.Result, error) {
	if n < 1 {
		n = 1
	}
	return b.invoke(ctx, req, n, false)
}

func (b *Backend) invoke(ctx context.Context, req backend.Request, repeats int, verbose bool) (*backend.Result, error) {
	if b.executor == nil || b.model == "" {
		return nil, fault.New(fault.ModelRun, "run", backend.ErrNotLoaded)
	}

	model := b.model
	if req.Model != 0 {
		name, err := b.catalogs.Models.Reverse(req.Model)
		if err != nil {
			return nil, fault.New(fault.ModelLoad, "resolve model", err)
		}
		model = name
	}
	image, err := b.catalogs.Images.Reverse(req.Image)
	if err != nil {
		return nil, fault.New(fault.ImageLoad, "resolve image", err)
	}

	args := append(append([]string(nil), b.cfg.Args...), model, image, strconv.Itoa(repeats))
	b.logger.Debug("Running driver", "command", b.executor.BinaryPath(), "args", args)

	ch, err := b.executor.Stream(ctx, args, nil)
	if err != nil {
		return nil, fault.New(fault.SessionCreation, "start driver", err)
	}

	var (
		result *backend.Result
		laps   timing.Laps
		exit   error
	)
	for chunk := range ch {
		if chunk.Done {
			exit = chunk.Error
			continue
		}

		line := strings.TrimRight(string(chunk.Data), "\r\n")
		if res, ok := parseResult(line); ok {
			result = res
			continue
		}
		if lap, ok := parseLap(line); ok {
			laps = append(laps, lap)
			continue
		}
		if verbose {
			fmt.Fprintf(b.out, "[%s] %s\n", b.name, line)
		}
	}

	if exit != nil {
		return nil, exitFault(exit)
	}
	if result == nil {
		return nil, fault.New(fault.NoResult, "parse driver output", postprocess.ErrNoResult)
	}
	if verbose {
		result.Laps = laps
	}
	return result, nil
}

// Close has nothing to release; the driver exits after every call.
func (b *Backend) Close(ctx context.Context) error {
	b.executor = nil
	return nil
}

func parseResult(line string) (*backend.Result, bool) {
	m := resultLine.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	class, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return nil, false
	}
	score, err := strconv.ParseFloat(m[3], 32)
	if err != nil {
		return nil, false
	}

	return &backend.Result{
		Prediction: postprocess.Prediction{Score: float32(score), Class: int32(class)},
	}, true
}

// parseLap reads a "<phase> took <duration>" line.
func parseLap(line string) (timing.Lap, bool) {
	m := lapLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return timing.Lap{}, false
	}
	d, err := time.ParseDuration(m[2])
	if err != nil {
		return timing.Lap{}, false
	}
	return timing.Lap{Phase: m[1], Took: d}, true
}

// exitFault maps a driver's exit status back to a fault kind. Negative codes
// arrive as their low byte, so statuses above 128 are shifted back.
func exitFault(err error) error {
	status, ok := backend.ExitStatus(err)
	if !ok {
		return fault.New(fault.ModelRun, "driver", err)
	}

	code := int32(status)
	if status > 128 {
		code = int32(status - 256)
	}

	kind := fault.FromCode(code)
	if kind == fault.Unknown {
		kind = fault.ModelRun
	}
	return fault.New(kind, "driver", fmt.Errorf("exit status %d: %w", status, err))
}

var (
	_ backend.Backend      = (*Backend)(nil)
	_ backend.RepeatRunner = (*Backend)(nil)
)
