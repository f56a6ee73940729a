// Package bench drives backends through a benchmark session: set up the
// environment, load the model, run one verbose inference and a number of
// silent repeats, then report the classification.
package bench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/timing"
)

// Plan describes one session.
type Plan struct {
	Model     catalog.Handle
	Image     catalog.Handle
	ImageName string
	Repeats   int
}

// Option configures a Harness.
type Option func(*Harness)

// WithOutput sets where benchmark lines are printed.
func WithOutput(w io.Writer) Option {
	return func(h *Harness) {
		h.out = w
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Harness runs benchmark sessions against backends.
type Harness struct {
	catalogs *catalog.Set
	out      io.Writer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a harness over catalogs.
func New(catalogs *catalog.Set, opts ...Option) *Harness {
	h := &Harness{
		catalogs: catalogs,
		out:      os.Stdout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunAll resolves the names, runs a session on every registered backend and
// returns 0 or the first failure code. Unknown names fail before any backend
// is touched.
func (h *Harness) RunAll(ctx context.Context, registry *backend.Registry, modelName, imageName string, repeats int) int {
	model, err := h.catalogs.Models.Resolve(modelName)
	if err != nil {
		fmt.Fprintf(h.out, "Model %q not found\n", modelName)
		h.logger.Error("Failed to resolve model", "model", modelName, "error", err)
		return int(fault.ModelLoad.Code())
	}

	image, err := h.catalogs.Images.Resolve(imageName)
	if err != nil {
		fmt.Fprintf(h.out, "Image %q not found\n", imageName)
		h.logger.Error("Failed to resolve image", "image", imageName, "error", err)
		return int(fault.ImageLoad.Code())
	}

	plan := Plan{Model: model, Image: image, ImageName: imageName, Repeats: repeats}

	code := 0
	for _, b := range registry.List() {
		rr, _ := registry.GetRepeatRunner(b.Name())

		report := h.session(ctx, b, rr, plan)
		if c := report.Code(); c != 0 && code == 0 {
			code = int(c)
		}
	}

	if err := registry.Close(ctx); err != nil {
		h.logger.Warn("Failed to close backends", "error", err)
	}
	return code
}

// Session runs one backend through the full benchmark lifecycle. Backends
// implementing backend.RepeatRunner repeat inside their own boundary.
func (h *Harness) Session(ctx context.Context, b backend.Backend, plan Plan) *Report {
	rr, _ := b.(backend.RepeatRunner)
	return h.session(ctx, b, rr, plan)
}

func (h *Harness) session(ctx context.Context, b backend.Backend, rr backend.RepeatRunner, plan Plan) *Report {
	report := &Report{Backend: b.Name(), Kind: b.Kind(), State: Uninitialized}
	prefix := "[" + b.Name() + "] "
	logger := h.logger.With("backend", b.Name())

	start := h.now()
	err := b.Setup(ctx)
	report.Setup = h.now().Sub(start)
	if err != nil {
		return h.fail(report, prefix, logger, "Setup", err)
	}
	report.State = EnvironmentReady
	fmt.Fprintf(h.out, "%s%s took %v\n", prefix, timing.PhaseEnvironment, report.Setup)

	start = h.now()
	err = b.Load(ctx, plan.Model)
	report.Load = h.now().Sub(start)
	fmt.Fprintf(h.out, "%s%s took %v\n", prefix, timing.PhaseLoad, report.Load)
	if err != nil {
		return h.fail(report, prefix, logger, "Load", err)
	}
	report.State = ModelLoaded

	req := backend.Request{Model: plan.Model, Image: plan.Image, Verbose: true}
	first, err := b.Run(ctx, req)
	if err != nil {
		report.Err = err
		logger.Error("First run failed", "error", err)
	} else {
		report.First = first
		first.Laps.Print(h.out, prefix)
	}
	report.State = FirstRunComplete

	req.Verbose = false
	report.Repeats = plan.Repeats
	start = h.now()
	report.RepeatFailures = h.repeat(ctx, b, rr, req, plan.Repeats, logger)
	report.RepeatsTook = h.now().Sub(start)
	report.State = RepeatsComplete

	fmt.Fprintf(h.out, "\n%sRunning the model %d times took %v\n\n", prefix, plan.Repeats, report.RepeatsTook)
	if report.RepeatFailures > 0 {
		logger.Warn("Repeated runs failed", "failures", report.RepeatFailures, "repeats", plan.Repeats)
	}

	if report.Err != nil {
		report.State = Failed
		fmt.Fprintf(h.out, "%sError: %s\n", prefix, fault.KindOf(report.Err))
		return report
	}

	fmt.Fprintf(h.out, "%s: %d (score: %v)\n", plan.ImageName, first.Prediction.Class, first.Prediction.Score)
	report.State = Reported
	return report
}

// repeat runs the silent repetitions and returns the number of failed calls.
// rr, when not nil, runs all of them in one call.
func (h *Harness) repeat(ctx context.Context, b backend.Backend, rr backend.RepeatRunner, req backend.Request, n int, logger *slog.Logger) int {
	if n <= 0 {
		return 0
	}

	if rr != nil {
		if _, err := rr.RunRepeated(ctx, req, n); err != nil {
			logger.Warn("Repeated run failed", "repeats", n, "error", err, "code", fault.Code(err))
			return 1
		}
		return 0
	}

	failures := 0
	for i := 0; i < n; i++ {
		if _, err := b.Run(ctx, req); err != nil {
			failures++
			logger.Warn("Repeat failed", "iteration", i+1, "error", err, "code", fault.Code(err))
		}
	}
	return failures
}

func (h *Harness) fail(report *Report, prefix string, logger *slog.Logger, step string, err error) *Report {
	report.Err = err
	report.State = Failed
	logger.Error(step+" failed", "error", err, "code", fault.Code(err))
	fmt.Fprintf(h.out, "%sError: %s\n", prefix, fault.KindOf(err))
	return report
}
