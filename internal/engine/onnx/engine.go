package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/preprocess"
)

// Name is the engine identifier.
const Name = "onnxruntime"

// The ONNX Runtime environment is process-wide; engines share it and the last
// one to close destroys it.
var (
	envMu   sync.Mutex
	envRefs int
)

// Options configures sessions created by the engine.
type Options struct {
	// SharedLibraryPath points to the onnxruntime shared library. Empty uses
	// the platform default lookup.
	SharedLibraryPath string

	// OptimizationLevel is 0 (disabled) to 3 (all optimisations).
	OptimizationLevel int

	// IntraOpThreads and InterOpThreads are left to the runtime when zero.
	IntraOpThreads int
	InterOpThreads int
}

// DefaultOptions enables every graph optimisation.
func DefaultOptions() Options {
	return Options{OptimizationLevel: 3}
}

// Engine runs models in-process with ONNX Runtime.
type Engine struct {
	opts        Options
	mu          sync.Mutex
	initialized bool
}

// New creates an ONNX Runtime engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Name() string { return Name }

// Init initialises the shared ONNX Runtime environment.
func (e *Engine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fault.New(fault.SessionCreation, "initialize environment", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}

	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if e.opts.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(e.opts.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fault.New(fault.SessionCreation, "initialize environment", err)
		}
		slog.Debug("ONNX Runtime environment initialized", "version", ort.GetVersion())
	}

	envRefs++
	e.initialized = true
	return nil
}

// Load parses model and creates a session for its first input and output.
func (e *Engine) Load(ctx context.Context, model []byte) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.New(fault.ModelLoad, "load model", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fault.New(fault.ModelLoad, "inspect model", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fault.Errorf(fault.ModelLoad, "inspect model", "model declares %d inputs and %d outputs", len(inputs), len(outputs))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fault.New(fault.SessionCreation, "create session options", err)
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(optimizationLevel(e.opts.OptimizationLevel)); err != nil {
		return nil, fault.New(fault.Optimization, "set optimization level", err)
	}
	if e.opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(e.opts.IntraOpThreads); err != nil {
			return nil, fault.New(fault.ThreadConfig, "set intra-op threads", err)
		}
	}
	if e.opts.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(e.opts.InterOpThreads); err != nil {
			return nil, fault.New(fault.ThreadConfig, "set inter-op threads", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fault.New(fault.ModelLoad, "create session", err)
	}

	return &Session{
		session:     session,
		inputName:   inputs[0].Name,
		outputShape: concreteShape(outputs[0].Dimensions),
	}, nil
}

// Close drops this engine's reference to the shared environment.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	e.initialized = false

	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("onnx: failed to destroy environment: %w", err)
	}
	return nil
}

// Session is one ONNX Runtime session.
type Session struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputShape ort.Shape
}

// Run executes the session on input.
func (s *Session) Run(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.New(fault.ModelRun, "run model", err)
	}
	if s.session == nil {
		return nil, fault.New(fault.ModelRun, "run model", errors.New("session closed"))
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fault.New(fault.ImageConversion, "create input tensor", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](s.outputShape)
	if err != nil {
		return nil, fault.New(fault.TensorExtract, "create output tensor", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fault.New(fault.ModelRun, "run model", err)
	}

	data := out.GetData()
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// Close destroys the session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// optimizationLevel maps 0..3 onto the runtime's graph optimisation levels.
func optimizationLevel(level int) ort.GraphOptimizationLevel {
	switch {
	case level <= 0:
		return ort.GraphOptimizationLevelDisableAll
	case level == 1:
		return ort.GraphOptimizationLevelEnableBasic
	case level == 2:
		return ort.GraphOptimizationLevelEnableExtended
	default:
		return ort.GraphOptimizationLevelEnableAll
	}
}

// concreteShape replaces symbolic (negative) dimensions, such as a dynamic
// batch axis, with 1.
func concreteShape(dims ort.Shape) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.Session = (*Session)(nil)
