package guest

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/preprocess"
)

// HostModule is the import module guests use to reach the inference engine.
const HostModule = "synbench_nn"

// OutputCapacity is the number of scores a guest reserves for one compute.
const OutputCapacity = 4000

// host serves the synbench_nn imports. Graphs are sessions of the host
// engine, addressed by small integer ids.
type host struct {
	engine engine.Engine
	logger *slog.Logger

	mu     sync.Mutex
	graphs map[int32]engine.Session
	next   int32
}

func newHost(eng engine.Engine, logger *slog.Logger) *host {
	return &host{engine: eng, logger: logger, graphs: make(map[int32]engine.Session)}
}

func (h *host) instantiate(ctx context.Context, r wazero.Runtime) (api.Closer, error) {
	return r.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().WithFunc(h.load).Export("load").
		NewFunctionBuilder().WithFunc(h.compute).Export("compute").
		NewFunctionBuilder().WithFunc(h.unload).Export("unload").
		Instantiate(ctx)
}

// load builds a graph from the model bytes at ptr and returns its id, or a
// negative fault code.
func (h *host) load(ctx context.Context, m api.Module, ptr, length uint32) int32 {
	data, ok := m.Memory().Read(ptr, length)
	if !ok {
		return h.fail("load", fault.Errorf(fault.ModelLoad, "read model", "out of range %d+%d", ptr, length))
	}

	// The view aliases guest memory; the engine must own its copy.
	model := append([]byte(nil), data...)
	session, err := h.engine.Load(ctx, model)
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.ModelLoad, "load graph", err)
		}
		return h.fail("load", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.graphs[h.next] = session
	return h.next
}

// compute runs graph on the [1,3,height,width] float32 tensor at inPtr and
// writes at most outCap scores to outPtr. It returns the number written.
func (h *host) compute(ctx context.Context, m api.Module, graph int32, inPtr, height, width, outPtr, outCap uint32) int32 {
	session, ok := h.session(graph)
	if !ok {
		return h.fail("compute", fault.Errorf(fault.ModelRun, "compute", "unknown graph %d", graph))
	}

	// The input must fit in guest memory before anything is allocated for it.
	size := uint64(preprocess.Channels) * uint64(width) * uint64(height) * 4
	if size == 0 || size > uint64(m.Memory().Size()) {
		return h.fail("compute", fault.Errorf(fault.ImageConversion, "read input", "%dx%d input does not fit guest memory", width, height))
	}
	raw, ok := m.Memory().Read(inPtr, uint32(size))
	if !ok {
		return h.fail("compute", fault.Errorf(fault.ImageConversion, "read input", "out of range %d+%d", inPtr, size))
	}

	input, err := preprocess.NewTensor(int(width), int(height))
	if err != nil {
		return h.fail("compute", err)
	}
	for i := range input.Data {
		input.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	scores, err := session.Run(ctx, input)
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.ModelRun, "compute", err)
		}
		return h.fail("compute", err)
	}
	if len(scores) > int(outCap) {
		return h.fail("compute", fault.Errorf(fault.TensorExtract, "write output", "%d scores exceed capacity %d", len(scores), outCap))
	}

	out := make([]byte, len(scores)*4)
	for i, s := range scores {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	if !m.Memory().Write(outPtr, out) {
		return h.fail("compute", fault.Errorf(fault.TensorExtract, "write output", "out of range %d", outPtr))
	}

	return int32(len(scores))
}

// unload releases graph.
func (h *host) unload(_ context.Context, graph int32) int32 {
	h.mu.Lock()
	session, ok := h.graphs[graph]
	delete(h.graphs, graph)
	h.mu.Unlock()

	if !ok {
		return 0
	}
	if err := session.Close(); err != nil {
		h.logger.Warn("Failed to close guest graph", "graph", graph, "error", err)
	}
	return 0
}

func (h *host) session(graph int32) (engine.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.graphs[graph]
	return s, ok
}

func (h *host) fail(call string, err error) int32 {
	h.logger.Debug("Host call failed", "call", fmt.Sprintf("%s.%s", HostModule, call), "error", err)
	return fault.Code(err)
}

// close releases every graph still held.
func (h *host) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.graphs {
		if err := s.Close(); err != nil {
			h.logger.Warn("Failed to close guest graph", "graph", id, "error", err)
		}
	}
	clear(h.graphs)
}

// graphCount returns how many graphs are loaded.
func (h *host) graphCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.graphs)
}
