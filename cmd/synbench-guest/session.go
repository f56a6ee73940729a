//go:build wasip1

package main

import (
	"context"
	"errors"
	"unsafe"

	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/preprocess"
)

// outputCapacity matches the number of scores the host may write back.
const outputCapacity = 4000

//go:wasmimport synbench_nn load
func hostLoad(ptr unsafe.Pointer, size uint32) int32

//go:wasmimport synbench_nn compute
func hostCompute(graph int32, in unsafe.Pointer, height, width uint32, out unsafe.Pointer, outCap uint32) int32

//go:wasmimport synbench_nn unload
func hostUnload(graph int32) int32

// session is a graph held by the host engine.
type session struct {
	graph  int32
	scores []float32
}

func load(model []byte) (*session, error) {
	if len(model) == 0 {
		return nil, fault.New(fault.ModelLoad, "load graph", errors.New("empty model"))
	}

	graph := hostLoad(unsafe.Pointer(&model[0]), uint32(len(model)))
	if graph < 0 {
		return nil, fault.Errorf(fault.FromCode(graph), "load graph", "host returned %d", graph)
	}
	return &session{graph: graph, scores: make([]float32, outputCapacity)}, nil
}

func (s *session) Run(ctx context.Context, input *preprocess.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.New(fault.ModelRun, "compute", err)
	}

	n := hostCompute(s.graph,
		unsafe.Pointer(&input.Data[0]), uint32(input.Height()), uint32(input.Width()),
		unsafe.Pointer(&s.scores[0]), uint32(len(s.scores)))
	if n < 0 {
		return nil, fault.Errorf(fault.FromCode(n), "compute", "host returned %d", n)
	}

	out := make([]float32, n)
	copy(out, s.scores[:n])
	return out, nil
}

func (s *session) Close() error {
	hostUnload(s.graph)
	return nil
}

var _ engine.Session = (*session)(nil)
