package onnx

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ekisa-team/synbench/internal/envvar"
	"github.com/ekisa-team/synbench/internal/fault"
)

func TestConcreteShape(t *testing.T) {
	assert.Equal(t, ort.Shape{1, 1000}, concreteShape(ort.Shape{-1, 1000}))
	assert.Equal(t, ort.Shape{1, 3, 224, 224}, concreteShape(ort.Shape{1, 3, 224, 224}))
	assert.Empty(t, concreteShape(nil))
}

func TestOptimizationLevel(t *testing.T) {
	cases := []struct {
		level int
		want  ort.GraphOptimizationLevel
	}{
		{-1, ort.GraphOptimizationLevelDisableAll},
		{0, ort.GraphOptimizationLevelDisableAll},
		{1, ort.GraphOptimizationLevelEnableBasic},
		{2, ort.GraphOptimizationLevelEnableExtended},
		{3, ort.GraphOptimizationLevelEnableAll},
		{9, ort.GraphOptimizationLevelEnableAll},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, optimizationLevel(tc.level), "level %d", tc.level)
	}
}

func TestInitCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(DefaultOptions()).Init(ctx)
	require.Error(t, err)
	assert.Equal(t, fault.SessionCreation, fault.KindOf(err))
}

// TestLoadRejectsGarbage needs the onnxruntime shared library; it runs only
// when SYNBENCH_ORT_LIBRARY points to it.
func TestLoadRejectsGarbage(t *testing.T) {
	lib := os.Getenv(envvar.SynbenchORTLibrary)
	if lib == "" {
		t.Skipf("%s not set", envvar.SynbenchORTLibrary)
	}

	e := New(Options{SharedLibraryPath: lib, OptimizationLevel: 3})
	require.NoError(t, e.Init(context.Background()))
	defer e.Close()

	_, err := e.Load(context.Background(), []byte("not a model"))
	require.Error(t, err)
	assert.Equal(t, fault.ModelLoad, fault.KindOf(err))
}
