package process

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/synbench/internal/backend"
	"github.com/ekisa-team/synbench/internal/catalog"
	"github.com/ekisa-team/synbench/internal/fault"
	"github.com/ekisa-team/synbench/internal/timing"
)

func testCatalogs(t *testing.T) *catalog.Set {
	t.Helper()
	set, err := catalog.Load(fstest.MapFS{
		"models/mobilenet.onnx": {Data: []byte("m")},
		"images/cat.jpg":        {Data: []byte("i")},
	}, catalog.DefaultPatterns())
	require.NoError(t, err)
	return set
}

// writeDriver writes a shell driver that echoes its arguments and exits with
// status.
func writeDriver(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell drivers need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	path := filepath.Join(t.TempDir(), "driver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newBackend(t *testing.T, script string, out *bytes.Buffer) *Backend {
	t.Helper()
	b := New("tract", Config{Command: script, Timeout: 10 * time.Second}, testCatalogs(t), WithOutput(out))
	ctx := context.Background()
	require.NoError(t, b.Setup(ctx))
	require.NoError(t, b.Load(ctx, 1))
	return b
}

func TestBackendParsesResult(t *testing.T) {
	script := writeDriver(t, `
echo "Loading the image took 1.5ms"
echo "note: $1 $2 $3"
echo "$2: 284 (score: 0.87)"
`)
	var out bytes.Buffer
	b := newBackend(t, script, &out)

	res, err := b.Run(context.Background(), backend.Request{Model: 1, Image: 1, Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, int32(284), res.Prediction.Class)
	assert.InDelta(t, 0.87, res.Prediction.Score, 1e-6)

	took, ok := res.Laps.Get(timing.PhaseImageLoad)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Microsecond, took)

	assert.Equal(t, "[tract] note: models/mobilenet.onnx images/cat.jpg 0\n", out.String())
}

func TestBackendRunRepeatedPassesCountAndIsSilent(t *testing.T) {
	script := writeDriver(t, `
echo "chatter"
echo "$2: $3 (score: 1)"
`)
	var out bytes.Buffer
	b := newBackend(t, script, &out)

	res, err := b.RunRepeated(context.Background(), backend.Request{Model: 1, Image: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), res.Prediction.Class)
	assert.Empty(t, res.Laps)
	assert.Empty(t, out.String())
}

func TestBackendMapsNegativeExitStatus(t *testing.T) {
	// -5 (ImageLoad) as an 8-bit exit status.
	script := writeDriver(t, `
echo "Error: ImageLoad" >&2
exit 251
`)
	b := newBackend(t, script, new(bytes.Buffer))

	_, err := b.Run(context.Background(), backend.Request{Model: 1, Image: 1})
	require.Error(t, err)
	assert.Equal(t, fault.ImageLoad, fault.KindOf(err))
	assert.Contains(t, err.Error(), "Error: ImageLoad")
}

func TestBackendUnknownExitStatusIsModelRun(t *testing.T) {
	script := writeDriver(t, "exit 3")
	b := newBackend(t, script, new(bytes.Buffer))

	_, err := b.Run(context.Background(), backend.Request{Model: 1, Image: 1})
	assert.Equal(t, fault.ModelRun, fault.KindOf(err))
}

func TestBackendNoResultLine(t *testing.T) {
	script := writeDriver(t, `echo "nothing useful"`)
	b := newBackend(t, script, new(bytes.Buffer))

	_, err := b.Run(context.Background(), backend.Request{Model: 1, Image: 1})
	assert.Equal(t, fault.NoResult, fault.KindOf(err))
}

func TestBackendUnknownImage(t *testing.T) {
	script := writeDriver(t, `exit 0`)
	b := newBackend(t, script, new(bytes.Buffer))

	_, err := b.Run(context.Background(), backend.Request{Model: 1, Image: 9})
	assert.Equal(t, fault.ImageLoad, fault.KindOf(err))
}

func TestBackendMissingDriver(t *testing.T) {
	b := New("tract", Config{Command: "/no/such/driver"}, testCatalogs(t))

	err := b.Setup(context.Background())
	assert.Equal(t, fault.SessionCreation, fault.KindOf(err))
}

func TestBackendLoadUnknownModel(t *testing.T) {
	script := writeDriver(t, `exit 0`)
	b := New("tract", Config{Command: script}, testCatalogs(t))
	require.NoError(t, b.Setup(context.Background()))

	err := b.Load(context.Background(), 7)
	assert.Equal(t, fault.ModelLoad, fault.KindOf(err))
}

func TestParseResult(t *testing.T) {
	res, ok := parseResult("images/a b.jpg: -3 (score: 1e-3)")
	require.True(t, ok)
	assert.Equal(t, int32(-3), res.Prediction.Class)
	assert.InDelta(t, 0.001, res.Prediction.Score, 1e-9)

	_, ok = parseResult("Running the model 5 times took 1s")
	assert.False(t, ok)
}

func TestParseLap(t *testing.T) {
	lap, ok := parseLap("Running the inference took 12.5µs")
	require.True(t, ok)
	assert.Equal(t, timing.PhaseExecution, lap.Phase)
	assert.Equal(t, 12500*time.Nanosecond, lap.Took)

	_, ok = parseLap("Running the inference took forever")
	assert.False(t, ok)
}

func TestParseLapIgnoresNonCallPhases(t *testing.T) {
	for _, line := range []string{
		"Running the model 3 times took 1s",
		"Initializing the environment took 2ms",
		"Loading the model took 40ms",
		"Warm-up took 5ms",
	} {
		_, ok := parseLap(line)
		assert.False(t, ok, line)
	}

	for _, phase := range []string{timing.PhaseImageLoad, timing.PhaseExecution, timing.PhaseExtraction} {
		lap, ok := parseLap(phase + " took 3ms")
		require.True(t, ok, phase)
		assert.Equal(t, phase, lap.Phase)
		assert.Equal(t, 3*time.Millisecond, lap.Took)
	}
}
