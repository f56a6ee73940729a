package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/synbench/internal/config"
	"github.com/ekisa-team/synbench/internal/engine"
	"github.com/ekisa-team/synbench/internal/engine/fake"
	"github.com/ekisa-team/synbench/internal/envvar"
)

func useFakeEngine(t *testing.T, scores ...float32) {
	t.Helper()
	orig := newEngine
	newEngine = func(*config.Config, config.NamedBackend) engine.Engine {
		return fake.New(scores...)
	}
	t.Cleanup(func() { newEngine = orig })
}

// writeWorkspace creates models/, images/ and a config naming them.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	models, images := filepath.Join(dir, "models"), filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(models, 0o755))
	require.NoError(t, os.Mkdir(images, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(models, "mobilenet.onnx"), []byte("graph"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))))
	require.NoError(t, os.WriteFile(filepath.Join(images, "cat.png"), buf.Bytes(), 0o644))

	cfg := fmt.Sprintf(`version: "1"
storage:
  models_dir: %s
  images_dir: %s
backends:
  native:
    type: native
  second:
    type: native
    order: 1
    label_offset: 2
`, models, images)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	code, out, _ := runCLIWithLogs(t, args...)
	return code, out
}

func runCLIWithLogs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out := runCLI(t)
	assert.Equal(t, -10, code)
	assert.Contains(t, out, "Usage: synbench")

	code, _ = runCLI(t, "m", "i")
	assert.Equal(t, -10, code)

	code, out = runCLI(t, "m", "i", "many")
	assert.Equal(t, -10, code)
	assert.Contains(t, out, "Invalid number of repeats")
}

func TestRunSuccess(t *testing.T) {
	useFakeEngine(t, 0.2, 0.7, 0.1)
	cfg := writeWorkspace(t)

	code, out := runCLI(t, "-config", cfg, "mobilenet.onnx", "cat.png", "3")

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "[native] Initializing the environment took")
	assert.Contains(t, out, "[second] Loading the model took")
	assert.Equal(t, 1, strings.Count(out, "cat.png: 2 (score: 0.7)"))
	assert.Equal(t, 1, strings.Count(out, "cat.png: 3 (score: 0.7)"))
	assert.Equal(t, 2, strings.Count(out, "Running the model 3 times took"))
	assert.Less(t, strings.Index(out, "[native]"), strings.Index(out, "[second]"))
}

func TestRunBackendFilter(t *testing.T) {
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, out := runCLI(t, "-config", cfg, "-backends", "second", "mobilenet.onnx", "cat.png", "0")

	assert.Equal(t, 0, code)
	assert.NotContains(t, out, "[native]")
	assert.Contains(t, out, "[second]")
}

func TestRunMissingImage(t *testing.T) {
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, out := runCLI(t, "-config", cfg, "mobilenet.onnx", "dog.png", "1")

	assert.Equal(t, -5, code)
	assert.NotContains(t, out, "(score:")
}

func TestRunMissingModel(t *testing.T) {
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, _ := runCLI(t, "-config", cfg, "resnet.onnx", "cat.png", "1")
	assert.Equal(t, -4, code)
}

func TestRunInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\nbackends:\n  x:\n    type: gpu\n"), 0o644))

	code, out := runCLI(t, "-config", path, "m", "i", "1")
	assert.Equal(t, -1, code)
	assert.Contains(t, out, "Error:")
}

func TestRunMissingStorage(t *testing.T) {
	useFakeEngine(t, 1)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("version: \"1\"\nstorage:\n  models_dir: %s\n  images_dir: %s\nbackends:\n  native:\n    type: native\n",
		filepath.Join(dir, "nope"), filepath.Join(dir, "nada"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	code, _ := runCLI(t, "-config", path, "m", "i", "1")
	assert.Equal(t, -1, code)
}

func TestRunUnknownBackendFilter(t *testing.T) {
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, _ := runCLI(t, "-config", cfg, "-backends", "ghost", "mobilenet.onnx", "cat.png", "1")
	assert.Equal(t, -1, code)
}

func TestRunVerboseLogsDebug(t *testing.T) {
	t.Setenv(envvar.SynbenchEnv, "production")
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, _, logs := runCLIWithLogs(t, "-config", cfg, "mobilenet.onnx", "cat.png", "0")
	assert.Equal(t, 0, code)
	assert.NotContains(t, logs, "Storage mounted")

	code, _, logs = runCLIWithLogs(t, "-v", "-config", cfg, "mobilenet.onnx", "cat.png", "0")
	assert.Equal(t, 0, code)
	assert.Contains(t, logs, "Storage mounted")
	assert.Contains(t, logs, `"guest":"/models"`)
}

func TestRunNoColor(t *testing.T) {
	t.Setenv(envvar.SynbenchEnv, "development")
	useFakeEngine(t, 1)
	cfg := writeWorkspace(t)

	code, _, logs := runCLIWithLogs(t, "-no-color", "-config", cfg, "mobilenet.onnx", "cat.png", "0")
	assert.Equal(t, 0, code)
	assert.Contains(t, logs, "Storage mounted")
	assert.NotContains(t, logs, "\x1b[")
}

func TestRunRepeatFailuresAreLogged(t *testing.T) {
	t.Setenv(envvar.SynbenchEnv, "production")
	orig := newEngine
	newEngine = func(*config.Config, config.NamedBackend) engine.Engine {
		e := fake.New(0.2, 0.7)
		e.RunErr = errors.New("device lost")
		e.RunErrAfter = 1
		return e
	}
	t.Cleanup(func() { newEngine = orig })
	cfg := writeWorkspace(t)

	code, out, logs := runCLIWithLogs(t, "-config", cfg, "-backends", "native", "mobilenet.onnx", "cat.png", "3")

	assert.Equal(t, 0, code)
	assert.Equal(t, 1, strings.Count(out, "cat.png: 2 (score: 0.7)"))
	assert.Equal(t, 3, strings.Count(logs, "Repeat failed"))
}
