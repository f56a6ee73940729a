package config

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// BackendType represents the execution strategy of a backend.
type BackendType string

const (
	// BackendTypeNative runs the pipeline in-process with ONNX Runtime.
	BackendTypeNative BackendType = "native"

	// BackendTypeGuest runs a WebAssembly guest module under wazero.
	BackendTypeGuest BackendType = "guest"

	// BackendTypeProcess runs an external driver program.
	BackendTypeProcess BackendType = "process"
)

// Config holds the main configuration for the application.
type Config struct {
	Version  string                   `json:"version"           yaml:"version"`
	Storage  StorageConfig            `json:"storage,omitempty" yaml:"storage,omitempty"`
	Runtime  RuntimeConfig            `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Backends map[string]BackendConfig `json:"backends"          yaml:"backends"`
	Bench    BenchConfig              `json:"bench,omitempty"   yaml:"bench,omitempty"`
}

// StorageConfig locates the model and image roots.
type StorageConfig struct {
	ModelsDir     string `json:"models_dir,omitempty"     yaml:"models_dir,omitempty"`
	ImagesDir     string `json:"images_dir,omitempty"     yaml:"images_dir,omitempty"`
	ModelsPattern string `json:"models_pattern,omitempty" yaml:"models_pattern,omitempty"`
	ImagesPattern string `json:"images_pattern,omitempty" yaml:"images_pattern,omitempty"`
}

// RuntimeConfig holds settings shared by every backend that uses ONNX Runtime.
type RuntimeConfig struct {
	ORTLibrary string `json:"ort_library,omitempty" yaml:"ort_library,omitempty"`
}

// BackendConfig holds configuration for a specific backend.
type BackendConfig struct {
	Type     BackendType `json:"type"               yaml:"type"`
	Order    int         `json:"order"              yaml:"order"`
	Disabled bool        `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// LabelOffset overrides bench.label_offset when set. Zero is a valid
	// offset.
	LabelOffset *int32 `json:"label_offset,omitempty" yaml:"label_offset,omitempty"`

	// Guest backends.
	Module              string `json:"module,omitempty"                yaml:"module,omitempty"`
	Cache               string `json:"cache,omitempty"                 yaml:"cache,omitempty"`
	CompilationCacheDir string `json:"compilation_cache_dir,omitempty" yaml:"compilation_cache_dir,omitempty"`
	InvalidateOnChange  bool   `json:"invalidate_on_change,omitempty"  yaml:"invalidate_on_change,omitempty"`

	// Process backends.
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty"    yaml:"args,omitempty"`
	Timeout string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Options contains backend-specific parameters.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// BenchConfig holds harness settings.
type BenchConfig struct {
	LabelOffset *int32 `json:"label_offset,omitempty" yaml:"label_offset,omitempty"`
}

// NamedBackend pairs a backend configuration with its name.
type NamedBackend struct {
	Name string
	BackendConfig
}

// EnabledBackends returns the enabled backends sorted by order, then name.
func (c *Config) EnabledBackends() []NamedBackend {
	out := make([]NamedBackend, 0, len(c.Backends))
	for name, b := range c.Backends {
		if b.Disabled {
			continue
		}
		out = append(out, NamedBackend{Name: name, BackendConfig: b})
	}

	slices.SortFunc(out, func(a, b NamedBackend) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// LabelOffsetFor returns the label offset a backend should use.
func (c *Config) LabelOffsetFor(b BackendConfig) int32 {
	if b.LabelOffset != nil {
		return *b.LabelOffset
	}
	if c.Bench.LabelOffset != nil {
		return *c.Bench.LabelOffset
	}
	return DefaultLabelOffset
}

// TimeoutDuration parses the process timeout; empty means zero.
func (b BackendConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", b.Timeout, err)
	}
	return d, nil
}
