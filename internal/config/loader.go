package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/synbench/internal/envvar"
	"github.com/ekisa-team/synbench/internal/xfs"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "synbench.v1.schema.json"

// LoadAndValidate loads and validates the configuration. An empty schemaPath
// uses the embedded schema.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates and decodes YAML config data.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: config validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	config.applyDefaults()
	config.applyEnv()
	return &config, nil
}

// Load returns the configuration at path, or Default with environment
// overrides when path does not exist.
func Load(path, schemaPath string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadAndValidate(path, schemaPath)
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath == "" {
		return jsonschema.CompileString(schemaURL, schemaJSON)
	}
	return jsonschema.Compile(schemaPath)
}

func (c *Config) applyDefaults() {
	if c.Storage.ModelsDir == "" {
		c.Storage.ModelsDir = DefaultModelsPath()
	}
	if c.Storage.ImagesDir == "" {
		c.Storage.ImagesDir = DefaultImagesPath()
	}
	if c.Bench.LabelOffset == nil {
		c.Bench.LabelOffset = Offset(DefaultLabelOffset)
	}
	for name, b := range c.Backends {
		if b.Type == BackendTypeGuest && b.CompilationCacheDir == "" {
			b.CompilationCacheDir = DefaultCompilationCachePath()
			c.Backends[name] = b
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envvar.SynbenchModelsPath); v != "" {
		c.Storage.ModelsDir = v
	}
	if v := os.Getenv(envvar.SynbenchImagesPath); v != "" {
		c.Storage.ImagesDir = v
	}
	if v := os.Getenv(envvar.SynbenchORTLibrary); v != "" {
		c.Runtime.ORTLibrary = v
	}

	c.Storage.ModelsDir = xfs.ExpandTilde(c.Storage.ModelsDir)
	c.Storage.ImagesDir = xfs.ExpandTilde(c.Storage.ImagesDir)
	c.Runtime.ORTLibrary = xfs.ExpandTilde(c.Runtime.ORTLibrary)
	for name, b := range c.Backends {
		b.Module = xfs.ExpandTilde(b.Module)
		b.Cache = xfs.ExpandTilde(b.Cache)
		b.CompilationCacheDir = xfs.ExpandTilde(b.CompilationCacheDir)
		b.Command = xfs.ExpandTilde(b.Command)
		c.Backends[name] = b
	}
}
