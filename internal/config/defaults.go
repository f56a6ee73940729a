package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultLabelOffset numbers the first output score as label 1.
const DefaultLabelOffset int32 = 1

// Offset returns a pointer to a label offset.
func Offset(v int32) *int32 {
	return &v
}

// DefaultConfigPath returns the default path for the synbench config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "synbench", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "synbench")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "synbench")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "synbench")
		}
		return filepath.Join(home, ".config", "synbench")
	}
}

// DefaultModelsPath returns the default models directory.
func DefaultModelsPath() string {
	return "models"
}

// DefaultImagesPath returns the default images directory.
func DefaultImagesPath() string {
	return "images"
}

// DefaultCompilationCachePath returns the directory for wazero's compilation
// cache.
func DefaultCompilationCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "synbench", "wazero")
	}
	return filepath.Join(dir, "synbench", "wazero")
}

// Default returns the configuration used when no config file exists: a
// single native backend over ./models and ./images.
func Default() *Config {
	return &Config{
		Version: "1",
		Storage: StorageConfig{
			ModelsDir: DefaultModelsPath(),
			ImagesDir: DefaultImagesPath(),
		},
		Backends: map[string]BackendConfig{
			"native": {Type: BackendTypeNative},
		},
		Bench: BenchConfig{LabelOffset: Offset(DefaultLabelOffset)},
	}
}
