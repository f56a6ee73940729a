// Package modcache keeps compiled modules next to their sources so later runs
// skip compilation. Entries are keyed by file name only: a cache file is used
// whenever it deserialises, even if the source changed after it was written.
package modcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Suffix is appended to a module path to form its cache path.
const Suffix = ".SERIALIZED"

// CachePath returns the cache file used for source.
func CachePath(source string) string {
	return source + Suffix
}

// Origin tells where a module came from.
type Origin int

const (
	FromCache Origin = iota
	Compiled
)

func (o Origin) String() string {
	if o == FromCache {
		return "cache"
	}
	return "compiled"
}

// Compiler turns module source into a runtime artifact T and back.
type Compiler[T any] interface {
	Compile(ctx context.Context, source []byte) (T, error)
	Serialize(module T) ([]byte, error)
	Deserialize(ctx context.Context, data []byte) (T, error)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Cache loads compiled modules, compiling on a miss.
type Cache[T any] struct {
	compiler Compiler[T]
	logger   *slog.Logger

	hits     atomic.Int64
	compiles atomic.Int64
}

// New creates a cache around compiler.
func New[T any](compiler Compiler[T], opts ...Option) *Cache[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{compiler: compiler, logger: o.logger}
}

// LoadOrCompile deserialises cachePath when possible. Otherwise it compiles
// sourcePath and rewrites cachePath. A cache write failure is logged only.
func (c *Cache[T]) LoadOrCompile(ctx context.Context, sourcePath, cachePath string) (T, Origin, error) {
	if data, err := os.ReadFile(cachePath); err == nil {
		module, err := c.compiler.Deserialize(ctx, data)
		if err == nil {
			c.hits.Add(1)
			c.logger.Debug("Module loaded from cache", "cache", cachePath)
			return module, FromCache, nil
		}
		c.logger.Warn("Ignoring unusable module cache", "cache", cachePath, "error", err)
	}

	var zero T

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return zero, Compiled, fmt.Errorf("modcache: failed to read module: %w", err)
	}

	module, err := c.compiler.Compile(ctx, source)
	if err != nil {
		return zero, Compiled, fmt.Errorf("modcache: failed to compile module: %w", err)
	}
	c.compiles.Add(1)

	data, err := c.compiler.Serialize(module)
	if err != nil {
		c.logger.Warn("Failed to serialize module", "source", sourcePath, "error", err)
		return module, Compiled, nil
	}
	if err := writeFile(cachePath, data); err != nil {
		c.logger.Warn("Failed to write module cache", "cache", cachePath, "error", err)
		return module, Compiled, nil
	}

	c.logger.Debug("Module compiled and cached", "source", sourcePath, "cache", cachePath)
	return module, Compiled, nil
}

// Hits returns how many loads were served from a cache file.
func (c *Cache[T]) Hits() int64 {
	return c.hits.Load()
}

// Compiles returns how many loads compiled the source.
func (c *Cache[T]) Compiles() int64 {
	return c.compiles.Load()
}

// writeFile replaces path through a temporary file in the same directory so a
// concurrent reader never sees a partial entry.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
