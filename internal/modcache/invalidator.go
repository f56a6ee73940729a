package modcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of writes into one invalidation.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator removes a cache file when its source module is rewritten.
type Invalidator struct {
	source   string
	cache    string
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	removed atomic.Uint32
}

// Watch starts watching source and removes cache after each change.
func Watch(source, cache string) (*Invalidator, error) {
	return watchWithDebounce(source, cache, DefaultDebounce)
}

func watchWithDebounce(source, cache string, debounce time.Duration) (*Invalidator, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("modcache: failed to create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file are seen too.
	if err := watcher.Add(filepath.Dir(source)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("modcache: failed to watch %s: %w", source, err)
	}

	inv := &Invalidator{
		source:   filepath.Clean(source),
		cache:    cache,
		debounce: debounce,
		watcher:  watcher,
		done:     make(chan struct{}),
	}

	inv.wg.Add(1)
	go inv.watch()

	return inv, nil
}

func (inv *Invalidator) watch() {
	defer inv.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-inv.done:
			return

		case event, ok := <-inv.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != inv.source {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(inv.debounce, inv.invalidate)

		case err, ok := <-inv.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Module watcher error", "source", inv.source, "error", err)
		}
	}
}

func (inv *Invalidator) invalidate() {
	err := os.Remove(inv.cache)
	switch {
	case err == nil:
		count := inv.removed.Add(1)
		slog.Info("Module changed, cache removed", "source", inv.source, "cache", inv.cache, "count", count)
	case errors.Is(err, fs.ErrNotExist):
	default:
		slog.Error("Failed to remove module cache", "cache", inv.cache, "error", err)
	}
}

// Removed returns how many times the cache file was deleted.
func (inv *Invalidator) Removed() uint32 {
	return inv.removed.Load()
}

// Close stops watching.
func (inv *Invalidator) Close() error {
	select {
	case <-inv.done:
		return nil
	default:
	}
	close(inv.done)
	err := inv.watcher.Close()
	inv.wg.Wait()
	return err
}
