// Package bridge grants a sandboxed guest read access to a fixed set of host
// directories. Each directory is opened once as an os.Root, so neither the guest
// nor host code reading through the bridge can reach a path outside of it.
package bridge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/tetratelabs/wazero"
)

// Mount declares one host directory and the name it is exposed under.
type Mount struct {
	HostDir   string
	GuestPath string
}

type mount struct {
	guest string
	host  string
	root  *os.Root
}

// Bridge is the set of pre-opened, read-only directories handed to a guest.
type Bridge struct {
	mounts []mount
}

// Open pre-opens every declared mount. A missing directory fails the whole
// bridge.
func Open(mounts ...Mount) (*Bridge, error) {
	if len(mounts) == 0 {
		return nil, ErrNoMounts
	}

	b := &Bridge{}
	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		guest := strings.Trim(path.Clean("/"+m.GuestPath), "/")
		if guest == "" || strings.Contains(guest, "/") {
			b.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidGuestPath, m.GuestPath)
		}
		if seen[guest] {
			b.Close()
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMount, guest)
		}
		seen[guest] = true

		root, err := os.OpenRoot(m.HostDir)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("bridge: failed to open %s for %q: %w", m.HostDir, guest, err)
		}
		b.mounts = append(b.mounts, mount{guest: guest, host: m.HostDir, root: root})
	}

	return b, nil
}

// FS returns a read-only view where each mount appears as a top-level
// directory, e.g. "models/mobilenetv2-10.onnx".
func (b *Bridge) FS() fs.FS {
	return bridgeFS{b: b}
}

// FSConfig returns the guest file system configuration: every mount is
// attached read-only at "/<guest path>" and nothing else is visible.
func (b *Bridge) FSConfig() wazero.FSConfig {
	cfg := wazero.NewFSConfig()
	for _, m := range b.mounts {
		cfg = cfg.WithFSMount(m.root.FS(), "/"+m.guest)
	}
	return cfg
}

// GuestPaths returns the declared guest paths in mount order.
func (b *Bridge) GuestPaths() []string {
	out := make([]string, 0, len(b.mounts))
	for _, m := range b.mounts {
		out = append(out, m.guest)
	}
	return out
}

// HostDir returns the host directory behind a guest path.
func (b *Bridge) HostDir(guest string) (string, bool) {
	for _, m := range b.mounts {
		if m.guest == guest {
			return m.host, true
		}
	}
	return "", false
}

// Close releases the pre-opened directories.
func (b *Bridge) Close() error {
	var errs []error
	for _, m := range b.mounts {
		if err := m.root.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.mounts = nil
	return errors.Join(errs...)
}

type bridgeFS struct {
	b *Bridge
}

func (f bridgeFS) Open(name string) (fs.File, error) {
	sub, rest, err := f.route("open", name)
	if err != nil {
		return nil, err
	}
	return sub.Open(rest)
}

func (f bridgeFS) ReadFile(name string) ([]byte, error) {
	sub, rest, err := f.route("read", name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(sub, rest)
}

func (f bridgeFS) Stat(name string) (fs.FileInfo, error) {
	sub, rest, err := f.route("stat", name)
	if err != nil {
		return nil, err
	}
	return fs.Stat(sub, rest)
}

func (f bridgeFS) route(op, name string) (fs.FS, string, error) {
	if !fs.ValidPath(name) || name == "." {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: fs.ErrPermission}
	}

	head, rest, _ := strings.Cut(name, "/")
	if rest == "" {
		rest = "."
	}
	for _, m := range f.b.mounts {
		if m.guest == head {
			return m.root.FS(), rest, nil
		}
	}

	return nil, "", &fs.PathError{Op: op, Path: name, Err: fs.ErrPermission}
}
