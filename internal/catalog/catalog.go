package catalog

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Handle is the integer stand-in for a resource name. Handles start at 1; zero
// is never issued.
type Handle int32

// Catalog maps the resource names found under one root to stable handles.
type Catalog struct {
	root    string
	names   []string
	handles map[string]Handle
}

// New creates an empty catalog for root.
func New(root string) *Catalog {
	return &Catalog{
		root:    strings.Trim(normalize(root), "/"),
		handles: make(map[string]Handle),
	}
}

// Scan builds a catalog from the regular files in fsys matching root/pattern.
// Handles are assigned in the order fs.Glob returns the matches. No match
// yields an empty catalog.
func Scan(fsys fs.FS, root, pattern string) (*Catalog, error) {
	c := New(root)

	matches, err := fs.Glob(fsys, path.Join(c.root, pattern))
	if err != nil {
		return nil, fmt.Errorf("catalog: invalid pattern %q: %w", pattern, err)
	}

	for _, name := range matches {
		info, err := fs.Stat(fsys, name)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		c.Add(name)
	}

	return c, nil
}

// Add inserts name and returns its handle. Adding a known name returns the
// existing handle.
func (c *Catalog) Add(name string) Handle {
	name = c.qualify(name)
	if h, ok := c.handles[name]; ok {
		return h
	}

	c.names = append(c.names, name)
	h := Handle(len(c.names))
	c.handles[name] = h
	return h
}

// Resolve returns the handle for name. A bare file name is looked up inside
// the catalog root.
func (c *Catalog) Resolve(name string) (Handle, error) {
	if h, ok := c.handles[c.qualify(name)]; ok {
		return h, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Reverse returns the name behind h.
func (c *Catalog) Reverse(h Handle) (string, error) {
	if h < 1 || int(h) > len(c.names) {
		return "", fmt.Errorf("%w: handle %d", ErrNotFound, h)
	}
	return c.names[h-1], nil
}

// Root returns the logical root the catalog was built for.
func (c *Catalog) Root() string {
	return c.root
}

// Len returns the number of catalogued resources.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Names returns the catalogued names in handle order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) qualify(name string) string {
	name = strings.TrimPrefix(normalize(name), "/")
	if c.root == "" || name == c.root || strings.HasPrefix(name, c.root+"/") {
		return name
	}
	return c.root + "/" + name
}

func normalize(name string) string {
	if name == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(name))
}
