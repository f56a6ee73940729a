package catalog

import (
	"io/fs"
)

// Logical roots shared by the host and the guest.
const (
	ModelsRoot = "models"
	ImagesRoot = "images"
)

// Patterns selects which files of each root are catalogued.
type Patterns struct {
	Models string
	Images string
}

// DefaultPatterns returns the patterns used when none are configured.
func DefaultPatterns() Patterns {
	return Patterns{Models: "*.onnx", Images: "*.*"}
}

// Set holds the model and image catalogs of one process.
type Set struct {
	Models *Catalog
	Images *Catalog
}

// Load scans both roots of fsys.
func Load(fsys fs.FS, patterns Patterns) (*Set, error) {
	defaults := DefaultPatterns()
	if patterns.Models == "" {
		patterns.Models = defaults.Models
	}
	if patterns.Images == "" {
		patterns.Images = defaults.Images
	}

	models, err := Scan(fsys, ModelsRoot, patterns.Models)
	if err != nil {
		return nil, err
	}

	images, err := Scan(fsys, ImagesRoot, patterns.Images)
	if err != nil {
		return nil, err
	}

	return &Set{Models: models, Images: images}, nil
}
