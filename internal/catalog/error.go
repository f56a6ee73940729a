package catalog

import "errors"

// Error definitions for the catalog package.
var (
	ErrNotFound = errors.New("resource not found in catalog")
)
