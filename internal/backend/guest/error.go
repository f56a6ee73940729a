package guest

import "errors"

var (
	// ErrEntryPoint is returned when a required export is missing.
	ErrEntryPoint = errors.New("guest module does not export the entry point")

	// ErrSignature is returned when an export has an unexpected signature.
	ErrSignature = errors.New("guest export has an unexpected signature")

	// ErrNoModule is returned when no module path is configured.
	ErrNoModule = errors.New("no guest module configured")
)
