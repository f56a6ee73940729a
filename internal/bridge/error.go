package bridge

import "errors"

// Error definitions for the bridge package.
var (
	ErrNoMounts         = errors.New("bridge: no directories declared")
	ErrInvalidGuestPath = errors.New("bridge: guest path must be a single path element")
	ErrDuplicateMount   = errors.New("bridge: guest path declared twice")
)
