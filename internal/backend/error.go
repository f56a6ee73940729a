package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrNotLoaded         = errors.New("backend has no model loaded")
	ErrNotReady          = errors.New("backend environment is not set up")
)
