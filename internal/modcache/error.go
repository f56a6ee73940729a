package modcache

import "errors"

var (
	// ErrEnvelope is returned when cached bytes are not a valid envelope.
	ErrEnvelope = errors.New("malformed cache envelope")

	// ErrIncompatible is returned when a cache entry was produced by a
	// different compiler version or format.
	ErrIncompatible = errors.New("incompatible compiler version")
)
