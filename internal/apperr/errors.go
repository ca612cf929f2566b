package apperr

import "errors"

// Load and decode errors.
var (
	ErrUnknownMediaType = errors.New("unknown media type")
	ErrDecode           = errors.New("decode failure")
)

// Addressing errors.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrMissingKey marks a key/value node whose key is gone from its
	// annotation. It is only ever raised as a panic.
	ErrMissingKey = errors.New("missing annotation key")
)

// Session errors returned to callers of the network surfaces.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotMedia      = errors.New("not an image or frame")
	ErrNotAnnotation = errors.New("not an annotation")
	ErrClosed        = errors.New("session closed")
)

// ErrOutsideBaseDir marks a file name that resolves outside the project's
// base directory.
var ErrOutsideBaseDir = errors.New("path escapes the base directory")
