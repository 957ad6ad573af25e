package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a referenced file, session or resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates a request argument that can never succeed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupported indicates a file format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrToolUnavailable indicates an external binary (fpcalc, ffprobe) is missing
	ErrToolUnavailable = errors.New("external tool unavailable")

	// ErrSessionNotFound indicates an unknown or already evicted scan session
	ErrSessionNotFound = errors.New("scan session not found")

	// ErrManagerClosed indicates the session manager has been shut down
	ErrManagerClosed = errors.New("session manager closed")
)
