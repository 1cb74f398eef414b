// Package ctxerr declares the error kinds the context memory engine
// distinguishes internally. Layers wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify failures with
// errors.Is without depending on message text.
package ctxerr

import "errors"

// Sentinel error kinds. Callers test for these with errors.Is after
// unwrapping through any number of fmt.Errorf("...: %w", ...) layers.
var (
	// NotFound means a context or summary does not exist. It is
	// surfaced as success=false with an explanatory message, never as
	// a transport-level exception.
	NotFound = errors.New("not found")

	// InvalidArgument means the caller supplied an empty required
	// field, an unknown enum value, or a weight outside [0,1]. Always
	// rejected before any state change.
	InvalidArgument = errors.New("invalid argument")

	// IoError means a disk operation failed (full disk, permission
	// denied, rename failure). The operation is treated as not
	// performed.
	IoError = errors.New("io error")

	// IndexCorrupt means the ANN index or one of its companion map
	// files was unreadable on load. Recovery is to archive the bad
	// file, fall back to keyword mode, and keep serving.
	IndexCorrupt = errors.New("index corrupt")

	// ModelUnavailable means the Embedder failed to initialize or a
	// per-call embedding failed. It triggers fallback mode, possibly
	// permanently for the process lifetime.
	ModelUnavailable = errors.New("model unavailable")

	// Timeout means an operation exceeded its deadline. State is
	// consistent at its pre-timeout checkpoint.
	Timeout = errors.New("timeout")
)
