// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import "github.com/vkforge/forge/gltf"

// Source is an externally resolved asset byte stream (per spec's
// "asset source stream" interface). The importer calls Close on both
// the success and failure paths, exactly once.
type Source interface {
	// Data returns the fully-read asset bytes, or ErrNotReady while
	// the external fetch is still in flight.
	Data() ([]byte, error)
	Close() error
}

// Resolver fetches an external buffer reference (a glTF Buffer.URI
// that is neither a data URI nor empty) and returns a Source for it.
// The returned Source need not be immediately ready; BuffersWait
// polls Source.Data until it stops returning ErrNotReady.
type Resolver interface {
	Resolve(uri string) (Source, error)
}

// ErrNotReady is returned by Source.Data while the external fetch the
// Source represents is still in flight.
var ErrNotReady = newErr(gltf.InvalidBuffer, "source not ready")
