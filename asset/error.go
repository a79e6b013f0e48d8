// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package asset implements the glTF/GLB import pipeline: it resolves
// buffer sources, materializes mesh/skeleton/animation data from the
// parsed glTF document, and packs the result into the byte layouts
// consumed by the render backend.
package asset

import "github.com/vkforge/forge/gltf"

// ImportError is the error type an import-pipeline failure is
// reported as when it comes from reading the source, from GLB framing
// checks, or from materializing a mesh/skeleton/animation out of an
// already wire-valid document. Failures from the wire-format parser
// (gltf.Decode/gltf.Unpack/GLTF.Check) are returned as the parser's
// own *gltf.Error. It reuses
// gltf.Kind rather than declaring a second named-kind enum, since the
// two packages classify failures against the same list.
type ImportError struct {
	Kind   gltf.Kind
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	s := "asset: " + e.Kind.String()
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause, if any.
func (e *ImportError) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind as e, so errors.Is can
// match on the failure class without depending on Reason/Err.
// It also matches a *gltf.Error of the same Kind, since a failure
// surfaced while parsing (rather than materializing) propagates as
// one of those instead.
func (e *ImportError) Is(target error) bool {
	switch t := target.(type) {
	case *ImportError:
		return t.Kind == e.Kind
	case *gltf.Error:
		return t.Kind == e.Kind
	}
	return false
}

func newErr(kind gltf.Kind, reason string) *ImportError {
	return &ImportError{Kind: kind, Reason: reason}
}

func wrapErr(kind gltf.Kind, reason string, cause error) *ImportError {
	return &ImportError{Kind: kind, Reason: reason, Err: cause}
}
