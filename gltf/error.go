// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package gltf

// Kind identifies a class of glTF/GLB malformation.
// Loader failures map to one of these named kinds rather
// than being surfaced as an opaque string, so callers can
// switch on the cause with errors.Is. The exceptions are
// I/O errors met while reading the optional BIN chunk,
// which SeekBIN and Unpack return as-is (io.EOF from SeekBIN
// means there is no BIN chunk), and API misuse (an invalid
// whence value, Pack's length overflow), which is reported
// as a plain error.
type Kind int

const (
	InvalidJson Kind = iota
	MalformedFile
	MalformedGlbHeader
	MalformedGlbChunk
	MalformedBuffers
	MalformedBufferViews
	MalformedAccessors
	MalformedPrims
	MalformedPrimIndices
	MalformedPrimPositions
	MalformedPrimNormals
	MalformedPrimTangents
	MalformedPrimTexcoords
	MalformedPrimJoints
	MalformedPrimWeights
	MalformedBindMatrix
	MalformedSceneTransform
	MalformedSkin
	MalformedNodes
	MalformedAnimation
	JointCountExceedsMaximum
	AnimCountExceedsMaximum
	InvalidBuffer
	UnsupportedPrimitiveMode
	UnsupportedInterpolationMode
	UnsupportedGlbVersion
	GlbJsonChunkMissing
	GlbChunkCountExceedsMaximum
	NoPrimitives
	ImportFailed
)

var kindString = [...]string{
	InvalidJson:                   "invalid JSON",
	MalformedFile:                 "malformed file",
	MalformedGlbHeader:            "malformed GLB header",
	MalformedGlbChunk:             "malformed GLB chunk",
	MalformedBuffers:              "malformed buffers",
	MalformedBufferViews:          "malformed buffer views",
	MalformedAccessors:            "malformed accessors",
	MalformedPrims:                "malformed primitives",
	MalformedPrimIndices:          "malformed primitive indices",
	MalformedPrimPositions:        "malformed primitive positions",
	MalformedPrimNormals:          "malformed primitive normals",
	MalformedPrimTangents:         "malformed primitive tangents",
	MalformedPrimTexcoords:        "malformed primitive texcoords",
	MalformedPrimJoints:           "malformed primitive joints",
	MalformedPrimWeights:          "malformed primitive weights",
	MalformedBindMatrix:           "malformed bind matrix",
	MalformedSceneTransform:       "malformed scene transform",
	MalformedSkin:                 "malformed skin",
	MalformedNodes:                "malformed nodes",
	MalformedAnimation:            "malformed animation",
	JointCountExceedsMaximum:      "joint count exceeds maximum",
	AnimCountExceedsMaximum:       "animation count exceeds maximum",
	InvalidBuffer:                 "invalid buffer",
	UnsupportedPrimitiveMode:      "unsupported primitive mode",
	UnsupportedInterpolationMode:  "unsupported interpolation mode",
	UnsupportedGlbVersion:         "unsupported GLB version",
	GlbJsonChunkMissing:           "GLB JSON chunk missing",
	GlbChunkCountExceedsMaximum:   "GLB chunk count exceeds maximum",
	NoPrimitives:                  "no primitives",
	ImportFailed:                  "import failed",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindString) {
		return "unknown"
	}
	return kindString[k]
}

// Error is the error type of every loader failure that maps to a Kind.
// Kind is comparable, so callers can test the specific cause
// with errors.Is(err, &gltf.Error{Kind: gltf.MalformedGlbHeader})
// or by switching on (*gltf.Error).Kind after errors.As.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := "gltf: " + e.Kind.String()
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind as e, which is
// how errors.Is distinguishes malformation classes without
// depending on Reason/Err identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// newErr creates an *Error of the given kind.
func newErr(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// wrapErr creates an *Error of the given kind wrapping cause.
func wrapErr(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}
