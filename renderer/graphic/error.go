// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package graphic

import "fmt"

// Kind identifies a class of graphic composition failure, discovered
// during Prepare. A Graphic whose Prepare fails has no pipeline
// (Pipeline returns nil); Prepare does not mark it invalid, so a later
// Prepare call validates it again.
type Kind int

const (
	Invalid Kind = iota
	MissingVertexStage
	MissingFragmentStage
	TooManyShaders
	TooManySamplers
	FragmentInputNotInVertexOutputs
	IllegalSet
	IllegalBinding
	BindingKindConflict
	StorageBufferRequiresMesh
	MeshConflictsWithPerDrawMesh
)

var kindString = [...]string{
	Invalid:                         "graphic marked invalid during composition",
	MissingVertexStage:              "missing vertex stage",
	MissingFragmentStage:            "missing fragment stage",
	TooManyShaders:                  "shader stage count exceeds maximum",
	TooManySamplers:                 "sampler count exceeds maximum",
	FragmentInputNotInVertexOutputs: "fragment input not produced by vertex stage",
	IllegalSet:                      "descriptor set index not in {Global, Graphic, Draw, Instance}",
	IllegalBinding:                  "descriptor binding kind not supported at this slot",
	BindingKindConflict:             "shader stages declare incompatible kinds for the same binding",
	StorageBufferRequiresMesh:       "storage buffer at (Graphic, 0) declared without an attached mesh",
	MeshConflictsWithPerDrawMesh:    "graphic attaches both a mesh and a per-draw mesh binding",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindString) {
		return "unknown"
	}
	return kindString[k]
}

// Error is returned by Prepare when a Graphic cannot be made ready
// for rendering.
type Error struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := "graphic: " + e.Kind.String()
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

// Is reports whether target has the same Kind as e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
