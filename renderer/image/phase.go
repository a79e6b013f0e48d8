// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package image implements the render backend's image phase machine:
// every image is always in a known phase, and transitioning between
// phases emits exactly one barrier computed from two lookup tables
// (access flags and pipeline stages) keyed by the (from, to) pair.
package image

import "github.com/vkforge/forge/driver"

// Phase is the logical access state of an image, used to pick the
// barrier for a transition.
type Phase int

const (
	Undefined Phase = iota
	TransferSource
	TransferDest
	ColorAttachment
	DepthAttachment
	ShaderRead
	Present
)

// layoutOf maps a Phase to the driver.Layout it corresponds to.
var layoutOf = [...]driver.Layout{
	Undefined:       driver.LUndefined,
	TransferSource:  driver.LCopySrc,
	TransferDest:    driver.LCopyDst,
	ColorAttachment: driver.LColorTarget,
	DepthAttachment: driver.LDSTarget,
	ShaderRead:      driver.LShaderRead,
	Present:         driver.LPresent,
}

// syncOf and accessOf are the two lookup tables the phase machine
// uses to build a Barrier: every phase has one associated
// synchronization scope and one memory access scope, used as
// whichever side of the barrier (before or after) that phase occupies
// in a transition.
var syncOf = [...]driver.Sync{
	Undefined:       driver.SNone,
	TransferSource:  driver.SCopy,
	TransferDest:    driver.SCopy,
	ColorAttachment: driver.SColorOutput,
	DepthAttachment: driver.SDSOutput,
	ShaderRead:      driver.SFragmentShading,
	Present:         driver.SNone,
}

var accessOf = [...]driver.Access{
	Undefined:       driver.ANone,
	TransferSource:  driver.ACopyRead,
	TransferDest:    driver.ACopyWrite,
	ColorAttachment: driver.AColorWrite,
	DepthAttachment: driver.ADSWrite,
	ShaderRead:      driver.AShaderRead,
	Present:         driver.ANone,
}

// Transition computes the driver.Transition that moves view from
// phase `from` to phase `to`. Undefined as the source phase implies
// no waiting on prior writes, since the image's previous contents are
// irrelevant.
func Transition(view driver.ImageView, from, to Phase) driver.Transition {
	t := driver.Transition{
		Barrier: driver.Barrier{
			SyncBefore:   syncOf[from],
			SyncAfter:    syncOf[to],
			AccessBefore: accessOf[from],
			AccessAfter:  accessOf[to],
		},
		LayoutBefore: layoutOf[from],
		LayoutAfter:  layoutOf[to],
		IView:        view,
	}
	if from == Undefined {
		t.SyncBefore = driver.SNone
		t.AccessBefore = driver.ANone
	}
	return t
}

// IsNoop reports whether a transition from phase from to phase to
// is a no-op, which is the case exactly when the two phases are
// equal: a transition to the phase an image already occupies emits
// no barrier.
func IsNoop(from, to Phase) bool { return from == to }
