// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package image

import (
	"errors"

	"github.com/vkforge/forge/driver"
)

// ErrWrongPhase is returned when an operation's phase precondition is
// not met (e.g. copy/blit requires TransferSource/TransferDest).
var ErrWrongPhase = errors.New("image: precondition phase mismatch")

// Tracked pairs a driver image view with the phase machine's record
// of its current phase, so the backend can decide whether a
// transition is necessary and what barrier it requires.
type Tracked struct {
	View  driver.ImageView
	Phase Phase
}

// To transitions t to phase, recording a barrier into cb unless t is
// already in phase (idempotent no-op per the testable property).
func (t *Tracked) To(cb driver.CmdBuffer, phase Phase) {
	if IsNoop(t.Phase, phase) {
		return
	}
	cb.Transition([]driver.Transition{Transition(t.View, t.Phase, phase)})
	t.Phase = phase
}

// Copy records an image-to-image copy (a CopyImage call) from src
// to dst, preconditioning that src sits in
// TransferSource and dst in TransferDest.
func Copy(cb driver.CmdBuffer, src, dst *Tracked, param *driver.ImageCopy) error {
	if src.Phase != TransferSource || dst.Phase != TransferDest {
		return ErrWrongPhase
	}
	cb.BeginBlit(false)
	cb.CopyImage(param)
	cb.EndBlit()
	return nil
}

// MipLevel describes one level of a generate-mipmaps pass.
type MipLevel struct {
	View  driver.ImageView
	Param driver.ImageCopy // blit source/dest for this level, preset by caller
}

// GenerateMipmaps bootstraps level 0 to TransferSource and the
// remaining levels to TransferDest, then iteratively blits and
// re-barriers each level; the end state for every level is
// TransferSource, ready for a subsequent read or copy.
func GenerateMipmaps(cb driver.CmdBuffer, levels []*Tracked, blit func(level int)) {
	if len(levels) == 0 {
		return
	}
	levels[0].To(cb, TransferSource)
	for i := 1; i < len(levels); i++ {
		levels[i].To(cb, TransferDest)
	}
	for i := 1; i < len(levels); i++ {
		cb.BeginBlit(false)
		blit(i)
		cb.EndBlit()
		levels[i].To(cb, TransferSource)
	}
}
