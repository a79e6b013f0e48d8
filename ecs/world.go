// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import (
	"sync"
	"unsafe"

	"github.com/vkforge/forge/internal/bitvec"
)

// location names an entity's current archetype and row.
type location struct {
	arch     *archetype
	chunkIdx int
	row      int
}

// World owns the entity allocator, the archetype index, and the
// deferred mutation buffer for one ECS instance.
type World struct {
	mu sync.Mutex

	freeIdx bitvec.V[uint64]
	serials []uint32
	locs    []location
	serial  uint32 // global monotonic counter, never reused

	archetypes map[Mask]*archetype

	Buffer Buffer
}

// New creates an empty World.
func New() *World {
	w := &World{archetypes: make(map[Mask]*archetype)}
	w.archetypes[Mask{}] = newArchetype(Mask{})
	return w
}

// Create allocates a new entity in the empty archetype.
// entity_create draws the next free index and bumps the global
// serial counter; the counter must never wrap in the process
// lifetime.
func (w *World) Create() Entity {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, ok := w.freeIdx.Search()
	if !ok {
		idx = w.freeIdx.Grow(1)
	}
	w.freeIdx.Set(idx)

	if w.serial == ^uint32(0) {
		fail(SerialOverflow, "")
	}
	w.serial++
	e := newEntity(uint32(idx), w.serial)

	for idx >= len(w.serials) {
		w.serials = append(w.serials, 0)
		w.locs = append(w.locs, location{})
	}
	w.serials[idx] = w.serial

	arch := w.archetypes[Mask{}]
	ci, row := arch.append(e)
	w.locs[idx] = location{arch: arch, chunkIdx: ci, row: row}
	return e
}

// Alive reports whether e refers to a currently live entity.
func (w *World) Alive(e Entity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := e.Index()
	return int(idx) < len(w.serials) && w.serials[idx] == e.Serial()
}

// Destroy records a deferred destroy of e; it takes effect at the
// next Flush.
func (w *World) Destroy(e Entity) { w.Buffer.Destroy(e) }

// AddComponent records a deferred add of component T to e.
func AddComponent[T any](w *World, e Entity, v T) {
	w.Buffer.AddComponent(e, TypeId[T](), unsafe.Pointer(&v), int(unsafe.Sizeof(v)))
}

// RemoveComponent records a deferred remove of component T from e.
func RemoveComponent[T any](w *World, e Entity) {
	w.Buffer.RemoveComponent(e, TypeId[T]())
}

// Get returns a pointer to e's current (already-flushed) component T,
// or nil if e does not have it. The pointer is invalidated by the
// next Flush that migrates or destroys e.
func Get[T any](w *World, e Entity) *T {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := e.Index()
	if int(idx) >= len(w.serials) || w.serials[idx] != e.Serial() {
		return nil
	}
	loc := w.locs[idx]
	p := loc.arch.get(loc.chunkIdx, loc.row, TypeId[T]())
	if p == nil {
		return nil
	}
	return (*T)(p)
}

// archetypeFor returns the archetype for mask, creating it if absent.
func (w *World) archetypeFor(mask Mask) *archetype {
	if a, ok := w.archetypes[mask]; ok {
		return a
	}
	a := newArchetype(mask)
	w.archetypes[mask] = a
	return a
}

// Flush is the only point at which archetype membership changes. It
// replays the buffer in sorted order, resolving at most one
// archetype move per entity, then applies destroys.
func (w *World) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Buffer.Empty() {
		return
	}

	for i := range w.Buffer.rows {
		row := &w.Buffer.rows[i]
		idx := row.entity.Index()
		if int(idx) >= len(w.serials) || w.serials[idx] != row.entity.Serial() {
			// Stale: entity already gone.
			continue
		}
		loc := w.locs[idx]
		oldMask := loc.arch.mask
		newMask := oldMask.Union(row.addMask).AndNot(row.removeMask)

		if newMask != oldMask {
			w.migrate(idx, loc, newMask, row)
		} else if !row.addMask.IsZero() {
			w.overwrite(loc, row)
		}

		if row.flags&flagDestroy != 0 {
			w.destroyNow(idx)
		}
	}
	w.Buffer.reset()
}

// overwrite writes resolved add payloads into an entity's existing
// archetype slot, for adds that do not change the component mask
// (re-adding an already-present component).
func (w *World) overwrite(loc location, row *bufRow) {
	for _, id := range row.addMask.ids() {
		if data := w.Buffer.resolve(row, id); data != nil {
			loc.arch.set(loc.chunkIdx, loc.row, id, unsafe.Pointer(&data[0]))
		}
	}
}

// migrate moves the entity at idx into the archetype for newMask,
// copying retained columns, running destructors for dropped ones,
// and writing newly added component data.
func (w *World) migrate(idx uint32, loc location, newMask Mask, row *bufRow) {
	dst := w.archetypeFor(newMask)
	e := loc.arch.chunks[loc.chunkIdx].entities[loc.row]
	dci, drow := dst.append(e)

	for _, id := range loc.arch.ids {
		if !newMask.Has(id) {
			continue // dropped: destructor runs in archetype.remove below
		}
		if row.addMask.Has(id) {
			continue // overwritten by the add below
		}
		src := loc.arch.get(loc.chunkIdx, loc.row, id)
		dst.set(dci, drow, id, src)
	}
	for _, id := range row.addMask.ids() {
		if data := w.Buffer.resolve(row, id); data != nil {
			dst.set(dci, drow, id, unsafe.Pointer(&data[0]))
		}
	}

	moved, movedRow, ok := loc.arch.remove(loc.chunkIdx, loc.row)
	if ok {
		w.fixupLocation(moved, loc.arch, loc.chunkIdx, movedRow)
	}
	w.locs[idx] = location{arch: dst, chunkIdx: dci, row: drow}
}

// fixupLocation updates the recorded location of an entity that was
// swapped into a vacated row by archetype.remove.
func (w *World) fixupLocation(e Entity, arch *archetype, chunkIdx, row int) {
	midx := e.Index()
	if int(midx) < len(w.locs) && w.serials[midx] == e.Serial() {
		w.locs[midx] = location{arch: arch, chunkIdx: chunkIdx, row: row}
	}
}

// destroyNow frees idx's slot, running destructors for every
// remaining column and fixing up the entity swapped into its place.
func (w *World) destroyNow(idx uint32) {
	loc := w.locs[idx]
	moved, movedRow, ok := loc.arch.remove(loc.chunkIdx, loc.row)
	if ok {
		w.fixupLocation(moved, loc.arch, loc.chunkIdx, movedRow)
	}
	w.freeIdx.Unset(int(idx))
	w.locs[idx] = location{}
	// Serial zero is never handed out, so clearing serials[idx] makes
	// every Entity handle referring to this slot compare unequal until
	// the slot is reallocated with a fresh serial.
	w.serials[idx] = 0
}
