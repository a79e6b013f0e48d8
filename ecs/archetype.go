// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import "unsafe"

// chunkCapacity is the fixed number of rows per chunk. When a chunk
// fills, the archetype appends a new one rather than growing it.
const chunkCapacity = 512

// chunk is one fixed-capacity slab of an archetype: the entity ids
// plus one tightly packed, aligned column per set component.
type chunk struct {
	entities [chunkCapacity]Entity
	cols     [][]byte // cols[i] holds archetype.ids[i]'s column, length chunkCapacity*size
	len      int
}

func (c *chunk) full() bool { return c.len >= chunkCapacity }

func (c *chunk) row(i int, id CompId, colIdx int) unsafe.Pointer {
	size := compSize(id)
	return unsafe.Pointer(&c.cols[colIdx][uintptr(i)*size])
}

// archetype is an immutable pair (mask, chunk-list). Entities sharing
// a mask live in the same archetype; migrating entities between
// archetypes is the only way membership changes, and only at flush.
type archetype struct {
	mask   Mask
	ids    []CompId
	colOf  map[CompId]int
	chunks []*chunk
}

func newArchetype(mask Mask) *archetype {
	ids := mask.ids()
	colOf := make(map[CompId]int, len(ids))
	for i, id := range ids {
		colOf[id] = i
	}
	return &archetype{mask: mask, ids: ids, colOf: colOf}
}

func (a *archetype) newChunk() *chunk {
	c := &chunk{cols: make([][]byte, len(a.ids))}
	for i, id := range a.ids {
		c.cols[i] = make([]byte, chunkCapacity*compSize(id))
	}
	a.chunks = append(a.chunks, c)
	return c
}

// append reserves a row for e, returning its (chunkIdx, row) location.
// Component columns are left zeroed; callers write component data
// with set after append returns.
func (a *archetype) append(e Entity) (chunkIdx, row int) {
	var c *chunk
	if n := len(a.chunks); n > 0 && !a.chunks[n-1].full() {
		c = a.chunks[n-1]
		chunkIdx = n - 1
	} else {
		c = a.newChunk()
		chunkIdx = len(a.chunks) - 1
	}
	row = c.len
	c.entities[row] = e
	c.len++
	return
}

// set writes size bytes from src into the column for id at the given
// location.
func (a *archetype) set(chunkIdx, row int, id CompId, src unsafe.Pointer) {
	c := a.chunks[chunkIdx]
	col := a.colOf[id]
	size := compSize(id)
	dst := c.row(row, id, col)
	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
}

// get returns a pointer to the component data for id at the given
// location, or nil if id is not part of this archetype.
func (a *archetype) get(chunkIdx, row int, id CompId) unsafe.Pointer {
	col, ok := a.colOf[id]
	if !ok {
		return nil
	}
	return a.chunks[chunkIdx].row(row, id, col)
}

// remove swap-removes the row at (chunkIdx, row), running destructors
// for every column, and returns the entity that was moved into the
// vacated slot (if any), along with its new row index, so the caller
// can fix up that entity's location.
func (a *archetype) remove(chunkIdx, row int) (moved Entity, movedRow int, ok bool) {
	c := a.chunks[chunkIdx]
	for i, id := range a.ids {
		compDestroy(id, c.row(row, id, i))
	}
	last := c.len - 1
	if row != last {
		c.entities[row] = c.entities[last]
		for i, id := range a.ids {
			size := compSize(id)
			src := c.row(last, id, i)
			dst := c.row(row, id, i)
			copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
		}
		moved, movedRow, ok = c.entities[row], row, true
	}
	c.len--
	return
}
