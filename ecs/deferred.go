// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import (
	"sort"
	"unsafe"
)

type mutFlags uint8

const flagDestroy mutFlags = 1 << 0

// bufRow is one entity's pending mutations.
type bufRow struct {
	entity     Entity
	flags      mutFlags
	addMask    Mask
	removeMask Mask
	head       int32 // offset of the most recent add payload, -1 if none
}

// payloadHeader prefixes every add payload in Buffer.pool with the
// CompId it carries and a link to the entity's previous add, forming
// an intrusive singly linked list threaded through the bump
// allocator.
type payloadHeader struct {
	id   CompId
	next int32
	size int32
}

// Buffer accumulates pending entity/component mutations between
// system ticks. It is flushed by World.Flush, the only point at
// which archetype membership changes.
type Buffer struct {
	rows []bufRow
	pool []byte
}

// Empty reports whether the buffer has no pending mutations, in
// which case Flush is a no-op.
func (b *Buffer) Empty() bool { return len(b.rows) == 0 }

func (b *Buffer) rowIndex(e Entity) (int, bool) {
	s := e.Serial()
	i := sort.Search(len(b.rows), func(i int) bool { return b.rows[i].entity.Serial() >= s })
	return i, i < len(b.rows) && b.rows[i].entity.Serial() == s
}

func (b *Buffer) rowFor(e Entity) *bufRow {
	i, ok := b.rowIndex(e)
	if ok {
		return &b.rows[i]
	}
	b.rows = append(b.rows, bufRow{})
	copy(b.rows[i+1:], b.rows[i:])
	b.rows[i] = bufRow{entity: e, head: -1}
	return &b.rows[i]
}

// alloc bump-allocates a payload node for id, linking it in front of
// prevHead, and returns its offset.
func (b *Buffer) alloc(id CompId, data unsafe.Pointer, size int, prevHead int32) int32 {
	for len(b.pool)%8 != 0 {
		b.pool = append(b.pool, 0)
	}
	off := int32(len(b.pool))
	hdr := payloadHeader{id: id, next: prevHead, size: int32(size)}
	b.pool = append(b.pool, unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), unsafe.Sizeof(hdr))...)
	if size > 0 {
		b.pool = append(b.pool, unsafe.Slice((*byte)(data), size)...)
	}
	return off
}

func (b *Buffer) header(off int32) (*payloadHeader, []byte) {
	hdr := (*payloadHeader)(unsafe.Pointer(&b.pool[off]))
	start := int(off) + int(unsafe.Sizeof(*hdr))
	return hdr, b.pool[start : start+int(hdr.size)]
}

// AddComponent records a deferred add of the component id to e,
// copying size bytes from data. If e already has a pending add of
// id in this buffer, both the registered combinator (if any) and
// last-write-wins semantics are resolved at flush.
func (b *Buffer) AddComponent(e Entity, id CompId, data unsafe.Pointer, size int) {
	row := b.rowFor(e)
	row.addMask.Set(id)
	row.removeMask.Clear(id)
	row.head = b.alloc(id, data, size, row.head)
}

// RemoveComponent records a deferred remove of id from e.
func (b *Buffer) RemoveComponent(e Entity, id CompId) {
	row := b.rowFor(e)
	row.removeMask.Set(id)
	row.addMask.Clear(id)
}

// Destroy records a deferred destroy of e. Destroying the same entity
// twice before a flush is a programmer error.
func (b *Buffer) Destroy(e Entity) {
	row := b.rowFor(e)
	if row.flags&flagDestroy != 0 {
		fail(DoubleDestroy, "%v", e)
	}
	row.flags |= flagDestroy
}

func (b *Buffer) reset() {
	b.rows = b.rows[:0]
	b.pool = b.pool[:0]
}

// resolve walks e's pending-add list for id and returns the bytes to
// install: the sole add if there is one, the combinator fold of all
// adds (oldest first) if a combinator is registered, or the most
// recent add otherwise (last-write-wins).
func (b *Buffer) resolve(row *bufRow, id CompId) []byte {
	var offs []int32
	for off := row.head; off != -1; {
		hdr, _ := b.header(off)
		if hdr.id == id {
			offs = append(offs, off)
		}
		off = hdr.next
	}
	if len(offs) == 0 {
		return nil
	}
	_, newest := b.header(offs[0])
	if len(offs) == 1 || !hasCombine(id) {
		return newest
	}
	merged := make([]byte, len(newest))
	_, oldest := b.header(offs[len(offs)-1])
	copy(merged, oldest)
	for i := len(offs) - 2; i >= 0; i-- {
		_, data := b.header(offs[i])
		compCombine(id, unsafe.Pointer(&merged[0]), unsafe.Pointer(&data[0]))
	}
	return merged
}
