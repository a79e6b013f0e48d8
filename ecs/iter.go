// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import "unsafe"

// Query selects the archetypes an Iterator visits: every archetype
// whose mask is a superset of the query mask.
type Query struct{ mask Mask }

// NewQuery builds a Query matching every entity carrying all of ids.
func NewQuery(ids ...CompId) Query {
	var m Mask
	for _, id := range ids {
		m.Set(id)
	}
	return Query{m}
}

// Iterator walks archetypes and chunks matching a Query. It is an
// external iterator: it holds no goroutine or callback, does not
// allocate during iteration, and its StepBy partition lets disjoint
// shards run across a worker pool (see package sched) as long as the
// systems sharing the World have disjoint write sets.
type Iterator struct {
	archs    []*archetype
	archIdx  int
	chunkIdx int
	step     int
	first    bool
}

// Iter returns an Iterator over every archetype matching q.
func (w *World) Iter(q Query) *Iterator {
	it := &Iterator{step: 1, first: true}
	for mask, a := range w.archetypes {
		if mask.Contains(q.mask) {
			it.archs = append(it.archs, a)
		}
	}
	return it
}

// StepBy restricts the iterator to every step-th chunk starting at
// offset, across the flattened archetype/chunk sequence. It is used
// to split one query across a bounded worker pool.
func (it *Iterator) StepBy(step, offset int) *Iterator {
	it.step = step
	it.chunkIdx = offset
	it.archIdx = 0
	it.first = true
	return it
}

// Next advances to the next chunk, returning it and its owning
// archetype's component ids. ok is false once iteration is done.
func (it *Iterator) Next() (c *Chunk, ok bool) {
	if !it.first {
		it.chunkIdx += it.step
	}
	it.first = false
	for it.archIdx < len(it.archs) {
		a := it.archs[it.archIdx]
		if it.chunkIdx < len(a.chunks) {
			return &Chunk{a: a, c: a.chunks[it.chunkIdx]}, true
		}
		it.archIdx++
		it.chunkIdx -= len(a.chunks)
		if it.chunkIdx < 0 {
			it.chunkIdx = 0
		}
	}
	return nil, false
}

// Chunk exposes one archetype chunk's entity ids and columns to a
// system body.
type Chunk struct {
	a *archetype
	c *chunk
}

// Len returns the number of live rows in the chunk.
func (c *Chunk) Len() int { return c.c.len }

// Entities returns the chunk's live entity ids.
func (c *Chunk) Entities() []Entity { return c.c.entities[:c.c.len] }

// Column returns a typed view over id's column in this chunk. It
// panics if id is not part of the chunk's archetype.
func Column[T any](c *Chunk, id CompId) []T {
	col, ok := c.a.colOf[id]
	if !ok {
		fail(UnregisteredType, "component not present in this archetype's chunk")
	}
	if c.c.len == 0 {
		return nil
	}
	data := c.c.cols[col]
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), c.c.len)
}
