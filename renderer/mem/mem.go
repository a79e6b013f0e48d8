// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package mem implements a sub-allocator over large device-memory
// chunks, so individual allocations do not each demand a driver-level
// allocation. Each chunk keeps a free-list of holes, and new chunks
// are added as needed, for arbitrary host and device buffers.
package mem

import (
	"errors"
	"sort"

	"github.com/vkforge/forge/driver"
)

// Location is where a Block's backing memory lives.
type Location int

const (
	// Host memory is mappable and CPU-visible.
	Host Location = iota
	// Device memory is not CPU-visible.
	Device
)

// Access categorizes how a Block's memory will be accessed by the
// GPU. Optimal-tiling images must not alias linear buffers within
// the same chunk, so the two categories are never mixed in one
// chunk.
type Access int

const (
	Linear Access = iota
	NonLinear
)

// chunkSize is the size of a freshly allocated chunk, per the
// contract's 64 MiB default.
const chunkSize = 64 << 20

// ErrAlloc is returned when the underlying driver fails to allocate
// a new chunk.
var ErrAlloc = errors.New("mem: allocation failed")

type freeBlock struct {
	offset, size int64
}

// chunk owns one driver-level buffer and the free-list describing
// its holes.
type chunk struct {
	buf   driver.Buffer
	loc   Location
	acc   Access
	free  []freeBlock // sorted by offset
	limit int64
}

// Block identifies a sub-allocated range: (chunk, offset, size).
type Block struct {
	c      *chunk
	Offset int64
	Size   int64
}

// Bytes returns the block's backing memory, or nil if its chunk is
// not host-visible.
func (b Block) Bytes() []byte {
	if b.c == nil || !b.c.buf.Visible() {
		return nil
	}
	return b.c.buf.Bytes()[b.Offset : b.Offset+b.Size]
}

// Buffer returns the driver buffer backing the block, along with the
// block's offset into it.
func (b Block) Buffer() (driver.Buffer, int64) { return b.c.buf, b.Offset }

// Allocator sub-allocates Blocks from a growing set of chunks,
// grouped by (Location, Access, driver.Usage) since a chunk's memory
// type and buffer usage are fixed at creation.
type Allocator struct {
	gpu    driver.GPU
	groups map[groupKey][]*chunk
}

type groupKey struct {
	loc Location
	acc Access
	usg driver.Usage
}

// New creates an Allocator that creates chunks through gpu.
func New(gpu driver.GPU) *Allocator {
	return &Allocator{gpu: gpu, groups: make(map[groupKey][]*chunk)}
}

// Alloc reserves size bytes aligned to align, creating a new chunk
// (sized to chunkSize, or size if larger) when no existing chunk in
// the (loc, acc, usg) group has a big-enough hole. Allocation is
// first-fit across the group's chunks.
func (a *Allocator) Alloc(loc Location, acc Access, usg driver.Usage, size, align int64) (Block, error) {
	if align < 1 {
		align = 1
	}
	key := groupKey{loc, acc, usg}
	for _, c := range a.groups[key] {
		if off, ok := c.fit(size, align); ok {
			return a.take(c, off, size), nil
		}
	}
	cs := chunkSize
	if size > int64(cs) {
		cs = int(size)
	}
	buf, err := a.gpu.NewBuffer(int64(cs), loc == Host, usg)
	if err != nil {
		return Block{}, errors.Join(ErrAlloc, err)
	}
	c := &chunk{buf: buf, loc: loc, acc: acc, limit: buf.Cap(), free: []freeBlock{{0, buf.Cap()}}}
	a.groups[key] = append(a.groups[key], c)
	off, ok := c.fit(size, align)
	if !ok {
		return Block{}, ErrAlloc
	}
	return a.take(c, off, size), nil
}

// fit finds the first free block in c that, once padded for
// alignment, has room for size bytes, returning its (post-padding)
// offset.
func (c *chunk) fit(size, align int64) (int64, bool) {
	for _, f := range c.free {
		pad := (align - f.offset%align) % align
		if f.size-pad >= size {
			return f.offset + pad, true
		}
	}
	return 0, false
}

// take removes [off, off+size) from c.free, which must fully contain
// that range (possibly leaving padding/remainder holes behind).
func (a *Allocator) take(c *chunk, off, size int64) Block {
	for i, f := range c.free {
		if off < f.offset || off+size > f.offset+f.size {
			continue
		}
		var rest []freeBlock
		if off > f.offset {
			rest = append(rest, freeBlock{f.offset, off - f.offset})
		}
		if end := f.offset + f.size; off+size < end {
			rest = append(rest, freeBlock{off + size, end - (off + size)})
		}
		c.free = append(c.free[:i], append(rest, c.free[i+1:]...)...)
		break
	}
	return Block{c: c, Offset: off, Size: size}
}

// Free releases b back to its chunk's free-list, merging with
// adjacent holes when possible. Non-adjacent holes are kept and
// reused by later Alloc calls; there is no relocation/defragmentation,
// so long-running sessions can fragment a chunk over time.
func (a *Allocator) Free(b Block) {
	if b.c == nil {
		return
	}
	c := b.c
	f := freeBlock{b.Offset, b.Size}
	i := sort.Search(len(c.free), func(i int) bool { return c.free[i].offset >= f.offset })
	c.free = append(c.free, freeBlock{})
	copy(c.free[i+1:], c.free[i:])
	c.free[i] = f

	// Merge with the following block, then the preceding one.
	if i+1 < len(c.free) && c.free[i].offset+c.free[i].size == c.free[i+1].offset {
		c.free[i].size += c.free[i+1].size
		c.free = append(c.free[:i+1], c.free[i+2:]...)
	}
	if i > 0 && c.free[i-1].offset+c.free[i-1].size == c.free[i].offset {
		c.free[i-1].size += c.free[i].size
		c.free = append(c.free[:i], c.free[i+1:]...)
	}
}

// Flush is a hook for committing CPU writes made through Block.Bytes
// to a non-coherent host mapping. The driver abstraction this
// allocator builds on exposes only coherent host-visible buffers, so
// this currently has nothing to do; it is retained so the allocator's
// contract does not change if a non-coherent-visible driver.Buffer is
// introduced later.
func (a *Allocator) Flush(nonCoherentAtomSize int64, b Block) {
	_ = nonCoherentAtomSize
	_ = b
}

// Destroy releases every chunk's underlying buffer.
func (a *Allocator) Destroy() {
	for _, cs := range a.groups {
		for _, c := range cs {
			c.buf.Destroy()
		}
	}
	a.groups = nil
}
