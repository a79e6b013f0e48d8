// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package desc

import (
	"sync"

	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/internal/bitvec"
)

// batchSize is the number of descriptor-set copies a layout's heap is
// grown by whenever it runs out of free sets.
const batchSize = 8

// layout owns one driver.DescHeap (one set-layout, N pre-allocated
// copies) and the free-bitmask tracking which copies are in use. The
// bitmask's granularity is one byte, so each Grow(1) call adds
// exactly batchSize bits of capacity.
type layout struct {
	heap     driver.DescHeap
	bindings []Binding
	free     bitvec.V[uint8]
}

// Handle identifies one allocated descriptor-set copy.
type Handle struct {
	key   uint64
	index int
}

// Pool allocates and recycles descriptor sets, deduplicating layouts
// by their binding metadata and growing each layout's storage in
// fixed batches as demand requires.
type Pool struct {
	mu      sync.Mutex
	gpu     driver.GPU
	layouts map[uint64]*layout
}

// New creates an empty descriptor pool.
func New(gpu driver.GPU) *Pool {
	return &Pool{gpu: gpu, layouts: make(map[uint64]*layout)}
}

// Alloc returns a descriptor-set copy for the given layout metadata,
// creating the layout's heap on first use and growing it by
// batchSize copies whenever every existing copy is in use.
func (p *Pool) Alloc(bindings []Binding) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := hashBindings(bindings)
	l, ok := p.layouts[key]
	if !ok {
		heap, err := p.gpu.NewDescHeap(toDriverDescs(bindings))
		if err != nil {
			return Handle{}, err
		}
		l = &layout{heap: heap, bindings: bindings}
		p.layouts[key] = l
	}
	idx, ok := l.free.Search()
	if !ok {
		base := l.free.Grow(1)
		if err := l.heap.New(l.free.Len()); err != nil {
			l.free.Shrink(1)
			return Handle{}, err
		}
		idx = base
	}
	l.free.Set(idx)
	return Handle{key: key, index: idx}, nil
}

// Free returns h's descriptor-set copy to its layout's pool for
// reuse. It does not shrink the underlying heap.
func (p *Pool) Free(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.layouts[h.key]; ok {
		l.free.Unset(h.index)
	}
}

// Heap returns the driver.DescHeap and copy index backing h, for
// SetBuffer/SetImage/SetSampler calls.
func (p *Pool) Heap(h Handle) (driver.DescHeap, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.layouts[h.key]
	if !ok {
		return nil, 0
	}
	return l.heap, h.index
}

// Destroy releases every layout's heap.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.layouts {
		l.heap.Destroy()
	}
	p.layouts = nil
}
