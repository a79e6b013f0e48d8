// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package desc

import (
	"testing"

	"github.com/vkforge/forge/driver"
)

type fakeHeap struct {
	driver.DescHeap
	n int
}

func (h *fakeHeap) New(n int) error { h.n = n; return nil }
func (h *fakeHeap) Destroy()        {}

type fakeGPU struct {
	driver.GPU
	heaps    []*fakeHeap
	samplers int
}

func (g *fakeGPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	h := &fakeHeap{}
	g.heaps = append(g.heaps, h)
	return h, nil
}

func (g *fakeGPU) NewSampler(s *driver.Sampling) (driver.Sampler, error) {
	g.samplers++
	return fakeSampler{}, nil
}

type fakeSampler struct{ driver.Sampler }

func (fakeSampler) Destroy() {}

var bindingSet = []Binding{
	{Kind: UniformBuffer, Stages: driver.SVertex, Nr: 0, Len: 1},
	{Kind: CombinedImageSampler2D, Stages: driver.SFragment, Nr: 1, Len: 1},
}

func TestAllocDeduplicatesLayoutByHash(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu)

	h1, err := p.Alloc(bindingSet)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := p.Alloc(append([]Binding{}, bindingSet...))
	if err != nil {
		t.Fatal(err)
	}
	if h1.key != h2.key {
		t.Fatal("expected identical binding sets to share one layout")
	}
	if len(gpu.heaps) != 1 {
		t.Fatalf("expected exactly one driver heap, got %d", len(gpu.heaps))
	}
	if h1.index == h2.index {
		t.Fatal("expected distinct set copies for distinct allocations")
	}
}

func TestAllocGrowsInBatchesAndReclaimsOnFree(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu)

	var handles []Handle
	for i := 0; i < batchSize; i++ {
		h, err := p.Alloc(bindingSet)
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}
	l := p.layouts[handles[0].key]
	if l.heap.(*fakeHeap).n != batchSize {
		t.Fatalf("expected heap grown to %d copies, got %d", batchSize, l.heap.(*fakeHeap).n)
	}

	p.Free(handles[0])
	h, err := p.Alloc(bindingSet)
	if err != nil {
		t.Fatal(err)
	}
	if h.index != handles[0].index {
		t.Fatalf("expected freed index %d to be reused, got %d", handles[0].index, h.index)
	}
	if l.heap.(*fakeHeap).n != batchSize {
		t.Fatal("reusing a freed slot should not grow the heap again")
	}

	if _, err := p.Alloc(bindingSet); err != nil {
		t.Fatal(err)
	}
	if l.heap.(*fakeHeap).n != 2*batchSize {
		t.Fatalf("expected a second batch once the first is exhausted, got %d", l.heap.(*fakeHeap).n)
	}
}

func TestSamplerPoolDeduplicatesAndCapsAnisotropy(t *testing.T) {
	gpu := &fakeGPU{}
	sp := NewSamplerPool(gpu, 4)

	p := SamplerParam{Wrap: driver.AWrap, Filter: driver.FLinear, Aniso: 16}
	s1, err := sp.Get(p)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := sp.Get(p)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatal("expected identical sampler params to return the cached sampler")
	}
	if gpu.samplers != 1 {
		t.Fatalf("expected exactly one NewSampler call, got %d", gpu.samplers)
	}
}
