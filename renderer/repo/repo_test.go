// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package repo

import (
	"testing"

	"github.com/vkforge/forge/driver"
)

type fakeImage struct {
	driver.Image
	views int
}

func (i *fakeImage) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	i.views++
	return fakeView{}, nil
}
func (i *fakeImage) Destroy() {}

type fakeView struct{ driver.ImageView }

func (fakeView) Destroy() {}

type fakeSampler struct{ driver.Sampler }

func (fakeSampler) Destroy() {}

type fakeGPU struct {
	driver.GPU
	images   int
	samplers int
}

func (g *fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	g.images++
	return &fakeImage{}, nil
}

func (g *fakeGPU) NewSampler(s *driver.Sampling) (driver.Sampler, error) {
	g.samplers++
	return fakeSampler{}, nil
}

func TestTextureCreatedOnceAndCached(t *testing.T) {
	gpu := &fakeGPU{}
	r := New(gpu)

	v1, err := r.Texture(MissingTexture)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := r.Texture(MissingTexture)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatal("expected the same fallback view on repeated calls")
	}
	if gpu.images != 1 {
		t.Fatalf("expected exactly one NewImage call, got %d", gpu.images)
	}
}

func TestTextureAndTextureCubeAreDistinctSlots(t *testing.T) {
	gpu := &fakeGPU{}
	r := New(gpu)
	if _, err := r.Texture(MissingTexture); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Texture(MissingTextureCube); err != nil {
		t.Fatal(err)
	}
	if gpu.images != 2 {
		t.Fatalf("expected two distinct images, got %d", gpu.images)
	}
}

func TestSamplerCreatedOnceAndCached(t *testing.T) {
	gpu := &fakeGPU{}
	r := New(gpu)
	s1, err := r.Sampler()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := r.Sampler()
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatal("expected the same fallback sampler on repeated calls")
	}
	if gpu.samplers != 1 {
		t.Fatalf("expected exactly one NewSampler call, got %d", gpu.samplers)
	}
}

func TestTextureRejectsNonTextureSlot(t *testing.T) {
	r := New(&fakeGPU{})
	if _, err := r.Texture(MissingSampler); err == nil {
		t.Fatal("expected requesting a texture for the sampler slot to fail")
	}
}
