// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package repo implements a fixed-slot repository of process-wide
// fallback resources: a missing 2D texture, a missing cube texture,
// and a missing sampler, substituted wherever a graphic object's
// material references a resource that failed to load. Each slot is
// created exactly once, on first request, via sync.Once rather than
// at package init, since creation requires a live driver.GPU.
package repo

import (
	"fmt"
	"sync"

	"github.com/vkforge/forge/driver"
)

// Id names one fallback slot.
type Id int

const (
	MissingTexture Id = iota
	MissingTextureCube
	MissingSampler

	idCount
)

var idName = [...]string{
	MissingTexture:     "MissingTexture",
	MissingTextureCube: "MissingTextureCube",
	MissingSampler:     "MissingSampler",
}

func (id Id) String() string { return idName[id] }

type entry struct {
	once  sync.Once
	view  driver.ImageView
	image driver.Image
	splr  driver.Sampler
	err   error
}

// Repository holds the fallback resources for one logical device.
// Entries are created lazily so Repository can be constructed before
// the device is fully ready to allocate resources.
type Repository struct {
	gpu     driver.GPU
	entries [idCount]entry
}

// New creates an empty repository bound to gpu.
func New(gpu driver.GPU) *Repository { return &Repository{gpu: gpu} }

// checkerboardSize is the width/height of the generated placeholder
// textures (a 2x2 checkerboard is enough to be visually unmistakable
// without costing meaningful memory or upload bandwidth).
const checkerboardSize = 2

// Texture returns the fallback texture for id (MissingTexture or
// MissingTextureCube), creating it on first call.
func (r *Repository) Texture(id Id) (driver.ImageView, error) {
	if id != MissingTexture && id != MissingTextureCube {
		return nil, fmt.Errorf("repo: %s is not a texture slot", id)
	}
	e := &r.entries[id]
	e.once.Do(func() {
		layers := 1
		if id == MissingTextureCube {
			layers = 6
		}
		img, err := r.gpu.NewImage(driver.RGBA8un,
			driver.Dim3D{Width: checkerboardSize, Height: checkerboardSize, Depth: 1},
			layers, 1, 1, driver.UShaderSample|driver.UShaderWrite)
		if err != nil {
			e.err = err
			return
		}
		viewType := driver.IView2D
		if id == MissingTextureCube {
			viewType = driver.IViewCube
		}
		view, err := img.NewView(viewType, 0, layers, 0, 1)
		if err != nil {
			img.Destroy()
			e.err = err
			return
		}
		e.image = img
		e.view = view
	})
	return e.view, e.err
}

// Sampler returns the fallback sampler, creating it on first call.
func (r *Repository) Sampler() (driver.Sampler, error) {
	e := &r.entries[MissingSampler]
	e.once.Do(func() {
		s, err := r.gpu.NewSampler(&driver.Sampling{
			Min: driver.FNearest, Mag: driver.FNearest, Mipmap: driver.FNearest,
			AddrU: driver.AWrap, AddrV: driver.AWrap, AddrW: driver.AWrap,
		})
		e.splr = s
		e.err = err
	})
	return e.splr, e.err
}

// Destroy releases every fallback resource that was created.
func (r *Repository) Destroy() {
	for i := range r.entries {
		e := &r.entries[i]
		if e.view != nil {
			e.view.Destroy()
		}
		if e.image != nil {
			e.image.Destroy()
		}
		if e.splr != nil {
			e.splr.Destroy()
		}
	}
}
