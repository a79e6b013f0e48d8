// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package desc implements the render backend's descriptor and sampler
// pools: descriptor-set layouts are hashed and deduplicated, sets are
// allocated in batches of a fixed size tracked by a free-bitmask, and
// samplers are deduplicated by their full parameter tuple. This
// generalizes driver/vk's one-shot descHeap.New(n) into a pool that
// grows on demand and hands out/reclaims individual set copies.
package desc

import (
	"hash/fnv"

	"github.com/vkforge/forge/driver"
)

// Kind names a binding's shader-visible resource kind, independent of
// the underlying driver.DescType vocabulary (which distinguishes
// buffers/images/textures/samplers but not dynamic-offset buffers).
type Kind int

const (
	UniformBuffer Kind = iota
	UniformBufferDynamic
	StorageBuffer
	CombinedImageSampler2D
	CombinedImageSamplerCube
)

// descType maps a Kind to the driver.DescType it is built from. Both
// uniform-buffer kinds and both combined-image-sampler kinds share a
// driver type; the distinction only matters at descriptor-set-layout
// metadata level (dynamic offsets, image dimensionality) tracked
// alongside the Binding itself.
var descType = [...]driver.DescType{
	UniformBuffer:            driver.DConstant,
	UniformBufferDynamic:     driver.DConstant,
	StorageBuffer:            driver.DBuffer,
	CombinedImageSampler2D:   driver.DTexture,
	CombinedImageSamplerCube: driver.DTexture,
}

// Binding describes one binding slot of a descriptor-set layout.
type Binding struct {
	Kind   Kind
	Stages driver.Stage
	Nr     int
	Len    int
}

// hash computes the deduplication key for a set of bindings. Layout
// metadata is otherwise immutable once created, so hashing it once
// and keying the layout cache by the result is enough to guarantee
// that two Alloc calls with equivalent bindings share one
// driver.DescHeap.
func hashBindings(bs []Binding) uint64 {
	h := fnv.New64a()
	var b [5]byte
	for _, bd := range bs {
		b[0] = byte(bd.Kind)
		b[1] = byte(bd.Stages)
		b[2] = byte(bd.Nr)
		b[3] = byte(bd.Nr >> 8)
		b[4] = byte(bd.Len)
		h.Write(b[:])
	}
	return h.Sum64()
}

func toDriverDescs(bs []Binding) []driver.Descriptor {
	ds := make([]driver.Descriptor, len(bs))
	for i, bd := range bs {
		ds[i] = driver.Descriptor{
			Type:   descType[bd.Kind],
			Stages: bd.Stages,
			Nr:     bd.Nr,
			Len:    bd.Len,
		}
	}
	return ds
}
