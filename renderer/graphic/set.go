// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package graphic

import "github.com/vkforge/forge/renderer/desc"

// Set names one of the four legal descriptor set indices a Graphic's
// shaders may declare bindings in.
type Set int

const (
	Global Set = iota
	Graphic
	Draw
	Instance

	setCount
)

func (s Set) String() string {
	switch s {
	case Global:
		return "Global"
	case Graphic:
		return "Graphic"
	case Draw:
		return "Draw"
	case Instance:
		return "Instance"
	default:
		return "unknown"
	}
}

// maxBindings bounds the binding index within a single descriptor
// set, matching the fixed-size per-set allowed-binding tables below.
const maxBindings = 8

// kindMask is a bitmask of desc.Kind values legal at one binding slot.
type kindMask uint8

func maskOf(ks ...desc.Kind) kindMask {
	var m kindMask
	for _, k := range ks {
		m |= 1 << uint(k)
	}
	return m
}

func (m kindMask) allows(k desc.Kind) bool { return m&(1<<uint(k)) != 0 }

var (
	uniformOnly   = maskOf(desc.UniformBuffer)
	storageOnly   = maskOf(desc.StorageBuffer)
	sampler2DOnly = maskOf(desc.CombinedImageSampler2D)
	samplerAny    = maskOf(desc.CombinedImageSampler2D, desc.CombinedImageSamplerCube)
)

// allowedBindings enumerates, per set and per binding index, which
// desc.Kind values a shader may declare there. A zero mask means the
// binding index is unused by that set.
var allowedBindings = [setCount][maxBindings]kindMask{
	Global: {
		0: uniformOnly,
		1: sampler2DOnly,
		2: sampler2DOnly,
		3: sampler2DOnly,
		4: sampler2DOnly,
		5: sampler2DOnly,
	},
	Graphic: {
		0: storageOnly,
		1: samplerAny,
		2: samplerAny,
		3: samplerAny,
		4: samplerAny,
		5: samplerAny,
		6: samplerAny,
	},
	Draw: {
		0: uniformOnly,
		1: storageOnly,
		2: samplerAny,
	},
	Instance: {
		0: uniformOnly,
	},
}
