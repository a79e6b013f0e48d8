// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// sampler implements driver.Sampler.
type sampler struct {
	d    *Driver
	splr vulkan.Sampler
}

// NewSampler creates a new sampler.
func (d *Driver) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	info := vulkan.SamplerCreateInfo{
		SType:        vulkan.StructureTypeSamplerCreateInfo,
		MagFilter:    convFilter(spln.Mag),
		MinFilter:    convFilter(spln.Min),
		MipmapMode:   convMipFilter(spln.Mipmap),
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		// TODO: Anisotropy is a feature - disable it for now.
		CompareEnable: vulkan.True,
		CompareOp:     convCmpFunc(spln.Cmp),
		MinLod:        spln.MinLOD,
		MaxLod:        spln.MaxLOD,
		BorderColor:   vulkan.BorderColorFloatOpaqueBlack,
	}
	var splr vulkan.Sampler
	err := checkResult(vulkan.CreateSampler(d.dev, &info, nil, &splr))
	if err != nil {
		return nil, err
	}
	return &sampler{
		d:    d,
		splr: splr,
	}, nil
}

// Destroy destroys the sampler.
func (s *sampler) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		vulkan.DestroySampler(s.d.dev, s.splr, nil)
	}
	*s = sampler{}
}

// convFilter converts a driver.Filter to a vulkan.Filter.
func convFilter(f driver.Filter) vulkan.Filter {
	switch f {
	case driver.FNearest:
		return vulkan.FilterNearest
	case driver.FLinear:
		return vulkan.FilterLinear
	}

	// Expected to be unreachable.
	return ^vulkan.Filter(0)
}

// convMipFilter converts a driver.Filter to a vulkan.SamplerMipmapMode.
func convMipFilter(f driver.Filter) vulkan.SamplerMipmapMode {
	switch f {
	case driver.FNoMipmap, driver.FNearest:
		return vulkan.SamplerMipmapModeNearest
	case driver.FLinear:
		return vulkan.SamplerMipmapModeLinear
	}

	// Expected to be unreachable.
	return ^vulkan.SamplerMipmapMode(0)
}

// convAddrMode converts a driver.AddrMode to a vulkan.SamplerAddressMode.
func convAddrMode(am driver.AddrMode) vulkan.SamplerAddressMode {
	switch am {
	case driver.AWrap:
		return vulkan.SamplerAddressModeRepeat
	case driver.AMirror:
		return vulkan.SamplerAddressModeMirroredRepeat
	case driver.AClamp:
		return vulkan.SamplerAddressModeClampToEdge
	}

	// Expected to be unreachable.
	return ^vulkan.SamplerAddressMode(0)
}

// convCmpFunc converts a driver.CmpFunc to a vulkan.CompareOp.
func convCmpFunc(cf driver.CmpFunc) vulkan.CompareOp {
	switch cf {
	case driver.CNever:
		return vulkan.CompareOpNever
	case driver.CLess:
		return vulkan.CompareOpLess
	case driver.CEqual:
		return vulkan.CompareOpEqual
	case driver.CLessEqual:
		return vulkan.CompareOpLessOrEqual
	case driver.CGreater:
		return vulkan.CompareOpGreater
	case driver.CNotEqual:
		return vulkan.CompareOpNotEqual
	case driver.CGreaterEqual:
		return vulkan.CompareOpGreaterOrEqual
	case driver.CAlways:
		return vulkan.CompareOpAlways
	}

	// Expected to be unreachable.
	return ^vulkan.CompareOp(0)
}
