// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	d   *Driver
	mod vulkan.ShaderModule
}

// NewShaderCode creates a new shader code.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	n := len(data)
	// The spec mandates that the code size be a multiple of four.
	if n == 0 || n&3 != 0 {
		return nil, errors.New("vk: invalid shader code size")
	}
	info := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(n),
		PCode:    sliceUint32(data),
	}
	var mod vulkan.ShaderModule
	err := checkResult(vulkan.CreateShaderModule(d.dev, &info, nil, &mod))
	if err != nil {
		return nil, err
	}
	return &shaderCode{
		d:   d,
		mod: mod,
	}, nil
}

// sliceUint32 reinterprets a SPIR-V byte blob as a uint32 slice, as
// required by vulkan.ShaderModuleCreateInfo.PCode.
func sliceUint32(data []byte) []uint32 {
	u := make([]uint32, len(data)/4)
	for i := range u {
		u[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return u
}

// Destroy destroys the shader code.
func (c *shaderCode) Destroy() {
	if c == nil {
		return
	}
	if c.d != nil {
		vulkan.DestroyShaderModule(c.d.dev, c.mod, nil)
	}
	*c = shaderCode{}
}
