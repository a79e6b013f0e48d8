// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	m   *memory
	buf vulkan.Buffer
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	// TODO: Some of these usages may not be required.
	var u vulkan.BufferUsageFlagBits
	u |= vulkan.BufferUsageTransferSrcBit
	u |= vulkan.BufferUsageTransferDstBit
	u |= vulkan.BufferUsageIndirectBufferBit
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		u |= vulkan.BufferUsageStorageTexelBufferBit
		u |= vulkan.BufferUsageStorageBufferBit
	}
	if usg&driver.UShaderConst != 0 {
		u |= vulkan.BufferUsageUniformTexelBufferBit
		u |= vulkan.BufferUsageUniformBufferBit
	}
	if usg&driver.UVertexData != 0 {
		u |= vulkan.BufferUsageVertexBufferBit
	}
	if usg&driver.UIndexData != 0 {
		u |= vulkan.BufferUsageIndexBufferBit
	}

	info := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        vulkan.DeviceSize(size),
		Usage:       vulkan.BufferUsageFlags(u),
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buf vulkan.Buffer
	err := checkResult(vulkan.CreateBuffer(d.dev, &info, nil, &buf))
	if err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.dev, buf, &req)
	req.Deref()
	m, err := d.newMemory(req, visible)
	if err != nil {
		vulkan.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	err = checkResult(vulkan.BindBufferMemory(d.dev, buf, m.mem, 0))
	if err != nil {
		m.free()
		vulkan.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	m.bound = true
	if visible {
		// Keep the memory mapped for the lifetime of the buffer.
		if err = m.mmap(); err != nil {
			m.free()
			vulkan.DestroyBuffer(d.dev, buf, nil)
			return nil, err
		}
	}

	return &buffer{
		m:   m,
		buf: buf,
	}, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Bytes returns a slice of length b.Cap() referring to the underlying data.
func (b *buffer) Bytes() []byte { return b.m.p }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.m.size }

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil {
		return
	}
	if b.m != nil {
		vulkan.DestroyBuffer(b.m.d.dev, b.buf, nil)
		b.m.free()
	}
	*b = buffer{}
}
