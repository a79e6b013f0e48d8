// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// descHeap implements driver.DescHeap.
type descHeap struct {
	d      *Driver
	layout vulkan.DescriptorSetLayout
	pool   vulkan.DescriptorPool
	sets   []vulkan.DescriptorSet
	ds     []driver.Descriptor

	// Number of descriptors of each type in ds.
	// These values are needed every time that new sets
	// are allocated, so we compute them once.
	nbuf   int
	nimg   int
	nconst int
	ntex   int
	nsplr  int
}

// NewDescHeap creates a new descriptor heap.
func (d *Driver) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	var nbuf, nimg, nconst, ntex, nsplr int
	binds := make([]vulkan.DescriptorSetLayoutBinding, len(ds))

	for i := range ds {
		switch ds[i].Type {
		case driver.DBuffer:
			nbuf += ds[i].Len
			binds[i].DescriptorType = vulkan.DescriptorTypeStorageBuffer
		case driver.DImage:
			nimg += ds[i].Len
			binds[i].DescriptorType = vulkan.DescriptorTypeStorageImage
		case driver.DConstant:
			nconst += ds[i].Len
			binds[i].DescriptorType = vulkan.DescriptorTypeUniformBuffer
		case driver.DTexture:
			ntex += ds[i].Len
			binds[i].DescriptorType = vulkan.DescriptorTypeSampledImage
		case driver.DSampler:
			nsplr += ds[i].Len
			binds[i].DescriptorType = vulkan.DescriptorTypeSampler
		}
		// Descriptor.Nr is the binding number in Vulkan, which must be
		// unique within a descriptor set.
		for j := i + 1; j < len(ds); j++ {
			if ds[i].Nr == ds[j].Nr {
				return nil, errors.New("descriptor number is not unique")
			}
		}
		binds[i].Binding = uint32(ds[i].Nr)
		binds[i].DescriptorCount = uint32(ds[i].Len)
		binds[i].StageFlags = convStage(ds[i].Stages)
	}

	info := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
	}
	if len(binds) > 0 {
		info.PBindings = binds
	}
	var layout vulkan.DescriptorSetLayout
	err := checkResult(vulkan.CreateDescriptorSetLayout(d.dev, &info, nil, &layout))
	if err != nil {
		return nil, err
	}
	// To avoid consuming memory needlessly, neither descHeap.pool
	// nor descHeap.sets are initialized here. Pool creation and
	// descriptor set allocation is left to New.
	return &descHeap{
		d:      d,
		layout: layout,
		ds:     ds,
		nbuf:   nbuf,
		nimg:   nimg,
		nconst: nconst,
		ntex:   ntex,
		nsplr:  nsplr,
	}, nil
}

// New creates enough storage for n copies of each descriptor.
// TODO: Check if using a shared pool improves performance.
func (h *descHeap) New(n int) error {
	switch {
	case n == len(h.sets):
		return nil
	case len(h.sets) == 0:
		// Nothing to destroy/free.
	default:
		vulkan.DestroyDescriptorPool(h.d.dev, h.pool, nil)
		h.sets = nil
		if n == 0 {
			return nil
		}
	}

	dc := [...]struct {
		typ vulkan.DescriptorType
		cnt uint32
	}{
		{vulkan.DescriptorTypeStorageBuffer, uint32(h.nbuf * n)},
		{vulkan.DescriptorTypeStorageImage, uint32(h.nimg * n)},
		{vulkan.DescriptorTypeUniformBuffer, uint32(h.nconst * n)},
		{vulkan.DescriptorTypeSampledImage, uint32(h.ntex * n)},
		{vulkan.DescriptorTypeSampler, uint32(h.nsplr * n)},
	}
	var sizes []vulkan.DescriptorPoolSize
	for i := range dc {
		if dc[i].cnt == 0 {
			continue
		}
		sizes = append(sizes, vulkan.DescriptorPoolSize{
			Type:            dc[i].typ,
			DescriptorCount: dc[i].cnt,
		})
	}

	info := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(n),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vulkan.DescriptorPool
	err := checkResult(vulkan.CreateDescriptorPool(h.d.dev, &info, nil, &pool))
	if err != nil {
		return err
	}

	layouts := make([]vulkan.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = h.layout
	}
	sets := make([]vulkan.DescriptorSet, n)
	sinfo := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(n),
		PSetLayouts:        layouts,
	}
	err = checkResult(vulkan.AllocateDescriptorSets(h.d.dev, &sinfo, sets))
	if err != nil {
		vulkan.DestroyDescriptorPool(h.d.dev, pool, nil)
		return err
	}
	h.pool = pool
	h.sets = sets
	return nil
}

// SetBuffer updates the buffer ranges referred by the given descriptor of
// the given heap copy.
func (h *descHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	s := make([]vulkan.DescriptorBufferInfo, len(buf))
	for i := range s {
		s[i] = vulkan.DescriptorBufferInfo{
			Buffer: buf[i].(*buffer).buf,
			Offset: vulkan.DeviceSize(off[i]),
			Range:  vulkan.DeviceSize(size[i]),
		}
	}
	write := vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(buf)),
		DescriptorType:  h.typeOf(nr),
		PBufferInfo:     s,
	}
	vulkan.UpdateDescriptorSets(h.d.dev, 1, []vulkan.WriteDescriptorSet{write}, 0, nil)
}

// SetImage updates the image views referred by the given descriptor of
// the given heap copy.
func (h *descHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	typ := h.typeOf(nr)
	var lay vulkan.ImageLayout
	if typ == vulkan.DescriptorTypeSampledImage {
		lay = vulkan.ImageLayoutShaderReadOnlyOptimal
	} else {
		lay = vulkan.ImageLayoutGeneral
	}
	s := make([]vulkan.DescriptorImageInfo, len(iv))
	for i := range s {
		s[i] = vulkan.DescriptorImageInfo{
			ImageView:   iv[i].(*imageView).view,
			ImageLayout: lay,
		}
	}
	write := vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(iv)),
		DescriptorType:  typ,
		PImageInfo:      s,
	}
	vulkan.UpdateDescriptorSets(h.d.dev, 1, []vulkan.WriteDescriptorSet{write}, 0, nil)
}

// SetSampler updates the samplers referred by the given descriptor of
// the given heap copy.
func (h *descHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	s := make([]vulkan.DescriptorImageInfo, len(splr))
	for i := range s {
		s[i] = vulkan.DescriptorImageInfo{Sampler: splr[i].(*sampler).splr}
	}
	write := vulkan.WriteDescriptorSet{
		SType:           vulkan.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(splr)),
		DescriptorType:  h.typeOf(nr),
		PImageInfo:      s,
	}
	vulkan.UpdateDescriptorSets(h.d.dev, 1, []vulkan.WriteDescriptorSet{write}, 0, nil)
}

// Count returns the number of heap copies created by New.
func (h *descHeap) Count() int { return len(h.sets) }

// Destroy destroys the descriptor heap.
func (h *descHeap) Destroy() {
	if h == nil {
		return
	}
	if h.d != nil {
		vulkan.DestroyDescriptorSetLayout(h.d.dev, h.layout, nil)
		// Note that h.pool is never cleared by New, just replaced.
		if len(h.sets) != 0 {
			vulkan.DestroyDescriptorPool(h.d.dev, h.pool, nil)
		}
	}
	*h = descHeap{}
}

// typeOf returns the vulkan.DescriptorType of the descriptor in h
// identified by the binding descNr.
func (h *descHeap) typeOf(descNr int) vulkan.DescriptorType {
	var typ vulkan.DescriptorType
	for i := range h.ds {
		if h.ds[i].Nr != descNr {
			continue
		}
		switch h.ds[i].Type {
		case driver.DBuffer:
			typ = vulkan.DescriptorTypeStorageBuffer
		case driver.DImage:
			typ = vulkan.DescriptorTypeStorageImage
		case driver.DConstant:
			typ = vulkan.DescriptorTypeUniformBuffer
		case driver.DTexture:
			typ = vulkan.DescriptorTypeSampledImage
		case driver.DSampler:
			typ = vulkan.DescriptorTypeSampler
		}
		break
	}
	return typ
}

// descTable implements driver.DescTable.
type descTable struct {
	d      *Driver
	h      []*descHeap
	layout vulkan.PipelineLayout
}

// NewDescTable creates a new descriptor table.
func (d *Driver) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	h := make([]*descHeap, len(dh))
	for i := range h {
		h[i] = dh[i].(*descHeap)
	}
	sl := make([]vulkan.DescriptorSetLayout, len(h))
	for i := range h {
		sl[i] = h[i].layout
	}
	info := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(h)),
	}
	if len(sl) > 0 {
		info.PSetLayouts = sl
	}
	var layout vulkan.PipelineLayout
	err := checkResult(vulkan.CreatePipelineLayout(d.dev, &info, nil, &layout))
	if err != nil {
		return nil, err
	}
	return &descTable{
		d:      d,
		h:      h,
		layout: layout,
	}, nil
}

// Destroy destroys the descriptor table.
func (t *descTable) Destroy() {
	if t == nil {
		return
	}
	if t.d != nil {
		vulkan.DestroyPipelineLayout(t.d.dev, t.layout, nil)
	}
	*t = descTable{}
}

// convStage converts a driver.Stage to a vulkan.ShaderStageFlags.
func convStage(stg driver.Stage) (flags vulkan.ShaderStageFlags) {
	if stg&driver.SVertex != 0 {
		flags |= vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit)
	}
	if stg&driver.SFragment != 0 {
		flags |= vulkan.ShaderStageFlags(vulkan.ShaderStageFragmentBit)
	}
	if stg&driver.SCompute != 0 {
		flags |= vulkan.ShaderStageFlags(vulkan.ShaderStageComputeBit)
	}
	return
}
