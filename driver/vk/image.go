// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// image implements driver.Image.
type image struct {
	m      *memory
	img    vulkan.Image
	fmt    vulkan.Format
	subres vulkan.ImageSubresourceRange
	layout vulkan.ImageLayout
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	format := convPixelFmt(pf)
	scount := convSamples(samples)
	aspect := aspectOf(pf)

	var typ vulkan.ImageType
	var flags vulkan.ImageCreateFlagBits
	switch {
	case size.Depth > 1:
		if d.dvers >= vulkan.ApiVersion11 {
			flags |= vulkan.ImageCreate2DArrayCompatibleBit
		}
		typ = vulkan.ImageType3d
	case size.Height > 1:
		if samples == 1 {
			if size.Width == size.Height && layers >= 6 {
				flags |= vulkan.ImageCreateCubeCompatibleBit
			}
		}
		typ = vulkan.ImageType2d
	default:
		typ = vulkan.ImageType1d
	}

	var usage vulkan.ImageUsageFlagBits
	if usg&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		usage |= vulkan.ImageUsageStorageBit
	}
	if usg&driver.UShaderSample != 0 {
		usage |= vulkan.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if aspect == vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit) {
			usage |= vulkan.ImageUsageColorAttachmentBit
		} else {
			usage |= vulkan.ImageUsageDepthStencilAttachmentBit
		}
	}
	// At least one valid usage must have been set.
	if usage == 0 {
		// We panic here because this is certainly a
		// client error (i.e., this image is useless)
		// and also because the spec forbids creating
		// a view in this case.
		panic("cannot create image without a valid usage")
	}
	usage |= vulkan.ImageUsageTransferSrcBit
	usage |= vulkan.ImageUsageTransferDstBit

	var prop vulkan.ImageFormatProperties
	res := vulkan.GetPhysicalDeviceImageFormatProperties(d.pdev, format, typ, vulkan.ImageTilingOptimal,
		vulkan.ImageUsageFlags(usage), vulkan.ImageCreateFlags(flags), &prop)
	if err := checkResult(res); err != nil {
		return nil, err
	} else {
		prop.Deref()
		prop.MaxExtent.Deref()
		w := int(prop.MaxExtent.Width)
		h := int(prop.MaxExtent.Height)
		dp := int(prop.MaxExtent.Depth)
		ly := int(prop.MaxArrayLayers)
		lv := int(prop.MaxMipLevels)
		sc := vulkan.SampleCountFlagBits(prop.SampleCounts)
		if size.Width > w || size.Height > h || size.Depth > dp || layers > ly || levels > lv || scount&sc == 0 {
			// TODO: This error is a bit misleading.
			return nil, errUnsupportedFormat
		}
	}

	info := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		Flags:     vulkan.ImageCreateFlags(flags),
		ImageType: typ,
		Format:    format,
		Extent: vulkan.Extent3D{
			Width:  uint32(size.Width),
			Height: uint32(size.Height),
			Depth:  uint32(size.Depth),
		},
		MipLevels:     uint32(levels),
		ArrayLayers:   uint32(layers),
		Samples:       vulkan.SampleCountFlagBits(scount),
		Tiling:        vulkan.ImageTilingOptimal,
		Usage:         vulkan.ImageUsageFlags(usage),
		SharingMode:   vulkan.SharingModeExclusive,
		InitialLayout: vulkan.ImageLayoutUndefined,
	}
	var img vulkan.Image
	err := checkResult(vulkan.CreateImage(d.dev, &info, nil, &img))
	if err != nil {
		return nil, err
	}

	var req vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(d.dev, img, &req)
	req.Deref()
	m, err := d.newMemory(req, false)
	if err != nil {
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	err = checkResult(vulkan.BindImageMemory(d.dev, img, m.mem, 0))
	if err != nil {
		m.free()
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	m.bound = true

	im := &image{
		m:   m,
		img: img,
		fmt: format,
		subres: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(aspect),
			LevelCount: uint32(levels),
			LayerCount: uint32(layers),
		},
		layout: info.InitialLayout,
	}
	if err = im.transition(); err != nil {
		im.Destroy()
		return nil, err
	}
	return im, nil
}

// transition transitions the image to the general layout.
// TODO: Improve this.
func (im *image) transition() error {
	// TODO: Should put a lock here if this is ever going
	// to be used outside of NewImage.
	if im.layout == vulkan.ImageLayoutGeneral {
		return nil
	}
	ic, err := im.m.d.NewCmdBuffer()
	if err != nil {
		return err
	}
	cb := ic.(*cmdBuffer)
	defer cb.Destroy()
	if err := cb.Begin(); err != nil {
		return err
	}
	view := &imageView{i: im, subres: im.subres}
	cb.Transition([]driver.Transition{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SNone,
			SyncAfter:    driver.SAll,
			AccessBefore: driver.ANone,
			AccessAfter:  driver.AAnyRead | driver.AAnyWrite,
		},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCommon,
		IView:        view,
	}})
	if err := cb.End(); err != nil {
		return err
	}
	ch := make(chan error)
	im.m.d.Commit([]driver.CmdBuffer{cb}, ch)
	if err := <-ch; err != nil {
		return err
	}
	im.layout = vulkan.ImageLayoutGeneral
	return nil
}

// Destroy destroys the image.
func (im *image) Destroy() {
	if im == nil {
		return
	}
	if im.m != nil {
		vulkan.DestroyImage(im.m.d.dev, im.img, nil)
		im.m.free()
	}
	*im = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	i      *image     // Created from an image (s field is nil).
	s      *swapchain // Created from a swapchain (i field is nil).
	view   vulkan.ImageView
	subres vulkan.ImageSubresourceRange
}

// NewView creates a new image view.
func (im *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	var viewType vulkan.ImageViewType
	switch typ {
	case driver.IView1D:
		viewType = vulkan.ImageViewType1d
	case driver.IView2D, driver.IView2DMS:
		viewType = vulkan.ImageViewType2d
	case driver.IView3D:
		viewType = vulkan.ImageViewType3d
	case driver.IViewCube:
		viewType = vulkan.ImageViewTypeCube
	case driver.IView1DArray:
		viewType = vulkan.ImageViewType1dArray
	case driver.IView2DArray, driver.IView2DMSArray:
		viewType = vulkan.ImageViewType2dArray
	case driver.IViewCubeArray:
		viewType = vulkan.ImageViewTypeCubeArray
	}
	info := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: viewType,
		Format:   im.fmt,
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask:     im.subres.AspectMask,
			BaseMipLevel:   uint32(level),
			LevelCount:     uint32(levels),
			BaseArrayLayer: uint32(layer),
			LayerCount:     uint32(layers),
		},
	}
	var view vulkan.ImageView
	err := checkResult(vulkan.CreateImageView(im.m.d.dev, &info, nil, &view))
	if err != nil {
		return nil, err
	}
	return &imageView{
		i:      im,
		view:   view,
		subres: info.SubresourceRange,
	}, nil
}

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	if v.i != nil {
		vulkan.DestroyImageView(v.i.m.d.dev, v.view, nil)
	} else if v.s != nil {
		vulkan.DestroyImageView(v.s.d.dev, v.view, nil)
	}
	*v = imageView{}
}

// convPixelFmt converts a driver.PixelFmt to a vulkan.Format.
func convPixelFmt(pf driver.PixelFmt) vulkan.Format {
	if pf.IsInternal() {
		// The driver.FInternal bit is not set in any
		// of the Vulkan formats, so this hack works.
		return vulkan.Format(^driver.FInternal & pf)
	}

	switch pf {
	case driver.RGBA8un:
		return vulkan.FormatR8g8b8a8Unorm
	case driver.RGBA8n:
		return vulkan.FormatR8g8b8a8Snorm
	case driver.RGBA8sRGB:
		return vulkan.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vulkan.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vulkan.FormatB8g8r8a8Srgb
	case driver.RG8un:
		return vulkan.FormatR8g8Unorm
	case driver.RG8n:
		return vulkan.FormatR8g8Snorm
	case driver.R8un:
		return vulkan.FormatR8Unorm
	case driver.R8n:
		return vulkan.FormatR8Snorm

	case driver.RGBA16f:
		return vulkan.FormatR16g16b16a16Sfloat
	case driver.RG16f:
		return vulkan.FormatR16g16Sfloat
	case driver.R16f:
		return vulkan.FormatR16Sfloat

	case driver.RGBA32f:
		return vulkan.FormatR32g32b32a32Sfloat
	case driver.RG32f:
		return vulkan.FormatR32g32Sfloat
	case driver.R32f:
		return vulkan.FormatR32Sfloat

	case driver.D16un:
		return vulkan.FormatD16Unorm
	case driver.D32f:
		return vulkan.FormatD32Sfloat
	case driver.S8ui:
		return vulkan.FormatS8Uint
	case driver.D24unS8ui:
		return vulkan.FormatD24UnormS8Uint
	case driver.D32fS8ui:
		return vulkan.FormatD32SfloatS8Uint
	}

	// Expected to be unreachable.
	return vulkan.FormatUndefined
}

// internalFmt returns vf as an internal driver.PixelFmt.
func internalFmt(vf vulkan.Format) driver.PixelFmt { return driver.PixelFmt(vf) | driver.FInternal }

// convSamples converts a samples value to a vulkan.SampleCountFlagBits.
func convSamples(ns int) vulkan.SampleCountFlagBits {
	switch ns {
	case 1:
		return vulkan.SampleCount1Bit
	case 2:
		return vulkan.SampleCount2Bit
	case 4:
		return vulkan.SampleCount4Bit
	case 8:
		return vulkan.SampleCount8Bit
	case 16:
		return vulkan.SampleCount16Bit
	case 32:
		return vulkan.SampleCount32Bit
	case 64:
		return vulkan.SampleCount64Bit
	}

	// Expected to be unreachable.
	return ^vulkan.SampleCountFlagBits(0)
}

// aspectOf returns a vulkan.ImageAspectFlags identifying the aspects of
// a given driver.PixelFmt.
func aspectOf(pf driver.PixelFmt) vulkan.ImageAspectFlags {
	switch pf {
	case driver.D24unS8ui, driver.D32fS8ui:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	case driver.D16un, driver.D32f:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
	case driver.S8ui:
		return vulkan.ImageAspectFlags(vulkan.ImageAspectStencilBit)
	}
	return vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit)
}
