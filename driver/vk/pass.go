// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// renderPass implements driver.RenderPass.
type renderPass struct {
	d    *Driver
	pass vulkan.RenderPass
	// Aspect of each attachment.
	aspect []vulkan.ImageAspectFlags
	// Number of color attachments used by
	// each subpass.
	ncolor []int
}

// NewRenderPass creates a new render pass.
func (d *Driver) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	// Render passes need not have any attachments, but they
	// must have at least one subpass.
	satt := make([]vulkan.AttachmentDescription, len(att))
	for i := range satt {
		satt[i] = vulkan.AttachmentDescription{
			Format:         convPixelFmt(att[i].Format),
			Samples:        convSamples(att[i].Samples),
			LoadOp:         convLoadOp(att[i].Load[0]),
			StoreOp:        convStoreOp(att[i].Store[0]),
			StencilLoadOp:  convLoadOp(att[i].Load[1]),
			StencilStoreOp: convStoreOp(att[i].Store[1]),
			InitialLayout:  vulkan.ImageLayoutGeneral,
			FinalLayout:    vulkan.ImageLayoutGeneral,
		}
	}

	ssub := make([]vulkan.SubpassDescription, len(sub))
	// All attachment references for every subpass, kept alive
	// for the duration of vulkan.CreateRenderPass.
	var allRef [][]vulkan.AttachmentReference
	var allPre [][]uint32

	if len(att) > 0 {
		// We will preserve anything that is not used by a subpass.
		noPre := make([]bool, len(att))

		for i := range ssub {
			var ref []vulkan.AttachmentReference
			var clrRef, dsRef []vulkan.AttachmentReference
			for _, k := range sub[i].Color {
				clrRef = append(clrRef, vulkan.AttachmentReference{
					Attachment: uint32(k),
					Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
				})
				noPre[k] = true
			}
			if sub[i].DS >= 0 && sub[i].DS < len(att) {
				dsRef = []vulkan.AttachmentReference{{
					Attachment: uint32(sub[i].DS),
					Layout:     vulkan.ImageLayoutDepthStencilAttachmentOptimal,
				}}
				noPre[sub[i].DS] = true
			}
			var resRef []vulkan.AttachmentReference
			// TODO: Depth/stencil resolve.
			for _, k := range sub[i].MSR {
				if k >= 0 && k < len(att) {
					resRef = append(resRef, vulkan.AttachmentReference{
						Attachment: uint32(k),
						Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
					})
					noPre[k] = true
				} else {
					resRef = append(resRef, vulkan.AttachmentReference{
						Attachment: vulkan.AttachmentUnused,
						Layout:     vulkan.ImageLayoutUndefined,
					})
				}
			}
			var pre []uint32
			for j := range noPre {
				if !noPre[j] {
					pre = append(pre, uint32(j))
				} else {
					noPre[j] = false
				}
			}
			ref = append(ref, clrRef...)
			allRef = append(allRef, ref)
			allPre = append(allPre, pre)

			desc := vulkan.SubpassDescription{
				PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
				ColorAttachmentCount: uint32(len(clrRef)),
			}
			if len(clrRef) > 0 {
				desc.PColorAttachments = clrRef
			}
			if len(resRef) > 0 {
				desc.PResolveAttachments = resRef
			}
			if len(dsRef) > 0 {
				desc.PDepthStencilAttachment = &dsRef[0]
			}
			if len(pre) > 0 {
				desc.PreserveAttachmentCount = uint32(len(pre))
				desc.PPreserveAttachments = pre
			}
			ssub[i] = desc
		}
	} else {
		// This is a render pass with no render targets.
		for i := range ssub {
			ssub[i] = vulkan.SubpassDescription{PipelineBindPoint: vulkan.PipelineBindPointGraphics}
		}
	}

	// In the worst case, we will have half the subpasses running in
	// parallel with external dependencies while the other half, also
	// running in parallel, waits for the first half to complete.
	// This translates to a lot of dependencies.
	maxDep := (len(sub) + len(sub)&1) / 2
	maxDep = maxDep + maxDep*maxDep
	sdep := make([]vulkan.SubpassDependency, 0, maxDep)

	// TODO: Improve this.
	const srcStg = vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	const dstStg = vulkan.PipelineStageFlags(vulkan.PipelineStageDrawIndirectBit)
	const srcAcc = vulkan.AccessFlags(vulkan.AccessMemoryWriteBit)
	const dstAcc = vulkan.AccessFlags(vulkan.AccessMemoryWriteBit | vulkan.AccessMemoryReadBit)

	var iwait, idep int
	if len(sub) > 0 && sub[0].Wait {
		// Wait in the first subpass is treated as external dependency.
		sdep = append(sdep, vulkan.SubpassDependency{
			SrcSubpass:    vulkan.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  srcStg,
			DstStageMask:  dstStg,
			SrcAccessMask: srcAcc,
			DstAccessMask: dstAcc,
		})
		idep++
	}
	for i := 1; i < len(sub); i++ {
		switch {
		case sub[i].Wait:
			// This subpass can only start executing when all the
			// previous ones have finished.
			for j := iwait; j < i; j++ {
				sdep = append(sdep, vulkan.SubpassDependency{
					SrcSubpass:    uint32(j),
					DstSubpass:    uint32(i),
					SrcStageMask:  srcStg,
					DstStageMask:  dstStg,
					SrcAccessMask: srcAcc,
					DstAccessMask: dstAcc,
				})
			}
			iwait = i
			idep = len(sdep)
		case len(sdep) > 0:
			// This subpass can execute in parallel with the
			// previous ones, but must wait along with them.
			for j := idep - 1; j >= 0 && sdep[j].DstSubpass == uint32(iwait); j-- {
				sdep = append(sdep, vulkan.SubpassDependency{
					SrcSubpass:    sdep[j].SrcSubpass,
					DstSubpass:    uint32(i),
					SrcStageMask:  srcStg,
					DstStageMask:  dstStg,
					SrcAccessMask: srcAcc,
					DstAccessMask: dstAcc,
				})
			}
		default:
			continue
		}
	}

	info := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(satt)),
		SubpassCount:    uint32(len(ssub)),
		PSubpasses:      ssub,
		DependencyCount: uint32(len(sdep)),
	}
	if len(satt) > 0 {
		info.PAttachments = satt
	}
	if len(sdep) > 0 {
		info.PDependencies = sdep
	}
	var pass vulkan.RenderPass
	if err := checkResult(vulkan.CreateRenderPass(d.dev, &info, nil, &pass)); err != nil {
		return nil, err
	}

	// Image aspect is needed when clearing attachments in a render pass.
	aspect := make([]vulkan.ImageAspectFlags, len(att))
	for i := range aspect {
		aspect[i] = aspectOf(att[i].Format)
	}
	// Color count is needed when defining the color blend state.
	ncolor := make([]int, len(sub))
	for i := range ncolor {
		ncolor[i] = len(sub[i].Color)
	}
	return &renderPass{
		d:      d,
		pass:   pass,
		aspect: aspect,
		ncolor: ncolor,
	}, nil
}

// Destroy destroys the render pass.
func (p *renderPass) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vulkan.DestroyRenderPass(p.d.dev, p.pass, nil)
	}
	*p = renderPass{}
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	p      *renderPass
	fb     vulkan.Framebuffer
	width  int
	height int
}

// NewFB creates a new framebuffer.
func (p *renderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	view := make([]vulkan.ImageView, len(iv))
	for i := range iv {
		v, _ := iv[i].(*imageView)
		if v == nil {
			return nil, errors.New("nil image view")
		}
		view[i] = v.view
	}
	info := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.pass,
		AttachmentCount: uint32(len(view)),
		Width:           uint32(width),
		Height:          uint32(height),
		Layers:          uint32(layers),
	}
	if len(view) > 0 {
		info.PAttachments = view
	}
	var fb vulkan.Framebuffer
	if err := checkResult(vulkan.CreateFramebuffer(p.d.dev, &info, nil, &fb)); err != nil {
		return nil, err
	}
	return &framebuf{
		p:      p,
		fb:     fb,
		width:  width,
		height: height,
	}, nil
}

// Destroy destroys the framebuffer.
func (f *framebuf) Destroy() {
	if f == nil {
		return
	}
	if f.p != nil {
		vulkan.DestroyFramebuffer(f.p.d.dev, f.fb, nil)
	}
	*f = framebuf{}
}
