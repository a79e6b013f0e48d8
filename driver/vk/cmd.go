// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	d      *Driver
	qfam   uint32
	pool   vulkan.CommandPool
	cb     vulkan.CommandBuffer
	status cbStatus
	err    error // Why cbFailed.
	pres   []presentOp
}

// cbStatus represents the status of the
// command buffer at a given time.
type cbStatus int

// cbStatus constants.
const (
	// Yet to begun.
	// Set after creation, committing and
	// resetting.
	cbIdle cbStatus = iota
	// Ready to record commands.
	// Set after a successful call to Begin.
	cbBegun
	// Ready to be committed.
	// Set after a successful call to End.
	cbEnded
	// Ongoing commit.
	// Set during a call to Commit.
	cbCommitted
	// Command recording failed.
	// Set when a command cannot be recorded.
	cbFailed
)

// presentOp defines the association between an ongoing
// present operation and a rendering command buffer.
// swapchain.Next and swapchain.Present append a presentOp to
// the command buffer's pres slice identifying the acquire/
// present semaphores that the queue submission in Commit must
// wait on and/or signal.
type presentOp struct {
	sc        *swapchain
	view      int
	wait      bool // Rendering must wait on waitSem.
	signal    bool // Rendering must signal signalSem.
	waitSem   vulkan.Semaphore
	signalSem vulkan.Semaphore
}

// NewCmdBuffer creates a new command buffer.
// Its pool is created using d.qfam.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	return d.newCmdBuffer(d.qfam)
}

// newCmdBuffer creates a new command buffer.
// The command buffer handle is allocated from an exclusive command pool.
// It must only be submitted to d.ques[qfam].
func (d *Driver) newCmdBuffer(qfam uint32) (driver.CmdBuffer, error) {
	var pool vulkan.CommandPool
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: qfam,
	}
	err := checkResult(vulkan.CreateCommandPool(d.dev, &poolInfo, nil, &pool))
	if err != nil {
		return nil, err
	}
	cbs := make([]vulkan.CommandBuffer, 1)
	cbInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	err = checkResult(vulkan.AllocateCommandBuffers(d.dev, &cbInfo, cbs))
	if err != nil {
		vulkan.DestroyCommandPool(d.dev, pool, nil)
		return nil, err
	}
	return &cmdBuffer{
		d:    d,
		qfam: qfam,
		pool: pool,
		cb:   cbs[0],
	}, nil
}

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	switch cb.status {
	case cbIdle:
		info := vulkan.CommandBufferBeginInfo{
			SType: vulkan.StructureTypeCommandBufferBeginInfo,
			Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
		}
		err := checkResult(vulkan.BeginCommandBuffer(cb.cb, &info))
		if err != nil {
			return err
		}
		cb.status = cbBegun
		return nil
	case cbBegun, cbFailed:
		// Note that cbFailed is handled on End.
		return nil
	}
	// Client error.
	panic("invalid call to CmdBuffer.Begin")
}

// End ends command recording and prepares the command buffer for execution.
func (cb *cmdBuffer) End() error {
	switch cb.status {
	case cbBegun:
		if err := checkResult(vulkan.EndCommandBuffer(cb.cb)); err != nil {
			// Calling Begin implicitly resets cb.cb.
			cb.status = cbIdle
			cb.detachSC()
			return err
		}
		cb.status = cbEnded
		return nil
	case cbEnded:
		return nil
	case cbFailed:
		vulkan.EndCommandBuffer(cb.cb)
		vulkan.ResetCommandBuffer(cb.cb, 0)
		cb.status = cbIdle
		cb.detachSC()
		if cb.err == nil {
			panic("unexpected nil error in failed command recording")
		}
		return cb.err
	}
	// Client error.
	panic("invalid call to CmdBuffer.End")
}

// Reset discards all recorded commands from the command buffer.
func (cb *cmdBuffer) Reset() error {
	switch cb.status {
	case cbCommitted:
		// Client error.
		panic("invalid call to CmdBuffer.Reset")
	case cbBegun, cbFailed:
		// Need to end recording before resetting.
		vulkan.EndCommandBuffer(cb.cb)
		fallthrough
	default:
		// In case of failure here, we can rely on the implicit
		// reset done during Begin.
		cb.status = cbIdle
		cb.detachSC()
		err := checkResult(vulkan.ResetCommandBuffer(cb.cb, 0))
		if err != nil {
			return err
		}
		return nil
	}
}

// Barrier inserts a number of global barriers in the command buffer.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	mb := make([]vulkan.MemoryBarrier, len(b))
	var srcStage, dstStage vulkan.PipelineStageFlagBits
	for i := range b {
		mb[i] = vulkan.MemoryBarrier{
			SType:         vulkan.StructureTypeMemoryBarrier,
			SrcAccessMask: vulkan.AccessFlags(convAccess(b[i].AccessBefore)),
			DstAccessMask: vulkan.AccessFlags(convAccess(b[i].AccessAfter)),
		}
		srcStage |= convSync(b[i].SyncBefore)
		dstStage |= convSync(b[i].SyncAfter)
	}
	vulkan.CmdPipelineBarrier(cb.cb,
		vulkan.PipelineStageFlags(srcStage), vulkan.PipelineStageFlags(dstStage), 0,
		uint32(len(mb)), mb, 0, nil, 0, nil)
}

// Transition inserts a number of image layout transitions in the
// command buffer.
// Swapchain-backed views must not be passed here - synchronization
// for these is handled internally by swapchain.Next/Present, which
// record their own barriers through scBarrier.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	ib := make([]vulkan.ImageMemoryBarrier, len(t))
	var srcStage, dstStage vulkan.PipelineStageFlagBits
	for i := range t {
		view := t[i].IView.(*imageView)
		ib[i] = vulkan.ImageMemoryBarrier{
			SType:               vulkan.StructureTypeImageMemoryBarrier,
			SrcAccessMask:        vulkan.AccessFlags(convAccess(t[i].AccessBefore)),
			DstAccessMask:        vulkan.AccessFlags(convAccess(t[i].AccessAfter)),
			OldLayout:            convLayout(t[i].LayoutBefore),
			NewLayout:            convLayout(t[i].LayoutAfter),
			SrcQueueFamilyIndex:  vulkan.QueueFamilyIgnored,
			DstQueueFamilyIndex:  vulkan.QueueFamilyIgnored,
			SubresourceRange:     view.subres,
			Image:                view.i.img,
		}
		srcStage |= convSync(t[i].SyncBefore)
		dstStage |= convSync(t[i].SyncAfter)
	}
	vulkan.CmdPipelineBarrier(cb.cb,
		vulkan.PipelineStageFlags(srcStage), vulkan.PipelineStageFlags(dstStage), 0,
		0, nil, 0, nil, uint32(len(ib)), ib)
}

// scBarrier inserts a single image layout transition targeting a
// swapchain-backed view, recording the presentOp needed for Commit
// to wire up the acquire/present semaphores of the queue submission.
// It is called only by swapchain.Next and swapchain.Present.
func (cb *cmdBuffer) scBarrier(s *swapchain, viewIdx int, layBefore, layAfter vulkan.ImageLayout,
	accBefore, accAfter vulkan.AccessFlagBits, stgBefore, stgAfter vulkan.PipelineStageFlagBits,
	wait, signal bool, waitSem, signalSem vulkan.Semaphore) {

	ib := vulkan.ImageMemoryBarrier{
		SType:               vulkan.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vulkan.AccessFlags(accBefore),
		DstAccessMask:       vulkan.AccessFlags(accAfter),
		OldLayout:           layBefore,
		NewLayout:           layAfter,
		SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		Image:               s.imgs[viewIdx],
		SubresourceRange:    s.views[viewIdx].(*imageView).subres,
	}
	vulkan.CmdPipelineBarrier(cb.cb,
		vulkan.PipelineStageFlags(stgBefore), vulkan.PipelineStageFlags(stgAfter), 0,
		0, nil, 0, nil, 1, []vulkan.ImageMemoryBarrier{ib})

	presIdx := 0
	for ; presIdx < len(cb.pres); presIdx++ {
		if cb.pres[presIdx].sc == s && cb.pres[presIdx].view == viewIdx {
			break
		}
	}
	if presIdx == len(cb.pres) {
		cb.pres = append(cb.pres, presentOp{sc: s, view: viewIdx})
	}
	if wait {
		cb.pres[presIdx].wait = true
		cb.pres[presIdx].waitSem = waitSem
	}
	if signal {
		cb.pres[presIdx].signal = true
		cb.pres[presIdx].signalSem = signalSem
	}
}

// BeginPass begins the first subpass of a given render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	p := pass.(*renderPass)
	f := fb.(*framebuf)
	cv := make([]vulkan.ClearValue, len(clear))
	for i := range clear {
		if p.aspect[i]&vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit) != 0 {
			cv[i].SetColor(clear[i].Color[:])
		} else {
			cv[i].SetDepthStencil(clear[i].Depth, clear[i].Stencil)
		}
	}
	info := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.pass,
		Framebuffer: f.fb,
		RenderArea: vulkan.Rect2D{
			Extent: vulkan.Extent2D{Width: uint32(f.width), Height: uint32(f.height)},
		},
		ClearValueCount: uint32(len(cv)),
	}
	if len(cv) > 0 {
		info.PClearValues = cv
	}
	vulkan.CmdBeginRenderPass(cb.cb, &info, vulkan.SubpassContentsInline)
}

// NextSubpass ends the current subpass and begins the next one.
func (cb *cmdBuffer) NextSubpass() {
	vulkan.CmdNextSubpass(cb.cb, vulkan.SubpassContentsInline)
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	vulkan.CmdEndRenderPass(cb.cb)
}

// BeginWork begins compute work.
// If wait is set, compute work only starts when all previous
// commands recorded in the same command buffer are done executing.
func (cb *cmdBuffer) BeginWork(wait bool) {
	if !wait {
		return
	}
	mb := vulkan.MemoryBarrier{
		SType:         vulkan.StructureTypeMemoryBarrier,
		SrcAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryWriteBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryReadBit | vulkan.AccessMemoryWriteBit),
	}
	vulkan.CmdPipelineBarrier(cb.cb,
		vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit),
		vulkan.PipelineStageFlags(vulkan.PipelineStageComputeShaderBit),
		0, 1, []vulkan.MemoryBarrier{mb}, 0, nil, 0, nil)
}

// EndWork ends the current compute work.
func (cb *cmdBuffer) EndWork() {}

// BeginBlit begins data transfer.
// If wait is set, data transfer only starts when all previous
// commands recorded in the same command buffer are done executing.
func (cb *cmdBuffer) BeginBlit(wait bool) {
	if !wait {
		return
	}
	mb := vulkan.MemoryBarrier{
		SType:         vulkan.StructureTypeMemoryBarrier,
		SrcAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryWriteBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessMemoryReadBit | vulkan.AccessMemoryWriteBit),
	}
	vulkan.CmdPipelineBarrier(cb.cb,
		vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit),
		vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
		0, 1, []vulkan.MemoryBarrier{mb}, 0, nil, 0, nil)
}

// EndBlit ends the current data transfer.
func (cb *cmdBuffer) EndBlit() {}

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	pipeln := pl.(*pipeline)
	vulkan.CmdBindPipeline(cb.cb, pipeln.bindp, pipeln.pl)
}

// SetViewport sets the bounds of one or more viewports.
func (cb *cmdBuffer) SetViewport(vp []driver.Viewport) {
	vport := make([]vulkan.Viewport, len(vp))
	for i := range vport {
		vport[i] = vulkan.Viewport{
			X:        vp[i].X,
			Y:        vp[i].Y,
			Width:    vp[i].Width,
			Height:   vp[i].Height,
			MinDepth: vp[i].Znear,
			MaxDepth: vp[i].Zfar,
		}
	}
	vulkan.CmdSetViewport(cb.cb, 0, uint32(len(vport)), vport)
}

// SetScissor sets the rectangles of one or more viewport scissors.
func (cb *cmdBuffer) SetScissor(sciss []driver.Scissor) {
	rect := make([]vulkan.Rect2D, len(sciss))
	for i := range rect {
		rect[i] = vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: int32(sciss[i].X), Y: int32(sciss[i].Y)},
			Extent: vulkan.Extent2D{Width: uint32(sciss[i].Width), Height: uint32(sciss[i].Height)},
		}
	}
	vulkan.CmdSetScissor(cb.cb, 0, uint32(len(rect)), rect)
}

// SetBlendColor sets the constant blend color.
func (cb *cmdBuffer) SetBlendColor(r, g, b, a float32) {
	vulkan.CmdSetBlendConstants(cb.cb, [4]float32{r, g, b, a})
}

// SetStencilRef sets the stencil reference value.
func (cb *cmdBuffer) SetStencilRef(value uint32) {
	vulkan.CmdSetStencilReference(cb.cb, vulkan.StencilFaceFlags(vulkan.StencilFrontAndBack), value)
}

// SetVertexBuf sets one or more vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	sbuf := make([]vulkan.Buffer, len(buf))
	soff := make([]vulkan.DeviceSize, len(buf))
	for i := range sbuf {
		sbuf[i] = buf[i].(*buffer).buf
		soff[i] = vulkan.DeviceSize(off[i])
	}
	vulkan.CmdBindVertexBuffers(cb.cb, uint32(start), uint32(len(sbuf)), sbuf, soff)
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	var typ vulkan.IndexType
	switch format {
	case driver.Index16:
		typ = vulkan.IndexTypeUint16
	case driver.Index32:
		typ = vulkan.IndexTypeUint32
	}
	vulkan.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vulkan.DeviceSize(off), typ)
}

// SetDescTableGraph sets a descriptor table range for graphics pipelines.
func (cb *cmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	cb.setDescTable(table, start, heapCopy, vulkan.PipelineBindPointGraphics)
}

// SetDescTableComp sets a descriptor table range for compute pipelines.
func (cb *cmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	cb.setDescTable(table, start, heapCopy, vulkan.PipelineBindPointCompute)
}

// setDescTable sets a descriptor table range for a given bind point.
func (cb *cmdBuffer) setDescTable(table driver.DescTable, start int, heapCopy []int, bindPoint vulkan.PipelineBindPoint) {
	desc := table.(*descTable)
	set := make([]vulkan.DescriptorSet, len(heapCopy))
	for i := range set {
		set[i] = desc.h[start+i].sets[heapCopy[i]]
	}
	vulkan.CmdBindDescriptorSets(cb.cb, bindPoint, desc.layout, uint32(start), uint32(len(set)), set, 0, nil)
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	vulkan.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	vulkan.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	vulkan.CmdDispatch(cb.cb, uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cpy := vulkan.BufferCopy{
		SrcOffset: vulkan.DeviceSize(param.FromOff),
		DstOffset: vulkan.DeviceSize(param.ToOff),
		Size:      vulkan.DeviceSize(param.Size),
	}
	vulkan.CmdCopyBuffer(cb.cb, param.From.(*buffer).buf, param.To.(*buffer).buf, 1, []vulkan.BufferCopy{cpy})
}

// CopyImage copies data between images.
func (cb *cmdBuffer) CopyImage(param *driver.ImageCopy) {
	from := param.From.(*image)
	to := param.To.(*image)
	cpy := vulkan.ImageCopy{
		SrcSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     from.subres.AspectMask,
			MipLevel:       uint32(param.FromLevel),
			BaseArrayLayer: uint32(param.FromLayer),
			LayerCount:     uint32(param.Layers),
		},
		SrcOffset: vulkan.Offset3D{X: int32(param.FromOff.X), Y: int32(param.FromOff.Y), Z: int32(param.FromOff.Z)},
		DstSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     to.subres.AspectMask,
			MipLevel:       uint32(param.ToLevel),
			BaseArrayLayer: uint32(param.ToLayer),
			LayerCount:     uint32(param.Layers),
		},
		DstOffset: vulkan.Offset3D{X: int32(param.ToOff.X), Y: int32(param.ToOff.Y), Z: int32(param.ToOff.Z)},
		Extent: vulkan.Extent3D{
			Width:  uint32(param.Size.Width),
			Height: uint32(param.Size.Height),
			Depth:  uint32(param.Size.Depth),
		},
	}
	const (
		slayout = vulkan.ImageLayoutTransferSrcOptimal
		dlayout = vulkan.ImageLayoutTransferDstOptimal
	)
	vulkan.CmdCopyImage(cb.cb, from.img, slayout, to.img, dlayout, 1, []vulkan.ImageCopy{cpy})
}

// CopyBufToImg copies data from a buffer to an image.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	buf := param.Buf.(*buffer)
	img := param.Img.(*image)
	aspect := bufImgAspect(img, param.DepthCopy)
	cpy := vulkan.BufferImageCopy{
		BufferOffset:      vulkan.DeviceSize(param.BufOff),
		BufferRowLength:   uint32(param.Stride[0]),
		BufferImageHeight: uint32(param.Stride[1]),
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       uint32(param.Level),
			BaseArrayLayer: uint32(param.Layer),
			LayerCount:     1,
		},
		ImageOffset: vulkan.Offset3D{X: int32(param.ImgOff.X), Y: int32(param.ImgOff.Y), Z: int32(param.ImgOff.Z)},
		ImageExtent: vulkan.Extent3D{
			Width:  uint32(param.Size.Width),
			Height: uint32(param.Size.Height),
			Depth:  uint32(param.Size.Depth),
		},
	}
	const layout = vulkan.ImageLayoutTransferDstOptimal
	vulkan.CmdCopyBufferToImage(cb.cb, buf.buf, img.img, layout, 1, []vulkan.BufferImageCopy{cpy})
}

// CopyImgToBuf copies data from an image to a buffer.
func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	img := param.Img.(*image)
	buf := param.Buf.(*buffer)
	aspect := bufImgAspect(img, param.DepthCopy)
	cpy := vulkan.BufferImageCopy{
		BufferOffset:      vulkan.DeviceSize(param.BufOff),
		BufferRowLength:   uint32(param.Stride[0]),
		BufferImageHeight: uint32(param.Stride[1]),
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       uint32(param.Level),
			BaseArrayLayer: uint32(param.Layer),
			LayerCount:     1,
		},
		ImageOffset: vulkan.Offset3D{X: int32(param.ImgOff.X), Y: int32(param.ImgOff.Y), Z: int32(param.ImgOff.Z)},
		ImageExtent: vulkan.Extent3D{
			Width:  uint32(param.Size.Width),
			Height: uint32(param.Size.Height),
			Depth:  uint32(param.Size.Depth),
		},
	}
	const layout = vulkan.ImageLayoutTransferSrcOptimal
	vulkan.CmdCopyImageToBuffer(cb.cb, img.img, layout, buf.buf, 1, []vulkan.BufferImageCopy{cpy})
}

// bufImgAspect resolves which aspect a buffer/image copy touches for
// combined depth-stencil formats, where a single copy may only ever
// target one of the two planes.
func bufImgAspect(img *image, depthCopy bool) vulkan.ImageAspectFlags {
	const dsBits = vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit)
	if img.subres.AspectMask == dsBits {
		if depthCopy {
			return vulkan.ImageAspectFlags(vulkan.ImageAspectDepthBit)
		}
		return vulkan.ImageAspectFlags(vulkan.ImageAspectStencilBit)
	}
	return img.subres.AspectMask
}

// Fill fills a buffer range with copies of a byte value.
func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	val := uint32(value)
	val |= val<<24 | val<<16 | val<<8
	vulkan.CmdFillBuffer(cb.cb, buf.(*buffer).buf, vulkan.DeviceSize(off), vulkan.DeviceSize(size), val)
}

// detachSC clears any existing dependencies between the
// command buffer and swapchains.
// cb.pres is set to contain no elements.
func (cb *cmdBuffer) detachSC() {
	for i := range cb.pres {
		if cb.pres[i].wait {
			cb.pres[i].sc.pendOp[cb.pres[i].view] = false
		}
	}
	cb.pres = cb.pres[:0]
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil {
		return
	}
	cb.detachSC()
	if cb.d != nil {
		// TODO: Skip wait if not in pending state.
		vulkan.QueueWaitIdle(cb.d.ques[cb.qfam])
		vulkan.DestroyCommandPool(cb.d.dev, cb.pool, nil)
	}
	*cb = cmdBuffer{}
}

// commitSync contains the synchronization primitives used during a
// call to the Driver.Commit method.
// It is only safe to reuse these data after the Commit call writes
// to the provided channel.
type commitSync struct {
	fence vulkan.Fence
}

// commitInfo is kept for symmetry with the channel-pooled allocation
// pattern used elsewhere in the driver; Commit itself allocates Go
// slices per call since vulkan-go structs hold Go slices directly
// rather than pinned C arrays.
type commitInfo struct{}

// newCommitInfo creates new commitInfo data.
func (d *Driver) newCommitInfo() (*commitInfo, error) { return &commitInfo{}, nil }

// destroyCommitInfo destroys ci.
func (d *Driver) destroyCommitInfo(ci *commitInfo) {}

// newCommitSync creates new commitSync data, including its fence.
func (d *Driver) newCommitSync() (*commitSync, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	var fence vulkan.Fence
	if err := checkResult(vulkan.CreateFence(d.dev, &info, nil, &fence)); err != nil {
		return nil, err
	}
	return &commitSync{fence: fence}, nil
}

// destroyCommitSync destroys cs.
func (d *Driver) destroyCommitSync(cs *commitSync) {
	if cs == nil {
		return
	}
	vulkan.DestroyFence(d.dev, cs.fence, nil)
}

// Commit commits a batch of command buffers to the GPU for execution.
// Wait operations defined in a command buffer apply to the batch as
// a whole, so the order of command buffers in cb is meaningful.
//
// Presentation queue-family ownership transfer (needed only on the
// rare device that exposes presentation on a queue family disjoint
// from the graphics/compute family selected in initDevice) is not
// implemented: like the overwhelming majority of desktop and mobile
// Vulkan implementations, this driver assumes presentation is
// supported on d.qfam. swapchain.Next/Present record the acquire/
// present semaphore bookkeeping needed for that case via scBarrier,
// and detachSC clears it once a commit involving those semaphores
// completes or is discarded.
func (d *Driver) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	if len(cb) == 0 || ch == nil {
		// Client error.
		panic("invalid call to GPU.Commit")
	}
	ci := <-d.cinfo
	defer func() { d.cinfo <- ci }()
	cs := <-d.csync
	if err := checkResult(vulkan.ResetFences(d.dev, 1, []vulkan.Fence{cs.fence})); err != nil {
		d.csync <- cs
		ch <- err
		return
	}

	cbs := make([]vulkan.CommandBuffer, len(cb))
	var wait, signal []vulkan.Semaphore
	var waitStage []vulkan.PipelineStageFlags
	for i, w := range cb {
		c := w.(*cmdBuffer)
		cbs[i] = c.cb
		for _, p := range c.pres {
			if p.wait {
				wait = append(wait, p.waitSem)
				waitStage = append(waitStage, vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit))
			}
			if p.signal {
				signal = append(signal, p.signalSem)
			}
		}
	}

	info := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signal)),
	}
	if len(wait) > 0 {
		info.PWaitSemaphores = wait
		info.PWaitDstStageMask = waitStage
	}
	if len(signal) > 0 {
		info.PSignalSemaphores = signal
	}
	d.qmus[d.qfam].Lock()
	res := vulkan.QueueSubmit(d.ques[d.qfam], 1, []vulkan.SubmitInfo{info}, cs.fence)
	d.qmus[d.qfam].Unlock()
	if err := checkResult(res); err != nil {
		d.csync <- cs
		ch <- err
		return
	}

	for _, w := range cb {
		c := w.(*cmdBuffer)
		c.status = cbCommitted
		c.detachSC()
	}
	go func() {
		err := checkResult(vulkan.WaitForFences(d.dev, 1, []vulkan.Fence{cs.fence}, vulkan.True, vulkan.MaxUint64))
		for _, w := range cb {
			w.(*cmdBuffer).status = cbIdle
		}
		d.csync <- cs
		ch <- err
	}()
}

// convSync converts a driver.Sync to a vulkan.PipelineStageFlagBits.
func convSync(sync driver.Sync) vulkan.PipelineStageFlagBits {
	if sync == driver.SNone {
		return vulkan.PipelineStageTopOfPipeBit // 0-equivalent as a stage mask.
	}
	if sync&driver.SAll != 0 {
		return vulkan.PipelineStageAllCommandsBit
	}

	var flags vulkan.PipelineStageFlagBits
	if sync&driver.SVertexInput != 0 {
		flags |= vulkan.PipelineStageVertexInputBit
	}
	if sync&driver.SVertexShading != 0 {
		flags |= vulkan.PipelineStageVertexShaderBit
	}
	if sync&driver.SFragmentShading != 0 {
		flags |= vulkan.PipelineStageFragmentShaderBit
	}
	if sync&driver.SDSOutput != 0 {
		flags |= vulkan.PipelineStageEarlyFragmentTestsBit
		flags |= vulkan.PipelineStageLateFragmentTestsBit
	}
	if sync&driver.SColorOutput != 0 {
		flags |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if sync&driver.SDraw != 0 {
		flags |= vulkan.PipelineStageDrawIndirectBit
	}
	if sync&driver.SResolve != 0 {
		flags |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if sync&driver.SComputeShading != 0 {
		flags |= vulkan.PipelineStageComputeShaderBit
	}
	if sync&driver.SCopy != 0 {
		flags |= vulkan.PipelineStageTransferBit
	}
	return flags
}

// convAccess converts a driver.Access to a vulkan.AccessFlagBits.
func convAccess(acc driver.Access) vulkan.AccessFlagBits {
	if acc == driver.ANone {
		return 0
	}

	var flags vulkan.AccessFlagBits
	if acc&driver.AAnyRead != 0 {
		flags |= vulkan.AccessMemoryReadBit
	} else {
		if acc&driver.AVertexBufRead != 0 {
			flags |= vulkan.AccessVertexAttributeReadBit
		}
		if acc&driver.AIndexBufRead != 0 {
			flags |= vulkan.AccessIndexReadBit
		}
		if acc&driver.AShaderRead != 0 {
			flags |= vulkan.AccessShaderReadBit
		}
		if acc&driver.AColorRead != 0 {
			flags |= vulkan.AccessColorAttachmentReadBit
		}
		if acc&driver.ADSRead != 0 {
			flags |= vulkan.AccessDepthStencilAttachmentReadBit
		}
		if acc&driver.ACopyRead != 0 {
			flags |= vulkan.AccessTransferReadBit
		}
	}

	if acc&driver.AAnyWrite != 0 {
		flags |= vulkan.AccessMemoryWriteBit
	} else {
		if acc&driver.AShaderWrite != 0 {
			flags |= vulkan.AccessShaderWriteBit
		}
		if acc&driver.AColorWrite != 0 {
			flags |= vulkan.AccessColorAttachmentWriteBit
		}
		if acc&driver.ADSWrite != 0 {
			flags |= vulkan.AccessDepthStencilAttachmentWriteBit
		}
		if acc&driver.ACopyWrite != 0 {
			flags |= vulkan.AccessTransferWriteBit
		}
	}
	return flags
}

// convLayout converts a driver.Layout to a vulkan.ImageLayout.
func convLayout(lay driver.Layout) vulkan.ImageLayout {
	switch lay {
	case driver.LUndefined:
		return vulkan.ImageLayoutUndefined
	case driver.LCommon:
		return vulkan.ImageLayoutGeneral
	case driver.LShaderRead:
		return vulkan.ImageLayoutShaderReadOnlyOptimal
	case driver.LColorTarget:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vulkan.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vulkan.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LResolveSrc:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LResolveDst:
		return vulkan.ImageLayoutColorAttachmentOptimal
	case driver.LCopySrc:
		return vulkan.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vulkan.ImageLayoutTransferDstOptimal
	case driver.LPresent:
		return vulkan.ImageLayoutPresentSrc
	}

	// Expected to be unreachable.
	return ^vulkan.ImageLayout(0)
}

// convLoadOp converts a driver.LoadOp to a vulkan.AttachmentLoadOp.
func convLoadOp(op driver.LoadOp) vulkan.AttachmentLoadOp {
	switch op {
	case driver.LDontCare:
		return vulkan.AttachmentLoadOpDontCare
	case driver.LClear:
		return vulkan.AttachmentLoadOpClear
	case driver.LLoad:
		return vulkan.AttachmentLoadOpLoad
	}

	// Expected to be unreachable.
	return ^vulkan.AttachmentLoadOp(0)
}

// convStoreOp converts a driver.StoreOp to a vulkan.AttachmentStoreOp.
func convStoreOp(op driver.StoreOp) vulkan.AttachmentStoreOp {
	switch op {
	case driver.SDontCare:
		return vulkan.AttachmentStoreOpDontCare
	case driver.SStore:
		return vulkan.AttachmentStoreOpStore
	}

	// Expected to be unreachable.
	return ^vulkan.AttachmentStoreOp(0)
}
