// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"sync"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/wsi"
)

// swapchain implements driver.Swapchain.
//
// Presentation is assumed to be supported on d.qfam (see the note on
// Driver.Commit), so a single semaphore per acquisition slot and a
// single semaphore per backbuffer suffice - no queue ownership
// transfer or per-queue synchronization data is required.
type swapchain struct {
	d    *Driver
	win  wsi.Window
	qfam uint32
	sf   vulkan.Surface
	sc   vulkan.Swapchain
	pf   driver.PixelFmt
	imgs []vulkan.Image

	views []driver.ImageView

	// The number of images that can be acquired concurrently is
	// given by 1 + len(views) - minImg. curImg tracks how many
	// are currently acquired.
	minImg int
	curImg int

	// nextSem holds one semaphore per acquisition slot, signaled
	// by vkAcquireNextImageKHR and waited on by the queue
	// submission that first writes the image.
	// presSem holds one semaphore per image, signaled by the
	// queue submission that finishes writing the image and
	// waited on by vkQueuePresentKHR.
	nextSem []vulkan.Semaphore
	presSem []vulkan.Semaphore

	// viewSync maps a view index to the acquisition slot in
	// nextSem used to acquire it. Only meaningful while
	// pendOp[view] is true.
	viewSync []int
	// pendOp indicates whether a view was acquired and not yet
	// presented, i.e., whether its slot in nextSem is in use.
	pendOp []bool

	mu sync.Mutex

	// broken is set on suboptimal/out-of-date results. The
	// client is expected to call Recreate or Destroy.
	broken bool
}

// initSurface creates s.sf from s.win.
// GLFW selects the platform-appropriate VK_KHR_*_surface call on
// its own, so there is no per-platform dispatch here.
func (s *swapchain) initSurface() error {
	sf, err := s.win.CreateSurface(s.d.inst)
	if err != nil {
		return err
	}
	s.sf = sf
	return nil
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	if !d.exts[extSurface] || !d.exts[extSwapchain] {
		return nil, driver.ErrCannotPresent
	}
	s := &swapchain{d: d, win: win}
	if err := s.initSurface(); err != nil {
		return nil, err
	}
	var sup vulkan.Bool32
	err := checkResult(vulkan.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, s.sf, &sup))
	if err != nil {
		vulkan.DestroySurface(d.inst, s.sf, nil)
		return nil, err
	}
	if sup != vulkan.True {
		vulkan.DestroySurface(d.inst, s.sf, nil)
		return nil, driver.ErrCannotPresent
	}
	s.qfam = d.qfam
	if err := s.initSwapchain(imageCount); err != nil {
		vulkan.DestroySurface(d.inst, s.sf, nil)
		return nil, err
	}
	if err := s.newViews(); err != nil {
		vulkan.DestroySwapchain(d.dev, s.sc, nil)
		vulkan.DestroySurface(d.inst, s.sf, nil)
		return nil, err
	}
	if err := s.syncSetup(); err != nil {
		for _, v := range s.views {
			v.Destroy()
		}
		vulkan.DestroySwapchain(d.dev, s.sc, nil)
		vulkan.DestroySurface(d.inst, s.sf, nil)
		return nil, err
	}
	return s, nil
}

// initSwapchain creates a new swapchain from s.sf.
// It sets the sc, pf, minImg and curImg fields of s.
func (s *swapchain) initSwapchain(imageCount int) error {
	var capab vulkan.SurfaceCapabilities
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceCapabilities(s.d.pdev, s.sf, &capab)); err != nil {
		return err
	}
	capab.Deref()
	capab.CurrentExtent.Deref()
	capab.MaxImageExtent.Deref()

	nimg := uint32(imageCount)
	if capab.MinImageCount > nimg {
		nimg = capab.MinImageCount
	} else if capab.MaxImageCount != 0 && capab.MaxImageCount < nimg {
		nimg = capab.MaxImageCount
	}

	if capab.MaxImageExtent.Width == 0 && capab.MaxImageExtent.Height == 0 {
		return driver.ErrWindow
	}
	var extent vulkan.Extent2D
	if capab.CurrentExtent.Width == vulkan.MaxUint32 {
		extent.Width = uint32(s.win.Width())
		extent.Height = uint32(s.win.Height())
	} else {
		extent = capab.CurrentExtent
	}

	xform := capab.CurrentTransform

	var calpha vulkan.CompositeAlphaFlagBits
	switch ca := vulkan.CompositeAlphaFlags(capab.SupportedCompositeAlpha); {
	case ca&vulkan.CompositeAlphaFlags(vulkan.CompositeAlphaInheritBit) != 0:
		calpha = vulkan.CompositeAlphaInheritBit
	case ca&vulkan.CompositeAlphaFlags(vulkan.CompositeAlphaOpaqueBit) != 0:
		calpha = vulkan.CompositeAlphaOpaqueBit
	default:
		return driver.ErrCompositor
	}

	var nfmt uint32
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.sf, &nfmt, nil)); err != nil {
		return err
	}
	fmts := make([]vulkan.SurfaceFormat, nfmt)
	if err := checkResult(vulkan.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.sf, &nfmt, fmts)); err != nil {
		return err
	}
	for i := range fmts {
		fmts[i].Deref()
	}
	prefFmts := []struct {
		pf  driver.PixelFmt
		fmt vulkan.Format
	}{
		{driver.RGBA8sRGB, vulkan.FormatR8g8b8a8Srgb},
		{driver.BGRA8sRGB, vulkan.FormatB8g8r8a8Srgb},
		{driver.RGBA8un, vulkan.FormatR8g8b8a8Unorm},
		{driver.BGRA8un, vulkan.FormatB8g8r8a8Unorm},
		{driver.RGBA16f, vulkan.FormatR16g16b16a16Sfloat},
	}
	ifmt := -1
fmtLoop:
	for i := range prefFmts {
		for j := range fmts {
			if prefFmts[i].fmt == fmts[j].Format {
				s.pf = prefFmts[i].pf
				ifmt = j
				break fmtLoop
			}
		}
	}
	if ifmt == -1 {
		switch {
		case len(fmts) == 1 && fmts[0].Format == vulkan.FormatUndefined:
			// This is allowed in some implementations and means
			// that any format may be chosen freely.
			fmts[0].Format = prefFmts[0].fmt
			fmts[0].ColorSpace = vulkan.ColorSpaceSrgbNonlinear
			s.pf = prefFmts[0].pf
			ifmt = 0
		case len(fmts) > 0:
			s.pf = internalFmt(fmts[0].Format)
			ifmt = 0
		default:
			return driver.ErrCannotPresent
		}
	}

	var nmode uint32
	if err := checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.sf, &nmode, nil)); err != nil {
		return err
	}
	modes := make([]vulkan.PresentMode, nmode)
	if err := checkResult(vulkan.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.sf, &nmode, modes)); err != nil {
		return err
	}
	// FIFO is guaranteed to be supported.
	mode := vulkan.PresentModeFifo

	oldSC := s.sc
	info := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          s.sf,
		MinImageCount:    nimg,
		ImageFormat:      fmts[ifmt].Format,
		ImageColorSpace:  fmts[ifmt].ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		ImageSharingMode: vulkan.SharingModeExclusive,
		PreTransform:     xform,
		CompositeAlpha:   calpha,
		PresentMode:      mode,
		Clipped:          vulkan.True,
		OldSwapchain:     oldSC,
	}
	var sc vulkan.Swapchain
	err := checkResult(vulkan.CreateSwapchain(s.d.dev, &info, nil, &sc))
	if oldSC != vulkan.Swapchain(vulkan.NullHandle) {
		vulkan.DestroySwapchain(s.d.dev, oldSC, nil)
	}
	if err != nil {
		s.sc = vulkan.Swapchain(vulkan.NullHandle)
		return err
	}
	s.sc = sc
	s.minImg = int(capab.MinImageCount)
	s.curImg = 0
	return nil
}

// newViews creates new image views from s.sc.
// It sets the imgs and views fields of s, destroying any
// previously-held views.
func (s *swapchain) newViews() error {
	var nimg uint32
	if err := checkResult(vulkan.GetSwapchainImages(s.d.dev, s.sc, &nimg, nil)); err != nil {
		return err
	}
	imgs := make([]vulkan.Image, nimg)
	if err := checkResult(vulkan.GetSwapchainImages(s.d.dev, s.sc, &nimg, imgs)); err != nil {
		return err
	}
	s.imgs = imgs

	for _, v := range s.views {
		v.Destroy()
	}
	subres := vulkan.ImageSubresourceRange{
		AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}
	views := make([]driver.ImageView, nimg)
	for i := range views {
		info := vulkan.ImageViewCreateInfo{
			SType:    vulkan.StructureTypeImageViewCreateInfo,
			Image:    imgs[i],
			ViewType: vulkan.ImageViewType2d,
			Format:   convPixelFmt(s.pf),
			Components: vulkan.ComponentMapping{
				R: vulkan.ComponentSwizzleIdentity,
				G: vulkan.ComponentSwizzleIdentity,
				B: vulkan.ComponentSwizzleIdentity,
				A: vulkan.ComponentSwizzleIdentity,
			},
			SubresourceRange: subres,
		}
		var view vulkan.ImageView
		if err := checkResult(vulkan.CreateImageView(s.d.dev, &info, nil, &view)); err != nil {
			for j := 0; j < i; j++ {
				views[j].Destroy()
			}
			s.views = nil
			return err
		}
		views[i] = &imageView{s: s, view: view, subres: subres}
	}
	s.views = views
	return nil
}

// syncSetup creates the acquire/present semaphores required for
// presentation of s.
// The caller must ensure that no semaphores are in use before
// calling this method.
func (s *swapchain) syncSetup() error {
	for _, sem := range s.nextSem {
		vulkan.DestroySemaphore(s.d.dev, sem, nil)
	}
	for _, sem := range s.presSem {
		vulkan.DestroySemaphore(s.d.dev, sem, nil)
	}
	nsync := 1 + len(s.views) - s.minImg
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	s.nextSem = make([]vulkan.Semaphore, nsync)
	for i := range s.nextSem {
		if err := checkResult(vulkan.CreateSemaphore(s.d.dev, &info, nil, &s.nextSem[i])); err != nil {
			return err
		}
	}
	s.presSem = make([]vulkan.Semaphore, len(s.views))
	for i := range s.presSem {
		if err := checkResult(vulkan.CreateSemaphore(s.d.dev, &info, nil, &s.presSem[i])); err != nil {
			return err
		}
	}
	s.viewSync = make([]int, len(s.views))
	s.pendOp = make([]bool, len(s.views))
	return nil
}

// Views returns the list of image views that comprise the swapchain.
func (s *swapchain) Views() []driver.ImageView {
	var views []driver.ImageView
	return append(views, s.views...)
}

// Next returns the index of the next writable image view.
func (s *swapchain) Next(cb driver.CmdBuffer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return -1, driver.ErrSwapchain
	}
	if s.curImg > len(s.views)-s.minImg {
		return -1, driver.ErrNoBackbuffer
	}
	sync := -1
	for i := range s.nextSem {
		used := false
		for j := range s.pendOp {
			if s.pendOp[j] && s.viewSync[j] == i {
				used = true
				break
			}
		}
		if !used {
			sync = i
			break
		}
	}
	if sync == -1 {
		// Should never happen, given the curImg check above.
		panic("no swapchain sync data to use")
	}
	c := cb.(*cmdBuffer)
	if err := c.Begin(); err != nil {
		return -1, err
	}
	var idx uint32
	res := vulkan.AcquireNextImage(s.d.dev, s.sc, vulkan.MaxUint64, s.nextSem[sync], vulkan.Fence(vulkan.NullHandle), &idx)
	switch res {
	case vulkan.Success, vulkan.Suboptimal:
		s.curImg++
		s.viewSync[idx] = sync
		s.pendOp[idx] = true
		c.scBarrier(s, int(idx),
			vulkan.ImageLayoutUndefined, vulkan.ImageLayoutGeneral,
			0, vulkan.AccessColorAttachmentWriteBit,
			vulkan.PipelineStageColorAttachmentOutputBit, vulkan.PipelineStageColorAttachmentOutputBit,
			true, false, s.nextSem[sync], vulkan.Semaphore(vulkan.NullHandle))
		if res == vulkan.Suboptimal {
			s.broken = true
		}
		return int(idx), nil
	case vulkan.ErrorOutOfDate:
		s.broken = true
		return -1, driver.ErrSwapchain
	default:
		if err := checkResult(res); err != nil {
			return -1, err
		}
		// Should never happen.
		panic("unexpected result from swapchain's acquisition")
	}
}

// Present presents the image view identified by index.
func (s *swapchain) Present(index int, cb driver.CmdBuffer) error {
	if s.broken {
		return driver.ErrSwapchain
	}
	c := cb.(*cmdBuffer)
	if err := c.Begin(); err != nil {
		return err
	}
	c.scBarrier(s, index,
		vulkan.ImageLayoutGeneral, vulkan.ImageLayoutPresentSrc,
		vulkan.AccessColorAttachmentWriteBit, 0,
		vulkan.PipelineStageColorAttachmentOutputBit, vulkan.PipelineStageBottomOfPipeBit,
		false, true, vulkan.Semaphore(vulkan.NullHandle), s.presSem[index])
	return nil
}

// present enqueues an image for presentation.
// It assumes that Next and Present were called and that the
// command buffer(s) they target have been submitted for execution.
func (s *swapchain) present(index int) error {
	info := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{s.presSem[index]},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	s.d.qmus[s.qfam].Lock()
	res := vulkan.QueuePresent(s.d.ques[s.qfam], &info)
	s.d.qmus[s.qfam].Unlock()
	s.curImg--
	s.pendOp[index] = false
	switch res {
	case vulkan.Success:
		return nil
	case vulkan.Suboptimal, vulkan.ErrorOutOfDate:
		s.broken = true
		return driver.ErrSwapchain
	default:
		if err := checkResult(res); err != nil {
			return err
		}
		return errUnknown
	}
}

// Recreate recreates the swapchain.
func (s *swapchain) Recreate() error {
	vulkan.QueueWaitIdle(s.d.ques[s.qfam])
	if err := s.initSwapchain(len(s.views)); err != nil {
		return err
	}
	if err := s.newViews(); err != nil {
		return err
	}
	if err := s.syncSetup(); err != nil {
		return err
	}
	s.broken = false
	return nil
}

// Format returns the image views' driver.PixelFmt.
func (s *swapchain) Format() driver.PixelFmt { return s.pf }

// Destroy destroys the swapchain.
func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		vulkan.QueueWaitIdle(s.d.ques[s.qfam])
		for _, sem := range s.nextSem {
			vulkan.DestroySemaphore(s.d.dev, sem, nil)
		}
		for _, sem := range s.presSem {
			vulkan.DestroySemaphore(s.d.dev, sem, nil)
		}
		for _, v := range s.views {
			v.Destroy()
		}
		vulkan.DestroySwapchain(s.d.dev, s.sc, nil)
		vulkan.DestroySurface(s.d.inst, s.sf, nil)
	}
	*s = swapchain{}
}
