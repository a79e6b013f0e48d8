// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package renderer

import (
	"fmt"

	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/renderer/image"
)

// attachmentKey identifies a reusable render-target image by its
// fixed properties. Attachments are not transient: the pool keeps
// one image per distinct key alive for the Renderer's lifetime,
// since render targets are recreated only on swapchain/window resize
// (handled by discarding and recreating the Renderer's attachment
// pool wholesale, not by this package tracking per-attachment aging).
type attachmentKey struct {
	Format driver.PixelFmt
	Width  int
	Height int
	Usage  driver.Usage
}

type attachment struct {
	img     driver.Image
	tracked image.Tracked
}

// AttachmentPool creates and caches color/depth render-target images
// on demand, one per distinct (format, size, usage).
type AttachmentPool struct {
	gpu   driver.GPU
	attch map[attachmentKey]*attachment
}

// NewAttachmentPool creates an empty attachment pool bound to gpu.
func NewAttachmentPool(gpu driver.GPU) *AttachmentPool {
	return &AttachmentPool{gpu: gpu, attch: make(map[attachmentKey]*attachment)}
}

// Get returns the image.Tracked view for the given attachment,
// creating it on first request.
func (p *AttachmentPool) Get(format driver.PixelFmt, width, height int, usage driver.Usage) (*image.Tracked, error) {
	key := attachmentKey{Format: format, Width: width, Height: height, Usage: usage}
	if a, ok := p.attch[key]; ok {
		return &a.tracked, nil
	}
	img, err := p.gpu.NewImage(format, driver.Dim3D{Width: width, Height: height, Depth: 1}, 1, 1, 1, usage)
	if err != nil {
		return nil, fmt.Errorf("renderer: creating attachment: %w", err)
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("renderer: creating attachment view: %w", err)
	}
	a := &attachment{img: img, tracked: image.Tracked{View: view, Phase: image.Undefined}}
	p.attch[key] = a
	return &a.tracked, nil
}

// Destroy releases every attachment image created by the pool.
func (p *AttachmentPool) Destroy() {
	for _, a := range p.attch {
		a.tracked.View.Destroy()
		a.img.Destroy()
	}
	p.attch = nil
}
