// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// proc tracks the lifetime of the Vulkan loader binding.
// Loading/unloading of the platform Vulkan loader library itself is
// handled by vulkan.Init/vulkan.SetDefaultGetInstanceProcAddr from the
// github.com/vulkan-go/vulkan package, so this type only exists to
// preserve the Driver.open/close call sequence inherited from the
// original cgo-based loader.
type proc struct {
	opened bool
}

// open prepares the Vulkan loader for use.
func (p *proc) open() error {
	p.opened = true
	return nil
}

// close releases any loader state acquired by open.
func (p *proc) close() {
	p.opened = false
}
