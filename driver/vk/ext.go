// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vulkan "github.com/vulkan-go/vulkan"
)

// extension identifies a Vulkan extension.
type extension int

const (
	// Instance extensions.
	extGetPhysicalDeviceProperties2 extension = iota
	extSurface
	extAndroidSurface
	extWaylandSurface
	extWin32Surface
	extXCBSurface

	// Device extensions.
	extMultiview
	extMaintenance2
	extCreateRenderPass2
	extDepthStencilResolve
	extDynamicRendering
	extSynchronization2
	extSwapchain

	extN int = iota
)

// name returns the extension name as a Go string.
func (e extension) name() string {
	switch e {
	case extGetPhysicalDeviceProperties2:
		return "VK_KHR_get_physical_device_properties2"
	case extSurface:
		return "VK_KHR_surface"
	case extAndroidSurface:
		return "VK_KHR_android_surface"
	case extWaylandSurface:
		return "VK_KHR_wayland_surface"
	case extWin32Surface:
		return "VK_KHR_win32_surface"
	case extXCBSurface:
		return "VK_KHR_xcb_surface"
	case extMultiview:
		return "VK_KHR_multiview"
	case extMaintenance2:
		return "VK_KHR_maintenance2"
	case extCreateRenderPass2:
		return "VK_KHR_create_renderpass2"
	case extDepthStencilResolve:
		return "VK_KHR_depth_stencil_resolve"
	case extDynamicRendering:
		return "VK_KHR_dynamic_rendering"
	case extSynchronization2:
		return "VK_KHR_synchronization2"
	case extSwapchain:
		return "VK_KHR_swapchain"
	}
	panic("you have to update vk.extension.name when adding new extensions")
}

// makeExtNames returns a new slice containing the name of every extension
// present in exts.
// Order is preserved.
func makeExtNames(exts []extension) []string {
	s := make([]string, 0, len(exts))
	for _, e := range exts {
		s = append(s, e.name())
	}
	return s
}

// instanceExts returns a list containing the names of all instance extensions
// advertised by the Vulkan implementation.
func instanceExts() (exts []string, err error) {
	var n uint32
	if err = checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return
	}
	if n == 0 {
		return
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err = checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return
	}
	exts = make([]string, n)
	for i := range props {
		props[i].Deref()
		exts[i] = vulkanString(int8Slice(props[i].ExtensionName[:]))
	}
	return
}

// deviceExts returns a list containing the names of all device extensions
// advertised by the Vulkan implementation.
func deviceExts(d vulkan.PhysicalDevice) (exts []string, err error) {
	var n uint32
	if err = checkResult(vulkan.EnumerateDeviceExtensionProperties(d, "", &n, nil)); err != nil {
		return
	}
	if n == 0 {
		return
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err = checkResult(vulkan.EnumerateDeviceExtensionProperties(d, "", &n, props)); err != nil {
		return
	}
	exts = make([]string, n)
	for i := range props {
		props[i].Deref()
		exts[i] = vulkanString(int8Slice(props[i].ExtensionName[:]))
	}
	return
}

// int8Slice is a no-op helper kept to localize the ExtensionName
// array-to-slice conversion used by the vulkan-go bindings.
func int8Slice(a []int8) []int8 { return a }

// checkExts returns a slice containing the index of every extension
// in exts that is not present in set.
// Indices in missing are sorted in increasing order.
func checkExts(exts []string, set []string) (missing []int) {
extLoop:
	for i := 0; i < len(exts); i++ {
		for _, e := range set {
			if exts[i] == e {
				continue extLoop
			}
		}
		missing = append(missing, i)
	}
	return
}

// selectExts returns the intersection between exts and from.
// Indices in missing indicate which exts's elements weren't selected.
func selectExts(exts []string, from []string) (names []string, missing []int) {
	missing = checkExts(exts, from)
	n := len(exts) - len(missing)
	names = make([]string, 0, n)
	mi := 0
	for i, e := range exts {
		if mi < len(missing) && missing[mi] == i {
			mi++
			continue
		}
		names = append(names, e)
	}
	return
}

// extInfo describes required and optional extensions.
type extInfo struct {
	required, optional []extension
}

// requiredNames is equivalent to makeExtNames(i.required).
func (i *extInfo) requiredNames() []string { return makeExtNames(i.required) }

// optionalNames is equivalent to makeExtNames(i.optional).
func (i *extInfo) optionalNames() []string { return makeExtNames(i.optional) }

// These are platform-independent.
var (
	globalInstanceExts = extInfo{
		required: []extension{extGetPhysicalDeviceProperties2},
	}
	globalDeviceExts = extInfo{
		required: []extension{
			extMultiview,
			extMaintenance2,
			extCreateRenderPass2,
			extDepthStencilResolve,
			extDynamicRendering,
			extSynchronization2,
		},
	}
)

// setInstanceExts sets the PEnabledExtensionNames field of info.
// It also updates d.exts to reflect the selected extensions.
func (d *Driver) setInstanceExts(info *vulkan.InstanceCreateInfo) (free func(), err error) {
	free = func() {}
	var set []string
	if set, err = instanceExts(); err != nil {
		return
	}
	platform := platformInstanceExts()
	names, err := d.setExts(&globalInstanceExts, &platform, set)
	if err != nil {
		return
	}
	info.EnabledExtensionCount = uint32(len(names))
	info.PpEnabledExtensionNames = names
	return
}

// setDeviceExts sets the PEnabledExtensionNames field of info.
// It also updates d.exts to reflect the selected extensions.
func (d *Driver) setDeviceExts(info *vulkan.DeviceCreateInfo) (free func(), err error) {
	free = func() {}
	var set []string
	if set, err = deviceExts(d.pdev); err != nil {
		return
	}
	platform := platformDeviceExts(d)
	names, err := d.setExts(&globalDeviceExts, &platform, set)
	if err != nil {
		return
	}
	info.EnabledExtensionCount = uint32(len(names))
	info.PpEnabledExtensionNames = names
	return
}

// setExts generalizes the set*Exts methods.
// Do not call it directly - call d.setInstanceExts/d.setDeviceExts instead.
func (d *Driver) setExts(global *extInfo, platform *extInfo, set []string) ([]string, error) {
	exts := append(global.requiredNames(), platform.requiredNames()...)
	if len(checkExts(exts, set)) != 0 {
		// TODO: Consider logging what is missing.
		return nil, errNoExtension
	}

	// Let selectExts filter optional extensions.
	off := len(exts)
	exts = append(append(exts, global.optionalNames()...), platform.optionalNames()...)
	names, missing := selectExts(exts, set)
	for _, e := range global.required {
		d.exts[e] = true
	}
	for _, e := range platform.required {
		d.exts[e] = true
	}

	// We known for sure that required extensions are supported,
	// so any missing extension has to be optional.
	opt := append(append([]extension{}, global.optional...), platform.optional...)
	for i := range opt {
		if len(missing) == 0 {
			for _, e := range opt[i:] {
				d.exts[e] = true
			}
			break
		}
		if i == missing[0]-off {
			// TODO: Consider logging what is missing.
			missing = missing[1:]
		} else {
			d.exts[opt[i]] = true
		}
	}
	return names, nil
}
