// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

// platformInstanceExts returns the instance extensions that
// may be needed for presentation.
// Every platform-specific surface extension is listed as
// optional: selectExts intersects this list against what the
// Vulkan implementation actually advertises, so only the
// extension(s) relevant to the platform GLFW picked at runtime
// are ever selected.
func platformInstanceExts() extInfo {
	return extInfo{
		optional: []extension{
			extSurface,
			extXCBSurface,
			extWaylandSurface,
			extWin32Surface,
			extAndroidSurface,
		},
	}
}

// platformDeviceExts returns the device extensions that may be
// needed for presentation.
func platformDeviceExts(d *Driver) extInfo {
	if d.exts[extSurface] {
		return extInfo{optional: []extension{extSwapchain}}
	}
	return extInfo{}
}
