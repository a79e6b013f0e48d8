// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package renderer ties together the render backend's subpackages
// (mem, xfer, desc, image, job, pcache, repo, graphic) into a single
// device-owning object: it creates the logical device's shared pools
// once, hands out a ring of per-frame jobs, and persists/restores the
// pipeline cache across runs.
package renderer

import "github.com/vkforge/forge/renderer/pcache"

// MaxFrame is the maximum number of frames in flight.
const MaxFrame = 3

const (
	dflMaxAnisotropy = 16
	dflFrameCount    = MaxFrame
)

// Config configures a Renderer at construction.
type Config struct {
	// FrameCount is the number of frames kept in flight, between 1
	// and MaxFrame.
	//
	// Default is MaxFrame (triple-buffered).
	FrameCount int

	// MaxAnisotropy caps sampler anisotropy requests. It should be
	// sourced from the concrete backend's physical-device limits;
	// driver.Limits currently exposes no such field, so this is the
	// caller's responsibility to supply correctly.
	//
	// Default is 16.
	MaxAnisotropy int

	// CacheIdentity identifies the device a persisted pipeline cache
	// blob was produced on (see renderer/pcache.Identity). Load
	// rejects a cache file saved under a different identity as
	// incompatible, and the Renderer then starts with an empty cache;
	// left zero-valued, only a file also saved with a zero identity
	// is accepted.
	CacheIdentity pcache.Identity

	// CachePath is the pipeline cache file path. Empty disables
	// cache persistence.
	CachePath string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FrameCount:    dflFrameCount,
		MaxAnisotropy: dflMaxAnisotropy,
	}
}
