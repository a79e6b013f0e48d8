// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package renderer

import (
	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/renderer/desc"
	"github.com/vkforge/forge/renderer/graphic"
	"github.com/vkforge/forge/renderer/job"
	"github.com/vkforge/forge/renderer/mem"
	"github.com/vkforge/forge/renderer/pcache"
	"github.com/vkforge/forge/renderer/repo"
	"github.com/vkforge/forge/renderer/xfer"
)

// Renderer owns the shared, device-wide state a frame job draws
// against: the sub-allocator, transfer engine, descriptor/sampler
// pools, the fallback-resource repository, and the ring of per-frame
// jobs. Exactly one Renderer exists per logical device.
type Renderer struct {
	gpu          driver.GPU
	cfg          Config
	Mem          *mem.Allocator
	Xfer         *xfer.Pool
	Desc         *desc.Pool
	Splrs        *desc.SamplerPool
	Repo         *repo.Repository
	Attachments  *AttachmentPool
	jobs         []*job.Job
	cur          int
	graphics     map[string]*graphic.Graphic
	cachePayload []byte
}

// New creates a Renderer bound to gpu. If cfg.CachePath is set, an
// existing on-disk pipeline cache matching cfg.CacheIdentity is
// loaded (log-and-continue on any mismatch, per renderer/pcache's
// contract) — but driver.GPU exposes no pipeline-cache-seeding
// parameter, so the loaded payload is currently only available via
// CachePayload for a future backend extension to consume.
func New(gpu driver.GPU, cfg Config) (*Renderer, error) {
	if cfg.FrameCount <= 0 || cfg.FrameCount > MaxFrame {
		cfg.FrameCount = MaxFrame
	}

	r := &Renderer{
		gpu:         gpu,
		cfg:         cfg,
		Mem:         mem.New(gpu),
		Xfer:        xfer.New(gpu),
		Desc:        desc.New(gpu),
		Splrs:       desc.NewSamplerPool(gpu, cfg.MaxAnisotropy),
		Repo:        repo.New(gpu),
		Attachments: NewAttachmentPool(gpu),
		graphics:    make(map[string]*graphic.Graphic),
	}

	if cfg.CachePath != "" {
		r.cachePayload = pcache.Load(cfg.CachePath, cfg.CacheIdentity)
	}

	for i := 0; i < cfg.FrameCount; i++ {
		j, err := job.New(gpu, uint32(i))
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.jobs = append(r.jobs, j)
	}
	return r, nil
}

// GPU returns the driver.GPU the Renderer is bound to.
func (r *Renderer) GPU() driver.GPU { return r.gpu }

// CachePayload returns the pipeline cache blob loaded at construction
// (nil if none was found/valid), pending a driver-level API to seed a
// newly created pipeline cache with it — driver.GPU currently creates
// pipelines directly from state, with no separate pipeline-cache
// object to seed.
func (r *Renderer) CachePayload() []byte { return r.cachePayload }

// NextFrame returns the next frame's Job in round-robin order.
func (r *Renderer) NextFrame() *job.Job {
	j := r.jobs[r.cur]
	r.cur = (r.cur + 1) % len(r.jobs)
	return j
}

// Graphic returns the cached Graphic for key, or nil if none has
// been registered under that key yet (see PutGraphic).
func (r *Renderer) Graphic(key string) *graphic.Graphic { return r.graphics[key] }

// PutGraphic registers g under key, replacing (and destroying) any
// graphic previously registered there.
func (r *Renderer) PutGraphic(key string, g *graphic.Graphic) {
	if old, ok := r.graphics[key]; ok && old != g {
		old.Destroy(r.Desc)
	}
	r.graphics[key] = g
}

// SavePipelineCache persists payload (produced by whatever the
// concrete backend's pipeline-cache object reports) to cfg.CachePath,
// a no-op if no path was configured.
func (r *Renderer) SavePipelineCache(payload []byte) error {
	if r.cfg.CachePath == "" {
		return nil
	}
	return pcache.Save(r.cfg.CachePath, r.cfg.CacheIdentity, payload)
}

// Destroy releases every resource owned by the Renderer: the jobs,
// the graphic cache, the descriptor/sampler pools, the fallback
// repository, the transfer engine, and the sub-allocator.
func (r *Renderer) Destroy() {
	for _, j := range r.jobs {
		j.Destroy()
	}
	r.jobs = nil
	for _, g := range r.graphics {
		g.Destroy(r.Desc)
	}
	r.graphics = nil
	r.Attachments.Destroy()
	r.Repo.Destroy()
	r.Splrs.Destroy()
	r.Desc.Destroy()
	r.Xfer.Destroy()
	r.Mem.Destroy()
}
