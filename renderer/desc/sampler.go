// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package desc

import (
	"sync"

	"github.com/vkforge/forge/driver"
)

// SamplerParam is the full parameter tuple a sampler request is keyed
// on, matching (wrap, filter, aniso, flags) from the contract.
type SamplerParam struct {
	Wrap    driver.AddrMode
	Filter  driver.Filter
	Mipmap  driver.Filter
	Aniso   int
	Compare driver.CmpFunc
	MinLOD  float32
	MaxLOD  float32
}

// SamplerPool deduplicates driver.Sampler objects by their full
// parameter tuple, since distinct materials frequently request
// identical sampling state.
type SamplerPool struct {
	mu       sync.Mutex
	gpu      driver.GPU
	maxAniso int
	samplers map[SamplerParam]driver.Sampler
}

// NewSamplerPool creates a sampler pool that caps anisotropy requests
// to maxAniso (the device's advertised maximum); requests above it
// silently degrade rather than fail.
func NewSamplerPool(gpu driver.GPU, maxAniso int) *SamplerPool {
	return &SamplerPool{gpu: gpu, maxAniso: maxAniso, samplers: make(map[SamplerParam]driver.Sampler)}
}

// Get returns the driver.Sampler for p, creating and caching one on
// first request.
func (sp *SamplerPool) Get(p SamplerParam) (driver.Sampler, error) {
	if p.Aniso > sp.maxAniso {
		p.Aniso = sp.maxAniso
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if s, ok := sp.samplers[p]; ok {
		return s, nil
	}
	s, err := sp.gpu.NewSampler(&driver.Sampling{
		Min:      p.Filter,
		Mag:      p.Filter,
		Mipmap:   p.Mipmap,
		AddrU:    p.Wrap,
		AddrV:    p.Wrap,
		AddrW:    p.Wrap,
		MaxAniso: p.Aniso,
		Cmp:      p.Compare,
		MinLOD:   p.MinLOD,
		MaxLOD:   p.MaxLOD,
	})
	if err != nil {
		return nil, err
	}
	sp.samplers[p] = s
	return s, nil
}

// Destroy releases every cached sampler.
func (sp *SamplerPool) Destroy() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for _, s := range sp.samplers {
		s.Destroy()
	}
	sp.samplers = nil
}
