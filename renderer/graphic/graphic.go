// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package graphic implements the graphics-pipeline object: a Graphic
// is composed from shader stages, per-set descriptor-binding
// metadata, and fixed-function render-state, then validated and
// turned into a driver.Pipeline by Prepare. Grounded on
// rvk/graphic.c, adapted to the driver package's abstract pipeline
// state instead of raw Vulkan structures.
package graphic

import (
	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/renderer/desc"
	"github.com/vkforge/forge/renderer/repo"
)

// maxShaders bounds the number of programmable stages one Graphic
// may hold. Only one vertex and one fragment stage are legal; the
// small headroom matches rvk_graphic_shaders_max's array sizing.
const maxShaders = 4

// maxSamplers bounds the number of texture/sampler slots one Graphic
// may bind, matching rvk_graphic_samplers_max.
const maxSamplers = 6

// ShaderStage is one programmable stage contributed to a Graphic.
// Bindings declares, per legal Set, the descriptor bindings this
// stage's shader reads; Inputs/Outputs name its vertex-varying
// interface so Prepare can check that every fragment input is
// produced by the vertex stage. MayDiscard reports whether the
// shader may dynamically kill/discard a fragment, already resolved
// against any specialization-constant overrides by the caller (the
// driver package exposes no shader-reflection API to derive this
// independently).
type ShaderStage struct {
	Func       driver.ShaderFunc
	Stage      driver.Stage
	Bindings   [setCount][]desc.Binding
	Inputs     []string
	Outputs    []string
	MayDiscard bool
}

// SamplerSlot binds one texture+sampler pair to a Graphic, at the
// slot index used by (Graphic, 1+index) in the descriptor layout. A
// zero-value View leaves the slot to be filled with the missing-
// texture/missing-sampler fallback by Prepare.
type SamplerSlot struct {
	View driver.ImageView
	Cube bool
	desc.SamplerParam
}

// Graphic is a graphics-pipeline object under construction. It
// accumulates shader stages, samplers, and an optional mesh, then
// Prepare validates the combination and creates the driver.Pipeline.
type Graphic struct {
	shaders    []ShaderStage
	samplers   [maxSamplers]SamplerSlot
	samplerSet uint8 // bitmask of occupied sampler slots
	mesh       driver.Buffer

	topology Topology
	input    []driver.VertexIn
	raster   Raster
	depth    Depth
	blend    Blend

	flags    flags
	descSet  desc.Handle
	pipeline driver.Pipeline
}

type flags uint8

const (
	flagInvalid flags = 1 << iota
	flagMayDiscard
	flagRequireDrawSet
	flagRequireInstanceSet
)

// New creates an empty Graphic with the given fixed-function state.
// input describes the vertex buffers the mesh supplies; per a
// resolved design decision, this layout is derived from the asset
// package's mesh import, not declared independently here.
func New(topology Topology, input []driver.VertexIn, raster Raster, depth Depth, blend Blend) *Graphic {
	return &Graphic{topology: topology, input: input, raster: raster, depth: depth, blend: blend}
}

// AddShader attaches one programmable stage. Prepare rejects a Graphic
// with more than one vertex or fragment stage; exceeding maxShaders
// marks the Graphic invalid immediately.
func (g *Graphic) AddShader(s ShaderStage) {
	if len(g.shaders) >= maxShaders {
		g.flags |= flagInvalid
		return
	}
	if s.MayDiscard {
		g.flags |= flagMayDiscard
	}
	g.shaders = append(g.shaders, s)
}

// AddSampler binds a texture+sampler pair at the given Graphic-set
// slot (0-based, offset by one from the reserved mesh storage-buffer
// binding).
func (g *Graphic) AddSampler(slot int, s SamplerSlot) {
	if slot < 0 || slot >= maxSamplers {
		g.flags |= flagInvalid
		return
	}
	g.samplers[slot] = s
	g.samplerSet |= 1 << uint(slot)
}

// AttachMesh binds vertexBuffer as the mesh storage buffer consumed
// by a (Graphic, 0) StorageBuffer binding, if one is declared. It is
// illegal to combine a mesh with a per-draw mesh binding at
// (Draw, 1); Prepare rejects that combination.
func (g *Graphic) AttachMesh(vertexBuffer driver.Buffer) { g.mesh = vertexBuffer }

// MayDiscard reports whether Prepare determined that some attached
// shader may dynamically kill/discard a fragment.
func (g *Graphic) MayDiscard() bool { return g.flags&flagMayDiscard != 0 }

// RequiresDrawSet reports whether a per-draw descriptor set must be
// bound before drawing with this Graphic.
func (g *Graphic) RequiresDrawSet() bool { return g.flags&flagRequireDrawSet != 0 }

// RequiresInstanceSet reports whether a per-instance descriptor set
// must be bound before drawing with this Graphic.
func (g *Graphic) RequiresInstanceSet() bool { return g.flags&flagRequireInstanceSet != 0 }

// Pipeline returns the driver.Pipeline created by a prior successful
// Prepare call, or nil if Prepare has not run yet.
func (g *Graphic) Pipeline() driver.Pipeline { return g.pipeline }

// mergedBindings accumulates the per-set binding declarations of
// every attached shader stage, failing if two stages declare
// incompatible kinds for the same binding index.
func (g *Graphic) mergedBindings(set Set) ([]desc.Binding, error) {
	byNr := make(map[int]desc.Binding)
	for _, sh := range g.shaders {
		for _, b := range sh.Bindings[set] {
			if existing, ok := byNr[b.Nr]; ok {
				if existing.Kind != b.Kind {
					return nil, newErr(BindingKindConflict, "set %s binding %d", set, b.Nr)
				}
				existing.Stages |= b.Stages
				byNr[b.Nr] = existing
				continue
			}
			byNr[b.Nr] = b
		}
	}
	out := make([]desc.Binding, 0, len(byNr))
	for _, b := range byNr {
		out = append(out, b)
	}
	return out, nil
}

func (g *Graphic) validateSet(set Set, bindings []desc.Binding) error {
	for _, b := range bindings {
		if b.Nr < 0 || b.Nr >= maxBindings {
			return newErr(IllegalBinding, "set %s binding %d out of range", set, b.Nr)
		}
		if !allowedBindings[set][b.Nr].allows(b.Kind) {
			return newErr(IllegalBinding, "set %s binding %d does not accept %v", set, b.Nr, b.Kind)
		}
	}
	return nil
}

// Prepare validates the Graphic against pass/subpass and, on
// success, allocates its descriptor set and creates its
// driver.Pipeline. It is idempotent: a Graphic whose pipeline was
// already created returns immediately.
func (g *Graphic) Prepare(gpu driver.GPU, pool *desc.Pool, splrs *desc.SamplerPool, repository *repo.Repository, pass driver.RenderPass, subpass int) error {
	if g.flags&flagInvalid != 0 {
		return newErr(Invalid, "")
	}
	if g.pipeline != nil {
		return nil
	}

	var vert, frag *ShaderStage
	for i := range g.shaders {
		switch g.shaders[i].Stage {
		case driver.SVertex:
			if vert != nil {
				return newErr(TooManyShaders, "more than one vertex stage")
			}
			vert = &g.shaders[i]
		case driver.SFragment:
			if frag != nil {
				return newErr(TooManyShaders, "more than one fragment stage")
			}
			frag = &g.shaders[i]
		}
	}
	if vert == nil {
		return newErr(MissingVertexStage, "")
	}
	if frag == nil {
		return newErr(MissingFragmentStage, "")
	}
	for _, in := range frag.Inputs {
		if !contains(vert.Outputs, in) {
			return newErr(FragmentInputNotInVertexOutputs, "%q", in)
		}
	}

	var setBindings [setCount][]desc.Binding
	for s := Global; s < setCount; s++ {
		bs, err := g.mergedBindings(s)
		if err != nil {
			return err
		}
		if err := g.validateSet(s, bs); err != nil {
			return err
		}
		setBindings[s] = bs
	}

	graphicBindings := setBindings[Graphic]
	needsMesh := false
	for _, b := range graphicBindings {
		if b.Nr == 0 && b.Kind == desc.StorageBuffer {
			needsMesh = true
		}
	}
	if needsMesh && g.mesh == nil {
		return newErr(StorageBufferRequiresMesh, "")
	}
	for _, b := range setBindings[Draw] {
		if b.Nr == 1 && g.mesh != nil {
			return newErr(MeshConflictsWithPerDrawMesh, "")
		}
	}
	if len(setBindings[Draw]) > 0 {
		g.flags |= flagRequireDrawSet
	}
	if len(setBindings[Instance]) > 0 {
		g.flags |= flagRequireInstanceSet
	}

	handle, err := pool.Alloc(graphicBindings)
	if err != nil {
		return err
	}
	g.descSet = handle
	heap, idx := pool.Heap(handle)

	if needsMesh {
		heap.SetBuffer(idx, 0, 0, []driver.Buffer{g.mesh}, []int64{0}, []int64{g.mesh.Cap()})
	}
	for slot := 0; slot < maxSamplers; slot++ {
		if g.samplerSet&(1<<uint(slot)) == 0 {
			continue
		}
		nr := slot + 1
		if !bindingDeclared(graphicBindings, nr) {
			continue
		}
		s := g.samplers[slot]
		view := s.View
		if view == nil {
			id := repo.MissingTexture
			if s.Cube {
				id = repo.MissingTextureCube
			}
			view, err = repository.Texture(id)
			if err != nil {
				return err
			}
		}
		sp := s.SamplerParam
		var splr driver.Sampler
		if splr, err = splrs.Get(sp); err != nil {
			return err
		}
		heap.SetImage(idx, nr, 0, []driver.ImageView{view})
		heap.SetSampler(idx, nr, 0, []driver.Sampler{splr})
	}

	globalHeap, err := layoutOnlyHeap(gpu, setBindings[Global])
	if err != nil {
		return err
	}
	drawHeap, err := layoutOnlyHeap(gpu, setBindings[Draw])
	if err != nil {
		return err
	}
	instanceHeap, err := layoutOnlyHeap(gpu, setBindings[Instance])
	if err != nil {
		return err
	}

	table, err := gpu.NewDescTable([]driver.DescHeap{globalHeap, heap, drawHeap, instanceHeap})
	if err != nil {
		return err
	}

	state := &driver.GraphState{
		VertFunc: vert.Func,
		FragFunc: frag.Func,
		Desc:     table,
		Input:    g.input,
		Topology: topologyTable[g.topology],
		Raster:   g.raster.state(),
		Samples:  1,
		DS:       g.depth.state(),
		Blend: driver.BlendState{
			Color: []driver.ColorBlend{blendTable[g.blend]},
		},
		Pass:    pass,
		Subpass: subpass,
	}
	pipeline, err := gpu.NewPipeline(state)
	if err != nil {
		return err
	}
	g.pipeline = pipeline
	return nil
}

// layoutOnlyHeap creates a driver.DescHeap solely to describe a
// descriptor-set layout for the pipeline-layout combination; New is
// never called on it, so it never allocates concrete set storage.
// Sets for Global/Draw/Instance are allocated per-pass/per-draw by
// the orchestration layer, not by the Graphic itself.
func layoutOnlyHeap(gpu driver.GPU, bindings []desc.Binding) (driver.DescHeap, error) {
	ds := make([]driver.Descriptor, len(bindings))
	for i, b := range bindings {
		ds[i] = driver.Descriptor{Stages: b.Stages, Nr: b.Nr, Len: b.Len}
		switch b.Kind {
		case desc.UniformBuffer, desc.UniformBufferDynamic:
			ds[i].Type = driver.DConstant
		case desc.StorageBuffer:
			ds[i].Type = driver.DBuffer
		default:
			ds[i].Type = driver.DTexture
		}
	}
	return gpu.NewDescHeap(ds)
}

func bindingDeclared(bindings []desc.Binding, nr int) bool {
	for _, b := range bindings {
		if b.Nr == nr {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Destroy releases the descriptor set and pipeline created by
// Prepare, if any.
func (g *Graphic) Destroy(pool *desc.Pool) {
	if g.pipeline != nil {
		g.pipeline.Destroy()
		g.pipeline = nil
	}
	if g.descSet != (desc.Handle{}) {
		pool.Free(g.descSet)
	}
}
