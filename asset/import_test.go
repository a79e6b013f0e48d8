// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/vkforge/forge/gltf"
)

func i64(n int64) *int64 { return &n }

// buildGLB assembles a minimal GLB blob per scenario S1: a single
// triangle with positions and indices, no normals/tangents/texcoords.
func buildGLB(t *testing.T) []byte {
	t.Helper()

	var bin bytes.Buffer
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	for _, p := range positions {
		for _, c := range p {
			binary.Write(&bin, binary.LittleEndian, math.Float32bits(c))
		}
	}
	posLen := bin.Len()
	indices := []uint16{0, 1, 2}
	for _, idx := range indices {
		binary.Write(&bin, binary.LittleEndian, idx)
	}
	idxLen := bin.Len() - posLen

	doc := &gltf.GLTF{
		Buffers:     []gltf.Buffer{{ByteLength: int64(bin.Len())}},
		BufferViews: []gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: int64(posLen)},
			{Buffer: 0, ByteOffset: int64(posLen), ByteLength: int64(idxLen)},
		},
		Accessors: []gltf.Accessor{
			{BufferView: i64(0), ComponentType: gltf.FLOAT, Count: 3, Type: gltf.VEC3},
			{BufferView: i64(1), ComponentType: gltf.UNSIGNED_SHORT, Count: 3, Type: gltf.SCALAR},
		},
		Meshes: []gltf.Mesh{{Primitives: []gltf.Primitive{{
			Attributes: map[string]int64{"POSITION": 0},
			Indices:    i64(1),
			Mode:       i64(gltf.TRIANGLES),
		}}}},
	}
	doc.Asset.Version = "2.0"

	var out bytes.Buffer
	if err := gltf.Pack(&out, doc, bin.Bytes()); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return out.Bytes()
}

func TestImportMinimalGLB(t *testing.T) {
	glb := buildGLB(t)
	doc, err := Import(bytes.NewReader(glb), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Skeleton != nil {
		t.Fatal("expected no skeleton")
	}
	if len(doc.Mesh.Primitives) != 1 {
		t.Fatalf("got %d primitives, want 1", len(doc.Mesh.Primitives))
	}
	p := doc.Mesh.Primitives[0]
	if len(p.Positions) != 3 {
		t.Fatalf("got %d positions, want 3", len(p.Positions))
	}
	if len(p.Indices) != 3 {
		t.Fatalf("got %d indices, want 3", len(p.Indices))
	}
	// z negated for the coordinate-system conversion; inputs have z==0.
	for _, v := range p.Positions {
		if v[2] != 0 {
			t.Fatalf("expected z == 0 after negation of an all-zero z, got %v", v)
		}
	}
	if len(p.Normals) != 3 {
		t.Fatal("expected flat normals to be computed")
	}
}

func TestImportRejectsSelfReferencingBufferURI(t *testing.T) {
	doc := &gltf.GLTF{
		Buffers: []gltf.Buffer{{URI: "self", ByteLength: 4}},
	}
	doc.Asset.Version = "2.0"
	var buf bytes.Buffer
	if err := gltf.Encode(&buf, doc); err != nil {
		t.Fatal(err)
	}
	_, err := Import(&buf, "self", nil)
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.MalformedBuffers {
		t.Fatalf("got %v, want a MalformedBuffers error", err)
	}
}

func TestImportRejectsGLBWithZeroChunks(t *testing.T) {
	// Magic + version + length, and a declared total length that
	// matches a header-only blob (no chunk stream at all).
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0x46546c67))
	binary.Write(&buf, binary.LittleEndian, uint32(2))
	binary.Write(&buf, binary.LittleEndian, uint32(12))
	_, err := Import(&buf, "", nil)
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.GlbJsonChunkMissing {
		t.Fatalf("got %v, want a GlbJsonChunkMissing error", err)
	}
}

func TestImportRejectsUnalignedGlbChunkLength(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0x46546c67)) // magic
	binary.Write(&buf, binary.LittleEndian, uint32(2))          // version
	binary.Write(&buf, binary.LittleEndian, uint32(12+8+5))     // total length
	binary.Write(&buf, binary.LittleEndian, uint32(5))          // chunk length, not 4-aligned
	binary.Write(&buf, binary.LittleEndian, uint32(0x4e4f534a)) // JSON
	buf.Write([]byte("{\"a\":"))
	_, err := Import(&buf, "", nil)
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.MalformedGlbChunk {
		t.Fatalf("got %v, want a MalformedGlbChunk error", err)
	}
}

func TestAnimationSamplerCountBoundary(t *testing.T) {
	samplers := make([]gltf.ASampler, MaxSamplers)
	for i := range samplers {
		samplers[i] = gltf.ASampler{Input: 0, Output: 0}
	}
	doc := &gltf.GLTF{Animations: []gltf.Animation{{Samplers: samplers}}}
	if _, err := importAnimations(doc, &bufferSet{}); err != nil {
		t.Fatalf("expected %d samplers to be accepted, got %v", MaxSamplers, err)
	}

	over := make([]gltf.ASampler, MaxSamplers+1)
	doc.Animations[0].Samplers = over
	_, err := importAnimations(doc, &bufferSet{})
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.AnimCountExceedsMaximum {
		t.Fatalf("got %v, want an AnimCountExceedsMaximum error", err)
	}
}

func TestJointCountExceedsMaximum(t *testing.T) {
	joints := make([]int64, MaxJoints+1)
	nodes := make([]gltf.Node, MaxJoints+1)
	for i := range joints {
		joints[i] = int64(i)
	}
	doc := &gltf.GLTF{
		Nodes: nodes,
		Skins: []gltf.Skin{{Joints: joints}},
	}
	_, err := importSkin(doc, &bufferSet{})
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.JointCountExceedsMaximum {
		t.Fatalf("got %v, want a JointCountExceedsMaximum error", err)
	}
}

func TestSkeletonRejectsNonTopologicalOrder(t *testing.T) {
	// Node 0 is a child of node 1, but node 0 precedes node 1 in the
	// skin's joint list: parent[0] (=1) is not < 0.
	nodes := []gltf.Node{
		{Children: nil},
		{Children: []int64{0}},
	}
	doc := &gltf.GLTF{
		Nodes: nodes,
		Skins: []gltf.Skin{{Joints: []int64{0, 1}}},
	}
	_, err := importSkin(doc, &bufferSet{})
	var ie *ImportError
	if !errors.As(err, &ie) || ie.Kind != gltf.MalformedNodes {
		t.Fatalf("got %v, want a MalformedNodes error", err)
	}
}
