// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"github.com/chewxy/math32"

	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/gltf"
	"github.com/vkforge/forge/linear"
)

// Bounds is an axis-aligned bounding box plus a bounding-sphere radius
// computed around the same center, used by culling.
type Bounds struct {
	Min, Max linear.V3
	Radius   float32
}

// Primitive is one drawable piece of an imported Mesh. Attribute
// slices are structure-of-arrays, one per semantic, mirroring
// driver.VertexIn's "each vertex input is a separate buffer binding"
// convention — callers choose which of these maps to an Entry Nr.
type Primitive struct {
	MaterialIndex int // -1 if the glTF primitive had no material.

	Positions []linear.V3
	Normals   []linear.V3
	Tangents  []linear.V4 // w holds handedness, ±1.
	Texcoords [][2]float32
	Colors    [][4]float32 // optional COLOR_0.
	Joints    [][4]uint16  // optional, paired with Weights.
	Weights   [][4]float32

	Indices []uint32 // empty if the primitive is unindexed.

	Bounds Bounds
}

// Mesh is the materialized result of importing meshes[0] from a glTF
// document (only the first mesh is imported, per the loader's
// documented single-mesh-per-asset policy).
type Mesh struct {
	Primitives []Primitive
	Bounds     Bounds
}

// VertexInputs returns the driver.VertexIn description of primitive
// prim's attribute layout. This is the authoritative vertex layout a
// renderer/graphic.Graphic's Prepare must be built against — the
// Graphic object never defines its own input layout independently.
func (m *Mesh) VertexInputs(prim int) []driver.VertexIn {
	p := &m.Primitives[prim]
	var in []driver.VertexIn
	add := func(nr int, format driver.VertexFmt) {
		in = append(in, driver.VertexIn{Format: format, Stride: formatSize(format), Nr: nr})
	}
	if len(p.Positions) > 0 {
		add(0, driver.Float32x3)
	}
	if len(p.Normals) > 0 {
		add(1, driver.Float32x3)
	}
	if len(p.Tangents) > 0 {
		add(2, driver.Float32x4)
	}
	if len(p.Texcoords) > 0 {
		add(3, driver.Float32x2)
	}
	if len(p.Colors) > 0 {
		add(4, driver.Float32x4)
	}
	if len(p.Joints) > 0 {
		add(5, driver.UInt16x4)
	}
	if len(p.Weights) > 0 {
		add(6, driver.Float32x4)
	}
	return in
}

func formatSize(f driver.VertexFmt) int {
	switch f {
	case driver.Float32x2:
		return 8
	case driver.Float32x3:
		return 12
	case driver.Float32x4:
		return 16
	case driver.UInt16x4:
		return 8
	default:
		return 0
	}
}

// importMesh materializes doc.Meshes[0]. Every primitive must use
// TRIANGLES topology and carry a vec3<f32> POSITION attribute.
func importMesh(doc *gltf.GLTF, bs *bufferSet) (*Mesh, error) {
	if len(doc.Meshes) == 0 {
		return nil, newErr(gltf.NoPrimitives, "document has no meshes")
	}
	src := &doc.Meshes[0]
	if len(src.Primitives) == 0 {
		return nil, newErr(gltf.NoPrimitives, "meshes[0] has no primitives")
	}

	mesh := &Mesh{Primitives: make([]Primitive, len(src.Primitives))}
	first := true
	for i := range src.Primitives {
		prim, err := importPrimitive(doc, bs, &src.Primitives[i])
		if err != nil {
			return nil, err
		}
		mesh.Primitives[i] = *prim
		if first {
			mesh.Bounds = prim.Bounds
			first = false
		} else {
			mesh.Bounds = unionBounds(mesh.Bounds, prim.Bounds)
		}
	}
	return mesh, nil
}

func importPrimitive(doc *gltf.GLTF, bs *bufferSet, src *gltf.Primitive) (*Primitive, error) {
	mode := int64(gltf.TRIANGLES)
	if src.Mode != nil {
		mode = *src.Mode
	}
	if mode != gltf.TRIANGLES {
		return nil, newErr(gltf.UnsupportedPrimitiveMode, "")
	}

	posIdx, ok := src.Attributes["POSITION"]
	if !ok {
		return nil, newErr(gltf.MalformedPrimPositions, "missing POSITION attribute")
	}
	positions, err := bs.readVec(doc, posIdx, 3)
	if err != nil {
		return nil, wrapErr(gltf.MalformedPrimPositions, "", err)
	}
	vertCount := len(positions) / 3
	if vertCount == 0 {
		return nil, newErr(gltf.MalformedPrimPositions, "empty POSITION accessor")
	}

	p := &Primitive{MaterialIndex: -1}
	if src.Material != nil {
		p.MaterialIndex = int(*src.Material)
	}
	p.Positions = toV3(positions)
	negateZ3(p.Positions)

	if idx, ok := src.Attributes["NORMAL"]; ok {
		vals, err := bs.readVec(doc, idx, 3)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimNormals, "", err)
		}
		if len(vals)/3 != vertCount {
			return nil, newErr(gltf.MalformedPrimNormals, "count mismatch with POSITION")
		}
		p.Normals = toV3(vals)
		negateZ3(p.Normals)
	}

	if idx, ok := src.Attributes["TANGENT"]; ok {
		vals, err := bs.readVec(doc, idx, 4)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimTangents, "", err)
		}
		if len(vals)/4 != vertCount {
			return nil, newErr(gltf.MalformedPrimTangents, "count mismatch with POSITION")
		}
		p.Tangents = toV4(vals)
		for i := range p.Tangents {
			p.Tangents[i][2] = -p.Tangents[i][2]
		}
	}

	if idx, ok := src.Attributes["TEXCOORD_0"]; ok {
		vals, err := bs.readVec(doc, idx, 2)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimTexcoords, "", err)
		}
		if len(vals)/2 != vertCount {
			return nil, newErr(gltf.MalformedPrimTexcoords, "count mismatch with POSITION")
		}
		p.Texcoords = make([][2]float32, vertCount)
		for i := range p.Texcoords {
			p.Texcoords[i] = [2]float32{vals[i*2], 1 - vals[i*2+1]}
		}
	}

	if idx, ok := src.Attributes["COLOR_0"]; ok {
		vals, err := bs.readVec(doc, idx, 4)
		if err != nil {
			return nil, newErr(gltf.MalformedPrims, "malformed COLOR_0 attribute")
		}
		if len(vals)/4 != vertCount {
			return nil, newErr(gltf.MalformedPrims, "COLOR_0 count mismatch with POSITION")
		}
		p.Colors = toV4Array(vals)
	}

	hasJoints := false
	if idx, ok := src.Attributes["JOINTS_0"]; ok {
		joints, err := bs.readJoints(doc, idx)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimJoints, "", err)
		}
		if len(joints) != vertCount {
			return nil, newErr(gltf.MalformedPrimJoints, "count mismatch with POSITION")
		}
		p.Joints = joints
		hasJoints = true
	}
	if idx, ok := src.Attributes["WEIGHTS_0"]; ok {
		weights, err := bs.readWeights(doc, idx)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimWeights, "", err)
		}
		if len(weights) != vertCount {
			return nil, newErr(gltf.MalformedPrimWeights, "count mismatch with POSITION")
		}
		if !hasJoints {
			return nil, newErr(gltf.MalformedPrimWeights, "WEIGHTS_0 without JOINTS_0")
		}
		dropLowWeights(weights, p.Joints)
		p.Weights = weights
	}

	if src.Indices != nil {
		indices, err := bs.readIndices(doc, *src.Indices)
		if err != nil {
			return nil, wrapErr(gltf.MalformedPrimIndices, "", err)
		}
		for _, idx := range indices {
			if int(idx) >= vertCount {
				return nil, newErr(gltf.MalformedPrimIndices, "index out of range")
			}
		}
		if len(indices)%3 != 0 {
			return nil, newErr(gltf.MalformedPrimIndices, "count is not a multiple of 3")
		}
		p.Indices = indices
	} else if vertCount%3 != 0 {
		return nil, newErr(gltf.MalformedPrimPositions, "vertex count is not a multiple of 3")
	}

	if p.Normals == nil {
		p.Normals = computeFlatNormals(p.Positions, p.Indices)
	}
	if p.Tangents == nil && p.Texcoords != nil {
		p.Tangents = computeTangents(p.Positions, p.Normals, p.Texcoords, p.Indices)
	}

	p.Bounds = computeBounds(p.Positions)
	return p, nil
}

// dropLowWeights zeroes a joint slot (and its weight) when the weight
// is below the 1e-3 acceptance threshold.
func dropLowWeights(weights [][4]float32, joints [][4]uint16) {
	const minWeight = 1e-3
	for i := range weights {
		for c := 0; c < 4; c++ {
			if weights[i][c] < minWeight {
				weights[i][c] = 0
				joints[i][c] = 0
			}
		}
	}
}

func toV3(flat []float32) []linear.V3 {
	out := make([]linear.V3, len(flat)/3)
	for i := range out {
		out[i] = linear.V3{flat[i*3], flat[i*3+1], flat[i*3+2]}
	}
	return out
}

func toV4(flat []float32) []linear.V4 {
	out := make([]linear.V4, len(flat)/4)
	for i := range out {
		out[i] = linear.V4{flat[i*4], flat[i*4+1], flat[i*4+2], flat[i*4+3]}
	}
	return out
}

func toV4Array(flat []float32) [][4]float32 {
	out := make([][4]float32, len(flat)/4)
	for i := range out {
		out[i] = [4]float32{flat[i*4], flat[i*4+1], flat[i*4+2], flat[i*4+3]}
	}
	return out
}

func negateZ3(v []linear.V3) {
	for i := range v {
		v[i][2] = -v[i][2]
	}
}

// computeFlatNormals accumulates each triangle's face normal into its
// three vertices and normalizes. Unlike the original asset importer's
// vertex-splitting implementation, this keeps the existing index
// mapping (shared vertices end up normal-averaged rather than
// hard-faceted); splitting was not ported since the routine's body
// was not present in the retrieved original source, only its header.
func computeFlatNormals(positions []linear.V3, indices []uint32) []linear.V3 {
	out := make([]linear.V3, len(positions))
	eachTriangle(len(positions), indices, func(a, b, c int) {
		var e1, e2, n linear.V3
		e1.Sub(&positions[b], &positions[a])
		e2.Sub(&positions[c], &positions[a])
		n.Cross(&e1, &e2)
		out[a].Add(&out[a], &n)
		out[b].Add(&out[b], &n)
		out[c].Add(&out[c], &n)
	})
	for i := range out {
		if l := out[i].Len(); l > 1e-12 {
			out[i].Scale(1/l, &out[i])
		} else {
			out[i] = linear.V3{0, 0, 1}
		}
	}
	return out
}

// computeTangents derives per-vertex tangents from normals and
// texcoords using the standard texcoord-gradient method, orthogonal
// to the vertex normal, with w carrying handedness.
func computeTangents(positions, normals []linear.V3, texcoords [][2]float32, indices []uint32) []linear.V4 {
	tan := make([]linear.V3, len(positions))
	bitan := make([]linear.V3, len(positions))
	eachTriangle(len(positions), indices, func(a, b, c int) {
		var e1, e2 linear.V3
		e1.Sub(&positions[b], &positions[a])
		e2.Sub(&positions[c], &positions[a])
		du1, dv1 := texcoords[b][0]-texcoords[a][0], texcoords[b][1]-texcoords[a][1]
		du2, dv2 := texcoords[c][0]-texcoords[a][0], texcoords[c][1]-texcoords[a][1]
		det := du1*dv2 - du2*dv1
		if math32.Abs(det) < 1e-12 {
			return
		}
		r := 1 / det
		var t, b3 linear.V3
		t[0] = r * (dv2*e1[0] - dv1*e2[0])
		t[1] = r * (dv2*e1[1] - dv1*e2[1])
		t[2] = r * (dv2*e1[2] - dv1*e2[2])
		b3[0] = r * (du1*e2[0] - du2*e1[0])
		b3[1] = r * (du1*e2[1] - du2*e1[1])
		b3[2] = r * (du1*e2[2] - du2*e1[2])
		for _, v := range [3]int{a, b, c} {
			tan[v].Add(&tan[v], &t)
			bitan[v].Add(&bitan[v], &b3)
		}
	})

	out := make([]linear.V4, len(positions))
	for i := range out {
		n := normals[i]
		var proj, t linear.V3
		d := n.Dot(&tan[i])
		proj.Scale(d, &n)
		t.Sub(&tan[i], &proj)
		if l := t.Len(); l > 1e-12 {
			t.Scale(1/l, &t)
		} else {
			t = linear.V3{1, 0, 0}
		}
		var cross linear.V3
		cross.Cross(&n, &t)
		w := float32(1)
		if cross.Dot(&bitan[i]) < 0 {
			w = -1
		}
		out[i] = linear.V4{t[0], t[1], t[2], w}
	}
	return out
}

func eachTriangle(vertCount int, indices []uint32, f func(a, b, c int)) {
	if len(indices) == 0 {
		for i := 0; i+2 < vertCount; i += 3 {
			f(i, i+1, i+2)
		}
		return
	}
	for i := 0; i+2 < len(indices); i += 3 {
		f(int(indices[i]), int(indices[i+1]), int(indices[i+2]))
	}
}

func computeBounds(positions []linear.V3) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}
	min, max := positions[0], positions[0]
	for _, p := range positions[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < min[i] {
				min[i] = p[i]
			}
			if p[i] > max[i] {
				max[i] = p[i]
			}
		}
	}
	var center, half linear.V3
	for i := 0; i < 3; i++ {
		center[i] = (min[i] + max[i]) / 2
		half[i] = (max[i] - min[i]) / 2
	}
	radius := half.Len()
	return Bounds{Min: min, Max: max, Radius: radius}
}

func unionBounds(a, b Bounds) Bounds {
	var min, max linear.V3
	for i := 0; i < 3; i++ {
		min[i] = math32.Min(a.Min[i], b.Min[i])
		max[i] = math32.Max(a.Max[i], b.Max[i])
	}
	var center, half linear.V3
	for i := 0; i < 3; i++ {
		center[i] = (min[i] + max[i]) / 2
		half[i] = (max[i] - min[i]) / 2
	}
	return Bounds{Min: min, Max: max, Radius: half.Len()}
}
