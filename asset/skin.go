// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"hash/fnv"

	"github.com/vkforge/forge/gltf"
	"github.com/vkforge/forge/linear"
)

// MaxJoints bounds the number of joints a single Skeleton may carry.
// The original loader enforces a similar compile-time cap (referenced
// as asset_mesh_joints_max in loader_mesh_gltf.c, whose value was not
// present in the retained header set); 256 is chosen as a generous
// round cap for a skinned-character joint count.
const MaxJoints = 256

// Joint is one bone of an imported Skeleton.
type Joint struct {
	Name     string
	NameHash uint32 // FNV-1a of Name, for runtime lookup by string.
	Bind     linear.M4
	InvBind  linear.M4
	Parent   int // -1 for a root joint; otherwise < its own index.

	SkinCount      int
	BoundingRadius float32
}

// Skeleton is the materialized result of importing a glTF skin.
type Skeleton struct {
	Joints []Joint
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// importSkin materializes doc.Skins[0], validating that its joint
// list is already topologically sorted (a joint's parent, if also a
// member of the skin, must precede it) rather than silently
// reordering it.
func importSkin(doc *gltf.GLTF, bs *bufferSet) (*Skeleton, error) {
	if len(doc.Skins) == 0 {
		return nil, nil
	}
	skin := &doc.Skins[0]
	n := len(skin.Joints)
	if n == 0 {
		return nil, newErr(gltf.MalformedSkin, "skin has no joints")
	}
	if n > MaxJoints {
		return nil, newErr(gltf.JointCountExceedsMaximum, "")
	}

	nodeParent := make([]int, len(doc.Nodes))
	for i := range nodeParent {
		nodeParent[i] = -1
	}
	for i := range doc.Nodes {
		for _, c := range doc.Nodes[i].Children {
			if c < 0 || int(c) >= len(doc.Nodes) {
				return nil, newErr(gltf.MalformedNodes, "child index out of range")
			}
			nodeParent[c] = i
		}
	}

	nodeToJoint := make(map[int64]int, n)
	for i, node := range skin.Joints {
		if node < 0 || int(node) >= len(doc.Nodes) {
			return nil, newErr(gltf.MalformedSkin, "joint node index out of range")
		}
		nodeToJoint[node] = i
	}

	var ibms []linear.M4
	if skin.InverseBindMatrices != nil {
		var err error
		ibms, err = bs.readMat4s(doc, *skin.InverseBindMatrices)
		if err != nil {
			return nil, wrapErr(gltf.MalformedBindMatrix, "", err)
		}
		if len(ibms) != n {
			return nil, newErr(gltf.MalformedBindMatrix, "count mismatch with joints")
		}
	}

	// Flip the z axis to match the coordinate conversion applied to
	// mesh data: inverseBind' = inverseBind * diag(1,1,-1,1).
	var flip linear.M4
	flip.I()
	flip[2][2] = -1

	joints := make([]Joint, n)
	for i, node := range skin.Joints {
		parent := -1
		if p, ok := nodeToJoint[int64(nodeParent[node])]; ok {
			parent = p
		}
		if parent >= i {
			return nil, newErr(gltf.MalformedNodes, "joint hierarchy is not topologically sorted")
		}

		var bind linear.M4
		bind.I()
		n := &doc.Nodes[node]
		if n.Matrix != nil {
			for c := 0; c < 4; c++ {
				for r := 0; r < 4; r++ {
					bind[c][r] = n.Matrix[c*4+r]
				}
			}
		} else {
			trs(n, &bind)
		}

		inv := ident4()
		if ibms != nil {
			var m linear.M4
			m.Mul(&ibms[i], &flip)
			inv = m
		}

		joints[i] = Joint{
			Name:     nodeName(n),
			NameHash: nameHash(nodeName(n)),
			Bind:     bind,
			InvBind:  inv,
			Parent:   parent,
		}
	}

	return &Skeleton{Joints: joints}, nil
}

func ident4() linear.M4 {
	var m linear.M4
	m.I()
	return m
}

func nodeName(n *gltf.Node) string { return n.Name }

// trs composes a node's TRS properties (or glTF defaults) into m.
func trs(n *gltf.Node, m *linear.M4) {
	q := linear.Q{V: linear.V3{0, 0, 0}, R: 1}
	if n.Rotation != nil {
		q = linear.Q{V: linear.V3{n.Rotation[0], n.Rotation[1], n.Rotation[2]}, R: n.Rotation[3]}
	}
	scale := linear.V3{1, 1, 1}
	if n.Scale != nil {
		scale = linear.V3{n.Scale[0], n.Scale[1], n.Scale[2]}
	}
	translate := linear.V3{0, 0, 0}
	if n.Translation != nil {
		translate = linear.V3{n.Translation[0], n.Translation[1], n.Translation[2]}
	}

	q.Norm(&q)
	m.RotateQ(&q)
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			m[c][r] *= scale[c]
		}
	}
	m[3] = linear.V4{translate[0], translate[1], translate[2], 1}
}
