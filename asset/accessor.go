// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"encoding/binary"
	"math"

	"github.com/vkforge/forge/gltf"
	"github.com/vkforge/forge/linear"
)

func componentSize(componentType int64) int {
	switch componentType {
	case gltf.BYTE, gltf.UNSIGNED_BYTE:
		return 1
	case gltf.SHORT, gltf.UNSIGNED_SHORT:
		return 2
	case gltf.UNSIGNED_INT, gltf.FLOAT:
		return 4
	default:
		return 0
	}
}

func typeComponents(t string) int {
	switch t {
	case gltf.SCALAR:
		return 1
	case gltf.VEC2:
		return 2
	case gltf.VEC3:
		return 3
	case gltf.VEC4:
		return 4
	case gltf.MAT4:
		return 16
	default:
		return 0
	}
}

// accessorBytes returns the raw bytes for accessor idx and the stride
// (in bytes) between consecutive elements, honoring a BufferView's
// ByteStride when the view is interleaved.
func (bs *bufferSet) accessorBytes(doc *gltf.GLTF, idx int64, wantType string, wantComponentType int64) ([]byte, int, error) {
	if idx < 0 || idx >= int64(len(doc.Accessors)) {
		return nil, 0, newErr(gltf.MalformedAccessors, "index out of range")
	}
	acc := &doc.Accessors[idx]
	if acc.Type != wantType {
		return nil, 0, newErr(gltf.MalformedPrims, "unexpected accessor.type")
	}
	if wantComponentType != 0 && acc.ComponentType != wantComponentType {
		return nil, 0, newErr(gltf.MalformedPrims, "unexpected accessor.componentType")
	}
	if acc.BufferView == nil {
		return nil, 0, newErr(gltf.MalformedPrims, "sparse-only accessors are not supported")
	}
	raw, err := bs.bytesFor(doc, *acc.BufferView)
	if err != nil {
		return nil, 0, err
	}
	comps := typeComponents(acc.Type)
	compSize := componentSize(acc.ComponentType)
	elemSize := comps * compSize
	stride := elemSize
	if bv := &doc.BufferViews[*acc.BufferView]; bv.ByteStride > 0 {
		stride = int(bv.ByteStride)
	}
	off := int(acc.ByteOffset)
	need := off + stride*(int(acc.Count)-1) + elemSize
	if int(acc.Count) <= 0 || need > len(raw) {
		return nil, 0, newErr(gltf.MalformedPrims, "accessor data out of bounds")
	}
	return raw[off:need], stride, nil
}

// readVec reads a VEC2, VEC3 or VEC4 float32 accessor (normalization
// of integer component types is not needed by any caller in this
// package, so only the FLOAT component type is supported).
func (bs *bufferSet) readVec(doc *gltf.GLTF, idx int64, comps int) ([]float32, error) {
	wantType := gltf.VEC3
	switch comps {
	case 2:
		wantType = gltf.VEC2
	case 4:
		wantType = gltf.VEC4
	}
	raw, stride, err := bs.accessorBytes(doc, idx, wantType, gltf.FLOAT)
	if err != nil {
		return nil, err
	}
	acc := &doc.Accessors[idx]
	out := make([]float32, int(acc.Count)*comps)
	for i := 0; i < int(acc.Count); i++ {
		e := raw[i*stride:]
		for c := 0; c < comps; c++ {
			u := binary.LittleEndian.Uint32(e[c*4:])
			out[i*comps+c] = math.Float32frombits(u)
		}
	}
	return out, nil
}

// readIndices reads a SCALAR index accessor of component type u16 or
// u32, expanding it to uint32.
func (bs *bufferSet) readIndices(doc *gltf.GLTF, idx int64) ([]uint32, error) {
	if idx < 0 || idx >= int64(len(doc.Accessors)) {
		return nil, newErr(gltf.MalformedAccessors, "index out of range")
	}
	acc := &doc.Accessors[idx]
	if acc.Type != gltf.SCALAR {
		return nil, newErr(gltf.MalformedPrimIndices, "accessor.type must be SCALAR")
	}
	var raw []byte
	var stride int
	var err error
	switch acc.ComponentType {
	case gltf.UNSIGNED_SHORT:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.SCALAR, gltf.UNSIGNED_SHORT)
	case gltf.UNSIGNED_INT:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.SCALAR, gltf.UNSIGNED_INT)
	default:
		return nil, newErr(gltf.MalformedPrimIndices, "unsupported index componentType")
	}
	if err != nil {
		return nil, err
	}
	out := make([]uint32, acc.Count)
	for i := 0; i < int(acc.Count); i++ {
		e := raw[i*stride:]
		if acc.ComponentType == gltf.UNSIGNED_SHORT {
			out[i] = uint32(binary.LittleEndian.Uint16(e))
		} else {
			out[i] = binary.LittleEndian.Uint32(e)
		}
	}
	return out, nil
}

// readJoints reads a VEC4 joint-index accessor (u8 or u16) as uint16.
func (bs *bufferSet) readJoints(doc *gltf.GLTF, idx int64) ([][4]uint16, error) {
	acc := &doc.Accessors[idx]
	var raw []byte
	var stride int
	var err error
	switch acc.ComponentType {
	case gltf.UNSIGNED_BYTE:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.VEC4, gltf.UNSIGNED_BYTE)
	case gltf.UNSIGNED_SHORT:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.VEC4, gltf.UNSIGNED_SHORT)
	default:
		return nil, newErr(gltf.MalformedPrimJoints, "unsupported joints componentType")
	}
	if err != nil {
		return nil, err
	}
	out := make([][4]uint16, acc.Count)
	for i := 0; i < int(acc.Count); i++ {
		e := raw[i*stride:]
		for c := 0; c < 4; c++ {
			if acc.ComponentType == gltf.UNSIGNED_BYTE {
				out[i][c] = uint16(e[c])
			} else {
				out[i][c] = binary.LittleEndian.Uint16(e[c*2:])
			}
		}
	}
	return out, nil
}

// readWeights reads a VEC4 weights accessor (f32, u8-norm or
// u16-norm) as float32.
func (bs *bufferSet) readWeights(doc *gltf.GLTF, idx int64) ([][4]float32, error) {
	acc := &doc.Accessors[idx]
	var raw []byte
	var stride int
	var err error
	out := make([][4]float32, acc.Count)
	switch acc.ComponentType {
	case gltf.FLOAT:
		vals, err := bs.readVec(doc, idx, 4)
		if err != nil {
			return nil, err
		}
		for i := range out {
			copy(out[i][:], vals[i*4:i*4+4])
		}
		return out, nil
	case gltf.UNSIGNED_BYTE:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.VEC4, gltf.UNSIGNED_BYTE)
	case gltf.UNSIGNED_SHORT:
		raw, stride, err = bs.accessorBytes(doc, idx, gltf.VEC4, gltf.UNSIGNED_SHORT)
	default:
		return nil, newErr(gltf.MalformedPrimWeights, "unsupported weights componentType")
	}
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(acc.Count); i++ {
		e := raw[i*stride:]
		for c := 0; c < 4; c++ {
			if acc.ComponentType == gltf.UNSIGNED_BYTE {
				out[i][c] = float32(e[c]) / float32(math.MaxUint8)
			} else {
				out[i][c] = float32(binary.LittleEndian.Uint16(e[c*2:])) / float32(math.MaxUint16)
			}
		}
	}
	return out, nil
}

// readMat4s reads a MAT4 f32 accessor, e.g. inverseBindMatrices.
func (bs *bufferSet) readMat4s(doc *gltf.GLTF, idx int64) ([]linear.M4, error) {
	raw, stride, err := bs.accessorBytes(doc, idx, gltf.MAT4, gltf.FLOAT)
	if err != nil {
		return nil, err
	}
	acc := &doc.Accessors[idx]
	out := make([]linear.M4, acc.Count)
	for i := range out {
		e := raw[i*stride:]
		for col := 0; col < 4; col++ {
			for row := 0; row < 4; row++ {
				u := binary.LittleEndian.Uint32(e[(col*4+row)*4:])
				out[i][col][row] = math.Float32frombits(u)
			}
		}
	}
	return out, nil
}
