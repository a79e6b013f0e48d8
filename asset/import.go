// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/vkforge/forge/gltf"
)

// Document is the materialized result of importing a glTF/GLB source:
// its mesh, optional skeleton, and any animations, ready for upload.
type Document struct {
	Mesh       *Mesh
	Skeleton   *Skeleton
	Animations []Animation
}

// Import runs the full BuffersAcquire -> BuffersWait -> Parse pipeline
// over a glTF document read whole from r (auto-detected as GLB or
// plain JSON text). assetID, when non-empty, identifies this asset so
// that a buffer referencing its own id is rejected rather than
// followed. resolver services any external (non-data-URI,
// non-embedded) buffer reference; it may be nil if the document is
// known to carry no such references.
func Import(r io.Reader, assetID string, resolver Resolver) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapErr(gltf.ImportFailed, "reading source", err)
	}

	var gdoc *gltf.GLTF
	var bin []byte
	if gltf.IsGLB(bytes.NewReader(data)) {
		if err := scanGLB(data); err != nil {
			return nil, err
		}
		if gdoc, bin, err = gltf.Unpack(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	} else {
		if gdoc, err = gltf.Decode(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}
	if err = gdoc.Check(); err != nil {
		return nil, err
	}

	// Phase: BuffersAcquire.
	bs, err := acquireBuffers(gdoc, bin, assetID, resolver)
	if err != nil {
		return nil, err
	}
	defer bs.closeAll()

	// Phase: BuffersWait.
	for {
		done, err := bs.wait(gdoc)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	// Phase: Parse.
	mesh, err := importMesh(gdoc, bs)
	if err != nil {
		return nil, err
	}
	skel, err := importSkin(gdoc, bs)
	if err != nil {
		return nil, err
	}
	anims, err := importAnimations(gdoc, bs)
	if err != nil {
		return nil, err
	}

	return &Document{Mesh: mesh, Skeleton: skel, Animations: anims}, nil
}

// scanGLB validates the GLB container's outer framing before Unpack
// parses it: the header's declared length must match the source's
// actual length, every chunk length must be 4-byte aligned and fit
// within the remaining bytes, and the chunk stream must not exceed
// gltf.MaxChunks nor be empty.
func scanGLB(data []byte) error {
	const headerSize = 12
	if len(data) < headerSize {
		return newErr(gltf.MalformedGlbHeader, "truncated GLB header")
	}
	total := binary.LittleEndian.Uint32(data[8:12])
	if int(total) != len(data) {
		return newErr(gltf.MalformedFile, "GLB length does not match source length")
	}

	off, count := headerSize, 0
	for off < len(data) {
		if off+8 > len(data) {
			return newErr(gltf.MalformedGlbChunk, "truncated chunk header")
		}
		length := binary.LittleEndian.Uint32(data[off : off+4])
		if length%4 != 0 {
			return newErr(gltf.MalformedGlbChunk, "chunk length not 4-byte aligned")
		}
		off += 8 + int(length)
		if off > len(data) {
			return newErr(gltf.MalformedGlbChunk, "chunk payload exceeds container length")
		}
		count++
		if count > gltf.MaxChunks {
			return newErr(gltf.GlbChunkCountExceedsMaximum, "")
		}
	}
	if count == 0 {
		return newErr(gltf.GlbJsonChunkMissing, "GLB has 0 chunks")
	}
	return nil
}
