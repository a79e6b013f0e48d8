// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"encoding/base64"
	"strings"

	"github.com/vkforge/forge/gltf"
)

const dataURIPrefix = "data:application/octet-stream;base64,"

// bufferSet resolves every glTF buffer element to its raw bytes,
// driving the BuffersAcquire/BuffersWait phases.
type bufferSet struct {
	data    [][]byte
	pend    []int // indices into data still waiting on an external Source.
	srcs    map[int]Source
	assetID string
}

// acquire resolves data URIs and the embedded GLB BIN chunk
// immediately, and starts external fetches (via resolver) for
// anything else, recording them as pending.
func acquireBuffers(doc *gltf.GLTF, bin []byte, assetID string, resolver Resolver) (*bufferSet, error) {
	bs := &bufferSet{
		data:    make([][]byte, len(doc.Buffers)),
		srcs:    make(map[int]Source),
		assetID: assetID,
	}
	for i := range doc.Buffers {
		b := &doc.Buffers[i]
		switch {
		case b.URI == "":
			if i != 0 || bin == nil {
				return nil, wrapErr(gltf.InvalidBuffer, "missing URI for non-embedded buffer", nil)
			}
			if int64(len(bin)) < b.ByteLength {
				return nil, wrapErr(gltf.InvalidBuffer, "embedded BIN chunk shorter than declared byteLength", nil)
			}
			bs.data[i] = bin[:b.ByteLength]

		case b.URI == assetID:
			return nil, newErr(gltf.MalformedBuffers, "buffer URI refers to this asset")

		case strings.HasPrefix(b.URI, dataURIPrefix):
			raw, err := base64.StdEncoding.DecodeString(b.URI[len(dataURIPrefix):])
			if err != nil {
				return nil, wrapErr(gltf.InvalidBuffer, "invalid base64 data URI", err)
			}
			if int64(len(raw)) < b.ByteLength {
				return nil, wrapErr(gltf.InvalidBuffer, "data URI shorter than declared byteLength", nil)
			}
			bs.data[i] = raw[:b.ByteLength]

		default:
			if resolver == nil {
				return nil, wrapErr(gltf.InvalidBuffer, "external buffer reference with no Resolver configured", nil)
			}
			src, err := resolver.Resolve(b.URI)
			if err != nil {
				return nil, wrapErr(gltf.InvalidBuffer, "resolving external buffer", err)
			}
			bs.srcs[i] = src
			bs.pend = append(bs.pend, i)
		}
	}
	return bs, nil
}

// wait polls every pending external buffer once. It reports done once
// every pending buffer has been read, leaving bs.data fully populated.
func (bs *bufferSet) wait(doc *gltf.GLTF) (done bool, err error) {
	remaining := bs.pend[:0]
	for _, i := range bs.pend {
		raw, err := bs.srcs[i].Data()
		switch {
		case err == ErrNotReady:
			remaining = append(remaining, i)
			continue
		case err != nil:
			return false, wrapErr(gltf.InvalidBuffer, "reading external buffer", err)
		}
		if int64(len(raw)) < doc.Buffers[i].ByteLength {
			return false, wrapErr(gltf.InvalidBuffer, "external buffer shorter than declared byteLength", nil)
		}
		bs.data[i] = raw[:doc.Buffers[i].ByteLength]
	}
	bs.pend = remaining
	return len(bs.pend) == 0, nil
}

// closeAll closes every Source that acquire created, whether or not
// it ever finished — the importer's failure paths must still release
// any in-flight external fetch.
func (bs *bufferSet) closeAll() {
	for _, src := range bs.srcs {
		src.Close()
	}
}

// bytesFor returns the raw bytes referenced by a glTF bufferView.
func (bs *bufferSet) bytesFor(doc *gltf.GLTF, bufferView int64) ([]byte, error) {
	if bufferView < 0 || bufferView >= int64(len(doc.BufferViews)) {
		return nil, newErr(gltf.MalformedBufferViews, "index out of range")
	}
	bv := &doc.BufferViews[bufferView]
	buf := bs.data[bv.Buffer]
	start := bv.ByteOffset
	end := start + bv.ByteLength
	if start < 0 || end > int64(len(buf)) {
		return nil, newErr(gltf.MalformedBufferViews, "out of bounds")
	}
	return buf[start:end], nil
}
