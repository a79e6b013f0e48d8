// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package cache implements the imported-asset write-back cache: a
// directory of hash-named files holding the packed byte blob an
// asset.Import produced, so a later load of the same source content
// can skip re-parsing glTF entirely. It follows the same header +
// validation + atomic-replace convention as the render backend's
// renderer/pcache, applied to mesh/skeleton/animation blobs instead
// of pipeline state.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
)

// headerSize is fixed: u32 size, u32 version, u64 checksum.
const headerSize = 4 + 4 + 8

// version is the only header version this package writes or accepts.
const version = 1

// ErrIncompatible means the stored entry's header doesn't match this
// package's version, or its checksum doesn't match its payload.
var ErrIncompatible = errors.New("cache: incompatible or corrupt entry")

// Cache is a directory of hash-named blob files.
type Cache struct {
	dir string
}

// New returns a Cache rooted at dir. The directory is created on
// first Put, not here.
func New(dir string) *Cache { return &Cache{dir: dir} }

func (c *Cache) path(hash uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.cache", hash))
}

// Get looks up the blob stored under hash (the source content hash an
// asset.Import caller computed). ok is false on a miss, a version
// mismatch, or a checksum failure — all of which are logged, not
// returned as an error, so the caller can fall through to importing.
func (c *Cache) Get(hash uint64) (blob []byte, ok bool) {
	data, err := os.ReadFile(c.path(hash))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("cache: failed to read entry %016x: %v", hash, err)
		}
		return nil, false
	}
	blob, err = parse(data)
	if err != nil {
		log.Printf("cache: entry %016x: %v", hash, err)
		return nil, false
	}
	return blob, true
}

func parse(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, ErrIncompatible
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	ver := binary.LittleEndian.Uint32(data[4:8])
	sum := binary.LittleEndian.Uint64(data[8:16])
	payload := data[headerSize:]
	if int(size) != len(data) || ver != version {
		return nil, ErrIncompatible
	}
	if checksum(payload) != sum {
		return nil, ErrIncompatible
	}
	return payload, nil
}

func checksum(blob []byte) uint64 {
	h := fnv.New64a()
	h.Write(blob)
	return h.Sum64()
}

// Put stores blob under hash, replacing any existing entry
// atomically (write to a temp file, then rename).
func (c *Cache) Put(hash uint64, blob []byte) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	buf := make([]byte, headerSize+len(blob))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint64(buf[8:16], checksum(blob))
	copy(buf[headerSize:], blob)

	path := c.path(hash)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Printf("cache: failed to save entry %016x: %v", hash, err)
		return err
	}
	_, werr := tmp.Write(buf)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		err := errors.Join(werr, cerr)
		log.Printf("cache: failed to save entry %016x: %v", hash, err)
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		log.Printf("cache: failed to save entry %016x: %v", hash, err)
		return err
	}
	return nil
}

// Hash returns the FNV-1a content hash of raw asset bytes, the key
// Get/Put expect.
func Hash(raw []byte) uint64 { return checksum(raw) }
