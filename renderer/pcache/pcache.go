// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package pcache implements the render backend's pipeline cache file:
// a small binary header identifying the device the blob was produced
// on, followed by the opaque cache payload the device API itself
// produces/consumes. A mismatched header means the blob cannot be
// trusted on the current device and must be discarded.
package pcache

import (
	"encoding/binary"
	"errors"
	"log"
	"os"
	"path/filepath"
)

// UUIDSize is the length of a pipeline cache UUID (Vulkan's
// VK_UUID_SIZE).
const UUIDSize = 16

// headerSize is the fixed size of the header, matching the contract's
// "u32 size (= 16 + UUID_SIZE)".
const headerSize = 16 + UUIDSize

// version is the only header version this package writes or accepts
// (Vulkan's VK_PIPELINE_CACHE_HEADER_VERSION_ONE).
const version = 1

// MaxSize caps how much of a produced pipeline cache is persisted.
const MaxSize = 32 << 20

// ErrIncompatible means the stored cache's header does not match the
// current device identity, or the file is too short/malformed to
// contain a header at all.
var ErrIncompatible = errors.New("pcache: incompatible or corrupt cache file")

// Identity identifies the device a pipeline cache blob was produced
// on. The render backend's device layer does not currently expose
// vendor/device/UUID accessors (driver.GPU and driver.Limits carry
// neither), so the caller supplies it directly from whatever the
// concrete backend can read off its physical device properties.
type Identity struct {
	VendorID uint32
	DeviceID uint32
	CacheID  [UUIDSize]byte
}

func (id Identity) matches(h Identity) bool {
	return id.VendorID == h.VendorID && id.DeviceID == h.DeviceID && id.CacheID == h.CacheID
}

// Path returns the cache file path for an executable at exePath:
// "<stem>.vkc" next to it.
func Path(exePath string) string {
	dir := filepath.Dir(exePath)
	stem := filepath.Base(exePath)
	if ext := filepath.Ext(stem); ext != "" {
		stem = stem[:len(stem)-len(ext)]
	}
	return filepath.Join(dir, stem+".vkc")
}

// Load reads and validates the pipeline cache at path against id,
// returning the payload to pass as the device API's initial cache
// data. A missing file, a malformed header, or an identity mismatch
// all result in a nil payload (logged, not returned as an error) so
// the caller can create an empty cache and carry on.
func Load(path string, id Identity) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("pcache: failed to read %s: %v", path, err)
		}
		return nil
	}
	payload, err := parse(data, id)
	if err != nil {
		log.Printf("pcache: %s: %v", path, err)
		return nil
	}
	log.Printf("pcache: loaded %s (%d bytes)", path, len(payload))
	return payload
}

func parse(data []byte, id Identity) ([]byte, error) {
	if len(data) < headerSize {
		return nil, ErrIncompatible
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	ver := binary.LittleEndian.Uint32(data[4:8])
	if size != headerSize || ver != version {
		return nil, ErrIncompatible
	}
	var h Identity
	h.VendorID = binary.LittleEndian.Uint32(data[8:12])
	h.DeviceID = binary.LittleEndian.Uint32(data[12:16])
	copy(h.CacheID[:], data[16:headerSize])
	if !id.matches(h) {
		return nil, ErrIncompatible
	}
	return data[headerSize:], nil
}

// Save writes payload (capped to MaxSize) to path, prefixed by id's
// header, atomically (write to a temp file, then rename).
func Save(path string, id Identity, payload []byte) error {
	if len(payload) > MaxSize {
		payload = payload[:MaxSize]
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], headerSize)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint32(buf[8:12], id.VendorID)
	binary.LittleEndian.PutUint32(buf[12:16], id.DeviceID)
	copy(buf[16:headerSize], id.CacheID[:])
	copy(buf[headerSize:], payload)

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Printf("pcache: failed to save %s: %v", path, err)
		return err
	}
	_, werr := tmp.Write(buf)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		err := errors.Join(werr, cerr)
		log.Printf("pcache: failed to save %s: %v", path, err)
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		log.Printf("pcache: failed to save %s: %v", path, err)
		return err
	}
	log.Printf("pcache: saved %s (%d bytes)", path, len(buf))
	return nil
}
