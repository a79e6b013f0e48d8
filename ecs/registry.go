// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import (
	"reflect"
	"sync"
	"unsafe"
)

// maxComponentSize bounds the size of a single component instance.
// Larger payloads belong in an owned buffer referenced by a small
// handle component rather than inlined into a chunk column.
const maxComponentSize = 4096

// compInfo describes a registered component type.
type compInfo struct {
	size    uintptr
	align   uintptr
	destroy func(unsafe.Pointer)
	combine func(dst, src unsafe.Pointer)
}

// registry is the process-wide component-type table. Like the
// pipeline cache and string table described for the rest of this
// core, it is a singleton: populated once during init via Register
// and never mutated afterward except through that path.
var registry struct {
	mu    sync.Mutex
	infos []compInfo
	types map[reflect.Type]CompId
}

func init() {
	if registry.types == nil {
		registry.types = make(map[reflect.Type]CompId)
	}
}

// Register records a component type T, returning the CompId future
// calls use to refer to it. combine, if non-nil, is invoked to merge
// two pending adds of T to the same entity within a single flush
// (see Buffer); it receives the earlier value in dst and the later
// one in src, and must leave the merged result in dst.
//
// Registering the same type twice, or registering more than
// MaxComponents types, or registering a type whose size exceeds the
// fixed maximum, is a programmer error.
func Register[T any](combine func(dst, src *T)) CompId {
	var zero T
	t := reflect.TypeOf(zero)

	registry.mu.Lock()
	defer registry.mu.Unlock()

	// Package-level variable initializers run before init functions,
	// so the table may not have been made yet.
	if registry.types == nil {
		registry.types = make(map[reflect.Type]CompId)
	}
	if _, ok := registry.types[t]; ok {
		fail(DuplicateType, "type %v already registered", t)
	}
	if len(registry.infos) >= MaxComponents {
		fail(TooManyTypes, "cannot register %v: limit is %d", t, MaxComponents)
	}
	size := unsafe.Sizeof(zero)
	if size > maxComponentSize {
		fail(ComponentTooLarge, "type %v is %d bytes, limit is %d", t, size, maxComponentSize)
	}

	id := CompId(len(registry.infos))
	var destroy func(unsafe.Pointer)
	if hasFinalizableFields[T]() {
		destroy = func(p unsafe.Pointer) { *(*T)(p) = zero }
	}
	var comb func(dst, src unsafe.Pointer)
	if combine != nil {
		comb = func(dst, src unsafe.Pointer) { combine((*T)(dst), (*T)(src)) }
	}
	registry.infos = append(registry.infos, compInfo{
		size:    size,
		align:   unsafe.Alignof(zero),
		destroy: destroy,
		combine: comb,
	})
	registry.types[t] = id
	return id
}

// hasFinalizableFields reports whether T contains pointers, slices,
// maps, channels, or interfaces, in which case its storage must be
// zeroed on removal so the garbage collector can reclaim referents
// rather than leaving stale pointers inside a reused chunk column.
func hasFinalizableFields[T any]() bool {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return typeHasPointer(t)
}

func typeHasPointer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Interface, reflect.String, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return typeHasPointer(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if typeHasPointer(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// TypeId returns the CompId for T, panicking with UnregisteredType
// if T has not been passed to Register.
func TypeId[T any]() CompId {
	var zero T
	t := reflect.TypeOf(zero)
	registry.mu.Lock()
	defer registry.mu.Unlock()
	id, ok := registry.types[t]
	if !ok {
		fail(UnregisteredType, "%v", t)
	}
	return id
}

func compSize(id CompId) uintptr {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.infos[id].size
}

func compDestroy(id CompId, p unsafe.Pointer) {
	registry.mu.Lock()
	fn := registry.infos[id].destroy
	registry.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func hasCombine(id CompId) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.infos[id].combine != nil
}

func compCombine(id CompId, dst, src unsafe.Pointer) {
	registry.mu.Lock()
	fn := registry.infos[id].combine
	registry.mu.Unlock()
	if fn != nil {
		fn(dst, src)
	} else {
		copy(unsafe.Slice((*byte)(dst), compSize(id)), unsafe.Slice((*byte)(src), compSize(id)))
	}
}
