// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package ecs

import "fmt"

// Kind identifies a class of programmer error.
// These are never returned as error values — they are always
// delivered by panicking with a *ProgrammerError, matching the
// design notes' "abort with a structured diagnostic" policy: a
// recovering test harness can still recover the panic and assert on
// it via errors.As, but production code is expected to let it crash.
type Kind int

const (
	DuplicateType Kind = iota
	TooManyTypes
	ComponentTooLarge
	DoubleDestroy
	SerialOverflow
	UnregisteredType
)

var kindString = [...]string{
	DuplicateType:     "duplicate component type registration",
	TooManyTypes:      "component type count exceeds maximum",
	ComponentTooLarge:  "component size exceeds maximum",
	DoubleDestroy:     "entity destroyed twice in the same flush",
	SerialOverflow:    "entity serial counter overflow",
	UnregisteredType:  "use of an unregistered component type",
}

// ProgrammerError is panicked for bugs that must abort the process:
// duplicate type registration, exceeding the component count, a
// component whose size is above the fixed maximum, or destroying an
// already-destroyed entity within a single flush.
type ProgrammerError struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *ProgrammerError) Error() string {
	s := "ecs: " + kindString[e.Kind]
	if e.Reason != "" {
		s += ": " + e.Reason
	}
	return s
}

// fail panics with a *ProgrammerError of the given kind.
func fail(kind Kind, format string, args ...any) {
	panic(&ProgrammerError{Kind: kind, Reason: fmt.Sprintf(format, args...)})
}
