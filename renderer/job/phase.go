// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package job implements the render backend's per-frame job: a
// command buffer per phase, advanced through a fixed Main → Output
// sequence with each phase submitted in turn, with a stopwatch and a
// pipeline-statistics recorder attached to the frame's work.
package job

// Phase is one stage of a frame job's command-buffer sequence. A job
// begins at some Phase, advances strictly forward, and submits once
// it has recorded (and ended) the Output phase.
type Phase int

const (
	Main Phase = iota
	Output

	phaseCount
)

var phaseName = [...]string{Main: "main", Output: "output"}

func (p Phase) String() string { return phaseName[p] }
