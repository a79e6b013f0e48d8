// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package job

// Stat names one pipeline statistic a StatRecorder can report.
type Stat int

const (
	InputAssemblyVertices Stat = iota
	InputAssemblyPrimitives
	ShaderInvocationsVert
	ShaderInvocationsFrag

	statCount
)

// StatRecorder captures pipeline statistics for a job's recorded
// commands. The device abstraction this is adapted from queries
// Vulkan pipeline-statistics query pools, a capability
// driver.CmdBuffer does not expose; IsSupported always reports false
// and Query always returns zero until such a primitive exists.
type StatRecorder struct{}

// IsSupported reports whether pipeline statistics can be captured.
func (*StatRecorder) IsSupported() bool { return false }

// Reset discards any previously captured statistics.
func (*StatRecorder) Reset() {}

// Query returns the value of stat from the last capture, or zero if
// unsupported.
func (*StatRecorder) Query(stat Stat) uint64 { return 0 }
