// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package job

import "time"

// Record identifies a timestamp previously taken by Stopwatch.Mark.
type Record int

// Stopwatch records timestamps at points in a job's command stream.
// The original device abstraction this is adapted from queries GPU
// timestamp counters through a query pool; driver.CmdBuffer exposes
// no such primitive, so this records wall-clock time at the point
// Mark is called instead. Under this engine's per-job
// submit-then-wait usage this still brackets a job's GPU-visible
// work closely enough to report a useful duration, but it is not a
// true in-pipeline timestamp interval.
type Stopwatch struct {
	marks []time.Time
}

// Reset discards every previously taken mark.
func (s *Stopwatch) Reset() { s.marks = s.marks[:0] }

// Mark records the current time and returns a Record to retrieve it
// with later.
func (s *Stopwatch) Mark() Record {
	s.marks = append(s.marks, time.Now())
	return Record(len(s.marks) - 1)
}

// Time returns the timestamp taken at r.
func (s *Stopwatch) Time(r Record) time.Time { return s.marks[r] }
