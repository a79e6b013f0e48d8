// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package job

import (
	"errors"
	"time"

	"github.com/vkforge/forge/driver"
)

// ErrNotActive is returned by a method that requires the job to be
// between Begin and End.
var ErrNotActive = errors.New("job: not active")

// ErrNotDone is returned by Stats when the job's last submission has
// not completed execution.
var ErrNotDone = errors.New("job: not done")

// Stats reports timing for a completed job.
type Stats struct {
	WaitForGPU time.Duration
	GPUExecDur time.Duration
}

// Job is one frame's worth of recorded and submitted work: one
// command buffer per Phase, advanced Main → Output. Each phase's
// command buffer is submitted on its own: Advance submits the current
// phase and waits for it, and End submits the Output phase, whose
// completion is polled via a channel (the grounded driver generation
// has no separate fence type).
type Job struct {
	gpu    driver.GPU
	id     uint32
	active bool
	phase  Phase
	cbs    [phaseCount]driver.CmdBuffer

	Stopwatch    Stopwatch
	StatRecorder StatRecorder

	done       chan error
	waiting    bool
	waitForGPU time.Duration
	markBegin  Record
	markEnd    Record
}

// New creates a job with one command buffer per phase. The job
// starts out done (as if its prior, nonexistent submission already
// completed), mirroring the original's fence-created-signaled
// convention.
func New(gpu driver.GPU, id uint32) (*Job, error) {
	j := &Job{gpu: gpu, id: id}
	for i := range j.cbs {
		cb, err := gpu.NewCmdBuffer()
		if err != nil {
			for _, prev := range j.cbs[:i] {
				if prev != nil {
					prev.Destroy()
				}
			}
			return nil, err
		}
		j.cbs[i] = cb
	}
	return j, nil
}

// IsDone reports whether the job's last submission (if any) has
// completed execution. A job that has never been submitted is done.
func (j *Job) IsDone() bool {
	if !j.waiting {
		return true
	}
	select {
	case err := <-j.done:
		j.finishWait(err)
		return true
	default:
		return false
	}
}

// WaitForDone blocks until the job's last submission completes.
func (j *Job) WaitForDone() error {
	if !j.waiting {
		return nil
	}
	start := time.Now()
	err := <-j.done
	j.waitForGPU += time.Since(start)
	j.finishWait(err)
	return err
}

func (j *Job) finishWait(err error) {
	j.waiting = false
	j.done = nil
	if err != nil {
		j.waitForGPU = 0
	}
}

// Stats returns the last completed submission's timing. The job must
// be done (see IsDone/WaitForDone).
func (j *Job) Stats() (Stats, error) {
	if j.waiting {
		return Stats{}, ErrNotDone
	}
	return Stats{
		WaitForGPU: j.waitForGPU,
		GPUExecDur: j.Stopwatch.Time(j.markEnd).Sub(j.Stopwatch.Time(j.markBegin)),
	}, nil
}

// Begin starts a new job at firstPhase. The job must be done.
func (j *Job) Begin(firstPhase Phase) error {
	if j.waiting {
		return ErrNotDone
	}
	if j.active {
		return errors.New("job: already active")
	}
	j.active = true
	j.phase = firstPhase
	j.waitForGPU = 0
	j.Stopwatch.Reset()
	j.StatRecorder.Reset()

	if err := j.cbs[j.phase].Begin(); err != nil {
		j.active = false
		return err
	}
	j.markBegin = j.Stopwatch.Mark()
	return nil
}

// Phase returns the job's current phase.
func (j *Job) Phase() Phase { return j.phase }

// CmdBuffer returns the command buffer for the job's current phase,
// for recording rendering/compute/transfer commands into, or for
// passing to driver.Swapchain.Next/Present during the Output phase.
func (j *Job) CmdBuffer() (driver.CmdBuffer, error) {
	if !j.active {
		return nil, ErrNotActive
	}
	return j.cbs[j.phase], nil
}

// Advance ends the current phase's command buffer, submits it on its
// own, waits for that submission to complete, and begins the next
// phase. It must not be called from the Output phase.
func (j *Job) Advance() error {
	if !j.active {
		return ErrNotActive
	}
	if j.phase == Output {
		return errors.New("job: cannot advance past the output phase")
	}
	cur := j.cbs[j.phase]
	if err := cur.End(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	j.gpu.Commit([]driver.CmdBuffer{cur}, ch)
	if err := <-ch; err != nil {
		return err
	}
	j.phase++
	return j.cbs[j.phase].Begin()
}

// End ends the output phase's command buffer and submits the job for
// execution, returning immediately; use IsDone/WaitForDone to poll
// for completion.
func (j *Job) End() error {
	if !j.active {
		return ErrNotActive
	}
	if j.phase != Output {
		return errors.New("job: not advanced to the output phase")
	}
	j.markEnd = j.Stopwatch.Mark()
	if err := j.cbs[j.phase].End(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	j.gpu.Commit([]driver.CmdBuffer{j.cbs[j.phase]}, ch)
	j.done = ch
	j.waiting = true
	j.active = false
	return nil
}

// Destroy waits for any in-flight submission and releases the job's
// command buffers.
func (j *Job) Destroy() {
	j.WaitForDone()
	for _, cb := range j.cbs {
		cb.Destroy()
	}
}
