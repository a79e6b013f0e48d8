// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package job

import (
	"testing"

	"github.com/vkforge/forge/driver"
)

type fakeCmdBuffer struct {
	driver.CmdBuffer
	begun, ended bool
}

func (cb *fakeCmdBuffer) Begin() error { cb.begun = true; return nil }
func (cb *fakeCmdBuffer) End() error   { cb.ended = true; return nil }
func (cb *fakeCmdBuffer) Destroy()     {}

type fakeGPU struct {
	driver.GPU
	commits int
}

func (g *fakeGPU) NewCmdBuffer() (driver.CmdBuffer, error) { return &fakeCmdBuffer{}, nil }

func (g *fakeGPU) Commit(cb []driver.CmdBuffer, ch chan<- error) {
	g.commits++
	ch <- nil
}

func TestJobLifecycleAdvancesPhasesAndCompletes(t *testing.T) {
	gpu := &fakeGPU{}
	j, err := New(gpu, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !j.IsDone() {
		t.Fatal("a freshly created job should start out done")
	}

	if err := j.Begin(Main); err != nil {
		t.Fatal(err)
	}
	if j.Phase() != Main {
		t.Fatal("expected job to begin in the Main phase")
	}
	if err := j.Advance(); err != nil {
		t.Fatal(err)
	}
	if j.Phase() != Output {
		t.Fatal("expected job to advance into the Output phase")
	}
	if err := j.End(); err != nil {
		t.Fatal(err)
	}
	if !j.IsDone() {
		t.Fatal("expected job to report done once its completion channel has a result")
	}
	if gpu.commits != 2 {
		t.Fatalf("expected one Commit for Advance and one for End, got %d", gpu.commits)
	}
	if _, err := j.Stats(); err != nil {
		t.Fatal(err)
	}
}

func TestBeginTwiceWithoutEndFails(t *testing.T) {
	gpu := &fakeGPU{}
	j, err := New(gpu, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Begin(Main); err != nil {
		t.Fatal(err)
	}
	if err := j.Begin(Main); err == nil {
		t.Fatal("expected Begin on an already-active job to fail")
	}
}
