// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package xfer implements the transfer engine: a pool of host-staging
// buffers that streams data to device buffers and images over a
// dedicated command stream, polled to completion by id rather than
// blocking the caller. Each staging buffer cycles through
// Idle, Recording and Busy; the pool grows on demand rather than
// being sized to the processor count.
package xfer

import (
	"sync"

	"github.com/vkforge/forge/driver"
	"github.com/vkforge/forge/renderer/image"
)

// state is a TransferBuffer's lifecycle stage.
type state int

const (
	Idle state = iota
	Recording
	Busy
)

// defaultBufSize is the default size of a newly created staging
// buffer.
const defaultBufSize = 32 << 20

// Id identifies one transfer: the high 32 bits select the staging
// buffer, the low 32 bits are the serial it was submitted under.
type Id uint64

func makeId(bufIdx int, serial uint32) Id { return Id(uint64(bufIdx)<<32 | uint64(serial)) }
func (id Id) bufIdx() int                 { return int(id >> 32) }
func (id Id) serial() uint32              { return uint32(id) }

// buffer is one pool slot: a host-visible staging buffer with its
// own command buffer and completion channel standing in for a fence.
type buffer struct {
	buf    driver.Buffer
	cb     driver.CmdBuffer
	state  state
	offset int64
	serial uint32 // serial this buffer will carry when it becomes Busy
	done   <-chan error
}

// Pool is the transfer engine: it selects a staging buffer for each
// request, records the copy, and on Flush submits every Recording
// buffer for execution.
type Pool struct {
	mu      sync.Mutex
	gpu     driver.GPU
	bufSize int64
	bufs    []*buffer
}

// New creates an empty transfer engine pool.
func New(gpu driver.GPU) *Pool {
	return &Pool{gpu: gpu, bufSize: defaultBufSize}
}

// align rounds up n to a multiple of a (a must be a power of two, or
// 1 to disable alignment).
func align(n, a int64) int64 {
	if a < 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// pick selects the staging buffer to use for a size-byte request
// aligned to align, preferring a Recording buffer with room, then any
// Idle buffer, and only creating a new one if neither fits.
func (p *Pool) pick(size, alignTo int64) (*buffer, int64, error) {
	for _, b := range p.bufs {
		if b.state != Recording {
			continue
		}
		off := align(b.offset, alignTo)
		if off+size <= b.buf.Cap() {
			return b, off, nil
		}
	}
	for _, b := range p.bufs {
		if b.state == Idle {
			if err := p.beginRecording(b); err != nil {
				return nil, 0, err
			}
			return b, 0, nil
		}
	}
	bs := p.bufSize
	if size > bs {
		bs = size
	}
	nb, err := p.newBuffer(bs)
	if err != nil {
		return nil, 0, err
	}
	p.bufs = append(p.bufs, nb)
	if err := p.beginRecording(nb); err != nil {
		return nil, 0, err
	}
	return nb, 0, nil
}

func (p *Pool) newBuffer(size int64) (*buffer, error) {
	buf, err := p.gpu.NewBuffer(size, true, driver.UGeneric)
	if err != nil {
		return nil, err
	}
	cb, err := p.gpu.NewCmdBuffer()
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	return &buffer{buf: buf, cb: cb, state: Idle}, nil
}

func (p *Pool) beginRecording(b *buffer) error {
	if err := b.cb.Begin(); err != nil {
		return err
	}
	b.state = Recording
	b.offset = 0
	return nil
}

// TransferBuffer copies data into dest at destOff, aligned to
// alignTo (the device's optimal-copy-offset alignment), and returns
// an Id to poll for completion.
func (p *Pool) TransferBuffer(dest driver.Buffer, destOff int64, data []byte, alignTo int64) (Id, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, off, err := p.pick(int64(len(data)), alignTo)
	if err != nil {
		return 0, err
	}
	copy(b.buf.Bytes()[off:], data)
	b.cb.BeginBlit(false)
	b.cb.CopyBuffer(&driver.BufferCopy{
		From: b.buf, FromOff: off,
		To: dest, ToOff: destOff,
		Size: int64(len(data)),
	})
	b.cb.EndBlit()
	b.offset = off + int64(len(data))
	return makeId(p.indexOf(b), b.serial), nil
}

// TransferImage copies data into dest, which must be tracked at
// Undefined or TransferDest; it inserts the pre-barrier
// (Undefined → TransferDest) and post-barrier (TransferDest →
// ShaderRead) covering every mip level described by param.
func (p *Pool) TransferImage(dest *image.Tracked, param *driver.BufImgCopy, data []byte, alignTo int64) (Id, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, off, err := p.pick(int64(len(data)), alignTo)
	if err != nil {
		return 0, err
	}
	copy(b.buf.Bytes()[off:], data)
	dest.To(b.cb, image.TransferDest)
	param.Buf = b.buf
	param.BufOff = off
	b.cb.BeginBlit(false)
	b.cb.CopyBufToImg(param)
	b.cb.EndBlit()
	dest.To(b.cb, image.ShaderRead)
	b.offset = off + int64(len(data))
	return makeId(p.indexOf(b), b.serial), nil
}

func (p *Pool) indexOf(b *buffer) int {
	for i, x := range p.bufs {
		if x == b {
			return i
		}
	}
	return -1
}

// Flush ends and submits every Recording buffer with its completion
// channel, and reaps every Busy buffer whose channel has a result
// ready, returning it to Idle and advancing its serial. It is called
// once per frame by the device driver tick.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.bufs {
		if b.state == Busy {
			select {
			case <-b.done:
				b.state = Idle
				b.serial++
			default:
			}
			continue
		}
		if b.state != Recording {
			continue
		}
		if err := b.cb.End(); err != nil {
			b.cb.Reset()
			b.state = Idle
			return err
		}
		ch := make(chan error, 1)
		p.gpu.Commit([]driver.CmdBuffer{b.cb}, ch)
		b.done = ch
		b.state = Busy
	}
	return nil
}

// Poll reports whether id's transfer has completed: either its
// buffer's serial has advanced past id's, or the buffer has since
// gone idle (meaning its fence-equivalent channel has signaled).
func (p *Pool) Poll(id Id) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := id.bufIdx()
	if i < 0 || i >= len(p.bufs) {
		return true
	}
	b := p.bufs[i]
	if b.state == Busy {
		select {
		case <-b.done:
			b.state = Idle
			b.serial++
		default:
		}
	}
	return b.serial > id.serial() || (b.state == Idle && b.serial >= id.serial())
}

// Destroy releases every staging buffer and command buffer.
func (p *Pool) Destroy() {
	for _, b := range p.bufs {
		b.cb.Destroy()
		b.buf.Destroy()
	}
	p.bufs = nil
}
