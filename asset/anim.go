// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package asset

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"

	"github.com/vkforge/forge/gltf"
	"github.com/vkforge/forge/linear"
)

// MaxSamplers bounds the number of samplers a single animation may
// declare (the boundary named in the loader's conformance suite:
// 1024 accepted, 1025 rejected).
const MaxSamplers = 1024

const (
	dupEpsilon    = 1e-2
	minFrameGap   = float32(1) / 30 // seconds.
	scaleEpsilon  = 1e-2
	scaleIdentity = 1
)

// Channel is one compacted animation channel: a node/path target plus
// its normalized keyframe stream. FrameCount == 0 means the channel
// carries no motion and Times/Values are empty.
type Channel struct {
	Node       int
	Path       string // one of gltf.Ptranslation, Protation, Pscale.
	FrameCount int
	Duration   float32 // seconds; the normalization constant for Times.
	Times      []uint16
	Values     []float32 // 3 floats (vec3) or 4 floats (quat) per frame.
}

// Animation is the materialized result of importing one glTF
// animation: its channels, already compacted per the 5-step
// reduction (duplicate collapse, neighbor-gap pruning, quaternion
// sign adjacency, cross-animation scale clearing).
type Animation struct {
	Name     string
	Channels []Channel
}

type rawChannel struct {
	node   int
	path   string
	comps  int
	times  []float32
	values [][]float32
}

// importAnimations materializes every glTF animation, applying the
// channel-compaction algorithm within each animation and the
// cross-animation scale-channel clear as a final pass over all of
// them together.
func importAnimations(doc *gltf.GLTF, bs *bufferSet) ([]Animation, error) {
	if len(doc.Animations) == 0 {
		return nil, nil
	}

	anims := make([]Animation, len(doc.Animations))
	var scaleChannels []*Channel
	allScaleIdentity := true

	for ai := range doc.Animations {
		src := &doc.Animations[ai]
		if len(src.Samplers) > MaxSamplers {
			return nil, newErr(gltf.AnimCountExceedsMaximum, "")
		}

		raws := make([]*rawChannel, len(src.Channels))
		var duration float32
		for ci := range src.Channels {
			ch := &src.Channels[ci]
			if ch.Target.Node == nil {
				continue // no target node: nothing to animate.
			}
			if ch.Sampler < 0 || int(ch.Sampler) >= len(src.Samplers) {
				return nil, newErr(gltf.MalformedAnimation, "channel sampler index out of range")
			}
			smp := &src.Samplers[ch.Sampler]
			if smp.Interpolation != "" && smp.Interpolation != "LINEAR" {
				return nil, newErr(gltf.UnsupportedInterpolationMode, smp.Interpolation)
			}

			comps := 3
			switch ch.Target.Path {
			case gltf.Ptranslation, gltf.Pscale:
				comps = 3
			case gltf.Protation:
				comps = 4
			default:
				return nil, newErr(gltf.MalformedAnimation, "unsupported channel target path")
			}

			times, err := bs.readScalar(doc, smp.Input)
			if err != nil {
				return nil, wrapErr(gltf.MalformedAnimation, "reading sampler input", err)
			}
			flat, err := bs.readVec(doc, smp.Output, comps)
			if err != nil {
				return nil, wrapErr(gltf.MalformedAnimation, "reading sampler output", err)
			}
			if len(flat)/comps != len(times) {
				return nil, newErr(gltf.MalformedAnimation, "sampler input/output count mismatch")
			}

			values := make([][]float32, len(times))
			for i := range values {
				values[i] = append([]float32(nil), flat[i*comps:i*comps+comps]...)
			}
			raws[ci] = &rawChannel{
				node:   int(*ch.Target.Node),
				path:   ch.Target.Path,
				comps:  comps,
				times:  times,
				values: values,
			}
			if n := len(times); n > 0 && times[n-1] > duration {
				duration = times[n-1]
			}
		}

		var channels []Channel
		for _, rc := range raws {
			if rc == nil {
				continue
			}
			compactChannel(rc)
			c := Channel{Node: rc.node, Path: rc.path, Duration: duration}
			if rc.path == gltf.Protation {
				normalizeQuats(rc.values)
			}
			if len(rc.times) > 1 {
				c.FrameCount = len(rc.times)
				c.Times = packTimes(rc.times, duration)
				c.Values = make([]float32, 0, len(rc.times)*rc.comps)
				for _, v := range rc.values {
					c.Values = append(c.Values, v...)
				}
			}
			if c.Path == gltf.Pscale {
				if !isIdentityScale(rc.values) {
					allScaleIdentity = false
				}
			}
			channels = append(channels, c)
		}

		for i := range channels {
			if channels[i].Path == gltf.Pscale {
				scaleChannels = append(scaleChannels, &channels[i])
			}
		}
		anims[ai] = Animation{Name: src.Name, Channels: channels}
	}

	if allScaleIdentity {
		for _, c := range scaleChannels {
			c.FrameCount = 0
			c.Times = nil
			c.Values = nil
		}
	}

	return anims, nil
}

// compactChannel applies steps 1-3 of the reduction algorithm in
// place: whole-channel collapse, leading/trailing duplicate trim, and
// interior near-duplicate/too-close pruning.
func compactChannel(rc *rawChannel) {
	n := len(rc.times)
	if n < 2 {
		return
	}

	if allWithin(rc.values, dupEpsilon) {
		rc.times = rc.times[:1]
		rc.values = rc.values[:1]
		return
	}

	lo, hi := 0, n-1
	for lo < hi && equalComps(rc.values[lo], rc.values[lo+1], dupEpsilon) {
		lo++
	}
	for hi > lo && equalComps(rc.values[hi], rc.values[hi-1], dupEpsilon) {
		hi--
	}
	times := append([]float32(nil), rc.times[lo:hi+1]...)
	values := append([][]float32(nil), rc.values[lo:hi+1]...)

	duration := times[len(times)-1] - times[0]
	var gap float32
	if duration > 0 {
		gap = minFrameGap
	}
	var out []float32
	var outV [][]float32
	out = append(out, times[0])
	outV = append(outV, values[0])
	for i := 1; i < len(times)-1; i++ {
		prev := out[len(out)-1]
		near := equalComps(values[i], outV[len(outV)-1], dupEpsilon) && equalComps(values[i], values[i+1], dupEpsilon)
		tooClose := duration > 0 && (times[i]-prev) < gap
		if near || tooClose {
			continue
		}
		out = append(out, times[i])
		outV = append(outV, values[i])
	}
	out = append(out, times[len(times)-1])
	outV = append(outV, values[len(values)-1])

	rc.times = out
	rc.values = outV
}

func allWithin(values [][]float32, eps float32) bool {
	for i := 1; i < len(values); i++ {
		if !equalComps(values[i], values[0], eps) {
			return false
		}
	}
	return true
}

func equalComps(a, b []float32, eps float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

// normalizeQuats normalizes every quaternion frame and flips its sign
// when its dot product with the previous frame is negative, keeping
// the interpolation path short across the double-cover ambiguity.
func normalizeQuats(values [][]float32) {
	var prev linear.Q
	for i, v := range values {
		q := linear.Q{V: linear.V3{v[0], v[1], v[2]}, R: v[3]}
		q.Norm(&q)
		if i > 0 {
			d := prev.V.Dot(&q.V) + prev.R*q.R
			if d < 0 {
				q.V[0], q.V[1], q.V[2], q.R = -q.V[0], -q.V[1], -q.V[2], -q.R
			}
		}
		v[0], v[1], v[2], v[3] = q.V[0], q.V[1], q.V[2], q.R
		prev = q
	}
}

func isIdentityScale(values [][]float32) bool {
	for _, v := range values {
		if math32.Abs(v[0]-scaleIdentity) > scaleEpsilon ||
			math32.Abs(v[1]-scaleIdentity) > scaleEpsilon ||
			math32.Abs(v[2]-scaleIdentity) > scaleEpsilon {
			return false
		}
	}
	return true
}

// packTimes normalizes each timestamp against duration into a u16.
func packTimes(times []float32, duration float32) []uint16 {
	out := make([]uint16, len(times))
	if duration <= 0 {
		return out
	}
	for i, t := range times {
		norm := t / duration
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		out[i] = uint16(norm*65535 + 0.5)
	}
	return out
}

// readScalar reads a SCALAR f32 accessor, e.g. a sampler's input
// (time) accessor.
func (bs *bufferSet) readScalar(doc *gltf.GLTF, idx int64) ([]float32, error) {
	raw, stride, err := bs.accessorBytes(doc, idx, gltf.SCALAR, gltf.FLOAT)
	if err != nil {
		return nil, err
	}
	acc := &doc.Accessors[idx]
	out := make([]float32, acc.Count)
	for i := range out {
		e := raw[i*stride:]
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(e))
	}
	return out, nil
}
