// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import "github.com/chewxy/math32"

// Q is a quaternion of float32.
type Q struct {
	V V3
	R float32
}

// Mul sets q to contain l ⋅ r.
func (q *Q) Mul(l, r *Q) {
	var v, w V3
	v.Scale(r.R, &l.V)
	w.Scale(l.R, &r.V)
	v.Add(&v, &w)
	w.Cross(&l.V, &r.V)
	d := l.V.Dot(&r.V)
	q.V.Add(&v, &w)
	q.R = l.R*r.R - d
}

// Rotate sets q to the rotation of angle radians around axis,
// which is assumed to be a unit vector.
func (q *Q) Rotate(angle float32, axis *V3) {
	s, c := math32.Sincos(angle * 0.5)
	q.V.Scale(s, axis)
	q.R = c
}

// Norm sets q to contain r normalized.
func (q *Q) Norm(r *Q) {
	l := math32.Sqrt(r.V.Dot(&r.V) + r.R*r.R)
	q.V.Scale(1/l, &r.V)
	q.R = r.R / l
}

// Slerp sets q to the spherical linear interpolation between l and
// r at t ∈ [0, 1].
func (q *Q) Slerp(l, r *Q, t float32) {
	d := l.V.Dot(&r.V) + l.R*r.R
	rV, rR := r.V, r.R
	if d < 0 {
		d = -d
		rV.Scale(-1, &rV)
		rR = -rR
	}
	const epsilon = 1e-6
	if 1-d < epsilon {
		var v V3
		v.Sub(&rV, &l.V)
		q.V.Scale(t, &v)
		q.V.Add(&q.V, &l.V)
		q.R = l.R + t*(rR-l.R)
		q.Norm(q)
		return
	}
	theta := math32.Acos(d)
	sinTheta := math32.Sin(theta)
	sl := math32.Sin((1-t)*theta) / sinTheta
	sr := math32.Sin(t*theta) / sinTheta
	var v, w V3
	v.Scale(sl, &l.V)
	w.Scale(sr, &rV)
	q.V.Add(&v, &w)
	q.R = sl*l.R + sr*rR
}
