// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package graphic

import "github.com/vkforge/forge/driver"

// Topology names a primitive topology, independent of driver.Topology
// so unsupported modes (triangle fans, which driver.Topology has no
// equivalent for) are rejected rather than silently mapped onto the
// wrong driver constant.
type Topology int

const (
	Points Topology = iota
	Lines
	LineStrip
	Triangles
	TriangleStrip
)

var topologyTable = [...]driver.Topology{
	Points:        driver.TPoint,
	Lines:         driver.TLine,
	LineStrip:     driver.TLnStrip,
	Triangles:     driver.TTriangle,
	TriangleStrip: driver.TTriStrip,
}

// Rasterizer names a triangle fill mode.
type Rasterizer int

const (
	Fill Rasterizer = iota
	WireLines
	// Points rasterization has no driver.FillMode equivalent (driver
	// only distinguishes FFill/FLines); it degrades to WireLines.
	WirePoints
)

func (r Rasterizer) fillMode() driver.FillMode {
	if r == Fill {
		return driver.FFill
	}
	return driver.FLines
}

// Cull names a triangle-facing cull mode.
type Cull int

const (
	CullNone Cull = iota
	CullBack
	CullFront
)

var cullTable = [...]driver.CullMode{
	CullNone:  driver.CNone,
	CullBack:  driver.CBack,
	CullFront: driver.CFront,
}

// Depth names a depth-test/write mode, expressed in the
// forward-z convention used throughout the asset pipeline. The
// render backend uses a reversed-z depth buffer, so Prepare swaps
// Less/Greater (and their Equal-inclusive variants) when building the
// driver.DSState: Less compiles to driver.CGreater, Greater to
// driver.CLess, and so on; Equal and Always pass through unchanged.
type Depth int

const (
	DepthLess Depth = iota
	DepthLessNoWrite
	DepthLessOrEqual
	DepthLessOrEqualNoWrite
	DepthEqual
	DepthEqualNoWrite
	DepthGreater
	DepthGreaterNoWrite
	DepthGreaterOrEqual
	DepthGreaterOrEqualNoWrite
	DepthAlways
	DepthAlwaysNoWrite
)

var depthCompareTable = [...]driver.CmpFunc{
	DepthLess:                  driver.CGreater,
	DepthLessNoWrite:           driver.CGreater,
	DepthLessOrEqual:           driver.CGreaterEqual,
	DepthLessOrEqualNoWrite:    driver.CGreaterEqual,
	DepthEqual:                 driver.CEqual,
	DepthEqualNoWrite:          driver.CEqual,
	DepthGreater:               driver.CLess,
	DepthGreaterNoWrite:        driver.CLess,
	DepthGreaterOrEqual:        driver.CLessEqual,
	DepthGreaterOrEqualNoWrite: driver.CLessEqual,
	DepthAlways:                driver.CAlways,
	DepthAlwaysNoWrite:         driver.CAlways,
}

func (d Depth) write() bool {
	switch d {
	case DepthLessNoWrite, DepthLessOrEqualNoWrite, DepthEqualNoWrite,
		DepthGreaterNoWrite, DepthGreaterOrEqualNoWrite, DepthAlwaysNoWrite:
		return false
	default:
		return true
	}
}

func (d Depth) test() bool {
	return d != DepthAlways && d != DepthAlwaysNoWrite
}

func (d Depth) state() driver.DSState {
	return driver.DSState{
		DepthTest:  d.test(),
		DepthWrite: d.write(),
		DepthCmp:   depthCompareTable[d],
	}
}

// Blend names one of the fixed color-blend equations a Graphic may
// use. There is no generic blend-factor configuration: every graphic
// picks one of these five fixed equations, matching the contract's
// "Blend equations are fixed per {None, Alpha, AlphaConstant,
// Additive, PreMultiplied}".
type Blend int

const (
	BlendNone Blend = iota
	BlendAlpha
	BlendAlphaConstant
	BlendAdditive
	BlendPreMultiplied
)

var blendTable = [...]driver.ColorBlend{
	BlendNone: {
		WriteMask: driver.CAll,
	},
	BlendAlpha: {
		Blend:     true,
		WriteMask: driver.CAll,
		Op:        [2]driver.BlendOp{driver.BAdd, driver.BAdd},
		SrcFac:    [2]driver.BlendFac{driver.BSrcAlpha, driver.BZero},
		DstFac:    [2]driver.BlendFac{driver.BInvSrcAlpha, driver.BOne},
	},
	BlendAlphaConstant: {
		Blend:     true,
		WriteMask: driver.CAll,
		Op:        [2]driver.BlendOp{driver.BAdd, driver.BAdd},
		SrcFac:    [2]driver.BlendFac{driver.BSrcAlpha, driver.BBlendColor},
		DstFac:    [2]driver.BlendFac{driver.BInvSrcAlpha, driver.BInvSrcAlpha},
	},
	BlendAdditive: {
		Blend:     true,
		WriteMask: driver.CAll,
		Op:        [2]driver.BlendOp{driver.BAdd, driver.BAdd},
		SrcFac:    [2]driver.BlendFac{driver.BOne, driver.BOne},
		DstFac:    [2]driver.BlendFac{driver.BOne, driver.BOne},
	},
	BlendPreMultiplied: {
		Blend:     true,
		WriteMask: driver.CAll,
		Op:        [2]driver.BlendOp{driver.BAdd, driver.BAdd},
		SrcFac:    [2]driver.BlendFac{driver.BOne, driver.BOne},
		DstFac:    [2]driver.BlendFac{driver.BInvSrcAlpha, driver.BZero},
	},
}

// Raster bundles the remaining fixed-function rasterizer options
// that are not standalone render-state enums. LineWidth is accepted
// for composition parity with the contract but driver.RasterState
// exposes no wide-line field, so non-unit values are not currently
// forwarded to the pipeline state.
type Raster struct {
	Cull      Cull
	Mode      Rasterizer
	Clockwise bool
	LineWidth float32
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32
}

func (r Raster) state() driver.RasterState {
	return driver.RasterState{
		Clockwise: r.Clockwise,
		Cull:      cullTable[r.Cull],
		Fill:      r.Mode.fillMode(),
		DepthBias: r.DepthBias,
		BiasValue: r.BiasValue,
		BiasSlope: r.BiasSlope,
		BiasClamp: r.BiasClamp,
	}
}
