// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"

	vulkan "github.com/vulkan-go/vulkan"

	"github.com/vkforge/forge/driver"
)

// pipeline implements driver.Pipeline.
type pipeline struct {
	d     *Driver
	pl    vulkan.Pipeline
	bindp vulkan.PipelineBindPoint
}

// NewPipeline creates a new pipeline.
func (d *Driver) NewPipeline(state any) (driver.Pipeline, error) {
	switch t := state.(type) {
	case *driver.GraphState:
		return d.newGraphics(t)
	case *driver.CompState:
		return d.newCompute(t)
	}
	return nil, errors.New("unknown pipeline state type")
}

// newGraphics creates a new graphics pipeline.
func (d *Driver) newGraphics(gs *driver.GraphState) (driver.Pipeline, error) {
	p := &pipeline{d: d, bindp: vulkan.PipelineBindPointGraphics}
	var layout vulkan.PipelineLayout
	if gs.Desc == nil {
		// We need a valid pipeline layout, so create a temporary
		// descTable for its layout and destroy it at the end.
		desc, err := d.NewDescTable(nil)
		if err != nil {
			return nil, err
		}
		defer desc.Destroy()
		layout = desc.(*descTable).layout
	} else {
		layout = gs.Desc.(*descTable).layout
	}

	stages := graphStages(gs)
	vertexInput := graphInput(gs)
	ia := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:    vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: convTopology(gs.Topology),
	}
	viewport := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := graphRaster(gs)
	ms := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: convSamples(gs.Samples),
	}
	ds := graphDS(gs)
	ncolor := gs.Pass.(*renderPass).ncolor[gs.Subpass]
	var blend vulkan.PipelineColorBlendStateCreateInfo
	if ncolor > 0 {
		blend = graphBlend(gs, ncolor)
	}
	dyn := graphDynamic(gs, ncolor)

	info := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:           uint32(len(stages)),
		PStages:              stages,
		PVertexInputState:    &vertexInput,
		PInputAssemblyState:  &ia,
		PViewportState:       &viewport,
		PRasterizationState:  &raster,
		PMultisampleState:    &ms,
		PDepthStencilState:   &ds,
		PDynamicState:        &dyn,
		Layout:               layout,
		RenderPass:           gs.Pass.(*renderPass).pass,
		Subpass:              uint32(gs.Subpass),
		BasePipelineIndex:    -1,
	}
	if ncolor > 0 {
		info.PColorBlendState = &blend
	}

	pl := make([]vulkan.Pipeline, 1)
	err := checkResult(vulkan.CreateGraphicsPipelines(d.dev, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{info}, nil, pl))
	if err != nil {
		return nil, err
	}
	p.pl = pl[0]
	return p, nil
}

// graphStages builds the shader stage list for graphics pipeline creation.
func graphStages(gs *driver.GraphState) []vulkan.PipelineShaderStageCreateInfo {
	stages := []vulkan.PipelineShaderStageCreateInfo{{
		SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vulkan.ShaderStageVertexBit,
		Module: gs.VertFunc.Code.(*shaderCode).mod,
		PName:  cstr(gs.VertFunc.Name),
	}}
	if gs.FragFunc.Code != nil {
		stages = append(stages, vulkan.PipelineShaderStageCreateInfo{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: gs.FragFunc.Code.(*shaderCode).mod,
			PName:  cstr(gs.FragFunc.Name),
		})
	}
	return stages
}

// cstr returns a NUL-terminated copy of s, as required by the PName
// field of vulkan.PipelineShaderStageCreateInfo.
func cstr(s string) string { return s + "\x00" }

// graphInput builds the vertex input state for graphics pipeline creation.
func graphInput(gs *driver.GraphState) vulkan.PipelineVertexInputStateCreateInfo {
	nin := len(gs.Input)
	info := vulkan.PipelineVertexInputStateCreateInfo{SType: vulkan.StructureTypePipelineVertexInputStateCreateInfo}
	if nin == 0 {
		return info
	}
	// Because vertex input data is non-interleaved, each attribute
	// maps to a different binding number. The binding corresponds
	// to the input index.
	bind := make([]vulkan.VertexInputBindingDescription, nin)
	attr := make([]vulkan.VertexInputAttributeDescription, nin)
	for i := range bind {
		bind[i] = vulkan.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    uint32(gs.Input[i].Stride),
			InputRate: vulkan.VertexInputRateVertex,
		}
		attr[i] = vulkan.VertexInputAttributeDescription{
			Location: uint32(gs.Input[i].Nr),
			Binding:  uint32(i),
			Format:   convVertexFmt(gs.Input[i].Format),
		}
	}
	info.VertexBindingDescriptionCount = uint32(nin)
	info.PVertexBindingDescriptions = bind
	info.VertexAttributeDescriptionCount = uint32(nin)
	info.PVertexAttributeDescriptions = attr
	return info
}

// graphRaster builds the rasterization state for graphics pipeline creation.
func graphRaster(gs *driver.GraphState) vulkan.PipelineRasterizationStateCreateInfo {
	var frontFace vulkan.FrontFace
	if gs.Raster.Clockwise {
		frontFace = vulkan.FrontFaceClockwise
	} else {
		frontFace = vulkan.FrontFaceCounterClockwise
	}
	var depthBias vulkan.Bool32
	if gs.Raster.DepthBias {
		depthBias = vulkan.True
	}
	return vulkan.PipelineRasterizationStateCreateInfo{
		SType:                   vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode:             convFillMode(gs.Raster.Fill),
		CullMode:                vulkan.CullModeFlags(convCullMode(gs.Raster.Cull)),
		FrontFace:               frontFace,
		DepthBiasEnable:         depthBias,
		DepthBiasConstantFactor: gs.Raster.BiasValue,
		DepthBiasClamp:          gs.Raster.BiasClamp,
		DepthBiasSlopeFactor:    gs.Raster.BiasSlope,
		LineWidth:               1.0,
	}
}

// graphDS builds the depth/stencil state for graphics pipeline creation.
func graphDS(gs *driver.GraphState) vulkan.PipelineDepthStencilStateCreateInfo {
	info := vulkan.PipelineDepthStencilStateCreateInfo{SType: vulkan.StructureTypePipelineDepthStencilStateCreateInfo}
	if gs.DS.DepthTest {
		info.DepthTestEnable = vulkan.True
		if gs.DS.DepthWrite {
			info.DepthWriteEnable = vulkan.True
		}
		info.DepthCompareOp = convCmpFunc(gs.DS.DepthCmp)
	}
	if gs.DS.StencilTest {
		info.StencilTestEnable = vulkan.True
		info.Front = vulkan.StencilOpState{
			FailOp:      convStencilOp(gs.DS.Front.DSFail[1]),
			PassOp:      convStencilOp(gs.DS.Front.Pass),
			DepthFailOp: convStencilOp(gs.DS.Front.DSFail[0]),
			CompareOp:   convCmpFunc(gs.DS.Front.Cmp),
			CompareMask: gs.DS.Front.ReadMask,
			WriteMask:   gs.DS.Front.WriteMask,
		}
		info.Back = vulkan.StencilOpState{
			FailOp:      convStencilOp(gs.DS.Back.DSFail[1]),
			PassOp:      convStencilOp(gs.DS.Back.Pass),
			DepthFailOp: convStencilOp(gs.DS.Back.DSFail[0]),
			CompareOp:   convCmpFunc(gs.DS.Back.Cmp),
			CompareMask: gs.DS.Back.ReadMask,
			WriteMask:   gs.DS.Back.WriteMask,
		}
	}
	return info
}

// graphBlend builds the color blend state for graphics pipeline creation.
// It is only called when ncolor, the number of color attachments used
// by the subpass, is greater than zero.
func graphBlend(gs *driver.GraphState, ncolor int) vulkan.PipelineColorBlendStateCreateInfo {
	att := make([]vulkan.PipelineColorBlendAttachmentState, ncolor)
	mk := func(c driver.ColorBlend) vulkan.PipelineColorBlendAttachmentState {
		var blend vulkan.Bool32
		if c.Blend {
			blend = vulkan.True
		}
		return vulkan.PipelineColorBlendAttachmentState{
			BlendEnable:         blend,
			SrcColorBlendFactor: convBlendFac(c.SrcFac[0]),
			DstColorBlendFactor: convBlendFac(c.DstFac[0]),
			ColorBlendOp:        convBlendOp(c.Op[0]),
			SrcAlphaBlendFactor: convBlendFac(c.SrcFac[1]),
			DstAlphaBlendFactor: convBlendFac(c.DstFac[1]),
			AlphaBlendOp:        convBlendOp(c.Op[1]),
			ColorWriteMask:      convColorMask(c.WriteMask),
		}
	}
	if gs.Blend.IndependentBlend {
		// gs.Blend.Color contains one element for every
		// color attachment in the subpass.
		for i := range att {
			att[i] = mk(gs.Blend.Color[i])
		}
	} else {
		// gs.Blend.Color[0] contains the color blend parameters
		// to use for all color attachments in the subpass.
		a := mk(gs.Blend.Color[0])
		for i := range att {
			att[i] = a
		}
	}
	return vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(att)),
		PAttachments:    att,
	}
}

// graphDynamic builds the dynamic state for graphics pipeline creation.
func graphDynamic(gs *driver.GraphState, ncolor int) vulkan.PipelineDynamicStateCreateInfo {
	dyn := []vulkan.DynamicState{vulkan.DynamicStateViewport, vulkan.DynamicStateScissor}
	if ncolor > 0 {
		dyn = append(dyn, vulkan.DynamicStateBlendConstants)
	}
	if gs.DS.StencilTest {
		dyn = append(dyn, vulkan.DynamicStateStencilReference)
	}
	return vulkan.PipelineDynamicStateCreateInfo{
		SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dyn)),
		PDynamicStates:    dyn,
	}
}

// newCompute creates a new compute pipeline.
func (d *Driver) newCompute(cs *driver.CompState) (driver.Pipeline, error) {
	p := &pipeline{d: d, bindp: vulkan.PipelineBindPointCompute}
	var layout vulkan.PipelineLayout
	if cs.Desc == nil {
		// Like newGraphics above.
		// This is unlikely to happen for compute however, since the
		// shader would have no resource to read from nor write to.
		desc, err := d.NewDescTable(nil)
		if err != nil {
			return nil, err
		}
		defer desc.Destroy()
		layout = desc.(*descTable).layout
	} else {
		layout = cs.Desc.(*descTable).layout
	}
	info := vulkan.ComputePipelineCreateInfo{
		SType: vulkan.StructureTypeComputePipelineCreateInfo,
		Stage: vulkan.PipelineShaderStageCreateInfo{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageComputeBit,
			Module: cs.Func.Code.(*shaderCode).mod,
			PName:  cstr(cs.Func.Name),
		},
		Layout:            layout,
		BasePipelineIndex: -1,
	}
	pl := make([]vulkan.Pipeline, 1)
	err := checkResult(vulkan.CreateComputePipelines(d.dev, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.ComputePipelineCreateInfo{info}, nil, pl))
	if err != nil {
		return nil, err
	}
	p.pl = pl[0]
	return p, nil
}

// Destroy destroys the pipeline.
func (p *pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.d != nil {
		vulkan.DestroyPipeline(p.d.dev, p.pl, nil)
	}
	*p = pipeline{}
}

// convVertexFmt converts from a driver.VertexFmt to a vulkan.Format.
func convVertexFmt(vf driver.VertexFmt) vulkan.Format {
	switch vf {
	case driver.Int8:
		return vulkan.FormatR8Sint
	case driver.Int8x2:
		return vulkan.FormatR8g8Sint
	case driver.Int8x3:
		return vulkan.FormatR8g8b8Sint
	case driver.Int8x4:
		return vulkan.FormatR8g8b8a8Sint

	case driver.Int16:
		return vulkan.FormatR16Sint
	case driver.Int16x2:
		return vulkan.FormatR16g16Sint
	case driver.Int16x3:
		return vulkan.FormatR16g16b16Sint
	case driver.Int16x4:
		return vulkan.FormatR16g16b16a16Sint

	case driver.Int32:
		return vulkan.FormatR32Sint
	case driver.Int32x2:
		return vulkan.FormatR32g32Sint
	case driver.Int32x3:
		return vulkan.FormatR32g32b32Sint
	case driver.Int32x4:
		return vulkan.FormatR32g32b32a32Sint

	case driver.UInt8:
		return vulkan.FormatR8Uint
	case driver.UInt8x2:
		return vulkan.FormatR8g8Uint
	case driver.UInt8x3:
		return vulkan.FormatR8g8b8Uint
	case driver.UInt8x4:
		return vulkan.FormatR8g8b8a8Uint

	case driver.UInt16:
		return vulkan.FormatR16Uint
	case driver.UInt16x2:
		return vulkan.FormatR16g16Uint
	case driver.UInt16x3:
		return vulkan.FormatR16g16b16Uint
	case driver.UInt16x4:
		return vulkan.FormatR16g16b16a16Uint

	case driver.UInt32:
		return vulkan.FormatR32Uint
	case driver.UInt32x2:
		return vulkan.FormatR32g32Uint
	case driver.UInt32x3:
		return vulkan.FormatR32g32b32Uint
	case driver.UInt32x4:
		return vulkan.FormatR32g32b32a32Uint

	case driver.Float32:
		return vulkan.FormatR32Sfloat
	case driver.Float32x2:
		return vulkan.FormatR32g32Sfloat
	case driver.Float32x3:
		return vulkan.FormatR32g32b32Sfloat
	case driver.Float32x4:
		return vulkan.FormatR32g32b32a32Sfloat
	}

	// Expected to be unreachable.
	return vulkan.FormatUndefined
}

// convTopology converts a driver.Topology to a vulkan.PrimitiveTopology.
func convTopology(top driver.Topology) vulkan.PrimitiveTopology {
	switch top {
	case driver.TPoint:
		return vulkan.PrimitiveTopologyPointList
	case driver.TLine:
		return vulkan.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return vulkan.PrimitiveTopologyLineStrip
	case driver.TTriangle:
		return vulkan.PrimitiveTopologyTriangleList
	case driver.TTriStrip:
		return vulkan.PrimitiveTopologyTriangleStrip
	}

	// Expected to be unreachable.
	return ^vulkan.PrimitiveTopology(0)
}

// convCullMode converts a driver.CullMode to a vulkan.CullModeFlagBits.
func convCullMode(cm driver.CullMode) vulkan.CullModeFlagBits {
	switch cm {
	case driver.CNone:
		return vulkan.CullModeNone
	case driver.CFront:
		return vulkan.CullModeFrontBit
	case driver.CBack:
		return vulkan.CullModeBackBit
	}

	// Expected to be unreachable.
	return ^vulkan.CullModeFlagBits(0)
}

// convFillMode converts a driver.FillMode to a vulkan.PolygonMode.
func convFillMode(fm driver.FillMode) vulkan.PolygonMode {
	switch fm {
	case driver.FFill:
		return vulkan.PolygonModeFill
	case driver.FLines:
		return vulkan.PolygonModeLine
	}

	// Expected to be unreachable.
	return ^vulkan.PolygonMode(0)
}

// convStencilOp converts a driver.StencilOp to a vulkan.StencilOp.
func convStencilOp(op driver.StencilOp) vulkan.StencilOp {
	switch op {
	case driver.SKeep:
		return vulkan.StencilOpKeep
	case driver.SZero:
		return vulkan.StencilOpZero
	case driver.SReplace:
		return vulkan.StencilOpReplace
	case driver.SIncClamp:
		return vulkan.StencilOpIncrementAndClamp
	case driver.SDecClamp:
		return vulkan.StencilOpDecrementAndClamp
	case driver.SInvert:
		return vulkan.StencilOpInvert
	case driver.SIncWrap:
		return vulkan.StencilOpIncrementAndWrap
	case driver.SDecWrap:
		return vulkan.StencilOpDecrementAndWrap
	}

	// Expected to be unreachable.
	return ^vulkan.StencilOp(0)
}

// convBlendOp converts a driver.BlendOp to a vulkan.BlendOp.
func convBlendOp(op driver.BlendOp) vulkan.BlendOp {
	switch op {
	case driver.BAdd:
		return vulkan.BlendOpAdd
	case driver.BSubtract:
		return vulkan.BlendOpSubtract
	case driver.BRevSubtract:
		return vulkan.BlendOpReverseSubtract
	case driver.BMin:
		return vulkan.BlendOpMin
	case driver.BMax:
		return vulkan.BlendOpMax
	}

	// Expected to be unreachable.
	return ^vulkan.BlendOp(0)
}

// convBlendFac converts a driver.BlendFac to a vulkan.BlendFactor.
func convBlendFac(fac driver.BlendFac) vulkan.BlendFactor {
	switch fac {
	case driver.BZero:
		return vulkan.BlendFactorZero
	case driver.BOne:
		return vulkan.BlendFactorOne
	case driver.BSrcColor:
		return vulkan.BlendFactorSrcColor
	case driver.BInvSrcColor:
		return vulkan.BlendFactorOneMinusSrcColor
	case driver.BSrcAlpha:
		return vulkan.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return vulkan.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return vulkan.BlendFactorDstColor
	case driver.BInvDstColor:
		return vulkan.BlendFactorOneMinusDstColor
	case driver.BDstAlpha:
		return vulkan.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return vulkan.BlendFactorOneMinusDstAlpha
	case driver.BSrcAlphaSaturated:
		return vulkan.BlendFactorSrcAlphaSaturate
	case driver.BBlendColor:
		return vulkan.BlendFactorConstantColor
	case driver.BInvBlendColor:
		return vulkan.BlendFactorOneMinusConstantColor
	}

	// Expected to be unreachable.
	return ^vulkan.BlendFactor(0)
}

// convColorMask converts a driver.ColorMask to a vulkan.ColorComponentFlags.
func convColorMask(cm driver.ColorMask) (flags vulkan.ColorComponentFlags) {
	if cm == driver.CAll {
		return vulkan.ColorComponentFlags(vulkan.ColorComponentRBit | vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit)
	}
	if cm&driver.CRed != 0 {
		flags |= vulkan.ColorComponentFlags(vulkan.ColorComponentRBit)
	}
	if cm&driver.CGreen != 0 {
		flags |= vulkan.ColorComponentFlags(vulkan.ColorComponentGBit)
	}
	if cm&driver.CBlue != 0 {
		flags |= vulkan.ColorComponentFlags(vulkan.ColorComponentBBit)
	}
	if cm&driver.CAlpha != 0 {
		flags |= vulkan.ColorComponentFlags(vulkan.ColorComponentABit)
	}
	return
}
