package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// Pipeline is the fixed render pass plus the graphics pipeline bound to it. Viewport and
// scissor are dynamic so a resize never rebuilds it.
type Pipeline struct {
	driver core1_0.CoreDeviceDriver

	Format     core1_0.Format
	RenderPass core1_0.RenderPass
	Layout     core1_0.PipelineLayout
	Pipeline   core1_0.Pipeline
}

// ShaderCode holds the two compiled SPIR-V stages.
type ShaderCode struct {
	Vertex   []byte
	Fragment []byte
}

func NewPipeline(driver core1_0.CoreDeviceDriver, format core1_0.Format, shaders ShaderCode) (*Pipeline, error) {
	p := &Pipeline{
		driver: driver,
		Format: format,
	}

	err := p.createRenderPass()
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create render pass")
	}

	err = p.createGraphicsPipeline(shaders)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}

	return p, nil
}

func (p *Pipeline) createRenderPass() error {
	renderPass, _, err := p.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         p.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return err
	}

	p.RenderPass = renderPass
	return nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func (p *Pipeline) createShaderModule(code []byte, stage string) (core1_0.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return core1_0.ShaderModule{}, errors.Errorf("%s shader: %d bytes is not SPIR-V", stage, len(code))
	}

	module, _, err := p.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(code),
	})
	return module, errors.Wrapf(err, "%s shader", stage)
}

func (p *Pipeline) createGraphicsPipeline(shaders ShaderCode) error {
	vertShader, err := p.createShaderModule(shaders.Vertex, "vertex")
	if err != nil {
		return err
	}
	defer p.driver.DestroyShaderModule(vertShader, nil)

	fragShader, err := p.createShaderModule(shaders.Fragment, "fragment")
	if err != nil {
		return err
	}
	defer p.driver.DestroyShaderModule(fragShader, nil)

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   getVertexBindingDescription(),
		VertexAttributeDescriptions: getVertexAttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: vertShader,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: fragShader,
		Name:   "main",
	}

	// Placeholder values, overwritten by the dynamic state every frame
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{Width: 1, Height: 1, MinDepth: 0, MaxDepth: 1},
		},
		Scissors: []core1_0.Rect2D{
			{Extent: core1_0.Extent2D{Width: 1, Height: 1}},
		},
	}

	dynamic := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeNone,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	p.Layout, _, err = p.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "pipeline layout")
	}

	pipelines, _, err := p.driver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			ColorBlendState:    colorBlend,
			DynamicState:       dynamic,
			Layout:             p.Layout,
			RenderPass:         p.RenderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return err
	}
	p.Pipeline = pipelines[0]

	return nil
}

func (p *Pipeline) Destroy() {
	if p.Pipeline.Initialized() {
		p.driver.DestroyPipeline(p.Pipeline, nil)
		p.Pipeline = core1_0.Pipeline{}
	}

	if p.Layout.Initialized() {
		p.driver.DestroyPipelineLayout(p.Layout, nil)
		p.Layout = core1_0.PipelineLayout{}
	}

	if p.RenderPass.Initialized() {
		p.driver.DestroyRenderPass(p.RenderPass, nil)
		p.RenderPass = core1_0.RenderPass{}
	}
}
