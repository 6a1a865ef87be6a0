package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// FullscreenNode draws one full-viewport triangle with no vertex buffer.
// Per-pixel content comes entirely from the bound uniforms and storage buffers.
type FullscreenNode struct {
	id       uuid.UUID
	label    string
	layout   BindGroupLayout
	group    BindGroup
	pipeline RenderPipeline
}

// NewFullscreenNode compiles code ("vs_main"/"fs_main") for the given target format.
// Storage buffers are bound read-only.
func NewFullscreenNode(device Device, label string, format wgpu.TextureFormat, data BindGroupData, code string) (*FullscreenNode, error) {
	layout, group, err := bindingResources(device, label, data,
		wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, wgpu.BufferBindingTypeReadOnlyStorage)
	if err != nil {
		return nil, err
	}

	module, err := device.CreateShaderModule(label, code)
	if err != nil {
		group.Release()
		layout.Release()
		return nil, asCompileError(label, err)
	}
	defer module.Release()

	pipeline, err := device.CreateRenderPipeline(RenderPipelineDesc{
		Label:         label,
		Layout:        layout,
		Module:        module,
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		Format:        format,
		Topology:      wgpu.PrimitiveTopologyTriangleList,
	})
	if err != nil {
		group.Release()
		layout.Release()
		return nil, asCompileError(label, err)
	}

	return &FullscreenNode{
		id:       uuid.New(),
		label:    label,
		layout:   layout,
		group:    group,
		pipeline: pipeline,
	}, nil
}

func (n *FullscreenNode) ID() uuid.UUID { return n.id }
func (n *FullscreenNode) Label() string { return n.label }

// DrawByPass records the draw. Begin/End of the pass stay with the caller.
func (n *FullscreenNode) DrawByPass(pass RenderPass) {
	pass.SetPipeline(n.pipeline)
	pass.SetBindGroup(0, n.group)
	pass.Draw(3, 1, 0, 0)
}

func (n *FullscreenNode) Release() {
	if n == nil || n.pipeline == nil {
		return
	}
	n.pipeline.Release()
	n.group.Release()
	n.layout.Release()
	n.pipeline = nil
	n.group = nil
	n.layout = nil
}
