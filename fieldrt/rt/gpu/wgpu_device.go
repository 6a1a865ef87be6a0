package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDevice adapts a cogentcore/webgpu device to Device.
type WGPUDevice struct {
	device   *wgpu.Device
	queue    *wgpu.Queue
	validate func(label, code string) error
}

type DeviceOption func(*WGPUDevice)

// WithShaderValidation runs fn on every shader source before it reaches the
// driver. A failure is reported as a CompileError.
func WithShaderValidation(fn func(label, code string) error) DeviceOption {
	return func(d *WGPUDevice) { d.validate = fn }
}

func WrapDevice(device *wgpu.Device, opts ...DeviceOption) *WGPUDevice {
	d := &WGPUDevice{
		device: device,
		queue:  device.GetQueue(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *WGPUDevice) Raw() *wgpu.Device  { return d.device }
func (d *WGPUDevice) Queue() *wgpu.Queue { return d.queue }

type wgpuBuffer struct {
	label string
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.buf.GetSize() }
func (b *wgpuBuffer) Release()      { b.buf.Release() }

// RawBuffer unwraps a handle created by WGPUDevice.
func RawBuffer(h BufferHandle) *wgpu.Buffer {
	return h.(*wgpuBuffer).buf
}

func (d *WGPUDevice) CreateBuffer(desc BufferDesc) (BufferHandle, error) {
	var (
		buf *wgpu.Buffer
		err error
	)
	if len(desc.Contents) > 0 {
		buf, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: desc.Contents,
			Usage:    desc.Usage,
		})
	} else {
		buf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label:            desc.Label,
			Size:             desc.Size,
			Usage:            desc.Usage,
			MappedAtCreation: false,
		})
	}
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: desc.Label, buf: buf}, nil
}

type wgpuShaderModule struct{ module *wgpu.ShaderModule }

func (m *wgpuShaderModule) Release() { m.module.Release() }

func (d *WGPUDevice) CreateShaderModule(label, code string) (ShaderModule, error) {
	if d.validate != nil {
		if err := d.validate(label, code); err != nil {
			return nil, err
		}
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, err
	}
	return &wgpuShaderModule{module: module}, nil
}

type wgpuBindGroupLayout struct{ layout *wgpu.BindGroupLayout }

func (l *wgpuBindGroupLayout) Release() { l.layout.Release() }

func (d *WGPUDevice) CreateBindGroupLayout(label string, entries []LayoutEntry) (BindGroupLayout, error) {
	wEntries := make([]wgpu.BindGroupLayoutEntry, len(entries))
	for i, e := range entries {
		wEntries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: e.Visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type:             e.Type,
				HasDynamicOffset: false,
			},
		}
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: wEntries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroupLayout{layout: layout}, nil
}

func (d *WGPUDevice) pipelineLayout(label string, layout BindGroupLayout) (*wgpu.PipelineLayout, error) {
	return d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout.(*wgpuBindGroupLayout).layout},
	})
}

type wgpuComputePipeline struct {
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.PipelineLayout
}

func (p *wgpuComputePipeline) Release() {
	p.pipeline.Release()
	p.layout.Release()
}

func (d *WGPUDevice) CreateComputePipeline(desc ComputePipelineDesc) (ComputePipeline, error) {
	pl, err := d.pipelineLayout(desc.Label+" layout", desc.Layout)
	if err != nil {
		return nil, err
	}
	pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     desc.Module.(*wgpuShaderModule).module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		pl.Release()
		return nil, err
	}
	return &wgpuComputePipeline{pipeline: pipeline, layout: pl}, nil
}

type wgpuRenderPipeline struct {
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.PipelineLayout
}

func (p *wgpuRenderPipeline) Release() {
	p.pipeline.Release()
	p.layout.Release()
}

func (d *WGPUDevice) CreateRenderPipeline(desc RenderPipelineDesc) (RenderPipeline, error) {
	pl, err := d.pipelineLayout(desc.Label+" layout", desc.Layout)
	if err != nil {
		return nil, err
	}
	module := desc.Module.(*wgpuShaderModule).module

	// opaque target, the fragment stage composes the background itself
	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: pl,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    desc.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		pl.Release()
		return nil, err
	}
	return &wgpuRenderPipeline{pipeline: pipeline, layout: pl}, nil
}

type wgpuBindGroup struct{ group *wgpu.BindGroup }

func (g *wgpuBindGroup) Release() { g.group.Release() }

func (d *WGPUDevice) CreateBindGroup(label string, layout BindGroupLayout, entries []BindEntry) (BindGroup, error) {
	wEntries := make([]wgpu.BindGroupEntry, len(entries))
	for i, e := range entries {
		wEntries[i] = wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  RawBuffer(e.Buffer),
			Size:    wgpu.WholeSize,
		}
	}
	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout.(*wgpuBindGroupLayout).layout,
		Entries: wEntries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBindGroup{group: group}, nil
}

func (d *WGPUDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return WrapCommandEncoder(encoder), nil
}

type wgpuCommandBuffer struct{ cmd *wgpu.CommandBuffer }

func (c *wgpuCommandBuffer) Release() { c.cmd.Release() }

func (d *WGPUDevice) Submit(cmds ...CommandBuffer) {
	raw := make([]*wgpu.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		raw = append(raw, c.(*wgpuCommandBuffer).cmd)
	}
	d.queue.Submit(raw...)
}

func (d *WGPUDevice) WriteBuffer(buf BufferHandle, offset uint64, data []byte) error {
	return d.queue.WriteBuffer(RawBuffer(buf), offset, data)
}

// Encoders and passes

type wgpuCommandEncoder struct{ encoder *wgpu.CommandEncoder }

// WrapCommandEncoder lets stages record into an encoder the host created.
func WrapCommandEncoder(encoder *wgpu.CommandEncoder) CommandEncoder {
	return &wgpuCommandEncoder{encoder: encoder}
}

func (e *wgpuCommandEncoder) BeginComputePass(label string) ComputePass {
	pass := e.encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})
	return &wgpuComputePass{pass: pass, owned: true}
}

func (e *wgpuCommandEncoder) Release() { e.encoder.Release() }

func (e *wgpuCommandEncoder) Finish(label string) (CommandBuffer, error) {
	cmd, err := e.encoder.Finish(&wgpu.CommandBufferDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("finish %q: %w", label, err)
	}
	return &wgpuCommandBuffer{cmd: cmd}, nil
}

type wgpuComputePass struct {
	pass  *wgpu.ComputePassEncoder
	owned bool
}

// WrapComputePass adapts a compute pass owned by the caller, for hosts that
// record the field reseed through FieldSimulator.UpdateFieldByCPass. End on
// the returned value ends the pass but leaves releasing it to the caller.
func WrapComputePass(pass *wgpu.ComputePassEncoder) ComputePass {
	return &wgpuComputePass{pass: pass}
}

func (p *wgpuComputePass) SetPipeline(pipeline ComputePipeline) {
	p.pass.SetPipeline(pipeline.(*wgpuComputePipeline).pipeline)
}

func (p *wgpuComputePass) SetBindGroup(index uint32, group BindGroup) {
	p.pass.SetBindGroup(index, group.(*wgpuBindGroup).group, nil)
}

func (p *wgpuComputePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *wgpuComputePass) End() error {
	err := p.pass.End()
	if p.owned {
		p.pass.Release()
	}
	return err
}

type wgpuRenderPass struct{ pass *wgpu.RenderPassEncoder }

func WrapRenderPass(pass *wgpu.RenderPassEncoder) RenderPass {
	return &wgpuRenderPass{pass: pass}
}

func (p *wgpuRenderPass) SetPipeline(pipeline RenderPipeline) {
	p.pass.SetPipeline(pipeline.(*wgpuRenderPipeline).pipeline)
}

func (p *wgpuRenderPass) SetBindGroup(index uint32, group BindGroup) {
	p.pass.SetBindGroup(index, group.(*wgpuBindGroup).group, nil)
}

func (p *wgpuRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}
