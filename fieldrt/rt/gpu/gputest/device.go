// Package gputest provides a recording gpu.Device for tests that run without
// an adapter. Nothing is executed; every call is captured for inspection.
package gputest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
)

var ErrInjected = errors.New("gputest: injected failure")

type Device struct {
	// ShaderError, when set, decides whether a shader module fails to compile.
	ShaderError func(label, code string) error
	// BufferError, when set, decides whether an allocation fails.
	BufferError func(desc gpu.BufferDesc) error
	// FinishError, when set, decides whether Finish fails on encoders created by this device.
	FinishError func(label string) error

	Buffers          []*Buffer
	Modules          []*ShaderModule
	Layouts          []*BindGroupLayout
	BindGroups       []*BindGroup
	ComputePipelines []*ComputePipeline
	RenderPipelines  []*RenderPipeline
	Encoders         []*CommandEncoder
	Submissions      [][]*CommandBuffer
	Writes           []Write
}

func NewDevice() *Device { return &Device{} }

// FailShadersContaining makes any shader whose source contains marker fail.
func (d *Device) FailShadersContaining(marker string) {
	d.ShaderError = func(label, code string) error {
		if strings.Contains(code, marker) {
			return fmt.Errorf("%w: %s: unexpected token %q", ErrInjected, label, marker)
		}
		return nil
	}
}

type Buffer struct {
	Desc     gpu.BufferDesc
	Data     []byte
	Released bool
}

func (b *Buffer) Label() string { return b.Desc.Label }
func (b *Buffer) Size() uint64  { return b.Desc.Size }
func (b *Buffer) Release()      { b.Released = true }

type ShaderModule struct {
	Label    string
	Code     string
	Released bool
}

func (m *ShaderModule) Release() { m.Released = true }

type BindGroupLayout struct {
	Label    string
	Entries  []gpu.LayoutEntry
	Released bool
}

func (l *BindGroupLayout) Release() { l.Released = true }

type BindGroup struct {
	Label    string
	Layout   *BindGroupLayout
	Entries  []gpu.BindEntry
	Released bool
}

func (g *BindGroup) Release() { g.Released = true }

type ComputePipeline struct {
	Desc     gpu.ComputePipelineDesc
	Released bool
}

func (p *ComputePipeline) Release() { p.Released = true }

type RenderPipeline struct {
	Desc     gpu.RenderPipelineDesc
	Released bool
}

func (p *RenderPipeline) Release() { p.Released = true }

type Write struct {
	Buffer *Buffer
	Offset uint64
	Data   []byte
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, error) {
	if d.BufferError != nil {
		if err := d.BufferError(desc); err != nil {
			return nil, err
		}
	}
	if len(desc.Contents) > 0 && uint64(len(desc.Contents)) != desc.Size {
		return nil, fmt.Errorf("gputest: %q contents %d bytes, size %d", desc.Label, len(desc.Contents), desc.Size)
	}
	b := &Buffer{Desc: desc, Data: make([]byte, desc.Size)}
	copy(b.Data, desc.Contents)
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) CreateShaderModule(label, code string) (gpu.ShaderModule, error) {
	if d.ShaderError != nil {
		if err := d.ShaderError(label, code); err != nil {
			return nil, err
		}
	}
	m := &ShaderModule{Label: label, Code: code}
	d.Modules = append(d.Modules, m)
	return m, nil
}

func (d *Device) CreateBindGroupLayout(label string, entries []gpu.LayoutEntry) (gpu.BindGroupLayout, error) {
	l := &BindGroupLayout{Label: label, Entries: append([]gpu.LayoutEntry(nil), entries...)}
	d.Layouts = append(d.Layouts, l)
	return l, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.ComputePipeline, error) {
	p := &ComputePipeline{Desc: desc}
	d.ComputePipelines = append(d.ComputePipelines, p)
	return p, nil
}

func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDesc) (gpu.RenderPipeline, error) {
	p := &RenderPipeline{Desc: desc}
	d.RenderPipelines = append(d.RenderPipelines, p)
	return p, nil
}

// CreateBindGroup checks entries against the layout the way a validating
// backend would: same count, same binding slots, live buffers.
func (d *Device) CreateBindGroup(label string, layout gpu.BindGroupLayout, entries []gpu.BindEntry) (gpu.BindGroup, error) {
	l := layout.(*BindGroupLayout)
	if len(entries) != len(l.Entries) {
		return nil, fmt.Errorf("gputest: %q has %d entries, layout expects %d", label, len(entries), len(l.Entries))
	}
	for i, e := range entries {
		if e.Binding != l.Entries[i].Binding {
			return nil, fmt.Errorf("gputest: %q entry %d binds slot %d, layout slot %d", label, i, e.Binding, l.Entries[i].Binding)
		}
		if b, ok := e.Buffer.(*Buffer); !ok || b.Released {
			return nil, fmt.Errorf("gputest: %q entry %d references a released buffer", label, i)
		}
	}
	g := &BindGroup{Label: label, Layout: l, Entries: append([]gpu.BindEntry(nil), entries...)}
	d.BindGroups = append(d.BindGroups, g)
	return g, nil
}

func (d *Device) CreateCommandEncoder(label string) (gpu.CommandEncoder, error) {
	e := &CommandEncoder{Label: label, finishError: d.FinishError}
	d.Encoders = append(d.Encoders, e)
	return e, nil
}

func (d *Device) Submit(cmds ...gpu.CommandBuffer) {
	batch := make([]*CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		batch = append(batch, c.(*CommandBuffer))
	}
	d.Submissions = append(d.Submissions, batch)
}

func (d *Device) WriteBuffer(buf gpu.BufferHandle, offset uint64, data []byte) error {
	b := buf.(*Buffer)
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("gputest: write past end of %q", b.Desc.Label)
	}
	copy(b.Data[offset:], data)
	d.Writes = append(d.Writes, Write{Buffer: b, Offset: offset, Data: append([]byte(nil), data...)})
	return nil
}

// BufferByLabel returns the most recently created buffer with label.
func (d *Device) BufferByLabel(label string) *Buffer {
	for i := len(d.Buffers) - 1; i >= 0; i-- {
		if d.Buffers[i].Desc.Label == label {
			return d.Buffers[i]
		}
	}
	return nil
}

// ModulesLabeled returns every shader module compiled under label, oldest first.
func (d *Device) ModulesLabeled(label string) []*ShaderModule {
	var out []*ShaderModule
	for _, m := range d.Modules {
		if m.Label == label {
			out = append(out, m)
		}
	}
	return out
}

// Dispatch is one recorded DispatchWorkgroups call.
type Dispatch struct {
	Pipeline string
	Count    gpu.WorkgroupCount
}

// SubmittedDispatches lists dispatches in submission order.
func (d *Device) SubmittedDispatches() []Dispatch {
	var out []Dispatch
	for _, batch := range d.Submissions {
		for _, cmd := range batch {
			out = append(out, cmd.Encoder.Dispatches()...)
		}
	}
	return out
}

type CommandEncoder struct {
	Label    string
	Passes   []*ComputePass
	Finished bool
	Released bool

	finishError func(label string) error
}

func NewCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{Label: label}
}

func (e *CommandEncoder) BeginComputePass(label string) gpu.ComputePass {
	p := &ComputePass{Label: label, Groups: map[uint32]gpu.BindGroup{}}
	e.Passes = append(e.Passes, p)
	return p
}

func (e *CommandEncoder) Release() { e.Released = true }

func (e *CommandEncoder) Finish(label string) (gpu.CommandBuffer, error) {
	if e.Finished {
		return nil, fmt.Errorf("gputest: encoder %q finished twice", e.Label)
	}
	if e.finishError != nil {
		if err := e.finishError(label); err != nil {
			return nil, err
		}
	}
	for _, p := range e.Passes {
		if !p.Ended {
			return nil, fmt.Errorf("gputest: encoder %q has an open pass %q", e.Label, p.Label)
		}
	}
	e.Finished = true
	return &CommandBuffer{Label: label, Encoder: e}, nil
}

func (e *CommandEncoder) Dispatches() []Dispatch {
	var out []Dispatch
	for _, p := range e.Passes {
		out = append(out, p.Dispatches...)
	}
	return out
}

type ComputePass struct {
	Label      string
	Pipeline   *ComputePipeline
	Groups     map[uint32]gpu.BindGroup
	Dispatches []Dispatch
	Ended      bool
}

func NewComputePass(label string) *ComputePass {
	return &ComputePass{Label: label, Groups: map[uint32]gpu.BindGroup{}}
}

func (p *ComputePass) SetPipeline(pipeline gpu.ComputePipeline) {
	p.Pipeline = pipeline.(*ComputePipeline)
}

func (p *ComputePass) SetBindGroup(index uint32, group gpu.BindGroup) {
	p.Groups[index] = group
}

func (p *ComputePass) DispatchWorkgroups(x, y, z uint32) {
	label := ""
	if p.Pipeline != nil {
		label = p.Pipeline.Desc.Label
	}
	p.Dispatches = append(p.Dispatches, Dispatch{Pipeline: label, Count: gpu.WorkgroupCount{X: x, Y: y, Z: z}})
}

func (p *ComputePass) End() error {
	if p.Ended {
		return fmt.Errorf("gputest: pass %q ended twice", p.Label)
	}
	p.Ended = true
	return nil
}

type CommandBuffer struct {
	Label    string
	Encoder  *CommandEncoder
	Released bool
}

func (c *CommandBuffer) Release() { c.Released = true }

type Draw struct {
	Pipeline      string
	VertexCount   uint32
	InstanceCount uint32
}

// RenderPass records draws; tests create it directly since the host owns passes.
type RenderPass struct {
	Pipeline *RenderPipeline
	Groups   map[uint32]gpu.BindGroup
	Draws    []Draw
}

func NewRenderPass() *RenderPass {
	return &RenderPass{Groups: map[uint32]gpu.BindGroup{}}
}

func (p *RenderPass) SetPipeline(pipeline gpu.RenderPipeline) {
	p.Pipeline = pipeline.(*RenderPipeline)
}

func (p *RenderPass) SetBindGroup(index uint32, group gpu.BindGroup) {
	p.Groups[index] = group
}

func (p *RenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	label := ""
	if p.Pipeline != nil {
		label = p.Pipeline.Desc.Label
	}
	p.Draws = append(p.Draws, Draw{Pipeline: label, VertexCount: vertexCount, InstanceCount: instanceCount})
}

// StorageUsage is the usage the gpu package requests for plain storage buffers.
const StorageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
