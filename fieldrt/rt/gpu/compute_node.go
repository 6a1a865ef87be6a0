package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

const DefaultComputeEntry = "cs_main"

// ComputeNode is a compiled compute program bound to a fixed binding set.
// Program and bindings never change after construction; only the workgroup
// count may be replaced between frames.
type ComputeNode struct {
	id    uuid.UUID
	label string

	device   Device
	layout   BindGroupLayout
	group    BindGroup
	pipeline ComputePipeline

	workgroupCount WorkgroupCount
}

// NewComputeNode compiles code and binds it to data. Compilation failures are
// returned as *CompileError; binding failures wrap ErrMissingBuffer or
// ErrBindingMismatch.
func NewComputeNode(device Device, label string, data BindGroupData, code string) (*ComputeNode, error) {
	return NewComputeNodeWithEntry(device, label, data, code, DefaultComputeEntry)
}

func NewComputeNodeWithEntry(device Device, label string, data BindGroupData, code, entry string) (*ComputeNode, error) {
	layout, group, err := bindingResources(device, label, data,
		wgpu.ShaderStageCompute, wgpu.BufferBindingTypeStorage)
	if err != nil {
		return nil, err
	}

	module, err := device.CreateShaderModule(label, code)
	if err != nil {
		group.Release()
		layout.Release()
		return nil, asCompileError(label, err)
	}
	// pipeline keeps its own reference to the module
	defer module.Release()

	pipeline, err := device.CreateComputePipeline(ComputePipelineDesc{
		Label:      label,
		Layout:     layout,
		Module:     module,
		EntryPoint: entry,
	})
	if err != nil {
		group.Release()
		layout.Release()
		return nil, asCompileError(label, err)
	}

	return &ComputeNode{
		id:             uuid.New(),
		label:          label,
		device:         device,
		layout:         layout,
		group:          group,
		pipeline:       pipeline,
		workgroupCount: data.WorkgroupCount,
	}, nil
}

func asCompileError(label string, err error) error {
	if IsCompileError(err) {
		return err
	}
	return &CompileError{Label: label, Err: err}
}

// ID identifies this compiled instance; a rebuilt stage gets a new ID.
func (n *ComputeNode) ID() uuid.UUID                  { return n.id }
func (n *ComputeNode) Label() string                  { return n.label }
func (n *ComputeNode) WorkgroupCount() WorkgroupCount { return n.workgroupCount }

// SetWorkgroupCount replaces the dispatch size used by the next dispatch.
func (n *ComputeNode) SetWorkgroupCount(c WorkgroupCount) {
	n.workgroupCount = c
}

// ComputeByPass records the dispatch into a pass the caller owns.
func (n *ComputeNode) ComputeByPass(pass ComputePass) {
	pass.SetPipeline(n.pipeline)
	pass.SetBindGroup(0, n.group)
	c := n.workgroupCount
	pass.DispatchWorkgroups(c.X, c.Y, c.Z)
}

// Compute appends a compute pass to encoder. Nothing is submitted.
func (n *ComputeNode) Compute(encoder CommandEncoder) error {
	pass := encoder.BeginComputePass(n.label)
	n.ComputeByPass(pass)
	if err := pass.End(); err != nil {
		return fmt.Errorf("%s: end compute pass: %w", n.label, err)
	}
	return nil
}

// Dispatch runs the node as its own submission.
func (n *ComputeNode) Dispatch() error {
	encoder, err := n.device.CreateCommandEncoder(n.label + " encoder")
	if err != nil {
		return fmt.Errorf("%s: create encoder: %w", n.label, err)
	}
	defer encoder.Release()

	if err := n.Compute(encoder); err != nil {
		return err
	}
	cmd, err := encoder.Finish(n.label)
	if err != nil {
		return fmt.Errorf("%s: %w", n.label, err)
	}
	n.device.Submit(cmd)
	cmd.Release()
	return nil
}

// Release frees the program and bind group. Bound buffers are not owned and stay alive.
func (n *ComputeNode) Release() {
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
