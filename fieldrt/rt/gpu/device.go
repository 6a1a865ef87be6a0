package gpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

var (
	ErrMissingBuffer   = errors.New("gpu: required buffer is missing")
	ErrBindingMismatch = errors.New("gpu: binding set does not match program layout")
	ErrAllocation      = errors.New("gpu: buffer allocation failed")
	ErrInvalidSize     = errors.New("gpu: invalid buffer size")
)

// CompileError reports a kernel that could not be turned into an executable
// program. It is kept apart from allocation failures so a host UI can show a
// syntax problem without tearing the pipeline down.
type CompileError struct {
	Label string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("gpu: compile %q: %v", e.Label, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// IsCompileError reports whether err carries a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// Device is the subset of a WebGPU device used by the pipeline stages.
// WrapDevice adapts a *wgpu.Device; gputest provides a recording fake.
type Device interface {
	CreateBuffer(desc BufferDesc) (BufferHandle, error)
	CreateShaderModule(label, code string) (ShaderModule, error)
	CreateBindGroupLayout(label string, entries []LayoutEntry) (BindGroupLayout, error)
	CreateComputePipeline(desc ComputePipelineDesc) (ComputePipeline, error)
	CreateRenderPipeline(desc RenderPipelineDesc) (RenderPipeline, error)
	CreateBindGroup(label string, layout BindGroupLayout, entries []BindEntry) (BindGroup, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)
	Submit(cmds ...CommandBuffer)
	WriteBuffer(buf BufferHandle, offset uint64, data []byte) error
}

type BufferHandle interface {
	Label() string
	Size() uint64
	Release()
}

type ShaderModule interface{ Release() }

type BindGroupLayout interface{ Release() }

type ComputePipeline interface{ Release() }

type RenderPipeline interface{ Release() }

type BindGroup interface{ Release() }

type CommandBuffer interface{ Release() }

// CommandEncoder is an in-progress, not yet submitted command sequence.
// Release is only called by whoever created the encoder.
type CommandEncoder interface {
	BeginComputePass(label string) ComputePass
	Finish(label string) (CommandBuffer, error)
	Release()
}

type ComputePass interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, group BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
}

// RenderPass is a render pass owned by the caller; stages only record into it.
type RenderPass interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, group BindGroup)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
}

// BufferDesc describes an allocation. A non-empty Contents uploads the payload
// at creation and must match Size.
type BufferDesc struct {
	Label    string
	Size     uint64
	Usage    wgpu.BufferUsage
	Contents []byte
}

type LayoutEntry struct {
	Binding    uint32
	Visibility wgpu.ShaderStage
	Type       wgpu.BufferBindingType
}

type BindEntry struct {
	Binding uint32
	Buffer  BufferHandle
}

type ComputePipelineDesc struct {
	Label      string
	Layout     BindGroupLayout
	Module     ShaderModule
	EntryPoint string
}

type RenderPipelineDesc struct {
	Label          string
	Layout         BindGroupLayout
	Module         ShaderModule
	VertexEntry    string
	FragmentEntry  string
	Format         wgpu.TextureFormat
	Topology       wgpu.PrimitiveTopology
}
