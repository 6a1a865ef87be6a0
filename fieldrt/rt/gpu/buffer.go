package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

type BufferRole uint8

const (
	// RoleUniform is small, CPU-writable and GPU read-only.
	RoleUniform BufferRole = iota
	// RoleStorage is large and GPU read-write.
	RoleStorage
)

func (r BufferRole) String() string {
	switch r {
	case RoleUniform:
		return "uniform"
	case RoleStorage:
		return "storage"
	default:
		return fmt.Sprintf("BufferRole(%d)", uint8(r))
	}
}

// Buffer is an owned GPU memory region with a declared role. There is no
// resize; a size change means allocating a new Buffer and releasing the old one.
type Buffer struct {
	handle   BufferHandle
	role     BufferRole
	label    string
	size     uint64
	readback bool
}

func (b *Buffer) Handle() BufferHandle { return b.handle }
func (b *Buffer) Role() BufferRole     { return b.role }
func (b *Buffer) Label() string        { return b.label }
func (b *Buffer) Size() uint64         { return b.size }
func (b *Buffer) Readback() bool       { return b.readback }

func (b *Buffer) Release() {
	if b == nil || b.handle == nil {
		return
	}
	b.handle.Release()
	b.handle = nil
}

// Write uploads data at offset through the device queue.
func (b *Buffer) Write(device Device, offset uint64, data []byte) error {
	if b.handle == nil {
		return fmt.Errorf("write %q: %w", b.label, ErrMissingBuffer)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write %q: %d bytes at offset %d exceeds size %d: %w",
			b.label, len(data), offset, b.size, ErrInvalidSize)
	}
	if err := device.WriteBuffer(b.handle, offset, data); err != nil {
		return fmt.Errorf("write %q: %w", b.label, err)
	}
	return nil
}

func allocate(device Device, desc BufferDesc) (BufferHandle, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("create %q: %w", desc.Label, ErrInvalidSize)
	}
	handle, err := device.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (%d bytes): %v", ErrAllocation, desc.Label, desc.Size, err)
	}
	return handle, nil
}

// CreateUniformBuffer allocates a uniform region and uploads data immediately.
func CreateUniformBuffer(device Device, data []byte, label string) (*Buffer, error) {
	handle, err := allocate(device, BufferDesc{
		Label:    label,
		Size:     uint64(len(data)),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Contents: data,
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{handle: handle, role: RoleUniform, label: label, size: uint64(len(data))}, nil
}

// CreateEmptyStorageBuffer allocates a zero-initialized storage region with no
// host payload. readback adds CopySrc so contents can be copied out.
func CreateEmptyStorageBuffer(device Device, size uint64, readback bool, label string) (*Buffer, error) {
	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	if readback {
		usage |= wgpu.BufferUsageCopySrc
	}
	handle, err := allocate(device, BufferDesc{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{handle: handle, role: RoleStorage, label: label, size: size, readback: readback}, nil
}

// CreateStorageBufferInit allocates a storage region seeded with data.
func CreateStorageBufferInit(device Device, data []byte, label string) (*Buffer, error) {
	handle, err := allocate(device, BufferDesc{
		Label:    label,
		Size:     uint64(len(data)),
		Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		Contents: data,
	})
	if err != nil {
		return nil, err
	}
	return &Buffer{handle: handle, role: RoleStorage, label: label, size: uint64(len(data))}, nil
}
