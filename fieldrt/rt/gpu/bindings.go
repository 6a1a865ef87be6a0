package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// WorkgroupCount is a dispatch size in groups, not invocations.
type WorkgroupCount struct {
	X, Y, Z uint32
}

func (w WorkgroupCount) String() string {
	return fmt.Sprintf("(%d, %d, %d)", w.X, w.Y, w.Z)
}

// Empty reports whether any axis is zero, which dispatches nothing.
func (w WorkgroupCount) Empty() bool {
	return w.X == 0 || w.Y == 0 || w.Z == 0
}

func divCeil(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// WorkgroupCount2D covers a width x height grid with tileX x tileY groups.
func WorkgroupCount2D(width, height, tileX, tileY uint32) WorkgroupCount {
	return WorkgroupCount{X: divCeil(width, tileX), Y: divCeil(height, tileY), Z: 1}
}

// WorkgroupCount1D covers n invocations with groups of size tile.
func WorkgroupCount1D(n, tile uint32) WorkgroupCount {
	return WorkgroupCount{X: divCeil(n, tile), Y: 1, Z: 1}
}

// BindGroupData lists, in order, the buffers a program consumes. Uniforms take
// bindings 0..U-1 of group 0 and storage buffers follow at U..U+S-1. WorkgroupCount
// is only meaningful for compute stages.
//
// A binding set is never edited once a stage is built from it; a different buffer
// set means a new BindGroupData and a new stage.
type BindGroupData struct {
	WorkgroupCount WorkgroupCount
	Uniforms       []*Buffer
	Storage        []*Buffer
}

func (d BindGroupData) validate() error {
	for i, b := range d.Uniforms {
		if b == nil || b.handle == nil {
			return fmt.Errorf("uniform binding %d: %w", i, ErrMissingBuffer)
		}
		if b.role != RoleUniform {
			return fmt.Errorf("uniform binding %d (%q) has role %s: %w", i, b.label, b.role, ErrBindingMismatch)
		}
	}
	for i, b := range d.Storage {
		binding := len(d.Uniforms) + i
		if b == nil || b.handle == nil {
			return fmt.Errorf("storage binding %d: %w", binding, ErrMissingBuffer)
		}
		if b.role != RoleStorage {
			return fmt.Errorf("storage binding %d (%q) has role %s: %w", binding, b.label, b.role, ErrBindingMismatch)
		}
	}
	return nil
}

func (d BindGroupData) layoutEntries(visibility wgpu.ShaderStage, storage wgpu.BufferBindingType) []LayoutEntry {
	entries := make([]LayoutEntry, 0, len(d.Uniforms)+len(d.Storage))
	for range d.Uniforms {
		entries = append(entries, LayoutEntry{
			Binding:    uint32(len(entries)),
			Visibility: visibility,
			Type:       wgpu.BufferBindingTypeUniform,
		})
	}
	for range d.Storage {
		entries = append(entries, LayoutEntry{
			Binding:    uint32(len(entries)),
			Visibility: visibility,
			Type:       storage,
		})
	}
	return entries
}

func (d BindGroupData) bindEntries() []BindEntry {
	entries := make([]BindEntry, 0, len(d.Uniforms)+len(d.Storage))
	for _, b := range d.Uniforms {
		entries = append(entries, BindEntry{Binding: uint32(len(entries)), Buffer: b.handle})
	}
	for _, b := range d.Storage {
		entries = append(entries, BindEntry{Binding: uint32(len(entries)), Buffer: b.handle})
	}
	return entries
}

// bindingResources builds the layout and bind group shared by both stage kinds.
func bindingResources(device Device, label string, data BindGroupData, visibility wgpu.ShaderStage, storage wgpu.BufferBindingType) (BindGroupLayout, BindGroup, error) {
	if err := data.validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", label, err)
	}
	layout, err := device.CreateBindGroupLayout(label+" bgl", data.layoutEntries(visibility, storage))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: bind group layout: %v: %w", label, err, ErrBindingMismatch)
	}
	group, err := device.CreateBindGroup(label+" bg", layout, data.bindEntries())
	if err != nil {
		layout.Release()
		return nil, nil, fmt.Errorf("%s: bind group: %v: %w", label, err, ErrBindingMismatch)
	}
	return layout, group, nil
}
