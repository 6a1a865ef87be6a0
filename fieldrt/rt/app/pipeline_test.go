package app

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/fieldsim/fieldrt/rt/config"
	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu/gputest"
	"github.com/gekko3d/fieldsim/fieldrt/rt/panel"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Particles.Count = 256
	cfg.Particles.MaxCount = 4096
	return cfg
}

func newTestPipeline(t *testing.T, panels ...*panel.Static) (*Pipeline, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	var extra []field.ControlPanel
	for _, p := range panels {
		extra = append(extra, p)
	}
	p, err := NewPipeline(dev, wgpu.TextureFormatBGRA8Unorm, 64, 48, testConfig(), nil, extra...)
	require.NoError(t, err)
	return p, dev
}

func TestPipeline_New(t *testing.T) {
	p, dev := newTestPipeline(t)

	canvas := dev.BufferByLabel("canvas buf")
	require.NotNil(t, canvas)
	assert.Equal(t, uint64(64*48*CanvasStride), canvas.Desc.Size)
	assert.Equal(t, uint32(16), p.Simulator().Lattice().CellsX)
	assert.Equal(t, uint32(12), p.Simulator().Lattice().CellsY)
	assert.Equal(t, gpu.WorkgroupCount{X: 4, Y: 1, Z: 1}, p.Simulator().ParticlesWorkgroupCount())
	assert.Len(t, dev.Submissions, 1)
	assert.Equal(t, shaders.Basic, p.Animation())
}

func TestPipeline_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Particles.Count = 0
	_, err := NewPipeline(gputest.NewDevice(), wgpu.TextureFormatBGRA8Unorm, 64, 48, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPipeline_SetAnimation(t *testing.T) {
	p, dev := newTestPipeline(t)
	id := p.Simulator().FieldSettingStageID()

	require.NoError(t, p.SetAnimation(shaders.JuliaSet))
	assert.Equal(t, id, p.Simulator().FieldSettingStageID(), "applied on the next update")

	require.NoError(t, p.Update())
	assert.NotEqual(t, id, p.Simulator().FieldSettingStageID())
	julia, err := shaders.JuliaSet.VelocitySnippet()
	require.NoError(t, err)
	assert.Equal(t, julia, p.Simulator().CodeSnippet())
	assert.Len(t, dev.Submissions, 2)

	// nothing changed since
	require.NoError(t, p.Update())
	assert.Len(t, dev.Submissions, 2)

	assert.ErrorIs(t, p.SetAnimation(shaders.AnimationType(99)), shaders.ErrUnknownAnimation)
}

func TestPipeline_KernelErrorKeepsRunning(t *testing.T) {
	edits := panel.NewStatic("")
	p, dev := newTestPipeline(t, edits)
	dev.FailShadersContaining("@@broken")
	id := p.Simulator().FieldSettingStageID()

	edits.SetCode("fn field_velocity(uv: vec2<i32>) -> vec2<f32> { @@broken }")
	require.NoError(t, p.Update())
	require.Error(t, p.KernelError())
	assert.True(t, gpu.IsCompileError(p.KernelError()))
	assert.Equal(t, id, p.Simulator().FieldSettingStageID())

	enc := gputest.NewCommandEncoder("frame")
	require.NoError(t, p.Compute(enc))
	p.Draw(gputest.NewRenderPass())
	assert.Equal(t, uint64(1), p.Simulator().FrameNum())

	edits.SetCode("fn field_velocity(uv: vec2<i32>) -> vec2<f32> { return vec2<f32>(0.5); }")
	require.NoError(t, p.Update())
	assert.NoError(t, p.KernelError())
	assert.NotEqual(t, id, p.Simulator().FieldSettingStageID())
}

func TestPipeline_SetParticleCount(t *testing.T) {
	p, _ := newTestPipeline(t)

	require.NoError(t, p.SetParticleCount(1000))
	assert.Equal(t, gpu.WorkgroupCount{X: 16, Y: 1, Z: 1}, p.Simulator().ParticlesWorkgroupCount())
	assert.Equal(t, gpu.WorkgroupCount{X: 1, Y: 1, Z: 1}, p.Simulator().FieldWorkgroupCount())

	assert.Error(t, p.SetParticleCount(1<<20))
	assert.Equal(t, gpu.WorkgroupCount{X: 16, Y: 1, Z: 1}, p.Simulator().ParticlesWorkgroupCount())
}

func TestPipeline_Resize(t *testing.T) {
	edits := panel.NewStatic("")
	p, dev := newTestPipeline(t, edits)
	require.NoError(t, p.SetParticleCount(1000))

	custom := "fn field_velocity(uv: vec2<i32>) -> vec2<f32> { return vec2<f32>(1.0, 1.0); }"
	edits.SetCode(custom)
	require.NoError(t, p.Update())
	oldCanvas := dev.BufferByLabel("canvas buf")

	require.NoError(t, p.Resize(128, 96))
	w, h := p.Size()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(96), h)
	assert.True(t, oldCanvas.Released)
	assert.Equal(t, uint64(128*96*CanvasStride), dev.BufferByLabel("canvas buf").Desc.Size)
	assert.Equal(t, uint32(32), p.Simulator().Lattice().CellsX)
	assert.Equal(t, gpu.WorkgroupCount{X: 2, Y: 2, Z: 1}, p.Simulator().FieldWorkgroupCount())

	assert.Equal(t, custom, p.Simulator().CodeSnippet(), "edited kernel survives the rebuild")
	assert.Equal(t, uint32(1000), p.Particles().Count())
	assert.Equal(t, gpu.WorkgroupCount{X: 16, Y: 1, Z: 1}, p.Simulator().ParticlesWorkgroupCount())

	// minimized window and unchanged size are no-ops
	stage := p.Simulator().FieldSettingStageID()
	require.NoError(t, p.Resize(0, 0))
	require.NoError(t, p.Resize(128, 96))
	assert.Equal(t, stage, p.Simulator().FieldSettingStageID())
}

func TestPipeline_FailedResizeKeepsPipeline(t *testing.T) {
	p, dev := newTestPipeline(t)
	sim := p.Simulator()
	canvas := dev.BufferByLabel("canvas buf")
	dev.BufferError = func(desc gpu.BufferDesc) error {
		if desc.Label == "field buf" {
			return gputest.ErrInjected
		}
		return nil
	}

	err := p.Resize(128, 96)
	require.ErrorIs(t, err, gpu.ErrAllocation)

	w, h := p.Size()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(48), h)
	assert.Same(t, sim, p.Simulator())
	assert.False(t, canvas.Released)
	// the half-built canvas for 128x96 was given back
	assert.True(t, dev.BufferByLabel("canvas buf").Released)

	require.NoError(t, p.Update())
	enc := gputest.NewCommandEncoder("frame")
	require.NoError(t, p.Compute(enc))
	p.Draw(gputest.NewRenderPass())
	assert.Equal(t, uint64(1), p.Simulator().FrameNum())

	dev.BufferError = nil
	require.NoError(t, p.Resize(128, 96))
	assert.True(t, canvas.Released)
}

func TestPipeline_Release(t *testing.T) {
	p, dev := newTestPipeline(t)
	p.Release()
	for _, b := range dev.Buffers {
		assert.True(t, b.Released, b.Desc.Label)
	}
}
