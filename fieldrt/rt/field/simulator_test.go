package field_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gekko3d/fieldsim"
	"github.com/gekko3d/fieldsim/fieldrt/rt/core"
	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu/gputest"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

const (
	canvasW = 800
	canvasH = 600
)

var particleCount = gpu.WorkgroupCount{X: 157, Y: 1, Z: 1}

type panelStub struct {
	changed bool
	code    string
}

func (p *panelStub) CodeSnippetChanged() bool {
	c := p.changed
	p.changed = false
	return c
}

func (p *panelStub) CodeSnippet() string { return p.code }

func (p *panelStub) set(code string) {
	p.code = code
	p.changed = true
}

type env struct {
	dev       *gputest.Device
	canvas    *gpu.Buffer
	particles *gpu.Buffer
	pUniform  *gpu.Buffer
}

func newEnv(t *testing.T) env {
	t.Helper()
	dev := gputest.NewDevice()
	canvas, err := gpu.CreateEmptyStorageBuffer(dev, canvasW*canvasH*16, false, "canvas")
	require.NoError(t, err)
	particles, err := gpu.CreateEmptyStorageBuffer(dev, 10000*32, false, "particles")
	require.NoError(t, err)
	pUniform, err := gpu.CreateUniformBuffer(dev, make([]byte, 48), "particles_uniform")
	require.NoError(t, err)
	return env{dev: dev, canvas: canvas, particles: particles, pUniform: pUniform}
}

func (e env) settings() field.Settings {
	return field.Settings{
		AnimationType:           shaders.Spiral,
		ParticlesUniform:        e.pUniform,
		ParticlesBuf:            e.particles,
		ParticlesWorkgroupCount: particleCount,
	}
}

func newSimulator(t *testing.T, e env, opts ...field.Option) *field.FieldSimulator {
	t.Helper()
	sim, err := field.New(e.dev, wgpu.TextureFormatBGRA8Unorm, canvasW, canvasH, e.canvas, e.settings(), opts...)
	require.NoError(t, err)
	return sim
}

func fieldSettingDispatches(dev *gputest.Device) []gputest.Dispatch {
	var out []gputest.Dispatch
	for _, d := range dev.SubmittedDispatches() {
		if d.Pipeline == "field_setting" {
			out = append(out, d)
		}
	}
	return out
}

func computePipeline(dev *gputest.Device, label string) []*gputest.ComputePipeline {
	var out []*gputest.ComputePipeline
	for _, p := range dev.ComputePipelines {
		if p.Desc.Label == label {
			out = append(out, p)
		}
	}
	return out
}

func TestLattice(t *testing.T) {
	l, err := field.NewLattice(800, 600, field.PixelsPerCell)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), l.CellsX)
	assert.Equal(t, uint32(150), l.CellsY)
	assert.Equal(t, gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}, l.WorkgroupCount())
	assert.Equal(t, uint64(200*150*16), l.BufferSize())

	// partial cells round up so the whole canvas is covered
	l, err = field.NewLattice(801, 599, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(201), l.CellsX)
	assert.Equal(t, uint32(150), l.CellsY)
	assert.Equal(t, uint64(201*150*16), l.BufferSize())

	// the last canvas pixel maps to a cell inside the lattice
	for _, size := range [][3]uint32{{800, 600, 4}, {801, 599, 4}, {1, 1, 4}, {1023, 767, 8}, {5, 3, 16}} {
		l, err := field.NewLattice(size[0], size[1], size[2])
		require.NoError(t, err)
		assert.Less(t, (size[0]-1)/size[2], l.CellsX, "%v", size)
		assert.Less(t, (size[1]-1)/size[2], l.CellsY, "%v", size)
	}

	for _, size := range [][3]uint32{{0, 600, 4}, {800, 0, 4}, {800, 600, 0}} {
		_, err := field.NewLattice(size[0], size[1], size[2])
		assert.ErrorIs(t, err, field.ErrInvalidGeometry)
	}
}

func TestUniformBytes(t *testing.T) {
	l, err := field.NewLattice(800, 600, 4)
	require.NoError(t, err)
	u := field.NewUniform(l, core.DefaultFovy, field.SpeedNormalized)

	b := u.Bytes()
	require.Len(t, b, field.UniformSize)

	i32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(b[off:])) }
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }

	assert.Equal(t, int32(200), i32(0))
	assert.Equal(t, int32(150), i32(4))
	assert.Equal(t, float32(4), f32(8))
	assert.Equal(t, float32(4), f32(12))
	assert.Equal(t, int32(800), i32(16))
	assert.Equal(t, int32(600), i32(20))
	assert.InDelta(t, 800.0/600.0, f32(24), 1e-6)
	assert.Equal(t, float32(1), f32(28))
	assert.InDelta(t, 1.0/300.0, f32(32), 1e-7)
	assert.InDelta(t, 1.0/300.0, f32(36), 1e-7)
	assert.Equal(t, int32(1), i32(40))
	assert.Equal(t, []byte{0, 0, 0, 0}, b[44:48])
}

func TestNew_MissingBorrowedBuffers(t *testing.T) {
	e := newEnv(t)

	s := e.settings()
	s.ParticlesUniform = nil
	_, err := field.New(e.dev, wgpu.TextureFormatBGRA8Unorm, canvasW, canvasH, e.canvas, s)
	assert.ErrorIs(t, err, gpu.ErrMissingBuffer)

	s = e.settings()
	s.ParticlesBuf = nil
	_, err = field.New(e.dev, wgpu.TextureFormatBGRA8Unorm, canvasW, canvasH, e.canvas, s)
	assert.ErrorIs(t, err, gpu.ErrMissingBuffer)

	_, err = field.New(e.dev, wgpu.TextureFormatBGRA8Unorm, canvasW, canvasH, nil, e.settings())
	assert.ErrorIs(t, err, gpu.ErrMissingBuffer)

	assert.Empty(t, e.dev.ComputePipelines)
	assert.Empty(t, e.dev.Submissions)
}

func TestNew_BuildsStagesAndSeedsField(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)

	assert.Equal(t, uint32(200), sim.Lattice().CellsX)
	assert.Equal(t, uint32(150), sim.Lattice().CellsY)
	assert.Equal(t, gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}, sim.FieldWorkgroupCount())
	assert.Equal(t, particleCount, sim.ParticlesWorkgroupCount())
	assert.Equal(t, uint64(0), sim.FrameNum())

	fieldBuf := e.dev.BufferByLabel("field buf")
	require.NotNil(t, fieldBuf)
	assert.Equal(t, uint64(200*150*16), fieldBuf.Desc.Size)
	assert.Equal(t, field.UniformSize, len(e.dev.BufferByLabel("field_uniform").Data))

	require.Len(t, computePipeline(e.dev, "field_setting"), 1)
	require.Len(t, computePipeline(e.dev, "trajectory_update"), 1)
	require.Len(t, computePipeline(e.dev, "canvas_fade"), 1)
	require.Len(t, e.dev.RenderPipelines, 1)
	assert.Equal(t, "present", e.dev.RenderPipelines[0].Desc.Label)

	// initial reset: one submission running only the field-setting stage
	require.Len(t, e.dev.Submissions, 1)
	assert.Equal(t, []gputest.Dispatch{{Pipeline: "field_setting", Count: gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}}},
		e.dev.SubmittedDispatches())

	// the chosen animation snippet was spliced into the kernel
	spiral, err := shaders.Spiral.VelocitySnippet()
	require.NoError(t, err)
	modules := e.dev.ModulesLabeled("field_setting")
	require.Len(t, modules, 1)
	assert.Contains(t, modules[0].Code, spiral)
	assert.Equal(t, spiral, sim.CodeSnippet())
}

func TestNew_BindingSets(t *testing.T) {
	e := newEnv(t)
	newSimulator(t, e)

	handles := func(label string) []gpu.BufferHandle {
		for _, g := range e.dev.BindGroups {
			if g.Label == label+" bg" {
				out := make([]gpu.BufferHandle, len(g.Entries))
				for i, entry := range g.Entries {
					out[i] = entry.Buffer
				}
				return out
			}
		}
		t.Fatalf("no bind group for %s", label)
		return nil
	}
	uniform := e.dev.BufferByLabel("field_uniform")
	fieldBuf := e.dev.BufferByLabel("field buf")

	assert.Equal(t, []gpu.BufferHandle{uniform, fieldBuf}, handles("field_setting"))
	assert.Equal(t, []gpu.BufferHandle{uniform, e.pUniform.Handle(), fieldBuf, e.particles.Handle(), e.canvas.Handle()},
		handles("trajectory_update"))
	assert.Equal(t, []gpu.BufferHandle{uniform, e.canvas.Handle()}, handles("canvas_fade"))
	assert.Equal(t, []gpu.BufferHandle{uniform, e.pUniform.Handle(), e.canvas.Handle()}, handles("present"))
}

func TestUpdateBy_UnchangedIsNoop(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)
	id := sim.FieldSettingStageID()
	modules := len(e.dev.Modules)

	require.NoError(t, sim.UpdateBy(&panelStub{code: "fn field_velocity() {}"}))
	require.NoError(t, sim.UpdateBy(nil))

	// a change flag carrying the current source is also a no-op
	same := &panelStub{}
	same.set(sim.CodeSnippet())
	require.NoError(t, sim.UpdateBy(same))

	assert.Equal(t, id, sim.FieldSettingStageID())
	assert.Len(t, e.dev.Modules, modules)
	assert.Len(t, e.dev.Submissions, 1)
	assert.Empty(t, e.dev.Writes)
}

func TestUpdateBy_ValidReload(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)
	oldID := sim.FieldSettingStageID()

	custom := gpu.WorkgroupCount{X: 42, Y: 1, Z: 1}
	sim.UpdateWorkgroupCount(custom)

	panel := &panelStub{}
	panel.set("fn field_velocity(uv: vec2<i32>) -> vec2<f32> { return vec2<f32>(1.0, 0.0); }")
	require.NoError(t, sim.UpdateBy(panel))

	assert.NotEqual(t, oldID, sim.FieldSettingStageID())
	stages := computePipeline(e.dev, "field_setting")
	require.Len(t, stages, 2)
	assert.True(t, stages[0].Released, "replaced stage is discarded")
	assert.False(t, stages[1].Released)

	// reload reseeds the field with the unchanged dispatch size
	dispatches := fieldSettingDispatches(e.dev)
	require.Len(t, dispatches, 2)
	assert.Equal(t, gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}, dispatches[1].Count)
	assert.Equal(t, gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}, sim.FieldWorkgroupCount())

	assert.Equal(t, custom, sim.ParticlesWorkgroupCount())
	assert.Contains(t, e.dev.ModulesLabeled("field_setting")[1].Code, panel.code)

	// same buffers bound as before
	var groups []*gputest.BindGroup
	for _, g := range e.dev.BindGroups {
		if g.Label == "field_setting bg" {
			groups = append(groups, g)
		}
	}
	require.Len(t, groups, 2)
	assert.Equal(t, groups[0].Entries, groups[1].Entries)
}

func TestUpdateBy_InvalidReloadKeepsStage(t *testing.T) {
	e := newEnv(t)
	obsCore, logs := observer.New(zapcore.DebugLevel)
	sim := newSimulator(t, e, field.WithLogger(fieldsim.NewLoggerFromZap(zap.New(obsCore), "sim")))
	e.dev.FailShadersContaining("@@broken")

	id := sim.FieldSettingStageID()
	before := sim.CodeSnippet()
	submissions := len(e.dev.Submissions)

	panel := &panelStub{}
	panel.set("fn field_velocity(uv: vec2<i32>) -> vec2<f32> { @@broken }")
	err := sim.UpdateBy(panel)
	require.Error(t, err)
	assert.True(t, gpu.IsCompileError(err))

	assert.Equal(t, id, sim.FieldSettingStageID())
	assert.Equal(t, before, sim.CodeSnippet())
	assert.Len(t, e.dev.Submissions, submissions, "field buffer must not be reseeded")
	stages := computePipeline(e.dev, "field_setting")
	require.Len(t, stages, 1)
	assert.False(t, stages[0].Released)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	// the kept stage still runs
	require.NoError(t, sim.Reset())
	assert.Len(t, fieldSettingDispatches(e.dev), 2)

	// a later fix goes through
	panel.set("fn field_velocity(uv: vec2<i32>) -> vec2<f32> { return vec2<f32>(0.0); }")
	require.NoError(t, sim.UpdateBy(panel))
	assert.NotEqual(t, id, sim.FieldSettingStageID())
}

func TestUpdateWorkgroupCount_OnlyAffectsParticles(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)

	sim.UpdateWorkgroupCount(gpu.WorkgroupCount{X: 3, Y: 1, Z: 1})

	enc := gputest.NewCommandEncoder("frame")
	require.NoError(t, sim.Compute(enc))
	assert.Equal(t, []gputest.Dispatch{
		{Pipeline: "canvas_fade", Count: gpu.WorkgroupCount{X: 50, Y: 38, Z: 1}},
		{Pipeline: "trajectory_update", Count: gpu.WorkgroupCount{X: 3, Y: 1, Z: 1}},
	}, enc.Dispatches())

	require.NoError(t, sim.Reset())
	dispatches := fieldSettingDispatches(e.dev)
	assert.Equal(t, gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}, dispatches[len(dispatches)-1].Count)
	assert.Len(t, computePipeline(e.dev, "trajectory_update"), 1, "stage is not rebuilt")
}

func TestCompute_DoesNotSubmit(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)

	enc := gputest.NewCommandEncoder("frame")
	require.NoError(t, sim.Compute(enc))
	assert.Len(t, e.dev.Submissions, 1, "only the initial reset")
	require.Len(t, enc.Passes, 2)
	assert.Equal(t, "canvas_fade", enc.Passes[0].Label)
	assert.Equal(t, "trajectory_update", enc.Passes[1].Label)
	for _, p := range enc.Passes {
		assert.True(t, p.Ended, p.Label)
	}
}

func TestFrameCounter(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)
	require.Equal(t, uint64(0), sim.FrameNum())

	for i := 1; i <= 2; i++ {
		enc := gputest.NewCommandEncoder("frame")
		require.NoError(t, sim.Compute(enc))
		pass := gputest.NewRenderPass()
		sim.DrawByPass(pass)
		assert.Equal(t, uint64(i), sim.FrameNum())
		assert.Equal(t, []gputest.Draw{{Pipeline: "present", VertexCount: 3, InstanceCount: 1}}, pass.Draws)
	}
}

func TestUpdateFieldByCPass(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)

	pass := gputest.NewComputePass("manual")
	sim.UpdateFieldByCPass(pass)
	assert.Equal(t, []gputest.Dispatch{{Pipeline: "field_setting", Count: gpu.WorkgroupCount{X: 13, Y: 10, Z: 1}}},
		pass.Dispatches)
	assert.False(t, pass.Ended)
}

func TestRelease_KeepsBorrowedBuffers(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e)
	sim.Release()

	assert.True(t, e.dev.BufferByLabel("field buf").Released)
	assert.True(t, e.dev.BufferByLabel("field_uniform").Released)
	for _, p := range e.dev.ComputePipelines {
		assert.True(t, p.Released, p.Desc.Label)
	}
	assert.True(t, e.dev.RenderPipelines[0].Released)

	assert.False(t, e.dev.BufferByLabel("canvas").Released)
	assert.False(t, e.dev.BufferByLabel("particles").Released)
	assert.False(t, e.dev.BufferByLabel("particles_uniform").Released)

	sim.Release()
}

func TestNew_CompileFailureReleasesPartialState(t *testing.T) {
	e := newEnv(t)
	e.dev.FailShadersContaining("fn fs_main")

	_, err := field.New(e.dev, wgpu.TextureFormatBGRA8Unorm, canvasW, canvasH, e.canvas, e.settings())
	require.Error(t, err)
	assert.True(t, gpu.IsCompileError(err))

	assert.True(t, e.dev.BufferByLabel("field buf").Released)
	for _, p := range e.dev.ComputePipelines {
		assert.True(t, p.Released, p.Desc.Label)
	}
	assert.False(t, e.dev.BufferByLabel("canvas").Released)
	assert.Empty(t, e.dev.Submissions)
}

func TestNew_Options(t *testing.T) {
	e := newEnv(t)
	sim := newSimulator(t, e, field.WithPixelsPerCell(8), field.WithSpeedType(field.SpeedNormalized))

	assert.Equal(t, uint32(100), sim.Lattice().CellsX)
	assert.Equal(t, uint32(75), sim.Lattice().CellsY)
	assert.Equal(t, gpu.WorkgroupCount{X: 7, Y: 5, Z: 1}, sim.FieldWorkgroupCount())
	assert.Equal(t, field.SpeedNormalized, sim.Uniform().SpeedType)
	assert.Equal(t, [2]float32{8, 8}, sim.Uniform().LatticePixelSize)
}
