package app

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/fieldsim"
	"github.com/gekko3d/fieldsim/fieldrt/rt/config"
	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
	"github.com/gekko3d/fieldsim/fieldrt/rt/panel"
	"github.com/gekko3d/fieldsim/fieldrt/rt/particles"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

// CanvasStride is the byte size of one vec4<f32> canvas pixel.
const CanvasStride = 16

// Pipeline owns everything sized by the canvas: the canvas buffer, the
// particle system and the field simulator. It has no window dependency.
type Pipeline struct {
	device gpu.Device
	format wgpu.TextureFormat
	cfg    config.Config
	logger fieldsim.Logger

	width, height uint32
	canvas        *gpu.Buffer
	particles     *particles.System
	sim           *field.FieldSimulator

	animation      shaders.AnimationType
	animationPanel *panel.Static
	panels         []field.ControlPanel

	// last rejected kernel, cleared by the next successful reload
	kernelErr error
}

// NewPipeline builds the pipeline for a width x height canvas. Extra panels
// are polled after the animation selector on every Update.
func NewPipeline(device gpu.Device, format wgpu.TextureFormat, width, height uint32, cfg config.Config, logger fieldsim.Logger, panels ...field.ControlPanel) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	snippet, err := cfg.Field.Animation.VelocitySnippet()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		device:         device,
		format:         format,
		cfg:            cfg,
		logger:         fieldsim.OrNop(logger),
		animation:      cfg.Field.Animation,
		animationPanel: panel.NewStatic(snippet),
		panels:         panels,
	}
	st, err := p.build(width, height)
	if err != nil {
		return nil, err
	}
	p.install(st, width, height)
	return p, nil
}

// stack is one canvas-sized set of resources. The simulator borrows the
// canvas and the particle buffers.
type stack struct {
	canvas    *gpu.Buffer
	particles *particles.System
	sim       *field.FieldSimulator
}

func (st stack) release() {
	// simulator first, it borrows the other two
	st.sim.Release()
	st.particles.Release()
	st.canvas.Release()
}

// build allocates a fresh stack without touching the current one.
func (p *Pipeline) build(width, height uint32) (stack, error) {
	speed, err := p.cfg.Field.Speed()
	if err != nil {
		return stack{}, err
	}

	canvas, err := gpu.CreateEmptyStorageBuffer(p.device, uint64(width)*uint64(height)*CanvasStride, false, "canvas buf")
	if err != nil {
		return stack{}, fmt.Errorf("app: canvas: %w", err)
	}
	ps, err := particles.New(p.device, p.cfg.Particles.ToParticles(), width, height)
	if err != nil {
		canvas.Release()
		return stack{}, err
	}
	sim, err := field.New(p.device, p.format, width, height, canvas, field.Settings{
		AnimationType:           p.animation,
		ParticlesUniform:        ps.Uniform(),
		ParticlesBuf:            ps.Buffer(),
		ParticlesWorkgroupCount: ps.WorkgroupCount(),
	},
		field.WithLogger(p.logger),
		field.WithPixelsPerCell(p.cfg.Field.PixelsPerCell),
		field.WithFovy(p.cfg.Field.Fovy()),
		field.WithSpeedType(speed),
	)
	if err != nil {
		ps.Release()
		canvas.Release()
		return stack{}, err
	}
	return stack{canvas: canvas, particles: ps, sim: sim}, nil
}

func (p *Pipeline) install(st stack, width, height uint32) {
	p.width, p.height = width, height
	p.canvas, p.particles, p.sim = st.canvas, st.particles, st.sim
}

func (p *Pipeline) current() stack {
	return stack{canvas: p.canvas, particles: p.particles, sim: p.sim}
}

// Update polls every control panel. A rejected kernel is kept in KernelError
// and does not stop the frame; any other failure is returned.
func (p *Pipeline) Update() error {
	all := append([]field.ControlPanel{p.animationPanel}, p.panels...)
	for _, pn := range all {
		before := p.sim.FieldSettingStageID()
		err := p.sim.UpdateBy(pn)
		switch {
		case gpu.IsCompileError(err):
			p.kernelErr = err
		case err != nil:
			return err
		case p.sim.FieldSettingStageID() != before:
			p.kernelErr = nil
		}
	}
	return nil
}

// Compute appends the per-tick canvas fade and particle update to encoder.
func (p *Pipeline) Compute(encoder gpu.CommandEncoder) error {
	return p.sim.Compute(encoder)
}

func (p *Pipeline) Draw(pass gpu.RenderPass) {
	p.sim.DrawByPass(pass)
}

func (p *Pipeline) Reset() error {
	return p.sim.Reset()
}

// SetAnimation swaps the field snippet through the hot reload path on the next Update.
func (p *Pipeline) SetAnimation(a shaders.AnimationType) error {
	snippet, err := a.VelocitySnippet()
	if err != nil {
		return err
	}
	p.animation = a
	p.animationPanel.SetCode(snippet)
	p.logger.Infof("app: animation %s", a)
	return nil
}

// SetParticleCount resizes the live population within the buffer capacity.
func (p *Pipeline) SetParticleCount(n uint32) error {
	wc, err := p.particles.SetCount(n)
	if err != nil {
		return err
	}
	p.sim.UpdateWorkgroupCount(wc)
	return nil
}

// Resize rebuilds every canvas-sized resource. The active field snippet and
// particle count are carried over. The old resources are released only once
// the new set is complete, so a failed resize leaves the pipeline running at
// its previous size. Zero sizes (minimized window) are ignored.
func (p *Pipeline) Resize(width, height uint32) error {
	if width == 0 || height == 0 || (width == p.width && height == p.height) {
		return nil
	}
	st, err := p.build(width, height)
	if err != nil {
		return fmt.Errorf("app: resize %dx%d: %w", width, height, err)
	}
	if err := p.carryOver(st); err != nil {
		st.release()
		return fmt.Errorf("app: resize %dx%d: %w", width, height, err)
	}

	old := p.current()
	p.install(st, width, height)
	old.release()
	p.logger.Infof("app: resized to %dx%d", width, height)
	return nil
}

// carryOver applies the live particle count and edited kernel to st.
func (p *Pipeline) carryOver(st stack) error {
	if count := p.particles.Count(); count != st.particles.Count() {
		wc, err := st.particles.SetCount(count)
		if err != nil {
			return err
		}
		st.sim.UpdateWorkgroupCount(wc)
	}
	if active := p.sim.CodeSnippet(); active != st.sim.CodeSnippet() {
		restore := panel.NewStatic(st.sim.CodeSnippet())
		restore.SetCode(active)
		if err := st.sim.UpdateBy(restore); err != nil {
			return fmt.Errorf("app: restore kernel: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) Simulator() *field.FieldSimulator { return p.sim }
func (p *Pipeline) Particles() *particles.System     { return p.particles }
func (p *Pipeline) Animation() shaders.AnimationType { return p.animation }
func (p *Pipeline) KernelError() error               { return p.kernelErr }
func (p *Pipeline) Size() (uint32, uint32)           { return p.width, p.height }

func (p *Pipeline) Release() {
	p.current().release()
	p.canvas, p.particles, p.sim = nil, nil, nil
}
