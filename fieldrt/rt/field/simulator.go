package field

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/gekko3d/fieldsim"
	"github.com/gekko3d/fieldsim/fieldrt/rt/core"
	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

const (
	fieldSettingLabel     = "field_setting"
	trajectoryUpdateLabel = "trajectory_update"
	canvasFadeLabel       = "canvas_fade"
	presentLabel          = "present"
)

// Settings carries the buffers borrowed from the particle subsystem. They must
// outlive the FieldSimulator built from them.
type Settings struct {
	AnimationType           shaders.AnimationType
	ParticlesUniform        *gpu.Buffer
	ParticlesBuf            *gpu.Buffer
	ParticlesWorkgroupCount gpu.WorkgroupCount
}

// ControlPanel supplies edited field_velocity source.
type ControlPanel interface {
	// CodeSnippetChanged reports whether the snippet changed since the last call.
	CodeSnippetChanged() bool
	CodeSnippet() string
}

// Simulator is what the host loop drives each frame.
type Simulator interface {
	Reset() error
	UpdateBy(panel ControlPanel) error
	UpdateWorkgroupCount(count gpu.WorkgroupCount)
	Compute(encoder gpu.CommandEncoder) error
	DrawByPass(pass gpu.RenderPass)
	Release()
}

type options struct {
	logger        fieldsim.Logger
	pixelsPerCell uint32
	fovy          float32
	speedType     SpeedType
}

type Option func(*options)

func WithLogger(l fieldsim.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithPixelsPerCell(n uint32) Option {
	return func(o *options) { o.pixelsPerCell = n }
}

// WithFovy sets the vertical field of view, in radians, used for proj_ratio and ndc_pixel.
func WithFovy(fovy float32) Option {
	return func(o *options) { o.fovy = fovy }
}

func WithSpeedType(t SpeedType) Option {
	return func(o *options) { o.speedType = t }
}

// FieldSimulator seeds a static velocity field on a coarse lattice, advects
// particles through it into the canvas buffer and presents the canvas.
//
// The field-setting stage runs only on Reset and after a successful hot reload.
// The particle stage is appended to the caller's encoder every tick.
type FieldSimulator struct {
	device gpu.Device
	logger fieldsim.Logger

	lattice      Lattice
	uniform      Uniform
	fieldUniform *gpu.Buffer
	fieldBuf     *gpu.Buffer

	fieldWorkgroupCount gpu.WorkgroupCount
	snippet             string

	fieldSetting    *gpu.ComputeNode
	canvasFade      *gpu.ComputeNode
	particlesUpdate *gpu.ComputeNode
	render          *gpu.FullscreenNode
	frameNum        uint64
}

var _ Simulator = (*FieldSimulator)(nil)

// New builds the field uniform, the field buffer and the three stages, then
// seeds the field once. canvasBuf and the particle buffers in settings are
// borrowed.
func New(device gpu.Device, format wgpu.TextureFormat, canvasWidth, canvasHeight uint32, canvasBuf *gpu.Buffer, settings Settings, opts ...Option) (*FieldSimulator, error) {
	o := options{
		pixelsPerCell: PixelsPerCell,
		fovy:          core.DefaultFovy,
		speedType:     SpeedAsIs,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := fieldsim.OrNop(o.logger)

	if settings.ParticlesUniform == nil {
		return nil, fmt.Errorf("field: particles uniform: %w", gpu.ErrMissingBuffer)
	}
	if settings.ParticlesBuf == nil {
		return nil, fmt.Errorf("field: particles buffer: %w", gpu.ErrMissingBuffer)
	}
	if canvasBuf == nil {
		return nil, fmt.Errorf("field: canvas buffer: %w", gpu.ErrMissingBuffer)
	}

	lattice, err := NewLattice(canvasWidth, canvasHeight, o.pixelsPerCell)
	if err != nil {
		return nil, err
	}
	snippet, err := settings.AnimationType.VelocitySnippet()
	if err != nil {
		return nil, err
	}

	s := &FieldSimulator{
		device:              device,
		logger:              logger,
		lattice:             lattice,
		uniform:             NewUniform(lattice, o.fovy, o.speedType),
		fieldWorkgroupCount: lattice.WorkgroupCount(),
	}
	if err := s.build(format, canvasBuf, settings, snippet); err != nil {
		s.Release()
		return nil, err
	}

	logger.Infof("field: %s, field workgroups %s, particle workgroups %s, animation %s",
		lattice, s.fieldWorkgroupCount, settings.ParticlesWorkgroupCount, settings.AnimationType)

	if err := s.Reset(); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *FieldSimulator) build(format wgpu.TextureFormat, canvasBuf *gpu.Buffer, settings Settings, snippet string) error {
	var err error
	s.fieldUniform, err = gpu.CreateUniformBuffer(s.device, s.uniform.Bytes(), "field_uniform")
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}
	s.fieldBuf, err = gpu.CreateEmptyStorageBuffer(s.device, s.lattice.BufferSize(), false, "field buf")
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	s.fieldSetting, err = s.newFieldSettingStage(snippet)
	if err != nil {
		return err
	}
	s.snippet = snippet

	fade, err := shaders.Load(canvasFadeLabel)
	if err != nil {
		return err
	}
	s.canvasFade, err = gpu.NewComputeNode(s.device, canvasFadeLabel, gpu.BindGroupData{
		WorkgroupCount: gpu.WorkgroupCount2D(s.lattice.CanvasWidth, s.lattice.CanvasHeight, TileSize, TileSize),
		Uniforms:       []*gpu.Buffer{s.fieldUniform},
		Storage:        []*gpu.Buffer{canvasBuf},
	}, fade)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	trajectory, err := shaders.Load(trajectoryUpdateLabel)
	if err != nil {
		return err
	}
	s.particlesUpdate, err = gpu.NewComputeNode(s.device, trajectoryUpdateLabel, gpu.BindGroupData{
		WorkgroupCount: settings.ParticlesWorkgroupCount,
		Uniforms:       []*gpu.Buffer{s.fieldUniform, settings.ParticlesUniform},
		Storage:        []*gpu.Buffer{s.fieldBuf, settings.ParticlesBuf, canvasBuf},
	}, trajectory)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}

	present, err := shaders.Load(presentLabel)
	if err != nil {
		return err
	}
	s.render, err = gpu.NewFullscreenNode(s.device, presentLabel, format, gpu.BindGroupData{
		Uniforms: []*gpu.Buffer{s.fieldUniform, settings.ParticlesUniform},
		Storage:  []*gpu.Buffer{canvasBuf},
	}, present)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}
	return nil
}

// newFieldSettingStage binds snippet to the owned uniform and field buffer.
// Every field-setting stage shares that exact binding set.
func (s *FieldSimulator) newFieldSettingStage(snippet string) (*gpu.ComputeNode, error) {
	code, err := shaders.Compose(fieldSettingLabel, snippet)
	if err != nil {
		return nil, err
	}
	node, err := gpu.NewComputeNode(s.device, fieldSettingLabel, gpu.BindGroupData{
		WorkgroupCount: s.fieldWorkgroupCount,
		Uniforms:       []*gpu.Buffer{s.fieldUniform},
		Storage:        []*gpu.Buffer{s.fieldBuf},
	}, code)
	if err != nil {
		return nil, fmt.Errorf("field: %w", err)
	}
	return node, nil
}

// Reset reseeds the field buffer in its own submission. Later submissions on
// the same queue observe the new contents.
func (s *FieldSimulator) Reset() error {
	s.logger.Debugf("field: reset, dispatch %s", s.fieldWorkgroupCount)
	if err := s.fieldSetting.Dispatch(); err != nil {
		return fmt.Errorf("field: reset: %w", err)
	}
	return nil
}

// UpdateBy hot reloads the field-setting kernel when the panel reports a new
// snippet. The replacement is compiled first; on failure the current stage is
// kept, the field buffer is left untouched and the error is returned.
func (s *FieldSimulator) UpdateBy(panel ControlPanel) error {
	if panel == nil || !panel.CodeSnippetChanged() {
		return nil
	}
	snippet := panel.CodeSnippet()
	if snippet == s.snippet {
		s.logger.Debugf("field: snippet unchanged, skipping reload")
		return nil
	}

	node, err := s.newFieldSettingStage(snippet)
	if err != nil {
		if gpu.IsCompileError(err) {
			s.logger.Warnf("field: kernel rejected, keeping previous stage: %v", err)
		} else {
			s.logger.Errorf("field: reload failed: %v", err)
		}
		return err
	}

	old := s.fieldSetting
	s.fieldSetting = node
	s.snippet = snippet
	old.Release()
	s.logger.Infof("field: reloaded %s (stage %s)", fieldSettingLabel, node.ID())

	return s.Reset()
}

// UpdateWorkgroupCount changes only the particle stage dispatch, effective on
// the next Compute.
func (s *FieldSimulator) UpdateWorkgroupCount(count gpu.WorkgroupCount) {
	s.particlesUpdate.SetWorkgroupCount(count)
}

// Compute appends the canvas fade and the particle update to encoder without
// submitting. They are separate passes so every fade lands before any splat.
func (s *FieldSimulator) Compute(encoder gpu.CommandEncoder) error {
	if err := s.canvasFade.Compute(encoder); err != nil {
		return err
	}
	return s.particlesUpdate.Compute(encoder)
}

// DrawByPass records the fullscreen present into pass and counts the frame.
func (s *FieldSimulator) DrawByPass(pass gpu.RenderPass) {
	s.render.DrawByPass(pass)
	s.frameNum++
}

// UpdateFieldByCPass records the field-setting dispatch into a pass the caller
// owns, for hosts that batch the reseed themselves.
func (s *FieldSimulator) UpdateFieldByCPass(pass gpu.ComputePass) {
	s.fieldSetting.ComputeByPass(pass)
}

func (s *FieldSimulator) FrameNum() uint64                        { return s.frameNum }
func (s *FieldSimulator) Lattice() Lattice                        { return s.lattice }
func (s *FieldSimulator) Uniform() Uniform                        { return s.uniform }
func (s *FieldSimulator) FieldWorkgroupCount() gpu.WorkgroupCount { return s.fieldWorkgroupCount }
func (s *FieldSimulator) ParticlesWorkgroupCount() gpu.WorkgroupCount {
	return s.particlesUpdate.WorkgroupCount()
}
func (s *FieldSimulator) FieldSettingStageID() uuid.UUID { return s.fieldSetting.ID() }
func (s *FieldSimulator) CodeSnippet() string            { return s.snippet }

// Release frees what the simulator owns. Borrowed particle and canvas buffers stay alive.
func (s *FieldSimulator) Release() {
	if s == nil {
		return
	}
	s.render.Release()
	s.particlesUpdate.Release()
	s.canvasFade.Release()
	s.fieldSetting.Release()
	s.fieldBuf.Release()
	s.fieldUniform.Release()
	s.render = nil
	s.particlesUpdate = nil
	s.canvasFade = nil
	s.fieldSetting = nil
	s.fieldBuf = nil
	s.fieldUniform = nil
}
