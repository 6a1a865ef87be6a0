package particles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
)

const (
	// UniformSize is the byte size of ParticleUniform in WGSL.
	UniformSize = 48
	// Stride is the byte size of one TrajectoryParticle.
	Stride = 32
	// WorkgroupSize matches @workgroup_size(64) of the trajectory kernel.
	WorkgroupSize = 64
)

var ErrCapacity = errors.New("particles: count exceeds buffer capacity")

type ColorType int32

const (
	ColorUniform ColorType = 0
	ColorBySpeed ColorType = 1
)

type Config struct {
	Count uint32
	// MaxCount sizes the buffer; zero means Count.
	MaxCount      uint32
	Color         mgl32.Vec4
	PointSize     int32
	LifeTime      float32
	FadeOutFactor float32
	SpeedFactor   float32
	ColorType     ColorType
	OnlyUpdatePos bool
	Seed          int64
}

func DefaultConfig() Config {
	return Config{
		Count:         10000,
		MaxCount:      65536,
		Color:         mgl32.Vec4{0.9, 0.9, 1.0, 1.0},
		PointSize:     1,
		LifeTime:      180,
		FadeOutFactor: 0.99,
		SpeedFactor:   1,
		ColorType:     ColorBySpeed,
		Seed:          1,
	}
}

func (c Config) capacity() uint32 {
	if c.MaxCount == 0 {
		return c.Count
	}
	return c.MaxCount
}

// System owns the particle uniform and particle buffer that the field
// simulator borrows.
type System struct {
	device  gpu.Device
	cfg     Config
	count   uint32
	uniform *gpu.Buffer
	buf     *gpu.Buffer
}

// New seeds every slot up to capacity with a random position on the canvas and
// a staggered age so particles do not all respawn on the same tick.
func New(device gpu.Device, cfg Config, canvasWidth, canvasHeight uint32) (*System, error) {
	capacity := cfg.capacity()
	if cfg.Count == 0 || capacity == 0 {
		return nil, fmt.Errorf("particles: empty population: %w", gpu.ErrInvalidSize)
	}
	if cfg.Count > capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrCapacity, cfg.Count, capacity)
	}

	s := &System{device: device, cfg: cfg, count: cfg.Count}
	var err error
	s.uniform, err = gpu.CreateUniformBuffer(device, s.uniformBytes(), "particles_uniform")
	if err != nil {
		return nil, fmt.Errorf("particles: %w", err)
	}
	s.buf, err = gpu.CreateStorageBufferInit(device, seed(cfg, capacity, canvasWidth, canvasHeight), "particles buf")
	if err != nil {
		s.uniform.Release()
		return nil, fmt.Errorf("particles: %w", err)
	}
	return s, nil
}

func seed(cfg Config, capacity, width, height uint32) []byte {
	rng := rand.New(rand.NewSource(cfg.Seed))
	out := make([]byte, int(capacity)*Stride)
	le := binary.LittleEndian
	for i := 0; i < int(capacity); i++ {
		p := out[i*Stride : (i+1)*Stride]
		x := rng.Float32() * float32(width)
		y := rng.Float32() * float32(height)
		le.PutUint32(p[0:4], math.Float32bits(x))
		le.PutUint32(p[4:8], math.Float32bits(y))
		le.PutUint32(p[8:12], math.Float32bits(x))
		le.PutUint32(p[12:16], math.Float32bits(y))
		le.PutUint32(p[16:20], math.Float32bits(rng.Float32()*cfg.LifeTime))
		le.PutUint32(p[20:24], math.Float32bits(1))
		// 24:32 padding
	}
	return out
}

func (s *System) uniformBytes() []byte {
	buf := make([]byte, UniformSize)
	le := binary.LittleEndian
	for i := 0; i < 4; i++ {
		le.PutUint32(buf[i*4:], math.Float32bits(s.cfg.Color[i]))
	}
	le.PutUint32(buf[16:20], s.count)
	le.PutUint32(buf[20:24], 1)
	le.PutUint32(buf[24:28], uint32(s.cfg.PointSize))
	le.PutUint32(buf[28:32], math.Float32bits(s.cfg.LifeTime))
	le.PutUint32(buf[32:36], math.Float32bits(s.cfg.FadeOutFactor))
	le.PutUint32(buf[36:40], math.Float32bits(s.cfg.SpeedFactor))
	le.PutUint32(buf[40:44], uint32(s.cfg.ColorType))
	if s.cfg.OnlyUpdatePos {
		le.PutUint32(buf[44:48], 1)
	}
	return buf
}

func (s *System) Count() uint32    { return s.count }
func (s *System) Capacity() uint32 { return s.cfg.capacity() }

func (s *System) WorkgroupCount() gpu.WorkgroupCount {
	return gpu.WorkgroupCount1D(s.count, WorkgroupSize)
}

// SetCount changes the live population within capacity. The uniform is
// rewritten in place so every binding that references it stays valid.
func (s *System) SetCount(n uint32) (gpu.WorkgroupCount, error) {
	if n == 0 || n > s.Capacity() {
		return s.WorkgroupCount(), fmt.Errorf("%w: %d not in 1..%d", ErrCapacity, n, s.Capacity())
	}
	prev := s.count
	s.count = n
	if err := s.uniform.Write(s.device, 0, s.uniformBytes()); err != nil {
		s.count = prev
		return s.WorkgroupCount(), fmt.Errorf("particles: %w", err)
	}
	return s.WorkgroupCount(), nil
}

func (s *System) Uniform() *gpu.Buffer { return s.uniform }
func (s *System) Buffer() *gpu.Buffer  { return s.buf }

func (s *System) Release() {
	if s == nil {
		return
	}
	s.buf.Release()
	s.uniform.Release()
}
