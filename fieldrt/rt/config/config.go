package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"github.com/gekko3d/fieldsim/fieldrt/rt/field"
	"github.com/gekko3d/fieldsim/fieldrt/rt/particles"
	"github.com/gekko3d/fieldsim/fieldrt/rt/shaders"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Window    WindowConfig    `toml:"window"`
	Field     FieldConfig     `toml:"field"`
	Particles ParticlesConfig `toml:"particles"`
	Log       LogConfig       `toml:"log"`
}

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type FieldConfig struct {
	Animation     shaders.AnimationType `toml:"animation"`
	PixelsPerCell uint32                `toml:"pixels_per_cell"`
	FovDegrees    float32               `toml:"fov_degrees"`
	// "as_is" or "normalized"
	SpeedType string `toml:"speed_type"`
	// Optional WGSL file defining field_velocity, watched for edits.
	KernelPath   string `toml:"kernel_path"`
	ValidateWGSL bool   `toml:"validate_wgsl"`
}

type ParticlesConfig struct {
	Count         uint32     `toml:"count"`
	MaxCount      uint32     `toml:"max_count"`
	PointSize     int32      `toml:"point_size"`
	LifeTime      float32    `toml:"life_time"`
	FadeOutFactor float32    `toml:"fade_out_factor"`
	SpeedFactor   float32    `toml:"speed_factor"`
	ColorBySpeed  bool       `toml:"color_by_speed"`
	Color         [4]float32 `toml:"color"`
	Seed          int64      `toml:"seed"`
}

type LogConfig struct {
	Debug  bool   `toml:"debug"`
	Prefix string `toml:"prefix"`
}

func Default() Config {
	p := particles.DefaultConfig()
	return Config{
		Window: WindowConfig{Width: 1280, Height: 720, Title: "Field Simulator"},
		Field: FieldConfig{
			Animation:     shaders.Basic,
			PixelsPerCell: field.PixelsPerCell,
			FovDegrees:    75,
			SpeedType:     "as_is",
			ValidateWGSL:  true,
		},
		Particles: ParticlesConfig{
			Count:         p.Count,
			MaxCount:      p.MaxCount,
			PointSize:     p.PointSize,
			LifeTime:      p.LifeTime,
			FadeOutFactor: p.FadeOutFactor,
			SpeedFactor:   p.SpeedFactor,
			ColorBySpeed:  p.ColorType == particles.ColorBySpeed,
			Color:         p.Color,
			Seed:          p.Seed,
		},
		Log: LogConfig{Prefix: "fieldsim"},
	}
}

// Load reads a TOML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("%w: window %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	if c.Field.PixelsPerCell == 0 {
		return fmt.Errorf("%w: field.pixels_per_cell must be positive", ErrInvalid)
	}
	if c.Field.FovDegrees <= 0 || c.Field.FovDegrees >= 180 {
		return fmt.Errorf("%w: field.fov_degrees %v", ErrInvalid, c.Field.FovDegrees)
	}
	if _, err := c.Field.Speed(); err != nil {
		return err
	}
	if _, err := c.Field.Animation.VelocitySnippet(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p := c.Particles
	if p.Count == 0 {
		return fmt.Errorf("%w: particles.count must be positive", ErrInvalid)
	}
	if p.MaxCount != 0 && p.MaxCount < p.Count {
		return fmt.Errorf("%w: particles.max_count %d < count %d", ErrInvalid, p.MaxCount, p.Count)
	}
	if p.LifeTime <= 0 {
		return fmt.Errorf("%w: particles.life_time must be positive", ErrInvalid)
	}
	return nil
}

func (f FieldConfig) Speed() (field.SpeedType, error) {
	switch f.SpeedType {
	case "", "as_is":
		return field.SpeedAsIs, nil
	case "normalized":
		return field.SpeedNormalized, nil
	default:
		return 0, fmt.Errorf("%w: field.speed_type %q", ErrInvalid, f.SpeedType)
	}
}

// Fovy returns the field of view in radians.
func (f FieldConfig) Fovy() float32 {
	return mgl32.DegToRad(f.FovDegrees)
}

func (p ParticlesConfig) ToParticles() particles.Config {
	ct := particles.ColorUniform
	if p.ColorBySpeed {
		ct = particles.ColorBySpeed
	}
	return particles.Config{
		Count:         p.Count,
		MaxCount:      p.MaxCount,
		Color:         mgl32.Vec4(p.Color),
		PointSize:     p.PointSize,
		LifeTime:      p.LifeTime,
		FadeOutFactor: p.FadeOutFactor,
		SpeedFactor:   p.SpeedFactor,
		ColorType:     ct,
		Seed:          p.Seed,
	}
}
