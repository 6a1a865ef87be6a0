package field

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/fieldsim/fieldrt/rt/core"
)

// SpeedType selects how the particle update kernel turns a sampled cell
// velocity into a step.
type SpeedType int32

const (
	// SpeedAsIs moves particles by the sampled velocity scaled by speed_factor.
	SpeedAsIs SpeedType = 0
	// SpeedNormalized keeps only the direction, so every particle moves speed_factor px per tick.
	SpeedNormalized SpeedType = 1
)

// UniformSize is the byte size of FieldUniform in WGSL.
const UniformSize = 48

// Uniform mirrors the WGSL FieldUniform struct.
type Uniform struct {
	LatticeSize      [2]int32
	LatticePixelSize [2]float32
	CanvasSize       [2]int32
	ProjRatio        [2]float32
	NDCPixel         [2]float32
	SpeedType        SpeedType
}

// NewUniform derives the uniform for l viewed with a vertical fov of fovy radians.
func NewUniform(l Lattice, fovy float32, speed SpeedType) Uniform {
	w, h := float32(l.CanvasWidth), float32(l.CanvasHeight)
	_, sx, sy := core.FullscreenFactor(mgl32.Vec2{w, h}, fovy)
	ppc := float32(l.PixelsPerCell)
	return Uniform{
		LatticeSize:      [2]int32{int32(l.CellsX), int32(l.CellsY)},
		LatticePixelSize: [2]float32{ppc, ppc},
		CanvasSize:       [2]int32{int32(l.CanvasWidth), int32(l.CanvasHeight)},
		ProjRatio:        [2]float32{sx, sy},
		NDCPixel:         [2]float32{sx * 2 / w, sy * 2 / h},
		SpeedType:        speed,
	}
}

func (u Uniform) Bytes() []byte {
	buf := make([]byte, UniformSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(u.LatticeSize[0]))
	le.PutUint32(buf[4:8], uint32(u.LatticeSize[1]))
	le.PutUint32(buf[8:12], math.Float32bits(u.LatticePixelSize[0]))
	le.PutUint32(buf[12:16], math.Float32bits(u.LatticePixelSize[1]))
	le.PutUint32(buf[16:20], uint32(u.CanvasSize[0]))
	le.PutUint32(buf[20:24], uint32(u.CanvasSize[1]))
	le.PutUint32(buf[24:28], math.Float32bits(u.ProjRatio[0]))
	le.PutUint32(buf[28:32], math.Float32bits(u.ProjRatio[1]))
	le.PutUint32(buf[32:36], math.Float32bits(u.NDCPixel[0]))
	le.PutUint32(buf[36:40], math.Float32bits(u.NDCPixel[1]))
	le.PutUint32(buf[40:44], uint32(u.SpeedType))
	// 44:48 padding
	return buf
}
