package field

import (
	"errors"
	"fmt"

	"github.com/gekko3d/fieldsim/fieldrt/rt/gpu"
)

const (
	// PixelsPerCell is the default screen pixels covered by one lattice cell per axis.
	PixelsPerCell = 4
	// TileSize matches @workgroup_size(16, 16) of the field-setting kernel.
	TileSize = 16
	// CellStride is the byte size of one vec4<f32> cell record.
	CellStride = 16
)

var ErrInvalidGeometry = errors.New("field: invalid lattice geometry")

// Lattice is the coarse grid the field is sampled on. Cell counts round up so
// the lattice always covers the whole canvas.
type Lattice struct {
	CanvasWidth, CanvasHeight uint32
	PixelsPerCell             uint32
	CellsX, CellsY            uint32
}

func NewLattice(canvasWidth, canvasHeight, pixelsPerCell uint32) (Lattice, error) {
	if pixelsPerCell == 0 {
		return Lattice{}, fmt.Errorf("%w: zero pixels per cell", ErrInvalidGeometry)
	}
	if canvasWidth == 0 || canvasHeight == 0 {
		return Lattice{}, fmt.Errorf("%w: canvas %dx%d", ErrInvalidGeometry, canvasWidth, canvasHeight)
	}
	return Lattice{
		CanvasWidth:   canvasWidth,
		CanvasHeight:  canvasHeight,
		PixelsPerCell: pixelsPerCell,
		CellsX:        (canvasWidth + pixelsPerCell - 1) / pixelsPerCell,
		CellsY:        (canvasHeight + pixelsPerCell - 1) / pixelsPerCell,
	}, nil
}

func (l Lattice) CellCount() uint64 {
	return uint64(l.CellsX) * uint64(l.CellsY)
}

// BufferSize is the exact byte size of the field buffer.
func (l Lattice) BufferSize() uint64 {
	return l.CellCount() * CellStride
}

// WorkgroupCount is the field-setting dispatch covering every cell.
func (l Lattice) WorkgroupCount() gpu.WorkgroupCount {
	return gpu.WorkgroupCount2D(l.CellsX, l.CellsY, TileSize, TileSize)
}

func (l Lattice) String() string {
	return fmt.Sprintf("%dx%d cells (%dx%d px, %d px/cell)",
		l.CellsX, l.CellsY, l.CanvasWidth, l.CanvasHeight, l.PixelsPerCell)
}
