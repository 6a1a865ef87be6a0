package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultFovy is the vertical field of view the field view is framed with.
var DefaultFovy = mgl32.DegToRad(75)

// FullscreenFactor returns the camera z translation and the x/y scale that make
// a unit quad fill a viewport of the given size under a perspective of fovy
// radians. The longer axis is scaled by the aspect ratio, the shorter keeps 1.
func FullscreenFactor(viewport mgl32.Vec2, fovy float32) (translateZ, sx, sy float32) {
	sx, sy = 1, 1
	ratio := float32(1)
	if viewport.Y() > viewport.X() {
		ratio = viewport.Y() / viewport.X()
		sy = ratio
	} else {
		sx = viewport.X() / viewport.Y()
	}
	translateZ = -ratio / math32.Tan(fovy/2)
	return translateZ, sx, sy
}

// PerspectiveFullscreenMVP builds the matrix that maps the [-1,1] quad onto the
// whole viewport.
func PerspectiveFullscreenMVP(viewport mgl32.Vec2, fovy float32) mgl32.Mat4 {
	tz, sx, sy := FullscreenFactor(viewport, fovy)
	aspect := viewport.X() / viewport.Y()
	proj := mgl32.Perspective(fovy, aspect, 0.1, 100)
	view := mgl32.Translate3D(0, 0, tz)
	model := mgl32.Scale3D(sx, sy, 1)
	return proj.Mul4(view).Mul4(model)
}
