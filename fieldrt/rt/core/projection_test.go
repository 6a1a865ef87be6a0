package core

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestFullscreenFactor_Landscape(t *testing.T) {
	tz, sx, sy := FullscreenFactor(mgl32.Vec2{800, 600}, DefaultFovy)

	assert.InDelta(t, 800.0/600.0, sx, 1e-6)
	assert.Equal(t, float32(1), sy)
	assert.InDelta(t, -1/math32.Tan(DefaultFovy/2), tz, 1e-5)
}

func TestFullscreenFactor_Portrait(t *testing.T) {
	tz, sx, sy := FullscreenFactor(mgl32.Vec2{600, 900}, DefaultFovy)

	assert.Equal(t, float32(1), sx)
	assert.InDelta(t, 1.5, sy, 1e-6)
	assert.InDelta(t, -1.5/math32.Tan(DefaultFovy/2), tz, 1e-5)
}

func TestFullscreenFactor_Square(t *testing.T) {
	_, sx, sy := FullscreenFactor(mgl32.Vec2{512, 512}, DefaultFovy)
	assert.Equal(t, float32(1), sx)
	assert.Equal(t, float32(1), sy)
}

func TestPerspectiveFullscreenMVP_CoversViewport(t *testing.T) {
	for _, vp := range []mgl32.Vec2{{800, 600}, {600, 900}, {1024, 1024}} {
		mvp := PerspectiveFullscreenMVP(vp, DefaultFovy)
		for _, corner := range []mgl32.Vec4{{1, 1, 0, 1}, {-1, -1, 0, 1}, {1, -1, 0, 1}} {
			clip := mvp.Mul4x1(corner)
			ndc := clip.Vec3().Mul(1 / clip.W())
			assert.InDelta(t, corner.X(), ndc.X(), 1e-4, "viewport %v", vp)
			assert.InDelta(t, corner.Y(), ndc.Y(), 1e-4, "viewport %v", vp)
		}
	}
}
