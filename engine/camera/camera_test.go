package camera

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/common"
)

const eps = 1e-4

func assertVec3(t *testing.T, want, got [3]float32) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "component %d of %v", i, got)
	}
}

func TestPerspectiveProjectsTargetToCenter(t *testing.T) {
	c := NewCamera(WithPosition(0, 2, 10), WithLookAt(0, 2, 0), WithClipPlanes(0.5, 50), WithPixelSize(1280, 720))

	assert.Equal(t, ProjectionPerspective, c.Projection())
	assert.InDelta(t, 1280.0/720.0, c.Aspect(), eps)

	vp := c.ViewProjectionMatrix()
	p := common.TransformPoint(vp[:], [3]float32{0, 2, 0})
	assert.InDelta(t, 0, p[0], eps)
	assert.InDelta(t, 0, p[1], eps)
	assert.True(t, p[2] > 0 && p[2] < 1, "depth %f inside clip range", p[2])

	near := common.TransformPoint(vp[:], [3]float32{0, 2, 9.5})
	assert.InDelta(t, 0, near[2], eps)
	far := common.TransformPoint(vp[:], [3]float32{0, 2, -40})
	assert.InDelta(t, 1, far[2], eps)
}

func TestClipToWorldInvertsViewProjection(t *testing.T) {
	c := NewCamera(WithPosition(3, 4, 5), WithLookAt(-1, 0, 2), WithPixelSize(800, 600))
	vp := c.ViewProjectionMatrix()
	inv := c.ClipToWorldMatrix()

	world := [3]float32{0.5, 1, -2}
	clip := common.TransformPoint(vp[:], world)
	back := common.TransformPoint(inv[:], clip)
	for i := range world {
		assert.InDelta(t, world[i], back[i], 1e-3)
	}
}

func TestFrustumCornerDirections(t *testing.T) {
	c := NewCamera(WithPosition(0, 0, 0), WithLookAt(0, 0, -1), WithFov(math32.Pi/2), WithPixelSize(100, 100))

	s := 1 / math32.Sqrt(3)
	dirs := c.FrustumCornerDirections()
	assertVec3(t, [3]float32{s, s, -s}, dirs[common.FrustumTopRight])
	assertVec3(t, [3]float32{s, -s, -s}, dirs[common.FrustumBottomRight])
	assertVec3(t, [3]float32{-s, s, -s}, dirs[common.FrustumTopLeft])
	assertVec3(t, [3]float32{-s, -s, -s}, dirs[common.FrustumBottomLeft])

	// Looking down +X turns the frustum with the view.
	c.SetTarget(1, 0, 0)
	dirs = c.FrustumCornerDirections()
	assertVec3(t, [3]float32{s, s, s}, dirs[common.FrustumTopRight])
}

func TestOrthographic(t *testing.T) {
	c := NewCamera(WithPosition(0, 0, 10), WithOrthographic(4), WithPixelSize(200, 100), WithClipPlanes(1, 21))
	assert.Equal(t, ProjectionOrthographic, c.Projection())
	assert.Equal(t, [4][3]float32{}, c.FrustumCornerDirections())

	vp := c.ViewProjectionMatrix()
	p := common.TransformPoint(vp[:], [3]float32{4, 2, 0})
	assert.InDelta(t, 1, p[0], eps, "width is size × aspect")
	assert.InDelta(t, 1, p[1], eps)
	assert.InDelta(t, 0.45, p[2], eps)

	c.SetPerspective(math32.Pi / 3)
	assert.Equal(t, ProjectionPerspective, c.Projection())
	assert.InDelta(t, math32.Pi/3, c.Fov(), eps)
}

func TestControllerDrivesCamera(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(10), WithElevation(0), WithTarget(1, 0, 0))
	c := NewCamera(WithController(ctrl))
	assertVec3(t, [3]float32{1, 0, 10}, c.Position())
	require.Same(t, ctrl, c.Controller())

	ctrl.Orbit(math32.Pi/2, 0)
	assertVec3(t, [3]float32{1, 0, 10}, c.Position()) // camera only follows on Update
	c.Update()
	assertVec3(t, [3]float32{11, 0, 0}, c.Position())
	assertVec3(t, [3]float32{1, 0, 0}, c.Target())
}

func TestOrbitControllerClamps(t *testing.T) {
	ctrl := NewOrbitController(WithRadiusBounds(2, 20), WithRadius(50), WithElevationBounds(0, 1), WithOrbitSpeed(0.75))
	assert.InDelta(t, 20, ctrl.Radius(), eps)

	ctrl.OrbitUp()
	ctrl.OrbitUp()
	assert.InDelta(t, 1, ctrl.Elevation(), eps)
	ctrl.OrbitDown()
	ctrl.OrbitDown()
	assert.InDelta(t, 0, ctrl.Elevation(), eps)

	ctrl.OrbitRight()
	ctrl.OrbitRight()
	ctrl.OrbitLeft()
	assert.InDelta(t, 0.75, ctrl.Azimuth(), eps)

	ctrl.Zoom(100)
	assert.InDelta(t, 2, ctrl.Radius(), eps)
	ctrl.SetRadius(5)
	p := ctrl.Position()
	assert.InDelta(t, 5, math32.Sqrt(p[0]*p[0]+p[1]*p[1]+p[2]*p[2]), eps)
}
