package camera

import (
	"sync"

	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-batch/common"
)

// Projection selects how the camera maps view space to clip space.
type Projection int

const (
	ProjectionPerspective Projection = iota
	ProjectionOrthographic
)

func (p Projection) String() string {
	if p == ProjectionOrthographic {
		return "orthographic"
	}
	return "perspective"
}

type cameraImpl struct {
	mu *sync.Mutex

	projection Projection

	position [3]float32
	target   [3]float32
	up       [3]float32

	fov        float32
	orthoSize  float32
	near       float32
	far        float32
	pixelWidth  uint32
	pixelHeight uint32

	viewMatrix           [16]float32
	projectionMatrix     [16]float32
	viewProjectionMatrix [16]float32
	viewToWorldMatrix    [16]float32
	clipToWorldMatrix    [16]float32

	controller OrbitController
}

// Camera holds the view and projection state a render pass needs to fill the camera uniform block.
// Position and target come from the camera itself or, when one is attached, from an OrbitController
// each time Update is called.
type Camera interface {
	// Projection returns the projection mode.
	//
	// Returns:
	//   - Projection: perspective or orthographic
	Projection() Projection

	// Position returns the world-space eye position.
	//
	// Returns:
	//   - [3]float32: the eye position
	Position() [3]float32

	// Target returns the world-space look-at point.
	//
	// Returns:
	//   - [3]float32: the look-at point
	Target() [3]float32

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// OrthoSize returns the height of the orthographic view volume in world units.
	//
	// Returns:
	//   - float32: view volume height
	OrthoSize() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// PixelSize returns the size of the render target in pixels.
	//
	// Returns:
	//   - width, height: render target size
	PixelSize() (width, height uint32)

	// Aspect returns width / height of the render target, or 1 for an empty target.
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// ViewMatrix returns the world-to-view matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the view matrix
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the view-to-clip matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the projection matrix
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns the world-to-clip matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the combined view-projection matrix
	ViewProjectionMatrix() [16]float32

	// ClipToWorldMatrix returns the inverse of the view-projection matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the clip-to-world matrix
	ClipToWorldMatrix() [16]float32

	// FrustumCornerDirections returns unit world-space directions from the eye through the four
	// corners of the far plane, ordered top-right, bottom-right, top-left, bottom-left. Only
	// meaningful for perspective cameras; orthographic cameras return zero vectors.
	//
	// Returns:
	//   - [4][3]float32: the corner directions
	FrustumCornerDirections() [4][3]float32

	// Controller returns the attached OrbitController, or nil.
	//
	// Returns:
	//   - OrbitController: the attached controller or nil
	Controller() OrbitController

	// Update pulls position and target from the attached controller and recomputes the matrices.
	// Does nothing when no controller is attached.
	Update()

	// SetPosition sets the eye position and recomputes the matrices.
	SetPosition(x, y, z float32)

	// SetTarget sets the look-at point and recomputes the matrices.
	SetTarget(x, y, z float32)

	// SetUp sets the up vector and recomputes the matrices.
	SetUp(x, y, z float32)

	// SetPerspective switches to a perspective projection.
	//
	// Parameters:
	//   - fov: vertical field of view in radians
	SetPerspective(fov float32)

	// SetOrthographic switches to an orthographic projection.
	//
	// Parameters:
	//   - size: height of the view volume in world units
	SetOrthographic(size float32)

	// SetClipPlanes sets the near and far clipping plane distances.
	SetClipPlanes(near, far float32)

	// SetPixelSize sets the render target size, which also fixes the aspect ratio.
	SetPixelSize(width, height uint32)

	// SetController attaches an OrbitController. Pass nil to detach.
	SetController(ctrl OrbitController)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new perspective Camera at (0, 0, 1) looking at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		position:    [3]float32{0, 0, 1},
		up:          [3]float32{0, 1, 0},
		fov:         45.0 * (math32.Pi / 180.0),
		orthoSize:   10,
		near:        0.1,
		far:         100.0,
		pixelWidth:  1,
		pixelHeight: 1,
	}
	for _, option := range options {
		option(c)
	}
	c.pullController()
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) OrthoSize() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orthoSize
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) PixelSize() (width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pixelWidth, c.pixelHeight
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect()
}

func (c *cameraImpl) aspect() float32 {
	if c.pixelWidth == 0 || c.pixelHeight == 0 {
		return 1
	}
	return float32(c.pixelWidth) / float32(c.pixelHeight)
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) ClipToWorldMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clipToWorldMatrix
}

func (c *cameraImpl) FrustumCornerDirections() [4][3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projection != ProjectionPerspective {
		return [4][3]float32{}
	}
	corners := common.FrustumCorners(c.fov, c.aspect(), c.far)
	return common.FrustumCornerDirections(c.viewToWorldMatrix[:], corners)
}

func (c *cameraImpl) Controller() OrbitController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.pullController()
	c.updateMatrices()
}

func (c *cameraImpl) SetPosition(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(x, y, z float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = [3]float32{x, y, z}
	c.updateMatrices()
}

func (c *cameraImpl) SetPerspective(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = ProjectionPerspective
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetOrthographic(size float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = ProjectionOrthographic
	c.orthoSize = size
	c.updateMatrices()
}

func (c *cameraImpl) SetClipPlanes(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) SetPixelSize(width, height uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pixelWidth = width
	c.pixelHeight = height
	c.updateMatrices()
}

func (c *cameraImpl) SetController(ctrl OrbitController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

// pullController copies position and target from the attached controller.
// Caller must hold the mutex.
func (c *cameraImpl) pullController() {
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.target = c.controller.Target()
}

// updateMatrices recalculates every derived matrix from the current state.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	common.LookAt(c.viewMatrix[:],
		c.position[0], c.position[1], c.position[2],
		c.target[0], c.target[1], c.target[2],
		c.up[0], c.up[1], c.up[2],
	)

	switch c.projection {
	case ProjectionOrthographic:
		common.Orthographic(c.projectionMatrix[:], c.orthoSize*c.aspect(), c.orthoSize, c.near, c.far)
	default:
		common.Perspective(c.projectionMatrix[:], c.fov, c.aspect(), c.near, c.far)
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	common.Invert4(c.viewToWorldMatrix[:], c.viewMatrix[:])
	common.Invert4(c.clipToWorldMatrix[:], c.viewProjectionMatrix[:])
}
