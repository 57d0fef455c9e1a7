// Package light describes the directional light that shades the scene.
package light

import "github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	direction [3]float32
	color     [3]float32
	intensity float32
	ambient   [3]float32
}

// Light defines the interface for the single directional light of a scene.
//
// A directional light has no position, only a direction, and affects every fragment
// uniformly. The light is turned into the scene uniform block with SceneData and
// uploaded through a ConstantBufferSet whenever it changes.
type Light interface {
	// Direction returns the normalized direction the light travels in.
	//
	// Returns:
	//   - [3]float32: normalized direction as (x, y, z)
	Direction() [3]float32

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - [3]float32: color as (r, g, b)
	Color() [3]float32

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// Ambient returns the RGB ambient term added to every lit fragment.
	//
	// Returns:
	//   - [3]float32: ambient color as (r, g, b)
	Ambient() [3]float32

	// SetDirection sets the direction the light travels in. The direction is normalized;
	// a zero vector leaves the current direction unchanged.
	//
	// Parameters:
	//   - x: the x direction component
	//   - y: the y direction component
	//   - z: the z direction component
	SetDirection(x, y, z float32)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - r: red component
	//   - g: green component
	//   - b: blue component
	SetColor(r, g, b float32)

	// SetIntensity sets the scalar intensity multiplier. Negative values clamp to zero.
	//
	// Parameters:
	//   - intensity: the new intensity
	SetIntensity(intensity float32)

	// SetAmbient sets the RGB ambient term.
	//
	// Parameters:
	//   - r: red component
	//   - g: green component
	//   - b: blue component
	SetAmbient(r, g, b float32)

	// SceneData builds the scene uniform block for this light. The block stores the
	// direction towards the light and the color premultiplied by the intensity.
	//
	// Returns:
	//   - uniform.SceneData: the scene block
	SceneData() uniform.SceneData
}

var _ Light = &lightImpl{}

// NewLight creates a new directional Light with the given options applied.
// Defaults: pointing straight down, white, intensity 1, a dim grey ambient term.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		direction: [3]float32{0, -1, 0},
		color:     [3]float32{1, 1, 1},
		intensity: 1.0,
		ambient:   [3]float32{0.2, 0.2, 0.2},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Direction() [3]float32 {
	return l.direction
}

func (l *lightImpl) Color() [3]float32 {
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	return l.intensity
}

func (l *lightImpl) Ambient() [3]float32 {
	return l.ambient
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	if d, ok := normalize3(x, y, z); ok {
		l.direction = d
	}
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.color = [3]float32{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.intensity = max(intensity, 0)
}

func (l *lightImpl) SetAmbient(r, g, b float32) {
	l.ambient = [3]float32{r, g, b}
}

func (l *lightImpl) SceneData() uniform.SceneData {
	d, c, a := l.direction, l.color, l.ambient
	return uniform.SceneData{
		AmbientLightColor: [4]float32{a[0], a[1], a[2], 1},
		LightColor:        [4]float32{c[0] * l.intensity, c[1] * l.intensity, c[2] * l.intensity, 1},
		LightDirection:    [4]float32{-d[0], -d[1], -d[2], 0},
	}
}
