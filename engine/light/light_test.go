package light

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLightDefaults(t *testing.T) {
	l := NewLight()
	assert.Equal(t, [3]float32{0, -1, 0}, l.Direction())
	assert.Equal(t, [3]float32{1, 1, 1}, l.Color())
	assert.Equal(t, float32(1), l.Intensity())

	data := l.SceneData()
	assert.Equal(t, [4]float32{0, 1, 0, 0}, data.LightDirection)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, data.LightColor)
	assert.Equal(t, [4]float32{0.2, 0.2, 0.2, 1}, data.AmbientLightColor)
}

func TestSceneDataPremultipliesIntensity(t *testing.T) {
	l := NewLight(
		WithDirection(0, 0, -2),
		WithColor(1, 0.5, 0.25),
		WithIntensity(2),
		WithAmbient(0.1, 0.2, 0.3),
	)

	data := l.SceneData()
	assert.Equal(t, [4]float32{0, 0, 1, 0}, data.LightDirection)
	assert.Equal(t, [4]float32{2, 1, 0.5, 1}, data.LightColor)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, data.AmbientLightColor)
}

func TestSetters(t *testing.T) {
	l := NewLight(WithDirection(3, 0, 4))
	dir := l.Direction()
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, dir[:], 1e-6)

	l.SetDirection(0, 0, 0)
	dir = l.Direction()
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8}, dir[:], 1e-6)

	l.SetIntensity(-3)
	assert.Zero(t, l.Intensity())
	assert.Equal(t, [4]float32{0, 0, 0, 1}, l.SceneData().LightColor)

	l.SetColor(0, 1, 0)
	l.SetIntensity(0.5)
	l.SetAmbient(0, 0, 0)
	assert.Equal(t, [4]float32{0, 0.5, 0, 1}, l.SceneData().LightColor)
	assert.Equal(t, [3]float32{0, 0, 0}, l.Ambient())
}
