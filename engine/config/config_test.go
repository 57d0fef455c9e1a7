package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

const sample = `
[window]
title = "bench"
width = 800

[renderer]
present_mode = "Uncapped"
msaa = 4

[profiler]
frames_per_sample = 50
log = true

[[pass]]
name = "shadow"
shader = "depth"
clear = ["depth"]
draw_dynamic = false
supported = ["texture", "cutout"]

[[pass]]
name = "forward"
clear_color = [0.1, 0.2, 0.3, 1.0]
disable = ["fog", "DEBUG_DEPTH_TEXTURE"]

[[pass]]
name = "post"
clear = []
full_screen = true

[scene]
meshes = ["assets/meshes/cube.mesh"]
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, WindowConfig{Title: "bench", Width: 800, Height: defaultHeight}, cfg.Window)
	mode, err := cfg.Renderer.Present()
	require.NoError(t, err)
	assert.Equal(t, renderer.PresentModeUncapped, mode)
	assert.Equal(t, 4, cfg.Renderer.MSAA)
	assert.Equal(t, defaultUniformVersions, cfg.Renderer.UniformVersions)
	assert.Equal(t, defaultShaderDir, cfg.Shaders.Directory)
	assert.Equal(t, ProfilerConfig{FramesPerSample: 50, Log: true}, cfg.Profiler)
	assert.Equal(t, SceneConfig{Meshes: []string{"assets/meshes/cube.mesh"}, Grid: defaultGrid}, cfg.Scene)

	require.Len(t, cfg.Passes, 3)
	shadow, forward, post := cfg.Passes[0], cfg.Passes[1], cfg.Passes[2]

	assert.Equal(t, "depth", shadow.Shader)
	flags, err := shadow.ClearFlags()
	require.NoError(t, err)
	assert.Equal(t, renderer.ClearDepth, flags)
	assert.True(t, shadow.DrawsStatic())
	assert.False(t, shadow.DrawsDynamic())
	supported, err := shadow.SupportedFeatures()
	require.NoError(t, err)
	assert.Equal(t, shader.FeatureTexture|shader.FeatureCutout, supported)

	assert.Equal(t, "forward", forward.Shader)
	flags, err = forward.ClearFlags()
	require.NoError(t, err)
	assert.Equal(t, renderer.ClearColor|renderer.ClearDepth, flags)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, forward.ClearColorValue())
	disabled, err := forward.DisabledFeatures()
	require.NoError(t, err)
	assert.Equal(t, shader.FeatureFog|shader.FeatureDebugDepthTexture, disabled)
	supported, err = forward.SupportedFeatures()
	require.NoError(t, err)
	assert.Equal(t, shader.AllFeatures, supported)

	flags, err = post.ClearFlags()
	require.NoError(t, err)
	assert.Zero(t, flags)
	assert.True(t, post.FullScreen)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, post.ClearColorValue())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Passes, 1)
	assert.Equal(t, "forward", cfg.Passes[0].Shader)
	assert.Equal(t, defaultFramesPerSample, cfg.Profiler.FramesPerSample)
	assert.Equal(t, "vsync", cfg.Renderer.PresentMode)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "unknown key", doc: "[window]\nfullscreen = true\n", want: "fullscreen"},
		{name: "present mode", doc: "[renderer]\npresent_mode = \"mailbox\"\n", want: "present_mode"},
		{name: "msaa", doc: "[renderer]\nmsaa = 2\n", want: "msaa"},
		{name: "duplicate pass", doc: "[[pass]]\nname = \"a\"\n[[pass]]\nname = \"a\"\n", want: "duplicate pass"},
		{name: "unnamed pass", doc: "[[pass]]\nshader = \"a\"\n", want: "no name"},
		{name: "clear aspect", doc: "[[pass]]\nname = \"a\"\nclear = [\"stencil\"]\n", want: "stencil"},
		{name: "clear color", doc: "[[pass]]\nname = \"a\"\nclear_color = [1.0]\n", want: "clear_color"},
		{name: "feature", doc: "[[pass]]\nname = \"a\"\ndisable = [\"bloom\"]\n", want: "bloom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Parse(strings.NewReader("[window\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.Window.Title)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
