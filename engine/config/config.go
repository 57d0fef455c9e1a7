// Package config loads the viewer configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "config.toml"

const (
	defaultTitle           = "oxy-batch"
	defaultWidth           = 1280
	defaultHeight          = 720
	defaultPresentMode     = "vsync"
	defaultMSAA            = 1
	defaultUniformVersions = 64
	defaultShaderDir       = "assets/shaders"
	defaultFramesPerSample = 200
	defaultGrid            = 16
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the decoded configuration file.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Profiler ProfilerConfig `toml:"profiler"`
	Passes   []PassConfig   `toml:"pass"`
	Scene    SceneConfig    `toml:"scene"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type RendererConfig struct {
	// PresentMode is "vsync" or "uncapped".
	PresentMode     string `toml:"present_mode"`
	MSAA            int    `toml:"msaa"`
	ForceSoftware   bool   `toml:"force_software"`
	UniformVersions int    `toml:"uniform_versions"`
}

type ShaderConfig struct {
	Directory string `toml:"directory"`
}

type ProfilerConfig struct {
	FramesPerSample int  `toml:"frames_per_sample"`
	Log             bool `toml:"log"`
}

// PassConfig describes one stage of the frame.
type PassConfig struct {
	Name string `toml:"name"`
	// Shader is the shader family; defaults to Name.
	Shader string `toml:"shader"`
	// Clear lists "color" and/or "depth". Nil clears both, an empty list clears nothing.
	Clear       []string  `toml:"clear"`
	ClearColor  []float32 `toml:"clear_color"`
	DrawStatic  *bool     `toml:"draw_static"`
	DrawDynamic *bool     `toml:"draw_dynamic"`
	FullScreen  bool      `toml:"full_screen"`
	// Disable lists feature names removed from the enabled mask.
	Disable []string `toml:"disable"`
	// Supported lists the feature ceiling; empty means every feature.
	Supported []string `toml:"supported"`
}

type SceneConfig struct {
	Meshes []string `toml:"meshes"`
	// Grid is the side length of the instance grid the viewer draws.
	Grid int `toml:"grid"`
	// Sort orders the grid's instances by mesh and features so they batch into long runs.
	Sort bool `toml:"sort"`
}

// Load reads and validates a configuration file.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - *Config: the configuration with defaults applied
//   - error: an error if the file cannot be read, decoded or validated
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration. Unknown keys are rejected.
//
// Parameters:
//   - r: the TOML document
//
// Returns:
//   - *Config: the configuration with defaults applied
//   - error: a decode or validation error
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists: one forward pass drawing every
// instance.
//
// Returns:
//   - *Config: the default configuration
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Window.Title = common.Coalesce(c.Window.Title, defaultTitle)
	c.Window.Width = common.Coalesce(c.Window.Width, defaultWidth)
	c.Window.Height = common.Coalesce(c.Window.Height, defaultHeight)
	c.Renderer.PresentMode = common.Coalesce(strings.ToLower(c.Renderer.PresentMode), defaultPresentMode)
	c.Renderer.MSAA = common.Coalesce(c.Renderer.MSAA, defaultMSAA)
	c.Renderer.UniformVersions = common.Coalesce(c.Renderer.UniformVersions, defaultUniformVersions)
	c.Shaders.Directory = common.Coalesce(c.Shaders.Directory, defaultShaderDir)
	c.Profiler.FramesPerSample = common.Coalesce(c.Profiler.FramesPerSample, defaultFramesPerSample)
	c.Scene.Grid = common.Coalesce(c.Scene.Grid, defaultGrid)

	if len(c.Passes) == 0 {
		c.Passes = []PassConfig{{Name: "forward"}}
	}
	for i := range c.Passes {
		c.Passes[i].Shader = common.Coalesce(c.Passes[i].Shader, c.Passes[i].Name)
	}
}

// Validate checks every value that defaults cannot repair.
//
// Returns:
//   - error: the first problem found, wrapping ErrInvalid
func (c *Config) Validate() error {
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	if _, err := c.Renderer.Present(); err != nil {
		return err
	}
	if c.Renderer.MSAA != int(renderer.MSAAOff) && c.Renderer.MSAA != int(renderer.MSAA4x) {
		return fmt.Errorf("%w: msaa must be 1 or 4, got %d", ErrInvalid, c.Renderer.MSAA)
	}
	if c.Renderer.UniformVersions < 1 {
		return fmt.Errorf("%w: uniform_versions must be positive", ErrInvalid)
	}
	if c.Profiler.FramesPerSample < 1 {
		return fmt.Errorf("%w: frames_per_sample must be positive", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Passes))
	for i, p := range c.Passes {
		if p.Name == "" {
			return fmt.Errorf("%w: pass %d has no name", ErrInvalid, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pass %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true

		if _, err := p.ClearFlags(); err != nil {
			return err
		}
		if len(p.ClearColor) != 0 && len(p.ClearColor) != 4 {
			return fmt.Errorf("%w: pass %q: clear_color needs 4 components", ErrInvalid, p.Name)
		}
		if _, err := p.DisabledFeatures(); err != nil {
			return fmt.Errorf("%w: pass %q: %v", ErrInvalid, p.Name, err)
		}
		if _, err := p.SupportedFeatures(); err != nil {
			return fmt.Errorf("%w: pass %q: %v", ErrInvalid, p.Name, err)
		}
	}
	return nil
}

// Present maps the configured present mode name.
//
// Returns:
//   - renderer.PresentMode: the present mode
//   - error: an error for an unknown name
func (r RendererConfig) Present() (renderer.PresentMode, error) {
	switch r.PresentMode {
	case "vsync":
		return renderer.PresentModeVSync, nil
	case "uncapped":
		return renderer.PresentModeUncapped, nil
	}
	return 0, fmt.Errorf("%w: present_mode %q", ErrInvalid, r.PresentMode)
}

// ClearFlags maps the clear list. A nil list clears color and depth.
//
// Returns:
//   - renderer.ClearFlags: the flags
//   - error: an error for an unknown aspect
func (p PassConfig) ClearFlags() (renderer.ClearFlags, error) {
	if p.Clear == nil {
		return renderer.ClearColor | renderer.ClearDepth, nil
	}
	var flags renderer.ClearFlags
	for _, name := range p.Clear {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "color":
			flags |= renderer.ClearColor
		case "depth":
			flags |= renderer.ClearDepth
		default:
			return 0, fmt.Errorf("%w: pass %q: unknown clear aspect %q", ErrInvalid, p.Name, name)
		}
	}
	return flags, nil
}

// ClearColorValue returns the clear color, opaque black when unset.
func (p PassConfig) ClearColorValue() [4]float32 {
	if len(p.ClearColor) != 4 {
		return [4]float32{0, 0, 0, 1}
	}
	return [4]float32(p.ClearColor)
}

// DrawsStatic reports whether the pass draws static instances. Defaults to true.
func (p PassConfig) DrawsStatic() bool {
	return p.DrawStatic == nil || *p.DrawStatic
}

// DrawsDynamic reports whether the pass draws dynamic instances. Defaults to true.
func (p PassConfig) DrawsDynamic() bool {
	return p.DrawDynamic == nil || *p.DrawDynamic
}

// DisabledFeatures maps the disable list to a mask.
func (p PassConfig) DisabledFeatures() (shader.FeatureMask, error) {
	return shader.ParseFeatureMask(p.Disable)
}

// SupportedFeatures maps the supported list to a mask. An empty list supports every feature.
func (p PassConfig) SupportedFeatures() (shader.FeatureMask, error) {
	if len(p.Supported) == 0 {
		return shader.AllFeatures, nil
	}
	return shader.ParseFeatureMask(p.Supported)
}
