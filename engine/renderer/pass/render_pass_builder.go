package pass

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// RenderPassBuilderOption is a functional option applied to a render pass during construction via NewRenderPass.
type RenderPassBuilderOption func(*renderPass)

// WithShaderFamily draws with a shader family other than the pass name.
//
// Parameters:
//   - family: the shader family name
//
// Returns:
//   - RenderPassBuilderOption: a function that applies the shader family option to a render pass
func WithShaderFamily(family string) RenderPassBuilderOption {
	return func(p *renderPass) {
		p.family = family
	}
}

// WithVariantCacheOptions passes options to the variant cache the pass creates.
//
// Parameters:
//   - options: variant cache options such as shader.WithFS
//
// Returns:
//   - RenderPassBuilderOption: a function that applies the variant cache options to a render pass
func WithVariantCacheOptions(options ...shader.VariantCacheBuilderOption) RenderPassBuilderOption {
	return func(p *renderPass) {
		p.cacheOptions = append(p.cacheOptions, options...)
	}
}

// WithVariantCache shares an existing variant cache instead of creating one.
//
// Parameters:
//   - cache: the cache to draw with
//
// Returns:
//   - RenderPassBuilderOption: a function that applies the variant cache to a render pass
func WithVariantCache(cache shader.VariantCache) RenderPassBuilderOption {
	return func(p *renderPass) {
		p.shaders = cache
	}
}

// WithClearFlags sets the initial clear flags. Defaults to DefaultClearFlags.
//
// Parameters:
//   - flags: the aspects to clear, zero for none
//
// Returns:
//   - RenderPassBuilderOption: a function that applies the clear flags to a render pass
func WithClearFlags(flags renderer.ClearFlags) RenderPassBuilderOption {
	return func(p *renderPass) {
		p.clearFlags = flags
	}
}

// WithClearColor sets the initial clear color. Defaults to opaque black.
//
// Parameters:
//   - color: RGBA clear color
//
// Returns:
//   - RenderPassBuilderOption: a function that applies the clear color to a render pass
func WithClearColor(color [4]float32) RenderPassBuilderOption {
	return func(p *renderPass) {
		p.clearColor = color
	}
}
