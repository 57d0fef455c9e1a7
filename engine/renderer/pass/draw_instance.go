package pass

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// DrawInstance is one drawable object handed to Submit. The pass reads it and never modifies it.
type DrawInstance struct {
	// Mesh locates the geometry in the shared mesh buffers.
	Mesh *mesh.Handle

	// Texture is bound to the main texture unit when the effective features use texturing or cutout.
	Texture renderer.TextureHandle

	// NormalMap is bound to the normal map unit when the effective features use normal mapping.
	NormalMap renderer.TextureHandle

	// Features are the requested shader features, narrowed by the pass to its enabled and supported set.
	Features shader.FeatureMask

	// Static marks geometry that never moves, selected by Submit's drawStatic flag.
	Static bool

	// LocalToWorld is the column-major model matrix.
	LocalToWorld [16]float32
}

// Stats counts what the last Submit or RenderFullScreen call issued.
type Stats struct {
	// Instances is the number of instances that passed the static/dynamic filter.
	Instances int
	// Skipped is the number of instances filtered out or without a mesh.
	Skipped int
	// Dropped is the number of instances whose shader variant failed to compile.
	Dropped int
	// DrawCalls is the number of draws issued.
	DrawCalls int
	// ShaderBinds is the number of variant binds.
	ShaderBinds int
	// TextureBinds is the number of main texture binds.
	TextureBinds int
	// NormalMapBinds is the number of normal map binds.
	NormalMapBinds int
}
