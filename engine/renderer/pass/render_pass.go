package pass

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

// textureFeatures are the features that sample the main texture.
const textureFeatures = shader.FeatureTexture | shader.FeatureCutout

// DefaultClearFlags is the clear a pass performs unless configured otherwise.
const DefaultClearFlags = renderer.ClearColor | renderer.ClearDepth

type renderPass struct {
	name    string
	backend renderer.Backend
	buffers uniform.ConstantBufferSet
	store   mesh.Store
	shaders shader.VariantCache

	family       string
	cacheOptions []shader.VariantCacheBuilderOption

	clearFlags renderer.ClearFlags
	clearColor [4]float32

	// batch holds the transforms of the pending draw. Reused across submits.
	batch [][16]float32
	stats Stats
}

// RenderPass turns an ordered list of instances into the fewest instanced draws that keep every
// instance's state, without reordering. Consecutive instances that share effective features,
// texture, normal map and mesh form one draw of up to uniform.MaxInstances instances.
type RenderPass interface {
	// Name returns the pass name.
	Name() string

	// Shaders returns the variant cache of the pass's shader family.
	Shaders() shader.VariantCache

	// Prepare uploads the camera block and performs the configured clear. Submit calls it; passes
	// that only call RenderFullScreen call it themselves first.
	//
	// Parameters:
	//   - cam: the camera to upload
	//
	// Returns:
	//   - error: an error if the camera block could not be written
	Prepare(cam camera.Camera) error

	// Submit prepares the pass and draws the instances selected by drawStatic and drawDynamic.
	// A batch whose shader variant fails to compile is skipped and counted in Stats.Dropped.
	//
	// Parameters:
	//   - cam: the camera the instances are viewed through
	//   - instances: the instances in draw order
	//   - drawStatic: draw instances with Static set
	//   - drawDynamic: draw instances with Static cleared
	//
	// Returns:
	//   - error: an error if a uniform block could not be written
	Submit(cam camera.Camera, instances []DrawInstance, drawStatic, drawDynamic bool) error

	// RenderFullScreen binds the variant of every enabled and supported feature and draws the
	// mesh store's full-screen quad without instancing.
	//
	// Returns:
	//   - error: the variant compile error, in which case nothing is drawn
	RenderFullScreen() error

	// Stats returns the counters of the last Submit or RenderFullScreen call.
	Stats() Stats

	// SetClearFlags selects which aspects Prepare clears. Zero disables clearing.
	SetClearFlags(flags renderer.ClearFlags)

	// ClearFlags returns the configured clear flags.
	ClearFlags() renderer.ClearFlags

	// SetClearColor sets the color used by color clears.
	SetClearColor(color [4]float32)

	// ClearColor returns the configured clear color.
	ClearColor() [4]float32

	// EnableFeature sets bits in the enabled mask of the pass's shader family.
	EnableFeature(f shader.FeatureMask)

	// DisableFeature clears bits in the enabled mask of the pass's shader family.
	DisableFeature(f shader.FeatureMask)

	// SetSupportedFeatures replaces the supported ceiling of the pass's shader family.
	SetSupportedFeatures(f shader.FeatureMask)

	// EnabledFeatures returns the enabled and supported features.
	EnabledFeatures() shader.FeatureMask

	// Release frees the compiled shader variants.
	Release()
}

var _ RenderPass = &renderPass{}

// NewRenderPass creates a pass drawing with the shader family of the same name.
//
// Parameters:
//   - name: the pass name, also the default shader family
//   - backend: the backend draws are issued on
//   - buffers: the constant buffers the camera and instance transforms are written to
//   - store: the uploaded mesh store every instance's mesh lives in
//   - options: variadic list of RenderPassBuilderOption functions to configure the pass
//
// Returns:
//   - RenderPass: the newly created pass
func NewRenderPass(name string, backend renderer.Backend, buffers uniform.ConstantBufferSet, store mesh.Store, options ...RenderPassBuilderOption) RenderPass {
	p := &renderPass{
		name:       name,
		backend:    backend,
		buffers:    buffers,
		store:      store,
		family:     name,
		clearFlags: DefaultClearFlags,
		clearColor: [4]float32{0, 0, 0, 1},
		batch:      make([][16]float32, 0, uniform.MaxInstances),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.shaders == nil {
		p.shaders = shader.NewVariantCache(backend, p.family, p.cacheOptions...)
	}
	return p
}

func (p *renderPass) Name() string {
	return p.name
}

func (p *renderPass) Shaders() shader.VariantCache {
	return p.shaders
}

func (p *renderPass) Prepare(cam camera.Camera) error {
	if err := p.buffers.UpdateCamera(CameraRecord(cam)); err != nil {
		return fmt.Errorf("pass %s: %w", p.name, err)
	}
	if p.clearFlags != 0 {
		p.backend.Clear(p.clearFlags, p.clearColor)
	}
	return nil
}

func (p *renderPass) Submit(cam camera.Camera, instances []DrawInstance, drawStatic, drawDynamic bool) error {
	p.stats = Stats{}
	if err := p.Prepare(cam); err != nil {
		return err
	}

	var (
		prevMask      shader.FeatureMask
		prevTexture   renderer.TextureHandle
		prevNormalMap renderer.TextureHandle
		prevMesh      *mesh.Handle
		started       bool
		usable        bool

		// Textures bound by this submit. The units' state from earlier passes is unknown.
		boundTexture, boundNormalMap renderer.TextureHandle
		textureBound, normalMapBound bool
	)
	p.batch = p.batch[:0]

	for i := range instances {
		inst := &instances[i]
		if inst.Mesh == nil || (inst.Static && !drawStatic) || (!inst.Static && !drawDynamic) {
			p.stats.Skipped++
			continue
		}
		p.stats.Instances++

		mask := p.shaders.Effective(inst.Features)
		changed := !started || mask != prevMask || inst.Texture != prevTexture ||
			inst.NormalMap != prevNormalMap || inst.Mesh != prevMesh

		if changed {
			if err := p.flush(prevMesh, usable); err != nil {
				return err
			}

			if !started || mask != prevMask {
				usable = p.bindVariant(mask)
			}
			if mask.Any(textureFeatures) && (!textureBound || inst.Texture != boundTexture) {
				p.backend.BindTexture(uniform.UnitMainTexture, inst.Texture)
				boundTexture, textureBound = inst.Texture, true
				p.stats.TextureBinds++
			}
			if mask.Has(shader.FeatureNormalMap) && (!normalMapBound || inst.NormalMap != boundNormalMap) {
				p.backend.BindTexture(uniform.UnitNormalMap, inst.NormalMap)
				boundNormalMap, normalMapBound = inst.NormalMap, true
				p.stats.NormalMapBinds++
			}
		} else if len(p.batch) == uniform.MaxInstances {
			if err := p.flush(prevMesh, usable); err != nil {
				return err
			}
		}

		p.batch = append(p.batch, inst.LocalToWorld)
		prevMask, prevTexture, prevNormalMap, prevMesh = mask, inst.Texture, inst.NormalMap, inst.Mesh
		started = true
	}

	return p.flush(prevMesh, usable)
}

// bindVariant binds the program for mask and reports whether batches may draw with it.
func (p *renderPass) bindVariant(mask shader.FeatureMask) bool {
	p.stats.ShaderBinds++
	if err := p.shaders.BindVariant(mask); err != nil {
		log.Printf("[RenderPass] %s: dropping batches with features [%s]: %v", p.name, mask, err)
		return false
	}
	return true
}

// flush issues one instanced draw of m for the pending transforms and empties the batch.
func (p *renderPass) flush(m *mesh.Handle, usable bool) error {
	transforms := p.batch
	n := len(transforms)
	if n == 0 {
		return nil
	}
	p.batch = p.batch[:0]
	if !usable {
		p.stats.Dropped += n
		return nil
	}
	if err := p.buffers.UpdatePerObject(transforms); err != nil {
		return fmt.Errorf("pass %s: %w", p.name, err)
	}
	p.backend.DrawIndexedInstanced(m.IndexCount, m.FirstIndex(), n, m.BaseVertex)
	p.stats.DrawCalls++
	return nil
}

func (p *renderPass) RenderFullScreen() error {
	p.stats = Stats{ShaderBinds: 1}
	if err := p.shaders.BindVariant(shader.AllFeatures); err != nil {
		return fmt.Errorf("pass %s full screen: %w", p.name, err)
	}
	quad := p.store.FullScreenQuad()
	p.backend.DrawIndexed(quad.IndexCount, quad.FirstIndex(), quad.BaseVertex)
	p.stats.DrawCalls = 1
	return nil
}

func (p *renderPass) Stats() Stats {
	return p.stats
}

func (p *renderPass) SetClearFlags(flags renderer.ClearFlags) {
	p.clearFlags = flags
}

func (p *renderPass) ClearFlags() renderer.ClearFlags {
	return p.clearFlags
}

func (p *renderPass) SetClearColor(color [4]float32) {
	p.clearColor = color
}

func (p *renderPass) ClearColor() [4]float32 {
	return p.clearColor
}

func (p *renderPass) EnableFeature(f shader.FeatureMask) {
	p.shaders.EnableFeature(f)
}

func (p *renderPass) DisableFeature(f shader.FeatureMask) {
	p.shaders.DisableFeature(f)
}

func (p *renderPass) SetSupportedFeatures(f shader.FeatureMask) {
	p.shaders.SetSupportedFeatures(f)
}

func (p *renderPass) EnabledFeatures() shader.FeatureMask {
	return p.shaders.EnabledFeatures()
}

func (p *renderPass) Release() {
	p.shaders.Release()
}
