package shader

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
)

const testVertexSource = `// test vertex stage
//@oxy:block per_object_data
//@oxy:block camera_data

struct VertexOut {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(3) uv: vec2<f32>, @builtin(instance_index) instance: u32) -> VertexOut {
    var out: VertexOut;
    let world = per_object_data.local_to_world[instance] * vec4<f32>(position, 1.0);
    out.position = camera_data.view_projection * world;
#ifdef TEXTURE_ON
    out.uv = uv;
#else
    out.uv = vec2<f32>(0.0, 0.0);
#endif
    return out;
}
`

const testFragmentSource = `// test fragment stage
#ifdef TEXTURE_ON
//@oxy:sampler _MainTexture
#endif

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    var color = vec4<f32>(1.0, 1.0, 1.0, 1.0);
#ifdef TEXTURE_ON
    color = textureSample(_MainTexture, _MainTexture_sampler, uv);
#endif
#ifdef FOG_ON
    color = mix(color, vec4<f32>(0.5, 0.5, 0.5, 1.0), 0.5);
#endif
    return color;
}
`

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"test.vert.wgsl": {Data: []byte(testVertexSource)},
		"test.frag.wgsl": {Data: []byte(testFragmentSource)},
	}
}

var acceptAll = ValidatorFunc(func(Stage, string) error { return nil })

func newTestCache(b renderer.Backend, options ...VariantCacheBuilderOption) VariantCache {
	opts := append([]VariantCacheBuilderOption{WithFS(testFS()), WithValidator(acceptAll)}, options...)
	return NewVariantCache(b, "test", opts...)
}

func TestEffectiveMaskProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for range 500 {
		supported := FeatureMask(rng.Uint32() & 0xffff)
		enabled := FeatureMask(rng.Uint32() & 0xffff)
		requested := FeatureMask(rng.Uint32() & 0xffff)

		c := newTestCache(recorder.NewRecorder(), WithSupportedFeatures(supported), WithEnabledFeatures(enabled))
		want := requested & enabled & supported
		assert.Equal(t, want, c.Effective(requested))
		assert.Equal(t, enabled&supported, c.EnabledFeatures())

		require.NoError(t, c.BindVariant(requested))
		require.Len(t, c.Variants(), 1)
		assert.Equal(t, want, c.Variants()[0].Features)
	}
}

func TestFeatureLayering(t *testing.T) {
	c := newTestCache(recorder.NewRecorder())
	assert.Equal(t, AllFeatures, c.EnabledFeatures())

	c.DisableFeature(FeatureFog | FeatureSpecular)
	assert.Equal(t, FeatureTexture, c.Effective(FeatureTexture|FeatureFog))

	c.SetSupportedFeatures(FeatureFog | FeatureNormalMap)
	assert.Equal(t, FeatureNormalMap, c.EnabledFeatures()&(FeatureNormalMap|FeatureFog))
	assert.Equal(t, FeatureFog|FeatureNormalMap, c.SupportedFeatures())

	c.EnableFeature(FeatureFog)
	assert.Equal(t, FeatureFog, c.Effective(FeatureFog|FeatureTexture))
}

func TestBindVariantCompilesOncePerMask(t *testing.T) {
	rec := recorder.NewRecorder()
	c := newTestCache(rec)

	require.NoError(t, c.BindVariant(FeatureTexture))
	require.NoError(t, c.BindVariant(FeatureTexture))
	assert.Equal(t, 1, c.CompileCount())
	assert.Len(t, rec.Programs(), 1)
	assert.Equal(t, 2, rec.ProgramBinds())

	require.NoError(t, c.BindVariant(FeatureTexture|FeatureFog))
	require.NoError(t, c.BindVariant(FeatureTexture))
	assert.Equal(t, 2, c.CompileCount())
	assert.Equal(t, 4, rec.ProgramBinds())

	// Requests that differ only in bits outside the enabled mask share a variant.
	c.DisableFeature(FeatureSpecular)
	require.NoError(t, c.BindVariant(FeatureTexture|FeatureSpecular))
	assert.Equal(t, 2, c.CompileCount())
}

func TestBindVariantProgramDescriptor(t *testing.T) {
	rec := recorder.NewRecorder()
	c := newTestCache(rec)
	require.NoError(t, c.BindVariant(FeatureTexture))

	desc := rec.Programs()[0]
	assert.Equal(t, "vs_main", desc.VertexEntryPoint)
	assert.Equal(t, "fs_main", desc.FragmentEntryPoint)

	vs := desc.VertexSource
	assert.True(t, strings.HasPrefix(vs, "// test vertex stage\n"))
	assert.Contains(t, vs, "struct CameraData {")
	assert.Contains(t, vs, "@group(0) @binding(0) var<uniform> per_object_data: PerObjectData;")
	assert.Contains(t, vs, "@group(0) @binding(4) var<uniform> camera_data: CameraData;")
	assert.Contains(t, vs, "out.uv = uv;")
	assert.NotContains(t, vs, "vec2<f32>(0.0, 0.0)")
	assert.NotContains(t, vs, "#ifdef")

	fs := desc.FragmentSource
	assert.Contains(t, fs, "@group(1) @binding(0) var _MainTexture: texture_2d<f32>;")
	assert.Contains(t, fs, "@group(1) @binding(1) var _MainTexture_sampler: sampler;")
	assert.NotContains(t, fs, "mix(")

	wantBlocks := map[string]int{"per_object_data": 0, "scene_data": 1, "shadow_data": 2, "voxel_data": 3, "camera_data": 4}
	require.Len(t, desc.UniformBlocks, len(wantBlocks))
	for _, b := range desc.UniformBlocks {
		assert.Equal(t, wantBlocks[b.Name], b.Slot, b.Name)
	}
	wantSamplers := map[string]int{"_MainTexture": 0, "_NormalMap": 1, "_ShadowMapTexture": 2, "_ShadowMask": 3, "_VoxelData": 4}
	require.Len(t, desc.Samplers, len(wantSamplers))
	for _, s := range desc.Samplers {
		assert.Equal(t, wantSamplers[s.Name], s.Unit, s.Name)
	}

	decls := c.Variants()[0].Declarations
	require.Len(t, decls, 3)
	assert.Equal(t, AnnotationTypeSampler, decls[2].Type)
}

func TestBindVariantWithoutTextureSkipsSampler(t *testing.T) {
	rec := recorder.NewRecorder()
	c := newTestCache(rec)
	require.NoError(t, c.BindVariant(FeatureFog))

	desc := rec.Programs()[0]
	assert.NotContains(t, desc.FragmentSource, "_MainTexture")
	assert.Contains(t, desc.FragmentSource, "mix(")
	assert.Contains(t, desc.VertexSource, "vec2<f32>(0.0, 0.0)")
}

func TestBindVariantStageFailureRetries(t *testing.T) {
	rec := recorder.NewRecorder()
	calls := 0
	v := ValidatorFunc(func(stage Stage, source string) error {
		calls++
		if stage == StageFragment && strings.Contains(source, "mix(") {
			return errors.New("error: unknown function 'mix'")
		}
		return nil
	})
	c := newTestCache(rec, WithValidator(v))

	err := c.BindVariant(FeatureFog)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "test", ce.Family)
	assert.Equal(t, StageFragment, ce.Stage)
	assert.Equal(t, FeatureFog, ce.Features)
	assert.Contains(t, ce.Log, "unknown function")
	assert.True(t, IsCompileError(err))

	assert.Empty(t, c.Variants())
	assert.Zero(t, c.CompileCount())
	assert.Zero(t, rec.ProgramBinds())
	assert.Equal(t, 2, calls)

	require.Error(t, c.BindVariant(FeatureFog))
	assert.Equal(t, 4, calls, "a failed mask is compiled again on the next miss")

	require.NoError(t, c.BindVariant(FeatureTexture))
	assert.Len(t, c.Variants(), 1)
}

func TestBindVariantLinkFailure(t *testing.T) {
	rec := recorder.NewRecorder(recorder.WithProgramCheck(func(desc renderer.ProgramDescriptor) error {
		if strings.Contains(desc.Label, "specular") {
			return errors.New("varying mismatch")
		}
		return nil
	}))
	c := newTestCache(rec)

	err := c.BindVariant(FeatureSpecular)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageLink, ce.Stage)
	assert.Equal(t, "varying mismatch", ce.Log)
	assert.Empty(t, c.Variants())
}

func TestBindVariantMissingSource(t *testing.T) {
	c := NewVariantCache(recorder.NewRecorder(), "missing", WithFS(testFS()), WithValidator(acceptAll))

	err := c.BindVariant(FeatureTexture)
	var le *AssetLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing.vert.wgsl", le.Path)
	assert.False(t, IsCompileError(err))
}

func TestBindVariantMissingEntryPoint(t *testing.T) {
	fsys := testFS()
	fsys["test.frag.wgsl"] = &fstest.MapFile{Data: []byte("// no entry\nfn helper() {}\n")}
	c := NewVariantCache(recorder.NewRecorder(), "test", WithFS(fsys), WithValidator(acceptAll))

	err := c.BindVariant(0)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestRelease(t *testing.T) {
	rec := recorder.NewRecorder()
	c := newTestCache(rec)
	require.NoError(t, c.BindVariant(FeatureTexture))
	require.NoError(t, c.BindVariant(0))

	c.Release()
	assert.Empty(t, c.Variants())
}

func TestNagaValidatorRejectsInvalidSource(t *testing.T) {
	err := NewNagaValidator().Validate(StageVertex, "fn broken( {")
	assert.Error(t, err)
}
