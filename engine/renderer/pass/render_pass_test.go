package pass

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

const (
	maskA = shader.FeatureTexture
	maskB = shader.FeatureTexture | shader.FeatureFog
)

var testShaders = fstest.MapFS{
	"test.vert.wgsl": {Data: []byte("// vertex\n//@oxy:block per_object_data\n@vertex fn vs_main() {}\n")},
	"test.frag.wgsl": {Data: []byte("// fragment\n#ifdef FOG_ON\nfog\n#endif\n@fragment fn fs_main() {}\n")},
}

type fixture struct {
	rec     recorder.Recorder
	store   mesh.Store
	buffers uniform.ConstantBufferSet
	pass    RenderPass
	cam     camera.Camera
	meshes  []*mesh.Handle
}

func newFixture(t *testing.T, validator shader.Validator, options ...RenderPassBuilderOption) *fixture {
	t.Helper()
	if validator == nil {
		validator = shader.ValidatorFunc(func(shader.Stage, string) error { return nil })
	}
	f := &fixture{rec: recorder.NewRecorder()}
	f.store = mesh.NewStore(f.rec)
	for _, vertices := range []int{4, 6, 8} {
		h, err := f.store.RegisterMesh(mesh.MeshData{
			Positions: make([][3]float32, vertices),
			Indices:   []uint16{0, 1, 2, 0, 2, 3},
		})
		require.NoError(t, err)
		f.meshes = append(f.meshes, h)
	}
	require.NoError(t, f.store.Upload())

	var err error
	f.buffers, err = uniform.NewConstantBufferSet(f.rec)
	require.NoError(t, err)

	opts := append([]RenderPassBuilderOption{
		WithVariantCacheOptions(shader.WithFS(testShaders), shader.WithValidator(validator)),
	}, options...)
	f.pass = NewRenderPass("test", f.rec, f.buffers, f.store, opts...)
	f.cam = camera.NewCamera(camera.WithPixelSize(640, 480))
	return f
}

func (f *fixture) instanceCounts() []int {
	var out []int
	for _, d := range f.rec.Draws() {
		out = append(out, d.InstanceCount)
	}
	return out
}

func translated(x float32) [16]float32 {
	return [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, x, 0, 0, 1}
}

func float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestSubmitMaskRuns(t *testing.T) {
	f := newFixture(t, nil)
	masks := []shader.FeatureMask{maskA, maskA, maskB, maskA, maskA}
	instances := make([]DrawInstance, len(masks))
	for i, m := range masks {
		instances[i] = DrawInstance{Mesh: f.meshes[0], Texture: 7, Features: m, LocalToWorld: translated(float32(i))}
	}

	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))

	assert.Equal(t, []int{2, 1, 2}, f.instanceCounts())
	stats := f.pass.Stats()
	assert.Equal(t, 3, stats.DrawCalls)
	assert.Equal(t, 3, stats.ShaderBinds)
	assert.Equal(t, 1, stats.TextureBinds, "texture never changes")
	assert.Equal(t, 2, f.pass.Shaders().CompileCount())

	// Draws read the transforms of their own run, in submission order.
	draws := f.rec.Draws()
	assert.Equal(t, float32(3), float32At(draws[2].Snapshot, 48))
	assert.Equal(t, float32(4), float32At(draws[2].Snapshot, 64+48))
	assert.Equal(t, float32(2), float32At(draws[1].Snapshot, 48))
}

func TestSubmitDrawArguments(t *testing.T) {
	f := newFixture(t, nil)
	m := f.meshes[2]
	require.NoError(t, f.pass.Submit(f.cam, []DrawInstance{{Mesh: m, Features: maskA}}, true, true))

	require.Len(t, f.rec.Draws(), 1)
	d := f.rec.Draws()[0]
	assert.True(t, d.Instanced)
	assert.Equal(t, 6, d.IndexCount)
	assert.Equal(t, m.FirstIndex(), d.FirstIndex)
	assert.Equal(t, m.BaseVertex, d.BaseVertex)
	assert.Equal(t, 1, d.InstanceCount)
}

func TestSubmitDrawCountEqualsRuns(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	masks := []shader.FeatureMask{maskA, maskB, shader.FeatureNormalMap, 0}
	textures := []renderer.TextureHandle{0, 1, 2}

	for trial := range 50 {
		f := newFixture(t, nil)
		drawStatic := rng.IntN(2) == 0
		drawDynamic := rng.IntN(2) == 0 || !drawStatic

		instances := make([]DrawInstance, rng.IntN(60))
		for i := range instances {
			instances[i] = DrawInstance{
				Mesh:      f.meshes[rng.IntN(len(f.meshes))],
				Texture:   textures[rng.IntN(len(textures))],
				NormalMap: textures[rng.IntN(len(textures))],
				Features:  masks[rng.IntN(len(masks))],
				Static:    rng.IntN(2) == 0,
			}
		}

		runs := 0
		var prev *DrawInstance
		for i := range instances {
			inst := &instances[i]
			if (inst.Static && !drawStatic) || (!inst.Static && !drawDynamic) {
				continue
			}
			if prev == nil || inst.Features != prev.Features || inst.Texture != prev.Texture ||
				inst.NormalMap != prev.NormalMap || inst.Mesh != prev.Mesh {
				runs++
			}
			prev = inst
		}

		require.NoError(t, f.pass.Submit(f.cam, instances, drawStatic, drawDynamic))
		assert.Len(t, f.rec.Draws(), runs, "trial %d", trial)
		assert.Equal(t, runs, f.pass.Stats().DrawCalls, "trial %d", trial)
	}
}

func TestSubmitTrailingRunIsFlushed(t *testing.T) {
	f := newFixture(t, nil)
	instances := []DrawInstance{
		{Mesh: f.meshes[0], Features: maskA},
		{Mesh: f.meshes[1], Features: maskA},
		{Mesh: f.meshes[1], Features: maskA},
		{Mesh: f.meshes[1], Features: maskA},
	}
	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))
	assert.Equal(t, []int{1, 3}, f.instanceCounts())
	assert.Equal(t, f.meshes[1].BaseVertex, f.rec.Draws()[1].BaseVertex)
}

func TestTextureRebindGating(t *testing.T) {
	f := newFixture(t, nil)

	// Texture changes on every instance but the features never sample it.
	untextured := []DrawInstance{
		{Mesh: f.meshes[0], Texture: 1, Features: shader.FeatureFog},
		{Mesh: f.meshes[0], Texture: 2, Features: shader.FeatureFog},
		{Mesh: f.meshes[0], Texture: 3, Features: shader.FeatureFog},
	}
	require.NoError(t, f.pass.Submit(f.cam, untextured, true, true))
	assert.Zero(t, f.rec.TextureBinds(uniform.UnitMainTexture))
	assert.Zero(t, f.pass.Stats().TextureBinds)
	assert.Len(t, f.rec.Draws(), 3, "a texture change still ends the run")

	textured := []DrawInstance{
		{Mesh: f.meshes[0], Texture: 1, Features: shader.FeatureCutout},
		{Mesh: f.meshes[1], Texture: 1, Features: shader.FeatureCutout},
		{Mesh: f.meshes[1], Texture: 2, Features: shader.FeatureCutout},
	}
	require.NoError(t, f.pass.Submit(f.cam, textured, true, true))
	assert.Equal(t, 2, f.rec.TextureBinds(uniform.UnitMainTexture))
	assert.Equal(t, 2, f.pass.Stats().TextureBinds)
	assert.Equal(t, 1, f.pass.Stats().ShaderBinds)
	assert.Equal(t, renderer.TextureHandle(2), f.rec.Draws()[5].Textures[uniform.UnitMainTexture])
}

func TestNormalMapRebindGating(t *testing.T) {
	f := newFixture(t, nil)
	instances := []DrawInstance{
		{Mesh: f.meshes[0], NormalMap: 1, Features: maskA},
		{Mesh: f.meshes[0], NormalMap: 2, Features: maskA},
		{Mesh: f.meshes[0], NormalMap: 2, Features: maskA | shader.FeatureNormalMap},
		{Mesh: f.meshes[0], NormalMap: 3, Features: maskA | shader.FeatureNormalMap},
	}
	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))
	assert.Equal(t, 2, f.rec.TextureBinds(uniform.UnitNormalMap))
	assert.Equal(t, 2, f.pass.Stats().NormalMapBinds)
	assert.Equal(t, 1, f.pass.Stats().TextureBinds)
}

func TestSubmitSplitsAtInstanceCapacity(t *testing.T) {
	f := newFixture(t, nil)
	instances := make([]DrawInstance, 2*uniform.MaxInstances+88)
	for i := range instances {
		instances[i] = DrawInstance{Mesh: f.meshes[0], Features: maskA, LocalToWorld: translated(float32(i))}
	}
	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))

	assert.Equal(t, []int{256, 256, 88}, f.instanceCounts())
	assert.Equal(t, 1, f.pass.Stats().ShaderBinds)
	assert.Equal(t, float32(256), float32At(f.rec.Draws()[1].Snapshot, 48))
	assert.Equal(t, float32(512+87), float32At(f.rec.Draws()[2].Snapshot, 87*64+48))
}

func TestSubmitStaticDynamicFilter(t *testing.T) {
	instances := []DrawInstance{
		{Features: maskA, Static: true},
		{Features: maskA, Static: false},
		{Features: maskA, Static: true},
		{Mesh: nil, Features: maskA},
	}

	tests := []struct {
		name          string
		static, dyn   bool
		wantInstances int
		wantDraws     []int
	}{
		{name: "static only", static: true, wantInstances: 2, wantDraws: []int{2}},
		{name: "dynamic only", dyn: true, wantInstances: 1, wantDraws: []int{1}},
		{name: "both", static: true, dyn: true, wantInstances: 3, wantDraws: []int{3}},
		{name: "neither", wantInstances: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			list := append([]DrawInstance(nil), instances...)
			for i := range 3 {
				list[i].Mesh = f.meshes[0]
			}
			require.NoError(t, f.pass.Submit(f.cam, list, tt.static, tt.dyn))
			assert.Equal(t, tt.wantInstances, f.pass.Stats().Instances)
			assert.Equal(t, len(list)-tt.wantInstances, f.pass.Stats().Skipped)
			assert.Equal(t, tt.wantDraws, f.instanceCounts())
		})
	}
}

func TestSubmitClearAndCamera(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.pass.Submit(f.cam, nil, true, true))

	require.Len(t, f.rec.Clears(), 1)
	assert.Equal(t, renderer.ClearColor|renderer.ClearDepth, f.rec.Clears()[0].Flags)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, f.rec.Clears()[0].Color)
	assert.Empty(t, f.rec.Draws())

	data := f.rec.BufferData(f.buffers.Buffer(uniform.SlotCamera))
	assert.Equal(t, float32(640), float32At(data, 0))
	assert.Equal(t, float32(480), float32At(data, 4))

	f.pass.SetClearFlags(0)
	require.NoError(t, f.pass.Submit(f.cam, nil, true, true))
	assert.Len(t, f.rec.Clears(), 1)

	f.pass.SetClearFlags(renderer.ClearDepth)
	f.pass.SetClearColor([4]float32{1, 0, 0, 1})
	require.NoError(t, f.pass.Submit(f.cam, nil, true, true))
	assert.Equal(t, recorder.ClearCall{Flags: renderer.ClearDepth, Color: [4]float32{1, 0, 0, 1}}, f.rec.Clears()[1])
}

func TestSubmitDropsBatchesOfFailedVariant(t *testing.T) {
	failFog := shader.ValidatorFunc(func(_ shader.Stage, src string) error {
		if strings.Contains(src, "fog") {
			return errors.New("fog is broken")
		}
		return nil
	})
	f := newFixture(t, failFog)
	instances := []DrawInstance{
		{Mesh: f.meshes[0], Features: maskA},
		{Mesh: f.meshes[0], Features: maskB},
		{Mesh: f.meshes[0], Features: maskB},
		{Mesh: f.meshes[0], Features: maskA},
	}
	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))

	assert.Equal(t, []int{1, 1}, f.instanceCounts())
	assert.Equal(t, 2, f.pass.Stats().Dropped)
	assert.Len(t, f.pass.Shaders().Variants(), 1)
}

func TestFeatureLayeringNarrowsRuns(t *testing.T) {
	f := newFixture(t, nil)
	f.pass.DisableFeature(shader.FeatureFog)
	assert.Equal(t, shader.AllFeatures&^shader.FeatureFog, f.pass.EnabledFeatures())

	instances := []DrawInstance{
		{Mesh: f.meshes[0], Features: maskA},
		{Mesh: f.meshes[0], Features: maskB},
	}
	require.NoError(t, f.pass.Submit(f.cam, instances, true, true))
	assert.Equal(t, []int{2}, f.instanceCounts(), "masks that differ only in disabled bits share a run")

	f.pass.EnableFeature(shader.FeatureFog)
	f.pass.SetSupportedFeatures(shader.FeatureFog)
	assert.Equal(t, shader.FeatureFog, f.pass.EnabledFeatures())
}

func TestRenderFullScreen(t *testing.T) {
	f := newFixture(t, nil)
	f.pass.DisableFeature(shader.FeatureSpecular)

	require.NoError(t, f.pass.RenderFullScreen())

	require.Len(t, f.rec.Draws(), 1)
	d := f.rec.Draws()[0]
	quad := f.store.FullScreenQuad()
	assert.False(t, d.Instanced)
	assert.Equal(t, 6, d.IndexCount)
	assert.Equal(t, quad.FirstIndex(), d.FirstIndex)
	assert.Equal(t, quad.BaseVertex, d.BaseVertex)

	variants := f.pass.Shaders().Variants()
	require.Len(t, variants, 1)
	assert.Equal(t, shader.AllFeatures&^shader.FeatureSpecular, variants[0].Features)
}

func TestShaderFamilyOption(t *testing.T) {
	rec := recorder.NewRecorder()
	store := mesh.NewStore(rec)
	buffers, err := uniform.NewConstantBufferSet(rec)
	require.NoError(t, err)

	p := NewRenderPass("opaque", rec, buffers, store, WithShaderFamily("test"), WithClearFlags(0),
		WithVariantCacheOptions(shader.WithFS(testShaders), shader.WithValidator(shader.ValidatorFunc(func(shader.Stage, string) error { return nil }))))
	assert.Equal(t, "opaque", p.Name())
	assert.Equal(t, "test", p.Shaders().Family())
	assert.Equal(t, renderer.ClearFlags(0), p.ClearFlags())
}

func TestCameraRecord(t *testing.T) {
	persp := camera.NewCamera(camera.WithPosition(1, 2, 3), camera.WithClipPlanes(0.5, 80), camera.WithPixelSize(320, 200))
	d := CameraRecord(persp)
	assert.Equal(t, [4]float32{1, 2, 3, 1}, d.CameraPosition)
	assert.Equal(t, [4]float32{0.5, 80, 0, 0}, d.CameraClipPlanes)
	assert.Equal(t, persp.ViewProjectionMatrix(), d.ViewProjection)
	for _, c := range d.FrustumCorners {
		assert.InDelta(t, 1, math.Sqrt(float64(c[0]*c[0]+c[1]*c[1]+c[2]*c[2])), 1e-5)
		assert.Zero(t, c[3])
	}

	ortho := camera.NewCamera(camera.WithOrthographic(5))
	d = CameraRecord(ortho)
	assert.Equal(t, [4][4]float32{}, d.FrustumCorners)
	assert.Equal(t, [4]float32{}, d.CameraClipPlanes)
}
