package engine

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/profiler"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
)

var testShaders = fstest.MapFS{
	"lit.vert.wgsl": {Data: []byte("//@oxy:block per_object_data\n@vertex fn vs_main() {}\n")},
	"lit.frag.wgsl": {Data: []byte("@fragment fn fs_main() {}\n")},
}

type harness struct {
	rec     recorder.Recorder
	store   mesh.Store
	buffers uniform.ConstantBufferSet
	cube    *mesh.Handle
	cam     camera.Camera
	sources int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{rec: recorder.NewRecorder()}
	h.store = mesh.NewStore(h.rec)
	cube, err := h.store.RegisterMesh(mesh.MeshData{
		Positions: make([][3]float32, 4),
		Indices:   []uint16{0, 1, 2, 0, 2, 3},
	})
	require.NoError(t, err)
	h.cube = cube
	require.NoError(t, h.store.Upload())
	h.buffers, err = uniform.NewConstantBufferSet(h.rec)
	require.NoError(t, err)
	h.cam = camera.NewCamera(camera.WithPixelSize(320, 240))
	return h
}

func (h *harness) pass(name string, validator shader.Validator, options ...pass.RenderPassBuilderOption) pass.RenderPass {
	if validator == nil {
		validator = shader.ValidatorFunc(func(shader.Stage, string) error { return nil })
	}
	opts := append([]pass.RenderPassBuilderOption{
		pass.WithShaderFamily("lit"),
		pass.WithVariantCacheOptions(shader.WithFS(testShaders), shader.WithValidator(validator)),
	}, options...)
	return pass.NewRenderPass(name, h.rec, h.buffers, h.store, opts...)
}

// source returns two static and three dynamic cubes.
func (h *harness) source(float32) (camera.Camera, []pass.DrawInstance) {
	h.sources++
	instances := make([]pass.DrawInstance, 5)
	for i := range instances {
		instances[i] = pass.DrawInstance{Mesh: h.cube, Static: i < 2}
	}
	return h.cam, instances
}

func (h *harness) ops(keep ...recorder.Op) []recorder.Op {
	var out []recorder.Op
	for _, c := range h.rec.Commands() {
		for _, k := range keep {
			if c.Op == k {
				out = append(out, c.Op)
				break
			}
		}
	}
	return out
}

func TestRenderFrameRunsStagesInOrder(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.rec, h.source,
		WithStage(Stage{Pass: h.pass("opaque", nil), DrawDynamic: true}),
		WithStage(Stage{Pass: h.pass("post", nil, pass.WithClearFlags(0)), FullScreen: true}),
	)

	require.NoError(t, e.RenderFrame(0.016))

	assert.Equal(t, 1, h.sources)
	assert.Equal(t, 1, e.Frames())
	assert.Equal(t, 1, h.rec.Frames())

	draws := h.rec.Draws()
	require.Len(t, draws, 2)
	assert.True(t, draws[0].Instanced)
	assert.Equal(t, 3, draws[0].InstanceCount, "static cubes are filtered out")
	assert.False(t, draws[1].Instanced)

	assert.Equal(t, []recorder.Op{
		recorder.OpBeginFrame,
		recorder.OpBeginQuery, recorder.OpClear, recorder.OpDrawInstanced, recorder.OpEndQuery,
		recorder.OpBeginQuery, recorder.OpDraw, recorder.OpEndQuery,
		recorder.OpEndFrame,
	}, h.ops(recorder.OpBeginFrame, recorder.OpEndFrame, recorder.OpBeginQuery, recorder.OpEndQuery,
		recorder.OpClear, recorder.OpDraw, recorder.OpDrawInstanced))

	p := e.Profiler()
	require.Equal(t, 2, p.PassCount())
	assert.Equal(t, "opaque", p.PassName(0))
	assert.Equal(t, "post", p.PassName(1))
}

func TestAddStage(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.rec, h.source)
	e.AddStage(Stage{Pass: h.pass("shadow", nil), DrawStatic: true})

	require.NoError(t, e.RenderFrame(0))
	require.Len(t, h.rec.Draws(), 1)
	assert.Equal(t, 2, h.rec.Draws()[0].InstanceCount)
	require.Len(t, e.Stages(), 1)
	assert.Equal(t, "shadow", e.Stages()[0].Pass.Name())
	assert.Equal(t, "shadow", e.Profiler().PassName(0))
}

func TestFailingStageDoesNotStopFrame(t *testing.T) {
	h := newHarness(t)
	broken := shader.ValidatorFunc(func(shader.Stage, string) error { return errors.New("bad shader") })
	e := NewEngine(h.rec, h.source,
		WithStage(Stage{Pass: h.pass("post", broken), FullScreen: true}),
		WithStage(Stage{Pass: h.pass("opaque", nil), DrawStatic: true, DrawDynamic: true}),
	)

	err := e.RenderFrame(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "post")

	require.Len(t, h.rec.Draws(), 1)
	assert.Equal(t, 5, h.rec.Draws()[0].InstanceCount)
	assert.Equal(t, 1, h.rec.Frames(), "frame is still ended")
}

func TestRenderFrameErrors(t *testing.T) {
	h := newHarness(t)

	err := NewEngine(h.rec, nil).RenderFrame(0)
	assert.ErrorIs(t, err, ErrNoFrameSource)

	require.NoError(t, h.rec.BeginFrame())
	e := NewEngine(h.rec, h.source, WithStage(Stage{Pass: h.pass("opaque", nil), DrawDynamic: true}))
	err = e.RenderFrame(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin frame")
	assert.Zero(t, e.Frames())
	assert.Empty(t, h.rec.Draws())
}

func TestRunHeadlessStopsAtFrameCount(t *testing.T) {
	h := newHarness(t)
	p := profiler.NewGPUProfiler(h.rec, profiler.WithFramesPerSample(2))
	e := NewEngine(h.rec, h.source,
		WithStage(Stage{Pass: h.pass("opaque", nil), DrawStatic: true, DrawDynamic: true}),
		WithProfiler(p),
		WithFrameCount(5),
		WithTickRate(1000),
	)

	e.SetTickCallback(func(float32) {})
	e.Run()

	assert.Equal(t, 5, e.Frames())
	assert.Equal(t, 5, h.rec.Frames())
	assert.Equal(t, 5, h.sources)
	assert.Same(t, p, e.Profiler())
	assert.Equal(t, 2, p.TotalSamples())
	assert.Len(t, h.rec.Draws(), 5)
	assert.Equal(t, renderer.ClearColor|renderer.ClearDepth, h.rec.Clears()[0].Flags)
}

func TestQuitBeforeRun(t *testing.T) {
	h := newHarness(t)
	e := NewEngine(h.rec, h.source)
	e.Quit()
	e.Quit()
	e.Run()
	assert.Zero(t, e.Frames())
}
