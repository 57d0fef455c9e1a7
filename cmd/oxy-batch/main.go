// Command oxy-batch renders an instance grid through the batching renderer, either in a window on
// WebGPU or headless on the recording backend, and logs GPU pass timings and batching statistics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"slices"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine"
	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/config"
	"github.com/Carmen-Shannon/oxy-batch/engine/light"
	"github.com/Carmen-Shannon/oxy-batch/engine/mesh"
	"github.com/Carmen-Shannon/oxy-batch/engine/profiler"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/uniform"
	"github.com/Carmen-Shannon/oxy-batch/engine/window"
)

func main() {
	configPath := flag.String("config", config.DefaultFile, "configuration file")
	headless := flag.Bool("headless", false, "record commands instead of opening a window")
	frames := flag.Int("frames", 0, "frames to render before exiting (0 renders until the window closes)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
	if err := run(cfg, *headless, *frames); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

// loadConfig falls back to the defaults when the default file is missing.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultFile {
		log.Printf("[Main] %s not found, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

func run(cfg *config.Config, headless bool, frames int) error {
	var (
		backend renderer.Backend
		gpu     renderer.Renderer
		win     window.Window
	)
	if headless {
		if frames <= 0 {
			frames = 2 * cfg.Profiler.FramesPerSample
		}
		backend = recorder.NewRecorder()
	} else {
		mode, err := cfg.Renderer.Present()
		if err != nil {
			return err
		}
		win = window.NewWindow(
			window.WithTitle(cfg.Window.Title),
			window.WithSize(cfg.Window.Width, cfg.Window.Height),
		)
		gpu = renderer.NewRenderer(win,
			renderer.WithPresentMode(mode),
			renderer.WithMSAA(renderer.MSAASampleCount(cfg.Renderer.MSAA)),
			renderer.WithForceSoftwareRenderer(cfg.Renderer.ForceSoftware),
			renderer.WithUniformVersions(cfg.Renderer.UniformVersions),
		)
		defer gpu.Release()
		backend = gpu
	}

	store := mesh.NewStore(backend)
	defer store.Release()
	meshes, err := mesh.NewLoader(store).LoadAll(cfg.Scene.Meshes)
	if err != nil {
		log.Printf("[Main] %v", err)
	}
	meshes = slices.DeleteFunc(meshes, func(h *mesh.Handle) bool { return h == nil })
	if len(meshes) == 0 {
		return errors.New("no meshes loaded")
	}
	if err := store.Upload(); err != nil {
		return err
	}
	log.Printf("[Main] %d meshes, %d vertices, %d indices uploaded", store.MeshCount(), store.VertexCount(), store.IndexCount())

	buffers, err := uniform.NewConstantBufferSet(backend)
	if err != nil {
		return err
	}
	defer buffers.Release()
	sun := light.NewLight(
		light.WithDirection(-0.4, -1, -0.3),
		light.WithColor(1, 0.95, 0.85),
		light.WithAmbient(0.2, 0.22, 0.25),
	)
	if err := buffers.UpdateScene(sun.SceneData()); err != nil {
		return err
	}

	texture, err := backend.CreateTexture("Checker", common.Checkerboard(256, 32,
		[4]byte{230, 230, 230, 255}, [4]byte{90, 110, 140, 255}))
	if err != nil {
		return err
	}
	defer backend.ReleaseTexture(texture)
	normalMap, err := backend.CreateTexture("Flat Normal Map", common.FlatNormalMap(4))
	if err != nil {
		return err
	}
	defer backend.ReleaseTexture(normalMap)

	stages, err := buildStages(cfg, backend, buffers, store)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range stages {
			s.Pass.Release()
		}
	}()

	profilerOptions := []profiler.GPUProfilerBuilderOption{profiler.WithFramesPerSample(cfg.Profiler.FramesPerSample)}
	if cfg.Profiler.Log {
		profilerOptions = append(profilerOptions, profiler.WithLogging())
	}
	prof := profiler.NewGPUProfiler(backend, profilerOptions...)
	defer prof.Release()

	scene := newGridScene(meshes, cfg.Scene.Grid, texture, normalMap, cfg.Scene.Sort)
	static, dynamic := scene.counts()
	log.Printf("[Main] scene: %d static and %d dynamic instances", static, dynamic)

	extent := float32(cfg.Scene.Grid) * gridSpacing
	orbit := camera.NewOrbitController(
		camera.WithRadius(extent),
		camera.WithElevation(0.6),
		camera.WithRadiusBounds(2, 4*extent+10),
		camera.WithZoomSpeed(extent/20+0.5),
	)
	width, height := cfg.Window.Width, cfg.Window.Height
	if win != nil {
		width, height = win.Width(), win.Height()
	}
	cam := camera.NewCamera(
		camera.WithFov(float32(60.0*math.Pi/180.0)),
		camera.WithClipPlanes(0.1, 8*extent+100),
		camera.WithPixelSize(uint32(width), uint32(height)),
		camera.WithController(orbit),
	)

	samples := 0
	source := func(float32) (camera.Camera, []pass.DrawInstance) {
		cam.Update()
		if win != nil && prof.TotalSamples() != samples {
			samples = prof.TotalSamples()
			win.SetTitle(fmt.Sprintf("%s | %.1f FPS | %.2f ms", cfg.Window.Title, prof.CurrentFrameRate(), prof.CurrentFrameTime()))
		}
		return cam, scene.instances
	}

	options := []engine.EngineBuilderOption{
		engine.WithProfiler(prof),
		engine.WithFrameCount(frames),
		engine.WithTickRate(60),
	}
	for _, s := range stages {
		options = append(options, engine.WithStage(s))
	}
	if win != nil {
		options = append(options, engine.WithWindow(win))
		win.SetResizeCallback(func(w, h int) {
			gpu.Resize(w, h)
			cam.SetPixelSize(uint32(w), uint32(h))
		})
		win.SetScrollCallback(orbit.Zoom)
		win.SetKeyDownCallback(keyHandler(orbit, scene, stages))
	}

	eng := engine.NewEngine(backend, source, options...)
	eng.SetTickCallback(scene.update)
	eng.Run()

	logSummary(eng)
	return nil
}

// buildStages creates one render pass per configured pass, in frame order.
func buildStages(cfg *config.Config, backend renderer.Backend, buffers uniform.ConstantBufferSet, store mesh.Store) ([]engine.Stage, error) {
	shaderFS := os.DirFS(cfg.Shaders.Directory)
	validator := shader.NewNagaValidator()

	var stages []engine.Stage
	for _, pc := range cfg.Passes {
		if pc.FullScreen && (pc.DrawStatic != nil || pc.DrawDynamic != nil) {
			log.Printf("[Main] pass %s: draw_static/draw_dynamic ignored for full-screen passes", pc.Name)
		}
		flags, err := pc.ClearFlags()
		if err != nil {
			return nil, err
		}
		disabled, err := pc.DisabledFeatures()
		if err != nil {
			return nil, err
		}
		supported, err := pc.SupportedFeatures()
		if err != nil {
			return nil, err
		}

		p := pass.NewRenderPass(pc.Name, backend, buffers, store,
			pass.WithShaderFamily(pc.Shader),
			pass.WithClearFlags(flags),
			pass.WithClearColor(pc.ClearColorValue()),
			pass.WithVariantCacheOptions(
				shader.WithFS(shaderFS),
				shader.WithValidator(validator),
				shader.WithSupportedFeatures(supported),
				shader.WithEnabledFeatures(shader.AllFeatures&^disabled),
			),
		)
		stages = append(stages, engine.Stage{
			Pass:        p,
			DrawStatic:  pc.DrawsStatic(),
			DrawDynamic: pc.DrawsDynamic(),
			FullScreen:  pc.FullScreen,
		})
	}
	return stages, nil
}

// keyHandler maps the viewer controls: arrows or WASD orbit, Q/E zoom, F/T/N toggle fog, texturing
// and normal mapping on the instance passes, P or space pauses the animation.
func keyHandler(orbit camera.OrbitController, scene *gridScene, stages []engine.Stage) func(uint32) {
	toggle := func(f shader.FeatureMask) {
		for _, s := range stages {
			if s.FullScreen {
				continue
			}
			if s.Pass.EnabledFeatures().Has(f) {
				s.Pass.DisableFeature(f)
			} else {
				s.Pass.EnableFeature(f)
			}
			log.Printf("[Main] pass %s features: [%s]", s.Pass.Name(), s.Pass.EnabledFeatures())
		}
	}
	return func(key uint32) {
		switch key {
		case common.KeyLeft, common.KeyA:
			orbit.OrbitLeft()
		case common.KeyRight, common.KeyD:
			orbit.OrbitRight()
		case common.KeyUp, common.KeyW:
			orbit.OrbitUp()
		case common.KeyDown, common.KeyS:
			orbit.OrbitDown()
		case common.KeyQ:
			orbit.Zoom(-1)
		case common.KeyE:
			orbit.Zoom(1)
		case common.KeyF:
			toggle(shader.FeatureFog)
		case common.KeyT:
			toggle(shader.FeatureTexture)
		case common.KeyN:
			toggle(shader.FeatureNormalMap)
		case common.KeyP, common.KeySpace:
			scene.paused.Store(!scene.paused.Load())
		}
	}
}

func logSummary(eng engine.Engine) {
	prof := eng.Profiler()
	log.Printf("[Main] %d frames, %d samples, %.3f ms/frame", eng.Frames(), prof.TotalSamples(), prof.CurrentFrameTime())
	for i, s := range eng.Stages() {
		st := s.Pass.Stats()
		log.Printf("[Main] %-10s gpu %.3f ms | %d instances (%d skipped, %d dropped) | %d draws | %d shader binds | %d variants",
			s.Pass.Name(), prof.PassAverageTime(i), st.Instances, st.Skipped, st.Dropped, st.DrawCalls, st.ShaderBinds,
			s.Pass.Shaders().CompileCount())
	}
}
