package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-batch/engine/camera"
	"github.com/Carmen-Shannon/oxy-batch/engine/profiler"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-batch/engine/window"
)

// ErrNoFrameSource is returned by RenderFrame when the engine has nothing to draw.
var ErrNoFrameSource = errors.New("engine has no frame source")

// Stage is one render pass of the frame and the instances it draws.
type Stage struct {
	Pass pass.RenderPass

	// DrawStatic and DrawDynamic select instances by their Static flag. Ignored by full-screen stages.
	DrawStatic  bool
	DrawDynamic bool

	// FullScreen stages update the camera, clear and draw the full-screen quad instead of instances.
	FullScreen bool
}

// FrameSource supplies the camera and instance list for the next frame.
type FrameSource func(deltaTime float32) (camera.Camera, []pass.DrawInstance)

type stage struct {
	Stage
	profilerIndex int
}

type engine struct {
	mu *sync.Mutex

	backend  renderer.Backend
	profiler profiler.GPUProfiler
	window   window.Window
	source   FrameSource
	stages   []stage

	tickRateChannel chan time.Duration
	engineTickRate  time.Duration
	tickCallback    func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        int           // frames rendered before Run returns; 0 = unbounded
	frames           int
	lastRender       time.Time
	lastErr          string

	running     bool
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once
}

// Engine drives the frame loop: every frame it asks the frame source for a camera and instance
// list, then runs each stage between BeginFrame and EndFrame while the GPU profiler times it.
type Engine interface {
	// AddStage appends a stage to the frame and registers it with the profiler.
	//
	// Parameters:
	//   - s: the stage to run after every stage already added
	AddStage(s Stage)

	// Stages returns the stages in frame order.
	//
	// Returns:
	//   - []Stage: a copy of the stage list
	Stages() []Stage

	// Profiler returns the GPU profiler timing the stages.
	//
	// Returns:
	//   - profiler.GPUProfiler: the profiler
	Profiler() profiler.GPUProfiler

	// RenderFrame renders one frame. A failing stage does not stop the stages after it.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous frame, handed to the frame source
	//
	// Returns:
	//   - error: the first error raised by the frame or any stage
	RenderFrame(deltaTime float32) error

	// Frames returns the number of frames rendered.
	Frames() int

	// SetTickRate sets the rate the tick callback runs at.
	//
	// Parameters:
	//   - fps: ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick. Ticks never overlap a frame.
	//
	// Parameters:
	//   - callback: receives the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the render rate. Pass 0 to uncap.
	//
	// Parameters:
	//   - fps: maximum frames per second
	SetRenderFrameLimit(fps float64)

	// Run renders until Quit is called, the window closes or the frame count is reached.
	// Without a window the frames are rendered back to back on the calling goroutine.
	Run()

	// Quit stops Run. Safe to call multiple times.
	Quit()
}

// NewEngine creates an engine rendering through backend.
//
// Parameters:
//   - backend: the backend every stage records into
//   - source: supplies the camera and instances of each frame
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(backend renderer.Backend, source FrameSource, options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		backend:         backend,
		source:          source,
		tickRateChannel: make(chan time.Duration, 1),
		engineTickRate:  time.Second / 60,
		quitChannel:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewGPUProfiler(backend)
	}
	for i := range e.stages {
		e.stages[i].profilerIndex = e.profiler.AddPass(e.stages[i].Pass.Name())
	}
	return e
}

func (e *engine) AddStage(s Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, stage{Stage: s, profilerIndex: e.profiler.AddPass(s.Pass.Name())})
}

func (e *engine) Stages() []Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Stage, len(e.stages))
	for i, s := range e.stages {
		out[i] = s.Stage
	}
	return out
}

func (e *engine) Profiler() profiler.GPUProfiler {
	return e.profiler
}

func (e *engine) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *engine) RenderFrame(deltaTime float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.source == nil {
		return ErrNoFrameSource
	}
	cam, instances := e.source(deltaTime)

	if err := e.backend.BeginFrame(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}
	e.profiler.FrameStarted()

	var firstErr error
	for _, s := range e.stages {
		e.profiler.PassStarted(s.profilerIndex)
		err := e.runStage(s, cam, instances)
		e.profiler.PassFinished()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.profiler.FrameFinished()
	if err := e.backend.EndFrame(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("end frame: %w", err)
	}
	e.frames++
	return firstErr
}

func (e *engine) runStage(s stage, cam camera.Camera, instances []pass.DrawInstance) error {
	if !s.FullScreen {
		return s.Pass.Submit(cam, instances, s.DrawStatic, s.DrawDynamic)
	}
	if err := s.Pass.Prepare(cam); err != nil {
		return err
	}
	return s.Pass.RenderFullScreen()
}

func (e *engine) Run() {
	e.running = true
	e.lastRender = time.Now()
	e.wg.Add(1)
	go e.handleEngine()

	if e.window != nil {
		e.window.SetUpdateCallback(func() {
			if !e.renderTick() {
				e.window.SetUpdateCallback(nil)
				if err := e.window.Close(); err != nil {
					log.Printf("[Engine] close window: %v", err)
				}
			}
		})
		e.window.ProcessMessages()
		e.signalQuit()
	} else {
		for e.renderTick() {
		}
	}
	e.wg.Wait()
	e.running = false
}

// renderTick renders one frame and applies the frame rate cap. It reports false once the engine
// should stop.
func (e *engine) renderTick() bool {
	select {
	case <-e.quitChannel:
		return false
	default:
	}

	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	if err := e.RenderFrame(dt); err != nil {
		// Identical errors repeat every frame, so only changes are logged.
		if msg := err.Error(); msg != e.lastErr {
			log.Printf("[Engine] frame %d: %v", e.Frames(), err)
			e.lastErr = msg
		}
	}

	if e.maxFrames > 0 && e.Frames() >= e.maxFrames {
		e.signalQuit()
		return false
	}
	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	return true
}

// handleEngine runs the fixed-rate tick loop until the quit channel closes.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.mu.Lock()
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
			e.mu.Unlock()
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update that the tick loop has not consumed yet.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
