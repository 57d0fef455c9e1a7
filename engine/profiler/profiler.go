package profiler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// DefaultFramesPerSample is the number of frames averaged into one sample.
const DefaultFramesPerSample = 200

// queriesPerPass is the depth of each pass's query ring. A query written in frame f is read back at
// the start of frame f+queriesPerPass, when the same slot is about to be reused.
const queriesPerPass = 2

type passTiming struct {
	name    string
	queries [queriesPerPass]renderer.QueryHandle
	pending [queriesPerPass]bool
	timed   bool
	sumMs   float64
	average float64
}

type gpuProfiler struct {
	backend renderer.Backend
	clock   func() time.Time
	logging bool
	mem     *memStats

	framesPerSample int
	passes          []*passTiming

	frame        int
	windowFrames int
	windowStart  time.Time
	inFlight     int

	frameTime    float64
	frameRate    float64
	totalSamples int
}

// StatsSource is the read side of the profiler consumed by benchmark drivers and on-screen stats.
type StatsSource interface {
	// PassCount returns the number of registered passes.
	PassCount() int

	// PassName returns the name pass i was registered with.
	PassName(i int) string

	// PassAverageTime returns the average GPU time of pass i over the last completed sample, in
	// milliseconds, or -1 if no sample has completed or the pass cannot be timed.
	PassAverageTime(i int) float64

	// CurrentFrameTime returns the average wall-clock frame time of the last completed sample, in
	// milliseconds, or -1 before the first sample.
	CurrentFrameTime() float64

	// TotalSamples returns the number of completed samples. Consumers detect a new sample by
	// comparing against a previously observed count.
	TotalSamples() int
}

// GPUProfiler measures the GPU time of each render pass with double-buffered timer queries and
// averages it over a fixed window of frames. Query results are read two frames after they were
// recorded so the CPU never waits on the GPU.
//
// Call order per frame: FrameStarted, then PassStarted/PassFinished around each pass, then
// FrameFinished.
type GPUProfiler interface {
	StatsSource

	// AddPass registers a pass and allocates its timer queries.
	// When the backend cannot time GPU work the pass is registered without queries and only
	// frame timing is reported.
	//
	// Parameters:
	//   - name: the pass name
	//
	// Returns:
	//   - int: the pass index, assigned in registration order
	AddPass(name string) int

	// FrameStarted reads back the queries recorded two frames ago and completes the sample window
	// when enough frames have been measured.
	FrameStarted()

	// PassStarted ends the query in flight, if any, and starts timing pass i.
	//
	// Parameters:
	//   - i: the pass index returned by AddPass
	PassStarted(i int)

	// PassFinished ends the query in flight, if any.
	PassFinished()

	// FrameFinished ends the query in flight, if any, and counts the frame towards the sample window.
	FrameFinished()

	// CurrentFrameRate returns frames per second derived from CurrentFrameTime, or -1 before the
	// first sample.
	//
	// Returns:
	//   - float64: frames per second
	CurrentFrameRate() float64

	// FramesPerSample returns the sample window length in frames.
	//
	// Returns:
	//   - int: frames per sample
	FramesPerSample() int

	// Release frees every timer query.
	Release()
}

var _ GPUProfiler = &gpuProfiler{}

// NewGPUProfiler creates a profiler with no passes.
//
// Parameters:
//   - backend: the backend timer queries are created on
//   - options: functional options to configure the profiler
//
// Returns:
//   - GPUProfiler: the newly created profiler
func NewGPUProfiler(backend renderer.Backend, options ...GPUProfilerBuilderOption) GPUProfiler {
	p := &gpuProfiler{
		backend:         backend,
		clock:           time.Now,
		framesPerSample: DefaultFramesPerSample,
		inFlight:        -1,
		frameTime:       -1,
		frameRate:       -1,
	}
	for _, option := range options {
		option(p)
	}
	if p.framesPerSample < 1 {
		p.framesPerSample = 1
	}
	if p.logging {
		p.mem = newMemStats()
	}
	return p
}

func (p *gpuProfiler) AddPass(name string) int {
	t := &passTiming{name: name, average: -1, timed: true}
	for slot := range t.queries {
		q, err := p.backend.CreateTimerQuery(fmt.Sprintf("%s %d", name, slot))
		if err != nil {
			log.Printf("[Profiler] %s: GPU timing unavailable, frame timing only: %v", name, err)
			p.releaseQueries(t)
			t.timed = false
			break
		}
		t.queries[slot] = q
	}
	p.passes = append(p.passes, t)
	return len(p.passes) - 1
}

func (p *gpuProfiler) FrameStarted() {
	slot := p.frame % queriesPerPass
	for _, t := range p.passes {
		if !t.pending[slot] {
			continue
		}
		// The slot is reused this frame, so an unfinished result is lost either way.
		t.pending[slot] = false
		if ns, ready := p.backend.TimerQueryResult(t.queries[slot]); ready {
			t.sumMs += float64(ns) / 1e6
		}
	}

	if p.windowFrames >= p.framesPerSample {
		p.completeSample()
	}
	if p.windowFrames == 0 {
		p.windowStart = p.clock()
	}
}

// completeSample stores the averages of the finished window and starts a new one.
func (p *gpuProfiler) completeSample() {
	elapsed := p.clock().Sub(p.windowStart)
	n := float64(p.windowFrames)

	for _, t := range p.passes {
		if t.timed {
			t.average = t.sumMs / n
		}
		t.sumMs = 0
	}
	p.frameTime = float64(elapsed) / float64(time.Millisecond) / n
	if p.frameTime > 0 {
		p.frameRate = 1000 / p.frameTime
	} else {
		p.frameRate = 0
	}
	p.windowFrames = 0
	p.totalSamples++

	if p.logging {
		p.logSample(elapsed)
	}
}

func (p *gpuProfiler) logSample(elapsed time.Duration) {
	var b strings.Builder
	fmt.Fprintf(&b, "[Profiler] sample %d: %.3f ms/frame (%.2f FPS)", p.totalSamples, p.frameTime, p.frameRate)
	for _, t := range p.passes {
		if t.timed {
			fmt.Fprintf(&b, " | %s: %.3f ms", t.name, t.average)
		}
	}
	log.Print(b.String())
	log.Print(p.mem.line(elapsed))
}

func (p *gpuProfiler) PassStarted(i int) {
	p.endInFlight()
	if i < 0 || i >= len(p.passes) || !p.passes[i].timed {
		return
	}
	t := p.passes[i]
	slot := p.frame % queriesPerPass
	p.backend.BeginTimerQuery(t.queries[slot])
	t.pending[slot] = true
	p.inFlight = i
}

func (p *gpuProfiler) PassFinished() {
	p.endInFlight()
}

func (p *gpuProfiler) FrameFinished() {
	p.endInFlight()
	p.windowFrames++
	p.frame++
}

func (p *gpuProfiler) endInFlight() {
	if p.inFlight < 0 {
		return
	}
	t := p.passes[p.inFlight]
	p.backend.EndTimerQuery(t.queries[p.frame%queriesPerPass])
	p.inFlight = -1
}

func (p *gpuProfiler) PassCount() int {
	return len(p.passes)
}

func (p *gpuProfiler) PassName(i int) string {
	if i < 0 || i >= len(p.passes) {
		return ""
	}
	return p.passes[i].name
}

func (p *gpuProfiler) PassAverageTime(i int) float64 {
	if i < 0 || i >= len(p.passes) {
		return -1
	}
	return p.passes[i].average
}

func (p *gpuProfiler) CurrentFrameTime() float64 {
	return p.frameTime
}

func (p *gpuProfiler) CurrentFrameRate() float64 {
	return p.frameRate
}

func (p *gpuProfiler) TotalSamples() int {
	return p.totalSamples
}

func (p *gpuProfiler) FramesPerSample() int {
	return p.framesPerSample
}

func (p *gpuProfiler) Release() {
	for _, t := range p.passes {
		p.releaseQueries(t)
		t.timed = false
	}
	p.inFlight = -1
}

func (p *gpuProfiler) releaseQueries(t *passTiming) {
	for slot, q := range t.queries {
		if q != 0 {
			p.backend.ReleaseQuery(q)
			t.queries[slot] = 0
		}
		t.pending[slot] = false
	}
}
