package profiler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/recorder"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func scriptedTimer(label string, _ int) uint64 {
	if strings.HasPrefix(label, "opaque") {
		return 2_000_000
	}
	return 500_000
}

func runFrame(t *testing.T, rec recorder.Recorder, p GPUProfiler, clock *fakeClock) {
	t.Helper()
	require.NoError(t, rec.BeginFrame())
	p.FrameStarted()
	for i := range p.PassCount() {
		p.PassStarted(i)
		p.PassFinished()
	}
	p.FrameFinished()
	require.NoError(t, rec.EndFrame())
	clock.now = clock.now.Add(10 * time.Millisecond)
}

func TestSampleCadenceAndAverages(t *testing.T) {
	const window = 10
	rec := recorder.NewRecorder(recorder.WithQueryTimer(scriptedTimer), recorder.WithQueryLatency(1))
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := NewGPUProfiler(rec, WithFramesPerSample(window), WithClock(clock.Now))

	assert.Equal(t, 0, p.AddPass("opaque"))
	assert.Equal(t, 1, p.AddPass("post"))
	assert.Equal(t, "post", p.PassName(1))
	assert.Equal(t, -1.0, p.CurrentFrameTime())
	assert.Equal(t, -1.0, p.CurrentFrameRate())
	assert.Equal(t, -1.0, p.PassAverageTime(0))

	for frame := range 3*window + 5 {
		runFrame(t, rec, p, clock)
		// The sample completes at the start of the frame after the window's last frame.
		assert.Equal(t, frame/window, p.TotalSamples(), "after frame %d", frame)
		if frame == window {
			// Readback lags two frames, so the first window holds window-1 results.
			assert.InDelta(t, 2.0*(window-1)/window, p.PassAverageTime(0), 1e-9)
			assert.InDelta(t, 0.5*(window-1)/window, p.PassAverageTime(1), 1e-9)
		}
	}

	assert.InDelta(t, 2.0, p.PassAverageTime(0), 1e-9)
	assert.InDelta(t, 0.5, p.PassAverageTime(1), 1e-9)
	assert.InDelta(t, 10.0, p.CurrentFrameTime(), 1e-9)
	assert.InDelta(t, 100.0, p.CurrentFrameRate(), 1e-9)
}

func TestUnreadyQueriesAreDropped(t *testing.T) {
	rec := recorder.NewRecorder(recorder.WithQueryTimer(scriptedTimer), recorder.WithQueryLatency(5))
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := NewGPUProfiler(rec, WithFramesPerSample(4), WithClock(clock.Now))
	p.AddPass("opaque")

	for range 5 {
		runFrame(t, rec, p, clock)
	}
	assert.Equal(t, 1, p.TotalSamples())
	assert.Zero(t, p.PassAverageTime(0))
}

func TestFrameTimingWithoutTimerQueries(t *testing.T) {
	rec := recorder.NewRecorder(recorder.WithoutTimerQueries())
	clock := &fakeClock{now: time.Unix(0, 0)}
	p := NewGPUProfiler(rec, WithFramesPerSample(2), WithClock(clock.Now))
	p.AddPass("opaque")

	for range 3 {
		runFrame(t, rec, p, clock)
	}
	assert.Equal(t, 1, p.TotalSamples())
	assert.Equal(t, -1.0, p.PassAverageTime(0))
	assert.InDelta(t, 10.0, p.CurrentFrameTime(), 1e-9)
	for _, c := range rec.Commands() {
		assert.NotEqual(t, recorder.OpBeginQuery, c.Op)
	}
}

func TestPassStartedEndsQueryInFlight(t *testing.T) {
	rec := recorder.NewRecorder()
	p := NewGPUProfiler(rec)
	p.AddPass("a")
	p.AddPass("b")

	p.FrameStarted()
	p.PassStarted(0)
	p.PassStarted(1)
	p.PassStarted(7)
	p.FrameFinished()

	var ops []recorder.Op
	for _, c := range rec.Commands() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []recorder.Op{recorder.OpBeginQuery, recorder.OpEndQuery, recorder.OpBeginQuery, recorder.OpEndQuery}, ops)
	assert.Equal(t, "", p.PassName(7))
	assert.Equal(t, -1.0, p.PassAverageTime(-1))
}

func TestRelease(t *testing.T) {
	rec := recorder.NewRecorder()
	p := NewGPUProfiler(rec, WithLogging())
	p.AddPass("a")
	p.Release()

	p.FrameStarted()
	p.PassStarted(0)
	p.FrameFinished()
	assert.Empty(t, rec.Commands())
	assert.Equal(t, DefaultFramesPerSample, p.FramesPerSample())
}
