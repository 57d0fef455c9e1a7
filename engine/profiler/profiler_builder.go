package profiler

import "time"

// GPUProfilerBuilderOption is a functional option for configuring a GPUProfiler.
type GPUProfilerBuilderOption func(*gpuProfiler)

// WithFramesPerSample sets the number of frames averaged into one sample.
// Values below 1 are raised to 1.
//
// Parameters:
//   - frames: the sample window length
//
// Returns:
//   - GPUProfilerBuilderOption: option function to configure the profiler
func WithFramesPerSample(frames int) GPUProfilerBuilderOption {
	return func(p *gpuProfiler) {
		p.framesPerSample = frames
	}
}

// WithClock replaces the wall clock used for frame timing.
//
// Parameters:
//   - clock: returns the current time
//
// Returns:
//   - GPUProfilerBuilderOption: option function to configure the profiler
func WithClock(clock func() time.Time) GPUProfilerBuilderOption {
	return func(p *gpuProfiler) {
		p.clock = clock
	}
}

// WithLogging logs every completed sample with its pass times and memory statistics.
//
// Returns:
//   - GPUProfilerBuilderOption: option function to configure the profiler
func WithLogging() GPUProfilerBuilderOption {
	return func(p *gpuProfiler) {
		p.logging = true
	}
}
