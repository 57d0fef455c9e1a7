package recorder

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer"
)

// RecorderBuilderOption is a functional option applied to a recorder during construction via NewRecorder.
type RecorderBuilderOption func(*recorder)

// WithSnapshotSlot selects the uniform slot whose buffer contents are copied into every DrawCall.
// Defaults to slot 0.
//
// Parameters:
//   - slot: the uniform binding slot to snapshot
//
// Returns:
//   - RecorderBuilderOption: a function that applies the option to a recorder
func WithSnapshotSlot(slot int) RecorderBuilderOption {
	return func(r *recorder) {
		r.snapshotSlot = slot
	}
}

// WithoutTimerQueries makes CreateTimerQuery fail, mimicking a device without GPU timestamps.
//
// Returns:
//   - RecorderBuilderOption: a function that applies the option to a recorder
func WithoutTimerQueries() RecorderBuilderOption {
	return func(r *recorder) {
		r.timerQueries = false
	}
}

// WithQueryLatency delays timer query results until the given number of frames have ended after
// the query was closed.
//
// Parameters:
//   - frames: number of EndFrame calls before a result becomes ready
//
// Returns:
//   - RecorderBuilderOption: a function that applies the option to a recorder
func WithQueryLatency(frames int) RecorderBuilderOption {
	return func(r *recorder) {
		r.queryLatency = frames
	}
}

// WithQueryTimer scripts timer query results with a function of the query label and the frame the
// query ended in. It takes precedence over SetQueryElapsed.
//
// Parameters:
//   - timer: returns the elapsed nanoseconds to report
//
// Returns:
//   - RecorderBuilderOption: a function that applies the option to a recorder
func WithQueryTimer(timer func(label string, frame int) uint64) RecorderBuilderOption {
	return func(r *recorder) {
		r.queryTimer = timer
	}
}

// WithProgramCheck installs a link step. A non-nil error rejects the program.
//
// Parameters:
//   - check: called for every CreateProgram
//
// Returns:
//   - RecorderBuilderOption: a function that applies the option to a recorder
func WithProgramCheck(check func(desc renderer.ProgramDescriptor) error) RecorderBuilderOption {
	return func(r *recorder) {
		r.programCheck = check
	}
}
