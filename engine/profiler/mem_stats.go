package profiler

import (
	"fmt"
	"runtime"
	"time"
)

// memStats tracks heap and GC statistics between profiler samples.
type memStats struct {
	stats          runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

func newMemStats() *memStats {
	m := &memStats{}
	runtime.ReadMemStats(&m.stats)
	m.lastGCCount = m.stats.NumGC
	m.lastTotalAlloc = m.stats.TotalAlloc
	return m
}

// line reads the current memory statistics and formats them relative to the previous call.
//
// Parameters:
//   - elapsed: wall time since the previous call, used for the allocation rate
//
// Returns:
//   - string: the formatted log line
func (m *memStats) line(elapsed time.Duration) string {
	runtime.ReadMemStats(&m.stats)
	// Alloc: live heap. TotalAlloc: cumulative, tracks churn. Sys: process footprint.
	allocMB := float64(m.stats.Alloc) / 1024 / 1024
	sysMB := float64(m.stats.Sys) / 1024 / 1024

	var allocRateMB float64
	if elapsed > 0 {
		allocRateMB = float64(m.stats.TotalAlloc-m.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()
	}

	gcCount := m.stats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses.
		lastPauseUs = m.stats.PauseNs[(gcCount-1)%256] / 1000

		start := m.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			if pause := m.stats.PauseNs[i%256] / 1000; pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	m.lastGCCount = gcCount
	m.lastTotalAlloc = m.stats.TotalAlloc

	return fmt.Sprintf("[Profiler] Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
}
