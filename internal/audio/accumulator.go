package audio

import "time"

// Accumulator tracks how long the classifier has reported continuous
// silence. Dwell time is derived from block sample counts, not wall
// clock, so accounting stays exact under scheduling jitter.
//
// The zero value is ready to use.
type Accumulator struct {
	elapsed time.Duration
}

// Observe adds one block's dwell time and reports whether the sustained
// silence threshold was crossed. After firing, the accumulated time
// resets to zero so a second event requires another full threshold of
// continued silence rather than refiring immediately.
func (a *Accumulator) Observe(cls Classification, blockDuration, threshold time.Duration) bool {
	if cls == Active {
		a.elapsed = 0
		return false
	}
	a.elapsed += blockDuration
	if threshold > 0 && a.elapsed >= threshold {
		a.elapsed = 0
		return true
	}
	return false
}

// Elapsed returns the silence accumulated in the current run.
func (a *Accumulator) Elapsed() time.Duration {
	return a.elapsed
}

// Reset clears the accumulated silence.
func (a *Accumulator) Reset() {
	a.elapsed = 0
}
