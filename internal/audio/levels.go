// Package audio implements the system-audio silence detector: loudness
// metering, hysteresis classification, silence timing and the capture
// stream supervisor that ties them together.
package audio

import "math"

// SmoothingAlpha is the EMA weight given to each new block's level.
// Smoothing exists to keep single-block transients from flipping the
// silence classification.
const SmoothingAlpha = 0.2

// BlockRMS returns the root-mean-square level of a block of mono samples.
// Empty blocks and non-finite samples count as zero so one bad block can
// never poison the running average.
func BlockRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	valid := 0
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sumSquares += v * v
		valid++
	}
	if valid == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(valid))
}

// DownmixMono averages interleaved multi-channel samples into a mono
// block. Blocks with one channel are returned unchanged.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

// LevelMeter carries the smoothed loudness estimate across blocks.
// The zero value starts from silence.
type LevelMeter struct {
	smoothed float64
}

// Update feeds one block of samples and returns the new smoothed level.
func (m *LevelMeter) Update(samples []float32) float64 {
	inst := BlockRMS(samples)
	m.smoothed = SmoothingAlpha*inst + (1-SmoothingAlpha)*m.smoothed
	return m.smoothed
}

// Level returns the current smoothed level without updating it.
func (m *LevelMeter) Level() float64 {
	return m.smoothed
}
