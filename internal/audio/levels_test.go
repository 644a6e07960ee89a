package audio

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBlockRMS(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty block", nil, 0},
		{"all zeros", []float32{0, 0, 0, 0}, 0},
		{"constant half scale", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"full scale square", []float32{1, -1, 1, -1}, 1},
		{"nan samples skipped", []float32{nan, 0.5, nan, 0.5}, 0.5},
		{"inf samples skipped", []float32{inf, 0.5, -inf, 0.5}, 0.5},
		{"all invalid", []float32{nan, inf, nan}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BlockRMS(tt.samples)
			if !almostEqual(got, tt.want) {
				t.Errorf("BlockRMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelMeterSmoothing(t *testing.T) {
	var m LevelMeter
	block := []float32{1, 1, 1, 1}

	// From zero, a constant full-scale input converges geometrically.
	want := []float64{0.2, 0.36, 0.488}
	for i, w := range want {
		got := m.Update(block)
		if !almostEqual(got, w) {
			t.Errorf("update %d: level = %v, want %v", i+1, got, w)
		}
	}
	if !almostEqual(m.Level(), 0.488) {
		t.Errorf("Level() = %v, want 0.488", m.Level())
	}
}

func TestLevelMeterStaysFiniteOnBadBlocks(t *testing.T) {
	var m LevelMeter
	m.Update([]float32{1, 1, 1, 1})

	nan := float32(math.NaN())
	got := m.Update([]float32{nan, nan, nan})
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("level not finite after bad block: %v", got)
	}
	// A bad block counts as silence, so the estimate decays.
	if !almostEqual(got, 0.16) {
		t.Errorf("level = %v, want 0.16", got)
	}
}

func TestDownmixMono(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		channels int
		want     []float32
	}{
		{"mono passthrough", []float32{0.1, 0.2}, 1, []float32{0.1, 0.2}},
		{"stereo average", []float32{1, 0, 0.5, 0.5}, 2, []float32{0.5, 0.5}},
		{"opposite phase cancels", []float32{1, -1}, 2, []float32{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DownmixMono(tt.samples, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !almostEqual(float64(got[i]), float64(tt.want[i])) {
					t.Errorf("sample %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
