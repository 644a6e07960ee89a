package audio

import (
	"testing"
	"time"
)

func TestAccumulatorFiresAtThreshold(t *testing.T) {
	var a Accumulator
	block := 100 * time.Millisecond
	threshold := time.Second

	for i := 1; i <= 9; i++ {
		if a.Observe(Silent, block, threshold) {
			t.Fatalf("fired early at block %d", i)
		}
	}
	if !a.Observe(Silent, block, threshold) {
		t.Fatal("did not fire at the threshold")
	}
	// Firing resets: a second event needs a full threshold again.
	if a.Elapsed() != 0 {
		t.Errorf("Elapsed() after fire = %v, want 0", a.Elapsed())
	}
	for i := 1; i <= 9; i++ {
		if a.Observe(Silent, block, threshold) {
			t.Fatalf("refired early at block %d after reset", i)
		}
	}
	if !a.Observe(Silent, block, threshold) {
		t.Fatal("did not fire on the second full run")
	}
}

func TestAccumulatorActiveResets(t *testing.T) {
	var a Accumulator
	block := 100 * time.Millisecond
	threshold := time.Second

	for i := 0; i < 9; i++ {
		a.Observe(Silent, block, threshold)
	}
	if a.Observe(Active, block, threshold) {
		t.Fatal("fired on an active block")
	}
	if a.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v, want 0 after activity", a.Elapsed())
	}
	// The earlier partial run does not count toward the next one.
	if a.Observe(Silent, 900*time.Millisecond, threshold) {
		t.Fatal("fired without a full continuous run")
	}
}

func TestAccumulatorZeroThresholdNeverFires(t *testing.T) {
	var a Accumulator
	for i := 0; i < 100; i++ {
		if a.Observe(Silent, time.Second, 0) {
			t.Fatal("fired with a zero threshold")
		}
	}
}
