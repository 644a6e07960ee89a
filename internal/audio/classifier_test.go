package audio

import "testing"

func TestClassifierHysteresis(t *testing.T) {
	const (
		silence = 0.03
		resume  = 0.045
	)

	steps := []struct {
		level       float64
		wantState   Classification
		wantChanged bool
	}{
		// Starts silent; levels in the dead band do not wake it.
		{0.04, Silent, false},
		{0.044, Silent, false},
		// At the resume threshold it flips to active, once.
		{0.045, Active, true},
		{0.1, Active, false},
		// In the dead band it stays active.
		{0.035, Active, false},
		{0.031, Active, false},
		// Below the silence threshold it flips back, once.
		{0.029, Silent, true},
		{0.01, Silent, false},
	}

	var c Classifier
	for i, step := range steps {
		state, changed := c.Observe(step.level, silence, resume)
		if state != step.wantState || changed != step.wantChanged {
			t.Errorf("step %d (level %v): got %v changed=%v, want %v changed=%v",
				i, step.level, state, changed, step.wantState, step.wantChanged)
		}
	}
}

func TestClassifierZeroValueIsSilent(t *testing.T) {
	var c Classifier
	if got := c.State(); got != Silent {
		t.Errorf("State() = %v, want %v", got, Silent)
	}
}

func TestClassifierReset(t *testing.T) {
	var c Classifier
	c.Observe(1.0, 0.03, 0.045)
	if c.State() != Active {
		t.Fatalf("State() = %v, want %v", c.State(), Active)
	}
	c.Reset()
	if c.State() != Silent {
		t.Errorf("State() after Reset = %v, want %v", c.State(), Silent)
	}
}

func TestClassifierDegenerateThresholds(t *testing.T) {
	// Resume below silence degenerates to a single boundary without
	// getting stuck.
	var c Classifier
	state, _ := c.Observe(0.02, 0.03, 0.01)
	if state != Active {
		t.Errorf("got %v, want %v", state, Active)
	}
	state, _ = c.Observe(0.005, 0.03, 0.01)
	if state != Silent {
		t.Errorf("got %v, want %v", state, Silent)
	}
}
