package audio

// Classification is the detector's view of the system audio state.
type Classification string

const (
	// Silent indicates the smoothed level is below the silence threshold.
	Silent Classification = "silent"
	// Active indicates audio is playing.
	Active Classification = "active"
)

// Classifier applies two-threshold hysteresis to the smoothed level.
// While Active the gate into silence is the silence threshold; while
// Silent the gate back out is the resume threshold. Levels between the
// two leave the classification unchanged.
//
// The zero value starts Silent, matching "nothing has played yet".
type Classifier struct {
	state Classification
}

// State returns the current classification.
func (c *Classifier) State() Classification {
	if c.state == "" {
		return Silent
	}
	return c.state
}

// Observe classifies the given smoothed level and reports whether the
// classification changed. Transitions are edge-triggered: changed is true
// only on the block where the state flips.
func (c *Classifier) Observe(level, silenceThreshold, resumeThreshold float64) (Classification, bool) {
	prev := c.State()
	next := prev

	switch prev {
	case Active:
		if level < silenceThreshold {
			next = Silent
		}
	case Silent:
		if level >= resumeThreshold {
			next = Active
		}
	}

	c.state = next
	return next, next != prev
}

// Reset returns the classifier to the initial Silent state.
func (c *Classifier) Reset() {
	c.state = Silent
}
