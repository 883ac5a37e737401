// Package debounce turns per-sample presence readings into confirmed
// violations. A single misfired frame never confirms anything; only a streak
// of consecutive same-kind anomalies does.
package debounce

import "github.com/enftaurus/vidyamitra/pkg/model"

const (
	DefaultMultiThreshold = 2
	DefaultNoneThreshold  = 3
)

// Debouncer keeps two independent streak counters. It is not safe for
// concurrent use; the presence sampler feeds it from one cycle at a time.
type Debouncer struct {
	multiThreshold int
	noneThreshold  int

	multiStreak int
	noneStreak  int
}

// New creates a debouncer. Thresholds below 1 fall back to the defaults.
func New(multiThreshold, noneThreshold int) *Debouncer {
	if multiThreshold < 1 {
		multiThreshold = DefaultMultiThreshold
	}
	if noneThreshold < 1 {
		noneThreshold = DefaultNoneThreshold
	}
	return &Debouncer{
		multiThreshold: multiThreshold,
		noneThreshold:  noneThreshold,
	}
}

// Classify consumes one sample and reports whether it confirms a violation.
// A confirming streak is reset to zero so the next violation needs a fresh
// streak.
func (d *Debouncer) Classify(s model.Sample) model.Verdict {
	switch s.Classification {
	case model.ClassMultiple:
		d.noneStreak = 0
		d.multiStreak++
		if d.multiStreak >= d.multiThreshold {
			d.multiStreak = 0
			return model.VerdictConfirmedMulti
		}
	case model.ClassNone:
		d.multiStreak = 0
		d.noneStreak++
		if d.noneStreak >= d.noneThreshold {
			d.noneStreak = 0
			return model.VerdictConfirmedNone
		}
	default:
		d.multiStreak = 0
		d.noneStreak = 0
	}
	return model.VerdictNone
}

// Streaks returns the current multi-face and no-face streaks.
func (d *Debouncer) Streaks() (multi, none int) {
	return d.multiStreak, d.noneStreak
}

// Reset clears both streaks.
func (d *Debouncer) Reset() {
	d.multiStreak = 0
	d.noneStreak = 0
}
