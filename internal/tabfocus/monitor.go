// Package tabfocus converts window-visibility transitions into a two-strike
// sequence: the first switch warns, a repeat terminates.
package tabfocus

import (
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

// DefaultMinGap collapses the duplicate events a browser fires for one
// physical switch.
const DefaultMinGap = 800 * time.Millisecond

// Monitor has no preconditions of its own. Callers only feed it while the
// round is fullscreen, loaded, unlocked and not terminated.
type Monitor struct {
	mu     sync.Mutex
	clock  clock.PassiveClock
	minGap time.Duration

	strikes      int
	lastAccepted time.Time
	handling     bool
	fired        bool
}

// New creates a monitor. A nil clock uses the real clock.
func New(clk clock.PassiveClock, minGap time.Duration) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if minGap < 0 {
		minGap = DefaultMinGap
	}
	return &Monitor{clock: clk, minGap: minGap}
}

// OnVisibilityChange records a transition. Only hidden=true counts; events
// closer than the minimum gap to the previous accepted one are dropped.
// second_strike is returned at most once until Reset.
func (m *Monitor) OnVisibilityChange(hidden bool) model.Strike {
	if !hidden {
		return model.StrikeIgnored
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if !m.lastAccepted.IsZero() && now.Sub(m.lastAccepted) < m.minGap {
		return model.StrikeIgnored
	}
	m.lastAccepted = now
	m.strikes++

	if m.strikes == 1 {
		return model.StrikeFirst
	}
	if m.handling || m.fired {
		return model.StrikeIgnored
	}
	m.handling = true
	m.fired = true
	return model.StrikeSecond
}

// Settle clears the handling flag once the caller's termination action has
// completed or failed. The second strike stays latched.
func (m *Monitor) Settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handling = false
}

// Handling reports whether a second-strike action is still in progress.
func (m *Monitor) Handling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handling
}

// Count returns the number of accepted hidden transitions.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strikes
}

// Reset returns the monitor to its initial state. Only an explicit session
// reset calls this.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strikes = 0
	m.lastAccepted = time.Time{}
	m.handling = false
	m.fired = false
}
