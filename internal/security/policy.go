package security

import (
	"sync"
	"time"
)

// Hysteresis thresholds for AdjustLevel.
const (
	highConfidence      = 0.7
	strictAfterHigh     = 5
	mediumAfterAttempts = 2
)

// AdjustLevel applies the security-level hysteresis: more than five
// high-confidence attempts escalate to strict, a quiet period relaxes strict
// to medium, and more than two attempts lift low to medium.
func AdjustLevel(current Level, recent []Attempt) Level {
	high := 0
	for _, a := range recent {
		if a.Confidence > highConfidence {
			high++
		}
	}

	switch {
	case high > strictAfterHigh:
		return LevelStrict
	case current == LevelStrict && len(recent) == 0:
		return LevelMedium
	case current == LevelLow && len(recent) > mediumAfterAttempts:
		return LevelMedium
	default:
		return current
	}
}

type observedAttempt struct {
	at      time.Time
	attempt Attempt
}

// Gate is the security policy object handed to the engine. It owns the one
// adjustable security level and the window of recent attempts that drives
// adaptation. Validation itself is stateless.
type Gate struct {
	mu     sync.Mutex
	level  Level
	window time.Duration
	recent []observedAttempt
	now    func() time.Time
}

// NewGate creates a Gate at the given level. Attempts older than window are
// forgotten when the next report is observed.
func NewGate(level Level, window time.Duration) *Gate {
	if _, err := ParseLevel(string(level)); err != nil {
		level = LevelMedium
	}
	return &Gate{level: level, window: window, now: time.Now}
}

// SetClock replaces the gate's time source.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Level returns the current security level.
func (g *Gate) Level() Level {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// SetLevel overrides the current security level.
func (g *Gate) SetLevel(l Level) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = l
}

// Validate scores text at the current level.
func (g *Gate) Validate(text string) Report {
	return Validate(text, g.Level())
}

// Sanitize cleans text at the current level.
func (g *Gate) Sanitize(text string) SanitizeResult {
	return Sanitize(text, g.Level())
}

// Observe records a report's attempts, drops attempts that fell out of the
// window and re-evaluates the level. It returns the resulting level.
func (g *Gate) Observe(r Report) Level {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for _, a := range r.DetectedAttempts {
		g.recent = append(g.recent, observedAttempt{at: now, attempt: a})
	}

	cutoff := now.Add(-g.window)
	kept := g.recent[:0]
	for _, o := range g.recent {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	g.recent = kept

	recent := make([]Attempt, len(g.recent))
	for i, o := range g.recent {
		recent[i] = o.attempt
	}
	g.level = AdjustLevel(g.level, recent)
	return g.level
}

// RecentAttempts returns the attempts currently inside the window.
func (g *Gate) RecentAttempts() []Attempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Attempt, len(g.recent))
	for i, o := range g.recent {
		out[i] = o.attempt
	}
	return out
}
