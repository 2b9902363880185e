package radar

import "time"

// DetectionWindow keeps the timestamps of recent detections for one sensor.
type DetectionWindow struct {
	times []time.Time
}

// Add prunes every timestamp older than span relative to t, appends t and
// returns the number of retained detections.
func (w *DetectionWindow) Add(t time.Time, span time.Duration) int {
	kept := w.times[:0]
	for _, ts := range w.times {
		if t.Sub(ts) <= span {
			kept = append(kept, ts)
		}
	}
	w.times = append(kept, t)
	return len(w.times)
}

// Len returns the number of retained detections.
func (w *DetectionWindow) Len() int { return len(w.times) }

// EchoMemory is a bounded, insertion-ordered history of previous alarm
// timestamps. The oldest entries are evicted first.
type EchoMemory struct {
	size  int
	times []time.Time
}

// NewEchoMemory creates a memory holding at most size entries.
func NewEchoMemory(size int) *EchoMemory {
	if size <= 0 {
		size = 60
	}
	return &EchoMemory{size: size}
}

// Add records t, evicting the oldest entry when full.
func (m *EchoMemory) Add(t time.Time) {
	m.times = append(m.times, t)
	if len(m.times) > m.size {
		m.times = append(m.times[:0], m.times[len(m.times)-m.size:]...)
	}
}

// Matches reports whether any remembered timestamp lies within tolerance of
// now minus one of the offsets.
func (m *EchoMemory) Matches(now time.Time, offsets []time.Duration, tolerance time.Duration) bool {
	for _, off := range offsets {
		target := now.Add(-off)
		for _, ts := range m.times {
			d := ts.Sub(target)
			if d < 0 {
				d = -d
			}
			if d <= tolerance {
				return true
			}
		}
	}
	return false
}

// Len returns the number of remembered timestamps.
func (m *EchoMemory) Len() int { return len(m.times) }
