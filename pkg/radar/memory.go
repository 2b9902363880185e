package radar

import (
	"sync"
	"time"
)

// Memory is the per-sensor correlation state. It outlives configuration
// reloads so detection windows and echo history survive a restart of the
// gateway.
type Memory struct {
	mu      sync.Mutex
	windows map[string]*DetectionWindow
	echoes  map[string]*EchoMemory
}

// NewMemory creates an empty correlation state.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*DetectionWindow),
		echoes:  make(map[string]*EchoMemory),
	}
}

// CheckEcho reports whether now lines up with an earlier alarm at one of the
// tuning offsets. A matching timestamp is remembered so that a periodic
// announcement keeps matching in later hours.
func (m *Memory) CheckEcho(sensor string, now time.Time, tuning Tuning) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	echo := m.echo(sensor, tuning)
	if !echo.Matches(now, tuning.EchoOffsets, tuning.EchoTolerance) {
		return false
	}
	echo.Add(now)
	return true
}

// RememberAlarm records an alarm that passed every filter up to the notify
// window, emitted or ghost.
func (m *Memory) RememberAlarm(sensor string, now time.Time, tuning Tuning) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.echo(sensor, tuning).Add(now)
}

func (m *Memory) echo(sensor string, tuning Tuning) *EchoMemory {
	echo, ok := m.echoes[sensor]
	if !ok {
		echo = NewEchoMemory(tuning.EchoMemorySize)
		m.echoes[sensor] = echo
	}
	return echo
}

// AddDetection appends now to the sensor's detection window and returns the
// number of detections within span.
func (m *Memory) AddDetection(sensor string, now time.Time, span time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[sensor]
	if !ok {
		w = &DetectionWindow{}
		m.windows[sensor] = w
	}
	return w.Add(now, span)
}
