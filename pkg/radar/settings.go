package radar

import (
	"fmt"
	"time"
)

// Threshold enables fail-safe corroboration: at least Detections events
// within TimeSpan seconds are required before a sensor may alert.
type Threshold struct {
	TimeSpan   int `json:"timeSpan" yaml:"timeSpan"`
	Detections int `json:"detections" yaml:"detections"`
}

// Enabled reports whether both bounds are configured.
func (t Threshold) Enabled() bool {
	return t.TimeSpan > 0 && t.Detections > 0
}

// Span returns the window length.
func (t Threshold) Span() time.Duration {
	return time.Duration(t.TimeSpan) * time.Second
}

// Settings is the per-sensor configuration.
type Settings struct {
	AliasName         string    `json:"aliasName,omitempty" yaml:"aliasName"`
	Ignore            Schedule  `json:"ignore" yaml:"ignore"`
	Notify            Schedule  `json:"notify" yaml:"notify"`
	Mail              Schedule  `json:"mail" yaml:"mail"`
	MailTo            string    `json:"mail_to,omitempty" yaml:"mail_to"`
	PostStateInfo     bool      `json:"postStateInfo,omitempty" yaml:"postStateInfo"`
	DetectionsToAlert Threshold `json:"detectionsToAlert" yaml:"detectionsToAlert"`
}

// DisplayName renders the sensor name with its alias, if any.
func (s Settings) DisplayName(name string) string {
	if s.AliasName != "" {
		return fmt.Sprintf("%s (%s)", name, s.AliasName)
	}
	return name
}

// Tuning holds the empirically chosen echo suppression constants.
type Tuning struct {
	EchoOffsets    []time.Duration
	EchoTolerance  time.Duration
	EchoMemorySize int
}

// DefaultTuning matches the hourly re-announcement pattern of the detection
// sensor firmware.
func DefaultTuning() Tuning {
	return Tuning{
		EchoOffsets:    []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour},
		EchoTolerance:  5 * time.Second,
		EchoMemorySize: 60,
	}
}
