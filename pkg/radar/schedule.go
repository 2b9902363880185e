package radar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTimeRange is returned for time ranges not in "HH:MM-HH:MM" form.
var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange is a daily window in seconds since midnight. Start > End wraps
// past midnight.
type TimeRange struct {
	Start int
	End   int
}

// ParseTimeRange parses "HH:MM-HH:MM".
func ParseTimeRange(s string) (TimeRange, error) {
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
	start, err := time.Parse("15:04", strings.TrimSpace(startStr))
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
	end, err := time.Parse("15:04", strings.TrimSpace(endStr))
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
	return TimeRange{
		Start: start.Hour()*3600 + start.Minute()*60,
		End:   end.Hour()*3600 + end.Minute()*60,
	}, nil
}

// Contains reports whether the wall clock time of t falls inside the range.
// Both bounds are inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if r.Start <= r.End {
		return r.Start <= s && s <= r.End
	}
	return s >= r.Start || s <= r.End
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/3600, r.Start%3600/60, r.End/3600, r.End%3600/60)
}

// Schedule is a sensor setting given either as a boolean or as a daily time
// range. The zero value is unset.
type Schedule struct {
	set    bool
	always bool
	window *TimeRange
}

// Always returns a schedule that is constantly on (or off).
func Always(on bool) Schedule {
	return Schedule{set: true, always: on}
}

// Window returns a schedule active inside r.
func Window(r TimeRange) Schedule {
	return Schedule{set: true, window: &r}
}

// IsSet reports whether the setting was configured.
func (s Schedule) IsSet() bool { return s.set }

// ActiveOr evaluates the schedule at t, returning def when it is unset.
func (s Schedule) ActiveOr(t time.Time, def bool) bool {
	if !s.set {
		return def
	}
	if s.window != nil {
		return s.window.Contains(t)
	}
	return s.always
}

func (s *Schedule) fromValue(v any) error {
	switch val := v.(type) {
	case nil:
		*s = Schedule{}
	case bool:
		*s = Always(val)
	case string:
		r, err := ParseTimeRange(val)
		if err != nil {
			return err
		}
		*s = Window(r)
	default:
		return fmt.Errorf("schedule must be a boolean or a time range, got %T", v)
	}
	return nil
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return s.fromValue(v)
}

func (s *Schedule) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return s.fromValue(v)
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	switch {
	case !s.set:
		return []byte("null"), nil
	case s.window != nil:
		return json.Marshal(s.window.String())
	default:
		return json.Marshal(s.always)
	}
}
