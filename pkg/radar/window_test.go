package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectionWindow(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	span := 90 * time.Second

	t.Run("two events 10s apart reach threshold", func(t *testing.T) {
		var w DetectionWindow
		assert.Equal(t, 1, w.Add(base, span))
		assert.Equal(t, 2, w.Add(base.Add(10*time.Second), span))
	})

	t.Run("two events 100s apart do not", func(t *testing.T) {
		var w DetectionWindow
		w.Add(base, span)
		assert.Equal(t, 1, w.Add(base.Add(100*time.Second), span))
	})

	t.Run("event exactly at span is retained", func(t *testing.T) {
		var w DetectionWindow
		w.Add(base, span)
		assert.Equal(t, 2, w.Add(base.Add(span), span))
	})

	t.Run("pruning keeps only recent entries", func(t *testing.T) {
		var w DetectionWindow
		for i := 0; i < 5; i++ {
			w.Add(base.Add(time.Duration(i)*time.Minute), span)
		}
		assert.Equal(t, 2, w.Len())
	})
}

func TestEchoMemory(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	offsets := DefaultTuning().EchoOffsets
	tol := 5 * time.Second

	tests := []struct {
		name  string
		prior time.Time
		want  bool
	}{
		{"one hour minus 5s", now.Add(-time.Hour - 5*time.Second), true},
		{"one hour plus 5s", now.Add(-time.Hour + 5*time.Second), true},
		{"one hour minus 6s", now.Add(-time.Hour - 6*time.Second), false},
		{"one hour plus 6s", now.Add(-time.Hour + 6*time.Second), false},
		{"three hours exact", now.Add(-3 * time.Hour), true},
		{"ninety minutes", now.Add(-90 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEchoMemory(60)
			m.Add(tt.prior)
			assert.Equal(t, tt.want, m.Matches(now, offsets, tol))
		})
	}

	t.Run("bounded with oldest evicted", func(t *testing.T) {
		m := NewEchoMemory(3)
		for i := 0; i < 5; i++ {
			m.Add(now.Add(time.Duration(i) * time.Second))
		}
		assert.Equal(t, 3, m.Len())
		assert.False(t, m.Matches(now.Add(time.Hour), offsets, 0))
		assert.True(t, m.Matches(now.Add(time.Hour+2*time.Second), offsets, 0))
	})
}
