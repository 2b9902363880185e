package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HKUDS/meshgate-go/pkg/alerts"
	"github.com/HKUDS/meshgate-go/pkg/radar"
)

type staticAlerts struct {
	alerts []alerts.Alert
	err    error
}

func (s staticAlerts) Query(context.Context) ([]alerts.Alert, error) { return s.alerts, s.err }

func TestWarnService(t *testing.T) {
	ctx := context.Background()

	t.Run("lists all current warnings", func(t *testing.T) {
		out := &fakeReplier{}
		NewWarnService(out, staticAlerts{alerts: []alerts.Alert{
			{ID: "1", Source: alerts.SourceWeather, Headline: "Storm", Level: 3, Description: "Gusts"},
			{ID: "2", Source: alerts.SourceDisaster, Headline: "Fire", Description: "Stay inside"},
		}}, "BY").Handle(ctx, Request{From: "!1"})
		assert.Equal(t, "DWD: Storm (level 3) - Gusts\n\nDisaster: Fire - Stay inside", out.lastText())
	})

	t.Run("nothing to report", func(t *testing.T) {
		out := &fakeReplier{}
		NewWarnService(out, staticAlerts{}, "BY").Handle(ctx, Request{From: "!1"})
		assert.Equal(t, "No current severe weather or disaster warnings for BY.", out.lastText())
	})

	t.Run("fetch failure", func(t *testing.T) {
		out := &fakeReplier{}
		NewWarnService(out, staticAlerts{err: errors.New("timeout")}, "BY").Handle(ctx, Request{From: "!1"})
		assert.Equal(t, "Error fetching warnings: timeout", out.lastText())
	})
}

func TestRadarService(t *testing.T) {
	out := &fakeReplier{}
	engine := radar.NewEngine(radar.Config{Channel: 3}, nil, out)
	svc := NewRadarService(engine, nil)

	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.Local)
	svc.Handle(context.Background(), Request{Name: "radar", Args: "#porch motion", From: "!5", ReceivedAt: at})

	require.Len(t, out.broadcasts, 1)
	assert.Equal(t, sent{channel: 3, text: "[08:30:00] porch motion (Radar: porch)"}, out.broadcasts[0])
}
