package services

import (
	"context"

	"github.com/HKUDS/meshgate-go/pkg/metrics"
	"github.com/HKUDS/meshgate-go/pkg/radar"
)

// RadarService feeds detection sensor reports into the correlation engine.
type RadarService struct {
	engine  *radar.Engine
	metrics *metrics.Metrics
}

func NewRadarService(engine *radar.Engine, m *metrics.Metrics) *RadarService {
	return &RadarService{engine: engine, metrics: m}
}

func (s *RadarService) Name() string        { return "radar" }
func (s *RadarService) Description() string { return "Detection sensor alerts." }

func (s *RadarService) Handle(ctx context.Context, req Request) {
	d := s.engine.Process(ctx, radar.Event{
		Payload: req.Args,
		From:    req.From,
		At:      req.ReceivedAt,
	})
	s.metrics.RadarDecision(d.String())
}
