package services

import (
	"context"
	"strings"

	"github.com/HKUDS/meshgate-go/pkg/alerts"
)

// AlertQuerier returns the current alerts without deduplication.
type AlertQuerier interface {
	Query(ctx context.Context) ([]alerts.Alert, error)
}

// WarnService reports all current official warnings for the region.
type WarnService struct {
	out    Replier
	alerts AlertQuerier
	region string
}

func NewWarnService(out Replier, q AlertQuerier, region string) *WarnService {
	return &WarnService{out: out, alerts: q, region: region}
}

func (s *WarnService) Name() string        { return "warn" }
func (s *WarnService) Description() string { return "Current severe weather and disaster warnings." }

func (s *WarnService) Handle(ctx context.Context, req Request) {
	current, err := s.alerts.Query(ctx)
	if err != nil && len(current) == 0 {
		s.out.SendToNode(ctx, req.From, "Error fetching warnings: "+err.Error())
		return
	}

	msgs := make([]string, 0, len(current))
	for _, a := range current {
		msgs = append(msgs, a.Format())
	}
	if len(msgs) == 0 {
		s.out.SendToNode(ctx, req.From, "No current severe weather or disaster warnings for "+s.region+".")
		return
	}
	s.out.SendToNode(ctx, req.From, strings.Join(msgs, "\n\n"))
}
