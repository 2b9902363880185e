package alerts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HKUDS/meshgate-go/pkg/metrics"
)

// SeenSet records alert identifiers already broadcast. It only grows.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

func (s *SeenSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Add(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Fetcher returns the current alerts.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Alert, error)
}

// Broadcaster delivers text to a mesh channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel int, text string)
}

// Poller forwards alerts that have not been seen before.
type Poller struct {
	fetcher Fetcher
	seen    *SeenSet
	out     Broadcaster
	channel int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPoller creates a Poller. seen may be shared across pollers; nil
// allocates a fresh set.
func NewPoller(f Fetcher, seen *SeenSet, out Broadcaster, channel int, logger *slog.Logger, m *metrics.Metrics) *Poller {
	if seen == nil {
		seen = NewSeenSet()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher: f,
		seen:    seen,
		out:     out,
		channel: channel,
		logger:  logger.With("component", "alerts"),
		metrics: m,
	}
}

// Poll runs one cycle and returns the number of new alerts forwarded.
// Alerts are marked seen once the cycle's sends have been attempted,
// whether or not they were delivered.
func (p *Poller) Poll(ctx context.Context) int {
	alerts, err := p.fetcher.Fetch(ctx)
	if err != nil {
		p.logger.Error("error fetching warnings", "error", err)
	}

	var fresh []Alert
	batch := make(map[string]struct{})
	for _, a := range alerts {
		if a.ID == "" || p.seen.Has(a.ID) {
			continue
		}
		if _, dup := batch[a.ID]; dup {
			continue
		}
		batch[a.ID] = struct{}{}
		fresh = append(fresh, a)
	}

	ids := make([]string, 0, len(fresh))
	for _, a := range fresh {
		if ctx.Err() != nil {
			break
		}
		p.out.Broadcast(ctx, p.channel, a.Format())
		p.metrics.AlertDelivered()
		p.logger.Info("forwarded warning", "id", a.ID, "source", a.Source)
		ids = append(ids, a.ID)
	}
	p.seen.Add(ids...)
	return len(ids)
}

// Query returns the current alerts without deduplication.
func (p *Poller) Query(ctx context.Context) ([]Alert, error) {
	return p.fetcher.Fetch(ctx)
}
