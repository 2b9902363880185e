package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/HKUDS/meshgate-go/pkg/bus"
	"github.com/HKUDS/meshgate-go/pkg/metrics"
)

// Request is one command invocation as seen by a service.
type Request struct {
	Name       string
	Args       string
	From       string
	ReceivedAt time.Time
}

// Service handles one command. Handlers report their own failures to the
// sender and never return errors to the dispatcher.
type Service interface {
	Name() string
	Description() string
	Handle(ctx context.Context, req Request)
}

// Replier is the outbound side available to services.
type Replier interface {
	SendToNode(ctx context.Context, node, text string)
	Broadcast(ctx context.Context, channel int, text string)
}

// Outcome is the result of dispatching a command.
type Outcome int

const (
	Handled Outcome = iota
	Unknown
	NullEntry
	Disabled
	Panicked
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Unknown:
		return "unknown"
	case NullEntry:
		return "null_entry"
	case Disabled:
		return "disabled"
	case Panicked:
		return "panicked"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Registry maps command names to services. A name may be registered
// without a service to reserve it.
type Registry struct {
	order    []string
	services map[string]Service
	flags    map[string]bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRegistry creates a registry with per-command enable flags. Commands
// without a flag are enabled; flags for unknown commands are ignored.
func NewRegistry(flags map[string]bool, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]Service),
		flags:    flags,
		logger:   logger.With("component", "dispatch"),
		metrics:  m,
	}
}

// Register adds svc under name. A nil svc registers a null entry.
func (r *Registry) Register(name string, svc Service) {
	if _, ok := r.services[name]; !ok {
		r.order = append(r.order, name)
	}
	r.services[name] = svc
}

// Add registers svc under its own name.
func (r *Registry) Add(svc Service) {
	r.Register(svc.Name(), svc)
}

// Get returns the service registered under name.
func (r *Registry) Get(name string) (Service, bool) {
	svc, ok := r.services[name]
	return svc, ok && svc != nil
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Enabled reports whether name is switched on in the configuration.
func (r *Registry) Enabled(name string) bool {
	if on, ok := r.flags[name]; ok {
		return on
	}
	return true
}

// EnabledNames returns the sorted names of callable services.
func (r *Registry) EnabledNames() []string {
	var names []string
	for _, name := range r.order {
		if r.services[name] != nil && r.Enabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the service for inv synchronously. Panics are recovered
// and logged.
func (r *Registry) Dispatch(ctx context.Context, inv bus.CommandInvocation, receivedAt time.Time) (out Outcome) {
	log := r.logger.With("command", inv.Name, "from", inv.From)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("service panicked", "panic", rec, "stack", string(debug.Stack()))
			out = Panicked
		}
		r.metrics.Command(inv.Name, out.String())
	}()

	svc, known := r.services[inv.Name]
	switch {
	case !known:
		log.Info("no service registered, ignoring")
		return Unknown
	case svc == nil:
		log.Debug("null entry, ignoring")
		return NullEntry
	case !r.Enabled(inv.Name):
		log.Info("service is disabled")
		return Disabled
	}

	log.Info("service call", "content", inv.Args)
	svc.Handle(ctx, Request{
		Name:       inv.Name,
		Args:       inv.Args,
		From:       inv.From,
		ReceivedAt: receivedAt,
	})
	return Handled
}
