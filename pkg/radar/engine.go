package radar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/HKUDS/meshgate-go/pkg/aggregate"
	"github.com/HKUDS/meshgate-go/pkg/mail"
)

// Decision is the outcome of processing one sensor event.
type Decision int

const (
	EchoSuppressed Decision = iota
	Disabled
	InsufficientDetections
	StateInfo
	OutsideNotifyWindow
	Emitted
	Empty
)

func (d Decision) String() string {
	switch d {
	case EchoSuppressed:
		return "echo_suppressed"
	case Disabled:
		return "disabled"
	case InsufficientDetections:
		return "insufficient_detections"
	case StateInfo:
		return "state_info"
	case OutsideNotifyWindow:
		return "outside_notify_window"
	case Emitted:
		return "emitted"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Event is one sensor report as received on the mesh.
type Event struct {
	Payload string
	From    string
	At      time.Time
}

// Broadcaster delivers text to a mesh channel.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel int, text string)
}

// Recorder stores detections at the aggregation endpoint.
type Recorder interface {
	Record(ctx context.Context, ev aggregate.Event) error
}

// Mailer hands off alert mails.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Config configures an Engine.
type Config struct {
	Sensors    map[string]Settings
	Channel    int
	Tuning     Tuning
	SenderName string
}

// Engine decides whether sensor events become alerts.
type Engine struct {
	cfg         Config
	memory      *Memory
	broadcaster Broadcaster
	recorder    Recorder
	mailer      Mailer
	logger      *slog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder enables aggregation of detections.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithMailer enables alert mails.
func WithMailer(m Mailer) Option { return func(e *Engine) { e.mailer = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an Engine. memory may be shared between engines built
// from successive configurations; nil allocates a fresh one.
func NewEngine(cfg Config, memory *Memory, b Broadcaster, opts ...Option) *Engine {
	if memory == nil {
		memory = NewMemory()
	}
	if cfg.Tuning.EchoOffsets == nil {
		cfg.Tuning = DefaultTuning()
	}
	e := &Engine{
		cfg:         cfg,
		memory:      memory,
		broadcaster: b,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "radar")
	return e
}

// Process runs ev through echo suppression, per sensor settings, fail-safe
// thresholding and the notify window, emitting an alert when all pass.
func (e *Engine) Process(ctx context.Context, ev Event) Decision {
	cleaned := strings.TrimSpace(strings.ReplaceAll(ev.Payload, "#", ""))
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return Empty
	}
	sensor := fields[0]
	force := false
	for _, f := range fields {
		if strings.ToLower(f) == "$notify" {
			force = true
			break
		}
	}

	now := ev.At
	if now.IsZero() {
		now = e.now()
	}
	log := e.logger.With("sensor", sensor)

	if e.memory.CheckEcho(sensor, now, e.cfg.Tuning) {
		log.Info("suppressed periodic re-announcement")
		return EchoSuppressed
	}

	settings := e.cfg.Sensors[sensor]
	display := settings.DisplayName(sensor)

	if settings.Ignore.ActiveOr(now, false) {
		log.Debug("sensor ignored")
		return Disabled
	}

	if th := settings.DetectionsToAlert; th.Enabled() {
		if n := e.memory.AddDetection(sensor, now, th.Span()); n < th.Detections {
			log.Info("not enough detections", "count", n, "required", th.Detections, "span_s", th.TimeSpan)
			return InsufficientDetections
		}
	}

	if strings.Contains(cleaned, "state:") && !settings.PostStateInfo {
		log.Debug("state info ignored")
		return StateInfo
	}

	e.memory.RememberAlarm(sensor, now, e.cfg.Tuning)

	if !force && !settings.Notify.ActiveOr(now, true) {
		e.record(ctx, aggregate.Event{Name: sensor, Label: display, Timestamp: now, Ghost: true})
		log.Info("outside notify window, recorded ghost detection")
		return OutsideNotifyWindow
	}

	text := fmt.Sprintf("[%s] %s (Radar: %s)", now.Format("15:04:05"), cleaned, display)
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(ctx, e.cfg.Channel, text)
	}
	e.record(ctx, aggregate.Event{Name: sensor, Label: display, Timestamp: now})

	if settings.MailTo != "" && e.mailer != nil && (force || settings.Mail.ActiveOr(now, true)) {
		msg := mail.Message{
			Subject:    "Radar alert from " + display,
			Body:       fmt.Sprintf("%s\n\nRadar: %s\nTime: %s", cleaned, display, now.Format("2006-01-02 15:04:05")),
			To:         settings.MailTo,
			SenderName: e.cfg.SenderName,
		}
		if err := e.mailer.Send(ctx, msg); err != nil {
			log.Error("failed to send radar alert mail", "to", settings.MailTo, "error", err)
		} else {
			log.Info("radar alert mail sent", "to", settings.MailTo)
		}
	}
	return Emitted
}

// record posts ev in the background. The request is detached from ctx so
// that it outlives the inbound line that triggered it.
func (e *Engine) record(ctx context.Context, ev aggregate.Event) {
	if e.recorder == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := e.recorder.Record(rctx, ev); err != nil {
			e.logger.Warn("failed to record detection", "sensor", ev.Name, "ghost", ev.Ghost, "error", err)
		}
	}()
}

// Wait blocks until pending aggregation requests have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
