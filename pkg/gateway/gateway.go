// Package gateway wires the transport, parser, dispatch registry, sender,
// radar engine and alert poller into one running generation and keeps
// generations alive under a supervisor.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HKUDS/meshgate-go/pkg/aggregate"
	"github.com/HKUDS/meshgate-go/pkg/alerts"
	"github.com/HKUDS/meshgate-go/pkg/bus"
	"github.com/HKUDS/meshgate-go/pkg/channels"
	"github.com/HKUDS/meshgate-go/pkg/config"
	"github.com/HKUDS/meshgate-go/pkg/cron"
	"github.com/HKUDS/meshgate-go/pkg/mail"
	"github.com/HKUDS/meshgate-go/pkg/metrics"
	"github.com/HKUDS/meshgate-go/pkg/msglog"
	"github.com/HKUDS/meshgate-go/pkg/radar"
	"github.com/HKUDS/meshgate-go/pkg/relay"
	"github.com/HKUDS/meshgate-go/pkg/services"
	"github.com/HKUDS/meshgate-go/pkg/transport"
)

// State outlives a single generation.
type State struct {
	Memory *radar.Memory
	Seen   *alerts.SeenSet
}

func NewState() *State {
	return &State{Memory: radar.NewMemory(), Seen: alerts.NewSeenSet()}
}

// Options replaces the production collaborators. Zero fields fall back to
// the real serial device, relay CLI and SMTP mailer.
type Options struct {
	Opener  transport.Opener
	Exists  func(path string) bool
	Runner  relay.Runner
	Mailer  mail.Mailer
	Mirrors []channels.Mirror
	// Fetcher overrides the alert feed client.
	Fetcher alerts.Fetcher
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Gateway is one generation of the running process.
type Gateway struct {
	cfg       *config.Config
	arbiter   *transport.Arbiter
	reader    *transport.Reader
	sender    *relay.Sender
	fanout    *channels.Fanout
	registry  *services.Registry
	engine    *radar.Engine
	msglog    *msglog.Logger
	poller    *alerts.Poller
	scheduler *cron.Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// outbound is the Replier handed to services: direct messages go through
// the sender, channel broadcasts through the fan-out.
type outbound struct {
	*relay.Sender
	fanout *channels.Fanout
}

func (o outbound) Broadcast(ctx context.Context, channel int, text string) {
	o.fanout.Broadcast(ctx, channel, text)
}

// New builds a generation from cfg. state may be nil.
func New(cfg *config.Config, state *State, opts Options) (*Gateway, error) {
	if state == nil {
		state = NewState()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		cfg:     cfg,
		logger:  logger.With("component", "gateway"),
		metrics: opts.Metrics,
	}

	opener := opts.Opener
	if opener == nil {
		opener = transport.SerialOpener(cfg.Serial.Baud, config.Seconds(cfg.Serial.ReadTimeout))
	}
	g.arbiter = transport.NewArbiter(transport.ArbiterConfig{
		Candidates:   cfg.Serial.Port,
		PollInterval: config.Seconds(cfg.Serial.ReconnectDelay),
		Opener:       opener,
		Exists:       opts.Exists,
		Logger:       logger,
	})
	g.reader = transport.NewReader(g.arbiter, g.HandleLine, config.Seconds(cfg.Serial.ReconnectDelay), logger, opts.Metrics)

	runner := opts.Runner
	if runner == nil {
		runner = relay.NewCLIRunner(cfg.Relay.CLIPath)
	}
	g.sender = relay.NewSender(g.arbiter, runner, relay.Config{
		ChunkSize:    cfg.Relay.ChunkSize,
		Timeout:      config.Seconds(cfg.Relay.Timeout),
		RetryTimeout: config.Seconds(cfg.Relay.RetryTimeout),
		Pause:        config.Seconds(cfg.Relay.Pause),
	}, logger, opts.Metrics)

	g.fanout = channels.NewFanout(g.sender, logger, opts.Mirrors...)
	out := outbound{Sender: g.sender, fanout: g.fanout}

	mailer := opts.Mailer
	if mailer == nil {
		mailer = mail.NewSMTPMailer(mail.Config{
			Server:        cfg.Mail.SMTP.Server,
			Port:          cfg.Mail.SMTP.Port,
			User:          cfg.Mail.SMTP.User,
			Password:      cfg.Mail.SMTP.Password,
			DefaultSender: cfg.Mail.DefaultSender,
		})
	}

	engineOpts := []radar.Option{radar.WithLogger(logger)}
	if agg := aggregate.NewClient(cfg.Aggregation.URL, cfg.Aggregation.Key); agg.Configured() {
		engineOpts = append(engineOpts, radar.WithRecorder(agg))
	}
	if opts.Mailer != nil || cfg.Mail.SMTP.Server != "" {
		engineOpts = append(engineOpts, radar.WithMailer(mailer))
	}
	g.engine = radar.NewEngine(radar.Config{
		Sensors:    cfg.Radar,
		Channel:    cfg.RadarChannelIndex,
		Tuning:     cfg.RadarTuning(),
		SenderName: cfg.Mail.DefaultSender,
	}, state.Memory, out, engineOpts...)

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = alerts.NewClient(cfg.Warn.DWDURL, cfg.Warn.MoWaSURL, cfg.Warn.State, cfg.Warn.MinLevel)
	}
	g.poller = alerts.NewPoller(fetcher, state.Seen, out, cfg.Warn.ChannelIndex, logger, opts.Metrics)

	if cfg.Log.Enabled {
		store, err := msglog.OpenStore(cfg.Log.File)
		if err != nil {
			return nil, fmt.Errorf("open message log: %w", err)
		}
		var collector *msglog.Collector
		if cfg.LogEnabled() {
			collector = msglog.NewCollector(cfg.Log.APIURL, cfg.Log.APIKey)
		}
		g.msglog = msglog.NewLogger(store, collector, logger)
	}

	g.registry = buildRegistry(cfg, out, mailer, g.engine, g.poller, logger, opts.Metrics)

	if cfg.Warn.Enabled {
		g.scheduler = cron.NewService(logger)
		spec := fmt.Sprintf("@every %ds", cfg.Warn.Interval)
		if _, err := g.scheduler.AddJob("alerts", spec, true, func(ctx context.Context) error {
			g.poller.Poll(ctx)
			return nil
		}); err != nil {
			g.Close()
			return nil, fmt.Errorf("schedule alert poller: %w", err)
		}
	}

	return g, nil
}

func buildRegistry(cfg *config.Config, out services.Replier, mailer mail.Mailer, engine *radar.Engine,
	poller *alerts.Poller, logger *slog.Logger, m *metrics.Metrics) *services.Registry {
	r := services.NewRegistry(cfg.Services, logger, m)
	r.Add(services.NewMailService(out, mailer, logger))
	r.Add(services.NewTestService(out))
	r.Add(services.NewWeatherService(out, cfg.Weather.URL))
	r.Add(services.NewSearchService(out, cfg.Search.URL, cfg.Search.MaxResults, cfg.Search.SummaryWords, logger))
	r.Add(services.NewNewsService(out, cfg.News.FeedURL, cfg.News.MaxItems))
	r.Add(services.NewWikiService(out, cfg.Wiki.URL, cfg.Wiki.Languages))
	r.Add(services.NewTranslateService(out, cfg.Translate.URL))
	r.Add(services.NewInfoService(out, r))
	r.Add(services.NewEchoService(out, cfg.EchoChannelIndex))
	r.Add(services.NewWarnService(out, poller, cfg.Warn.State))
	r.Add(services.NewRadarService(engine, m))
	r.Add(services.IgnoreService{})
	r.Register("log", nil)
	return r
}

// Registry exposes the dispatch table.
func (g *Gateway) Registry() *services.Registry { return g.registry }

// Sender exposes the outbound sender.
func (g *Gateway) Sender() *relay.Sender { return g.sender }

// Broadcast sends text on a channel and its mirrors.
func (g *Gateway) Broadcast(ctx context.Context, channel int, text string) {
	g.fanout.Broadcast(ctx, channel, text)
}

// HandleLine processes one raw device line on the reader goroutine. Lines
// without the text message marker are ignored; commands are dispatched
// synchronously and every other message goes to the message log.
func (g *Gateway) HandleLine(ctx context.Context, line string) {
	if !bus.IsTextMessageLine(line) {
		return
	}
	msg, ok := bus.ParseLine(line)
	if !ok {
		g.logger.Debug("unparseable text message line", "line", line)
		return
	}
	g.metrics.MessageParsed()
	g.logger.Info("received message", "from", msg.From, "id", msg.ID, "text", msg.Text)

	if inv, isCommand := bus.ParseCommand(msg); isCommand {
		g.registry.Dispatch(ctx, inv, msg.ReceivedAt)
		return
	}
	if g.msglog == nil {
		return
	}
	if err := g.msglog.Log(ctx, msg); err != nil {
		g.logger.Error("failed to log message", "error", err)
	}
}

// Run runs the reader and the alert scheduler until ctx is done or one of
// them fails. Resources are released before Run returns.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.Close()

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(recovered("reader", func() error { return g.reader.Run(gctx) }))
	if g.scheduler != nil {
		eg.Go(recovered("scheduler", func() error { return g.scheduler.Run(gctx) }))
	}

	g.logger.Info("gateway started", "ports", []string(g.cfg.Serial.Port), "services", g.registry.EnabledNames(),
		"mirrors", g.fanout.Mirrors())
	if g.scheduler != nil {
		for _, j := range g.scheduler.ListJobs() {
			g.logger.Info("scheduled job", "name", j.Name, "spec", j.Spec, "run_on_start", j.RunOnStart)
		}
	}
	err := eg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the device and waits for background aggregation requests.
func (g *Gateway) Close() {
	if g.arbiter.IsOpen() {
		g.logger.Info("releasing device", "path", g.arbiter.Path())
	}
	if err := g.arbiter.Close(); err != nil {
		g.logger.Warn("error closing device", "error", err)
	}
	g.engine.Wait()
	if g.msglog != nil {
		if err := g.msglog.Close(); err != nil {
			g.logger.Warn("error closing message log", "error", err)
		}
	}
}

func recovered(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s panicked: %v\n%s", name, r, debug.Stack())
			}
		}()
		return fn()
	}
}

// Runnable is a built generation.
type Runnable interface {
	Run(ctx context.Context) error
}

// BuildFunc reloads configuration and builds the next generation.
type BuildFunc func(ctx context.Context) (Runnable, error)

// Supervise runs generations until ctx is done. A generation that fails to
// build, returns an error or panics is logged and replaced after delay.
func Supervise(ctx context.Context, delay time.Duration, logger *slog.Logger, build BuildFunc) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "supervisor")

	for generation := 1; ; generation++ {
		err := runGeneration(ctx, build)
		if ctx.Err() != nil {
			logger.Info("supervisor stopped")
			return nil
		}
		if err == nil {
			err = fmt.Errorf("generation ended unexpectedly")
		}
		logger.Error("gateway failed, restarting", "generation", generation, "error", err, "delay", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func runGeneration(ctx context.Context, build BuildFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	g, err := build(ctx)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return g.Run(ctx)
}
