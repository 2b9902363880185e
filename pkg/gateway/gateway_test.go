package gateway

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HKUDS/meshgate-go/pkg/alerts"
	"github.com/HKUDS/meshgate-go/pkg/channels"
	"github.com/HKUDS/meshgate-go/pkg/config"
	"github.com/HKUDS/meshgate-go/pkg/mail"
	"github.com/HKUDS/meshgate-go/pkg/msglog"
	"github.com/HKUDS/meshgate-go/pkg/radar"
	"github.com/HKUDS/meshgate-go/pkg/transport"
)

// linePort replays a fixed stream once and then behaves like an idle
// serial port with a read timeout.
type linePort struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func (p *linePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p.data) == 0 {
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *linePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *fakeRunner) Run(_ context.Context, _ time.Duration, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), args...))
	return nil
}

func (r *fakeRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

type fakeMailer struct {
	sent []mail.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type staticFetcher struct {
	alerts []alerts.Alert
}

func (f staticFetcher) Fetch(context.Context) ([]alerts.Alert, error) {
	return f.alerts, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Serial.Port = config.PortList{"/dev/fake0"}
	cfg.Relay.Pause = 0
	cfg.Warn.Enabled = false
	cfg.Log.File = filepath.Join(t.TempDir(), "messages.jsonl")
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config, port transport.Port, runner *fakeRunner) *Gateway {
	t.Helper()
	g, err := New(cfg, nil, Options{
		Opener: func(string) (transport.Port, error) {
			if port == nil {
				return &linePort{}, nil
			}
			return port, nil
		},
		Exists:  func(string) bool { return true },
		Runner:  runner,
		Mailer:  &fakeMailer{},
		Fetcher: staticFetcher{},
	})
	require.NoError(t, err)
	return g
}

func TestHandleLineTestCommand(t *testing.T) {
	runner := &fakeRunner{}
	g := newTestGateway(t, testConfig(t), nil, runner)
	defer g.Close()

	g.HandleLine(context.Background(), "INFO | 12:00:00 [Router] Received text msg from=0x1a2b, id=0x01, msg=@test")

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"--dest", "!1a2b", "--sendtext", "Ack test."}, calls[0])
}

func TestHandleLineIgnoresOtherLines(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	g := newTestGateway(t, cfg, nil, runner)
	defer g.Close()

	ctx := context.Background()
	g.HandleLine(ctx, "DEBUG | 12:00:00 [Power] Battery level 87")
	g.HandleLine(ctx, "Received text msg from=zz, id=0x01, msg=@test")
	g.HandleLine(ctx, "Received text msg from=0x1a2b, id=0x02, msg=@nosuchservice hi")
	g.HandleLine(ctx, "Received text msg from=0x1a2b, id=0x03, msg=@log anything")

	assert.Empty(t, runner.Calls())
	recent, err := msglog.NewJSONLStore(cfg.Log.File).Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent, "commands are never logged as plain messages")
}

func TestHandleLinePlainMessageIsLogged(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	g := newTestGateway(t, cfg, nil, runner)

	ctx := context.Background()
	g.HandleLine(ctx, "Received text msg from=0xbeef, id=0x2a, msg=hello everyone ")
	g.Close()

	recent, err := msglog.NewJSONLStore(cfg.Log.File).Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "!beef", recent[0].From)
	assert.Equal(t, "0x2a", recent[0].MsgID)
	assert.Equal(t, "hello everyone ", recent[0].Text)
	assert.Empty(t, runner.Calls())
}

func TestHandleLineDisabledService(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	cfg.Services = map[string]bool{"test": false, "nonexistent": true}
	g := newTestGateway(t, cfg, nil, runner)
	defer g.Close()

	g.HandleLine(context.Background(), "Received text msg from=0x1a2b, id=0x01, msg=@TEST")
	assert.Empty(t, runner.Calls())
	assert.NotContains(t, g.Registry().EnabledNames(), "test")
	assert.Contains(t, g.Registry().EnabledNames(), "echo")
}

func TestHandleLineRadarBroadcast(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	cfg.Radar = map[string]radar.Settings{"garage": {AliasName: "Garage"}}
	g := newTestGateway(t, cfg, nil, runner)
	defer g.Close()

	g.HandleLine(context.Background(), "Received text msg from=0x1a2b, id=0x05, msg=@radar #garage motion")

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"--ch-index", "3", "--sendtext"}, calls[0][:3])
	assert.True(t, strings.HasSuffix(calls[0][3], "garage motion (Radar: garage (Garage))"), calls[0][3])
}

func TestRunEndToEnd(t *testing.T) {
	runner := &fakeRunner{}
	port := &linePort{data: []byte("boot\r\nReceived text msg from=0x1a2b, id=0x01, msg=@test\r\n")}
	g := newTestGateway(t, testConfig(t), port, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return len(runner.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"--dest", "!1a2b", "--sendtext", "Ack test."}, runner.Calls()[0])
	assert.False(t, g.arbiter.IsOpen(), "device is released when the generation ends")
}

func TestRunPollsAlertsOnStart(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t)
	cfg.Warn.Enabled = true
	cfg.Warn.ChannelIndex = 2

	state := NewState()
	g, err := New(cfg, state, Options{
		Opener:  func(string) (transport.Port, error) { return &linePort{}, nil },
		Exists:  func(string) bool { return true },
		Runner:  runner,
		Mailer:  &fakeMailer{},
		Fetcher: staticFetcher{alerts: []alerts.Alert{{ID: "a1", Source: alerts.SourceDisaster, Headline: "Flood", Description: "River"}}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return len(runner.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"--ch-index", "2"}, runner.Calls()[0][:2])
	assert.True(t, state.Seen.Has("a1"))
}

type namedMirror string

func (m namedMirror) Name() string { return string(m) }

func (m namedMirror) Mirror(context.Context, int, string) error { return nil }

func TestNewAttachesMirrors(t *testing.T) {
	g, err := New(testConfig(t), nil, Options{
		Opener:  func(string) (transport.Port, error) { return &linePort{}, nil },
		Exists:  func(string) bool { return true },
		Runner:  &fakeRunner{},
		Mailer:  &fakeMailer{},
		Fetcher: staticFetcher{},
		Mirrors: []channels.Mirror{namedMirror("telegram")},
	})
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, []string{"telegram"}, g.fanout.Mirrors())
}

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func TestSuperviseRestartsAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var builds atomic.Int32
	err := Supervise(ctx, time.Millisecond, nil, func(context.Context) (Runnable, error) {
		switch builds.Add(1) {
		case 1:
			return nil, errors.New("bad config")
		case 2:
			return runFunc(func(context.Context) error { panic("boom") }), nil
		case 3:
			panic("build panic")
		default:
			return runFunc(func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return nil
			}), nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), builds.Load())
}

func TestSuperviseStopsDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Supervise(ctx, time.Hour, nil, func(context.Context) (Runnable, error) {
		return nil, errors.New("always failing")
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Minute)
}
