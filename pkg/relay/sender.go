package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/HKUDS/meshgate-go/pkg/metrics"
)

// Transport grants exclusive use of the device for one send window.
type Transport interface {
	WithTemporaryRelease(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config configures a Sender.
type Config struct {
	ChunkSize    int
	Timeout      time.Duration
	RetryTimeout time.Duration
	Pause        time.Duration
}

// DefaultConfig returns the frame size and timings of the mesh relay.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    200,
		Timeout:      15 * time.Second,
		RetryTimeout: 30 * time.Second,
		Pause:        2 * time.Second,
	}
}

// Result summarizes one Send call.
type Result struct {
	Chunks    int
	Delivered int
}

// Sender chunks outbound text and pushes each chunk through the relay.
type Sender struct {
	transport Transport
	runner    Runner
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSender creates a Sender. Zero fields in cfg take their defaults.
func NewSender(t Transport, r Runner, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Sender {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = def.RetryTimeout
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		transport: t,
		runner:    r,
		cfg:       cfg,
		logger:    logger.With("component", "sender"),
		metrics:   m,
	}
}

// Send delivers text to target chunk by chunk. Blank text is a no-op.
// Chunks that fail twice are logged and dropped.
func (s *Sender) Send(ctx context.Context, target Target, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}
	if !target.IsChannel() {
		target = ToNode(target.Node)
	}

	chunks := Chunk(text, s.cfg.ChunkSize)
	res := Result{Chunks: len(chunks)}
	for i, chunk := range chunks {
		log := s.logger.With("target", target.String(), "block", i+1, "blocks", len(chunks))
		log.Info("sending message", "text", chunk)

		err := s.transport.WithTemporaryRelease(ctx, func(ctx context.Context) error {
			err := s.attempt(ctx, log, target, chunk)
			pause(ctx, s.cfg.Pause)
			return err
		})
		if err != nil {
			s.metrics.ChunkDropped()
			log.Error("chunk dropped", "error", err)
			continue
		}
		res.Delivered++
	}
	return res
}

func (s *Sender) attempt(ctx context.Context, log *slog.Logger, target Target, chunk string) error {
	args := target.Args(chunk)

	err := s.runner.Run(ctx, s.cfg.Timeout, args)
	s.metrics.RelayAttempt("first", err == nil)
	if err == nil {
		log.Info("message sent")
		return nil
	}
	log.Warn("first send attempt failed, retrying", "error", err, "timeout", s.cfg.RetryTimeout)

	err = s.runner.Run(ctx, s.cfg.RetryTimeout, args)
	s.metrics.RelayAttempt("retry", err == nil)
	if err == nil {
		log.Info("message sent on second attempt")
	}
	return err
}

// SendToNode sends text to a single node.
func (s *Sender) SendToNode(ctx context.Context, node, text string) {
	s.Send(ctx, ToNode(node), text)
}

// SendToChannel broadcasts text on a channel index.
func (s *Sender) SendToChannel(ctx context.Context, channel int, text string) {
	s.Send(ctx, ToChannel(channel), text)
}

// Chunk splits text into consecutive pieces of at most size runes.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
