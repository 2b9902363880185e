package services

import (
	"context"
	"fmt"
	"strings"
)

// TestService acknowledges reachability.
type TestService struct {
	out Replier
}

func NewTestService(out Replier) *TestService { return &TestService{out: out} }

func (s *TestService) Name() string        { return "test" }
func (s *TestService) Description() string { return "Replies with an acknowledgement." }

func (s *TestService) Handle(ctx context.Context, req Request) {
	s.out.SendToNode(ctx, req.From, "Ack test.")
}

// maxEchoLength is the frame size of a single channel broadcast.
const maxEchoLength = 200

// EchoService repeats a message on a channel, tagged with its sender.
type EchoService struct {
	out     Replier
	channel int
}

func NewEchoService(out Replier, channel int) *EchoService {
	return &EchoService{out: out, channel: channel}
}

func (s *EchoService) Name() string        { return "echo" }
func (s *EchoService) Description() string { return "Repeats the message on the public channel." }

func (s *EchoService) Handle(ctx context.Context, req Request) {
	prefix := fmt.Sprintf("[ECHO/%s] ", req.From)
	msg := []rune(strings.TrimSpace(req.Args))
	if allowed := maxEchoLength - len([]rune(prefix)); len(msg) > allowed {
		msg = msg[:max(allowed, 0)]
	}
	s.out.Broadcast(ctx, s.channel, prefix+string(msg))
}

// Lister reports the enabled services.
type Lister interface {
	EnabledNames() []string
}

// InfoService lists the enabled services.
type InfoService struct {
	out      Replier
	registry Lister
}

func NewInfoService(out Replier, registry Lister) *InfoService {
	return &InfoService{out: out, registry: registry}
}

func (s *InfoService) Name() string        { return "info" }
func (s *InfoService) Description() string { return "Lists the enabled services." }

func (s *InfoService) Handle(ctx context.Context, req Request) {
	names := s.registry.EnabledNames()
	var b strings.Builder
	b.WriteString("Enabled services:")
	for _, name := range names {
		b.WriteString("\n@")
		b.WriteString(name)
	}
	s.out.SendToNode(ctx, req.From, b.String())
}

// IgnoreService swallows the command. Devices use it to address the
// gateway without triggering a reply.
type IgnoreService struct{}

func (IgnoreService) Name() string                  { return "ignore" }
func (IgnoreService) Description() string           { return "Does nothing." }
func (IgnoreService) Handle(context.Context, Request) {}
