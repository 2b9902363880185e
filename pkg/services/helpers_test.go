package services

import (
	"context"
	"sync"
)

type sent struct {
	node    string
	channel int
	text    string
}

type fakeReplier struct {
	mu         sync.Mutex
	toNode     []sent
	broadcasts []sent
}

func (f *fakeReplier) SendToNode(_ context.Context, node, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toNode = append(f.toNode, sent{node: node, text: text})
}

func (f *fakeReplier) Broadcast(_ context.Context, channel int, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sent{channel: channel, text: text})
}

func (f *fakeReplier) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.toNode) == 0 {
		return ""
	}
	return f.toNode[len(f.toNode)-1].text
}

type funcService struct {
	name string
	fn   func(ctx context.Context, req Request)
}

func (s funcService) Name() string                            { return s.name }
func (s funcService) Description() string                     { return s.name }
func (s funcService) Handle(ctx context.Context, req Request) { s.fn(ctx, req) }
