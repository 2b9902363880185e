// Package channels fans mesh channel broadcasts out to the radio and to
// optional off-mesh mirrors.
package channels

import (
	"context"
	"log/slog"
)

// Mirror copies channel broadcasts to another chat platform.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, channel int, text string) error
}

// ChannelSender puts text on a mesh channel.
type ChannelSender interface {
	SendToChannel(ctx context.Context, channel int, text string)
}

// Fanout broadcasts on the mesh first and then on every mirror. Mirror
// failures are logged and never reach the caller.
type Fanout struct {
	mesh    ChannelSender
	mirrors []Mirror
	logger  *slog.Logger
}

func NewFanout(mesh ChannelSender, logger *slog.Logger, mirrors ...Mirror) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{mesh: mesh, mirrors: mirrors, logger: logger.With("component", "fanout")}
}

func (f *Fanout) Broadcast(ctx context.Context, channel int, text string) {
	f.mesh.SendToChannel(ctx, channel, text)
	for _, m := range f.mirrors {
		if err := m.Mirror(ctx, channel, text); err != nil {
			f.logger.Error("mirror failed", "mirror", m.Name(), "channel", channel, "error", err)
		}
	}
}

// Mirrors returns the names of the attached mirrors.
func (f *Fanout) Mirrors() []string {
	names := make([]string, 0, len(f.mirrors))
	for _, m := range f.mirrors {
		names = append(names, m.Name())
	}
	return names
}
