package relay

import (
	"fmt"
	"strconv"

	"github.com/HKUDS/meshgate-go/pkg/bus"
)

// Target addresses either a single node or a channel index.
type Target struct {
	Node      string
	Channel   int
	broadcast bool
}

// ToNode addresses node id, normalized to its "!" form.
func ToNode(id string) Target {
	return Target{Node: bus.NormalizeNodeID(id)}
}

// ToChannel addresses a channel index.
func ToChannel(index int) Target {
	return Target{Channel: index, broadcast: true}
}

// IsChannel reports whether t addresses a channel.
func (t Target) IsChannel() bool { return t.broadcast }

// Args builds the relay argument list for one chunk.
func (t Target) Args(text string) []string {
	if t.broadcast {
		return []string{"--ch-index", strconv.Itoa(t.Channel), "--sendtext", text}
	}
	return []string{"--dest", t.Node, "--sendtext", text}
}

func (t Target) String() string {
	if t.broadcast {
		return fmt.Sprintf("channel %d", t.Channel)
	}
	return t.Node
}
