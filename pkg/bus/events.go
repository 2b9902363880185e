package bus

import (
	"strings"
	"time"
)

// InboundMessage represents a text message the radio node reported on its
// diagnostic stream.
type InboundMessage struct {
	From       string    `json:"from"`
	ID         string    `json:"msg_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"timestamp"`
}

// CommandInvocation is an inbound message addressed to a service with a
// leading @token.
type CommandInvocation struct {
	Name string `json:"name"`
	Args string `json:"args"`
	From string `json:"from"`
}

// NormalizeNodeID rewrites a 0x-prefixed node id into the !-prefixed form the
// relay CLI and the message log expect. Any other input is returned as is.
func NormalizeNodeID(id string) string {
	if strings.HasPrefix(id, "0x") {
		return "!" + id[2:]
	}
	return id
}
