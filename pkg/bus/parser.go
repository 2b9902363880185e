package bus

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// TextMessageMarker is the fixed marker the firmware logs in front of every
// received text message.
const TextMessageMarker = "Received text msg"

var (
	textMessageRegex = regexp.MustCompile(`Received text msg from=(0x[0-9a-fA-F]+), id=(0x[0-9a-fA-F]+), msg=(.*)`)
	commandRegex     = regexp.MustCompile(`^@([a-zA-Z0-9_\-]+)`)
)

// IsTextMessageLine reports whether a raw line carries the text message marker.
func IsTextMessageLine(line string) bool {
	return strings.Contains(line, TextMessageMarker)
}

// ParseLine extracts an InboundMessage from a raw diagnostic line. The msg
// field is taken verbatim up to the end of the line.
func ParseLine(line string) (InboundMessage, bool) {
	m := textMessageRegex.FindStringSubmatch(line)
	if m == nil {
		return InboundMessage{}, false
	}
	return InboundMessage{
		From:       m[1],
		ID:         m[2],
		Text:       m[3],
		ReceivedAt: time.Now(),
	}, true
}

// ParseCommand resolves the @token at the start of the message text. The
// second result reports whether the text is addressed to a service at all;
// an "@" without a valid token yields an invocation with an empty Name.
// The command name is lower-cased and the origin id normalized.
func ParseCommand(msg InboundMessage) (CommandInvocation, bool) {
	text := strings.TrimLeftFunc(msg.Text, unicode.IsSpace)
	if !strings.HasPrefix(text, "@") {
		return CommandInvocation{}, false
	}
	inv := CommandInvocation{From: NormalizeNodeID(msg.From)}
	loc := commandRegex.FindStringSubmatchIndex(text)
	if loc == nil {
		return inv, true
	}
	inv.Name = strings.ToLower(text[loc[2]:loc[3]])
	inv.Args = strings.TrimLeftFunc(text[loc[1]:], unicode.IsSpace)
	return inv, true
}
