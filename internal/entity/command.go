// ABOUTME: Slash-command detection over whole inbound messages
// ABOUTME: A message is a command only when it is nothing but a command

package entity

import (
	"regexp"
	"strings"
)

// commandRe matches a message that consists entirely of one slash
// command plus optional arguments on a single line. A slash
// mid-sentence is not a command, and neither is a multi-line message.
var commandRe = regexp.MustCompile(`^\s*/(\w+)(?:\s+(.*))?$`)

// ParseCommand extracts a command from an inbound message. Names are
// lowercased and arguments trimmed; isCommand is false for anything
// that is not wholly a command.
func ParseCommand(text string) (isCommand bool, name, args string) {
	m := commandRe.FindStringSubmatch(text)
	if m == nil {
		return false, "", ""
	}
	return true, strings.ToLower(m[1]), strings.TrimSpace(m[2])
}
