package server

import "strings"

// CommandKind identifies what a session does with an inbound message.
type CommandKind int

const (
	// CommandEcho sends the message back prefixed with "Echo: ".
	CommandEcho CommandKind = iota
	// CommandCount reports the number of active clients.
	CommandCount
	// CommandBroadcast relays text to every other client.
	CommandBroadcast
)

const (
	countCommand     = "/count"
	broadcastCommand = "/broadcast "
)

// Command is a parsed inbound message.
type Command struct {
	Kind CommandKind
	// Text is the stripped broadcast text or the echoed message.
	Text string
}

// ParseCommand classifies one inbound read by prefix. Exactly one trailing line
// terminator is dropped first; the rest of the message is matched as received.
func ParseCommand(message string) Command {
	message = trimLineEnding(message)
	switch {
	case message == countCommand:
		return Command{Kind: CommandCount}
	case strings.HasPrefix(message, broadcastCommand):
		return Command{
			Kind: CommandBroadcast,
			Text: strings.TrimSpace(message[len(broadcastCommand):]),
		}
	default:
		return Command{Kind: CommandEcho, Text: message}
	}
}

func trimLineEnding(message string) string {
	if strings.HasSuffix(message, "\r\n") {
		return message[:len(message)-2]
	}
	return strings.TrimSuffix(message, "\n")
}
