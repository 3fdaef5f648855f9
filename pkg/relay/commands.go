package relay

import "fmt"

// CommandID is the numeric opcode of an imperative view command. The values
// are part of the host protocol and must not change.
type CommandID int

const (
	CommandGoBack           CommandID = 1
	CommandGoForward        CommandID = 2
	CommandReload           CommandID = 3
	CommandStopLoading      CommandID = 4
	CommandPostMessage      CommandID = 5
	CommandInjectJavaScript CommandID = 6
)

func (c CommandID) String() string {
	switch c {
	case CommandGoBack:
		return "goBack"
	case CommandGoForward:
		return "goForward"
	case CommandReload:
		return "reload"
	case CommandStopLoading:
		return "stopLoading"
	case CommandPostMessage:
		return "postMessage"
	case CommandInjectJavaScript:
		return "injectJavaScript"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// CommandFromName maps a command name back to its opcode, accepting the
// camel-case names above. Used by CLI frontends; the wire protocol itself is
// numeric.
func CommandFromName(name string) (CommandID, bool) {
	for _, c := range []CommandID{
		CommandGoBack,
		CommandGoForward,
		CommandReload,
		CommandStopLoading,
		CommandPostMessage,
		CommandInjectJavaScript,
	} {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// CommandNames lists the accepted command names in opcode order.
func CommandNames() []string {
	return []string{
		CommandGoBack.String(),
		CommandGoForward.String(),
		CommandReload.String(),
		CommandStopLoading.String(),
		CommandPostMessage.String(),
		CommandInjectJavaScript.String(),
	}
}
