package bridge

import (
	"encoding/json"

	"github.com/go-go-golems/finestra/pkg/relay"
)

// Frame is one inbound websocket control frame. Type selects the operation;
// the remaining fields are per-type payloads. ID is an optional client
// correlation token echoed on replies.
type Frame struct {
	Type   string       `json:"type"`
	Props  *relay.Props `json:"props,omitempty"`
	Opcode int          `json:"opcode,omitempty"`
	Args   []string     `json:"args,omitempty"`
	Script string       `json:"script,omitempty"`
	ID     string       `json:"id,omitempty"`
}

const (
	FrameUpdate  = "update"
	FrameCommit  = "commit"
	FrameCommand = "command"
	FrameEval    = "eval"
	FrameDetach  = "detach"
)

// wrapEvent wraps a raw event payload in the outbound websocket envelope.
func wrapEvent(raw []byte) []byte {
	b, _ := json.Marshal(map[string]any{"wv": true, "event": json.RawMessage(raw)})
	return b
}

// evalReply builds the response frame for an eval request.
func evalReply(id string, value string, err error) []byte {
	payload := map[string]any{"id": id}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["value"] = value
	}
	b, _ := json.Marshal(map[string]any{"wv": true, "eval": payload})
	return b
}

// errorReply reports a failed inbound frame back to its sender.
func errorReply(id string, op string, err error) []byte {
	b, _ := json.Marshal(map[string]any{"wv": true, "error": map[string]any{
		"id":      id,
		"op":      op,
		"message": err.Error(),
	}})
	return b
}
