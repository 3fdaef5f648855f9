package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ViewHandle identifies one live web view. Handles are assigned by the host
// and are never reused while the view is attached.
type ViewHandle int64

// TopicForView returns the per-view event topic.
func TopicForView(h ViewHandle) string {
	return fmt.Sprintf("webview:%d", h)
}

type EventType string

const (
	// EventTypeLoadStart fires when a navigation has been handed to the view.
	EventTypeLoadStart EventType = "load-start"
	// EventTypeLoadFinish fires when the view reports the navigation settled.
	EventTypeLoadFinish EventType = "load-finish"
	// EventTypeLoadError fires when the view reports a failed navigation.
	EventTypeLoadError EventType = "load-error"
	// EventTypeMessage carries a string posted by page script.
	EventTypeMessage EventType = "message"
	// EventTypeDetached marks the end of a view's event stream.
	EventTypeDetached EventType = "detached"
)

// EventMetadata identifies which view an event belongs to.
type EventMetadata struct {
	ID      uuid.UUID  `json:"id"`
	View    ViewHandle `json:"view"`
	Session string     `json:"session,omitempty"`
}

func (em EventMetadata) String() string {
	return fmt.Sprintf("view %d (%s)", em.View, em.ID)
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	// Payload returns the raw JSON this event was decoded from, or nil for
	// locally constructed events.
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	payload []byte
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }
func (e *EventImpl) Payload() []byte         { return e.payload }

var _ Event = &EventImpl{}

// PageSnapshot is the view state reported alongside load events.
type PageSnapshot struct {
	URI          string `json:"uri"`
	Title        string `json:"title,omitempty"`
	Loading      bool   `json:"loading"`
	CanGoBack    bool   `json:"canGoBack"`
	CanGoForward bool   `json:"canGoForward"`
}

// EventLoad is emitted at both edges of a navigation, distinguished by type.
type EventLoad struct {
	EventImpl
	Page PageSnapshot `json:"page"`
}

func NewLoadStartEvent(meta EventMetadata, page PageSnapshot) *EventLoad {
	return &EventLoad{
		EventImpl: EventImpl{Type_: EventTypeLoadStart, Metadata_: withID(meta)},
		Page:      page,
	}
}

func NewLoadFinishEvent(meta EventMetadata, page PageSnapshot) *EventLoad {
	return &EventLoad{
		EventImpl: EventImpl{Type_: EventTypeLoadFinish, Metadata_: withID(meta)},
		Page:      page,
	}
}

// EventLoadError carries the platform status code of a failed navigation.
type EventLoadError struct {
	EventImpl
	StatusCode int    `json:"status"`
	Message    string `json:"message,omitempty"`
}

func NewLoadErrorEvent(meta EventMetadata, statusCode int, message string) *EventLoadError {
	return &EventLoadError{
		EventImpl:  EventImpl{Type_: EventTypeLoadError, Metadata_: withID(meta)},
		StatusCode: statusCode,
		Message:    message,
	}
}

// EventMessage is a string handed to window.external.notify (or the bridge
// postMessage shim) by page script.
type EventMessage struct {
	EventImpl
	Data string `json:"data"`
}

func NewMessageEvent(meta EventMetadata, data string) *EventMessage {
	return &EventMessage{
		EventImpl: EventImpl{Type_: EventTypeMessage, Metadata_: withID(meta)},
		Data:      data,
	}
}

type EventDetached struct {
	EventImpl
}

func NewDetachedEvent(meta EventMetadata) *EventDetached {
	return &EventDetached{
		EventImpl: EventImpl{Type_: EventTypeDetached, Metadata_: withID(meta)},
	}
}

func withID(meta EventMetadata) EventMetadata {
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	return meta
}

// NewEventFromJson decodes a wire payload into its concrete event type.
func NewEventFromJson(b []byte) (Event, error) {
	var probe struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, errors.Wrap(err, "could not decode event envelope")
	}

	switch probe.Type {
	case EventTypeLoadStart, EventTypeLoadFinish:
		ev := &EventLoad{}
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrapf(err, "could not decode %s event", probe.Type)
		}
		ev.payload = b
		return ev, nil
	case EventTypeLoadError:
		ev := &EventLoadError{}
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrap(err, "could not decode load-error event")
		}
		ev.payload = b
		return ev, nil
	case EventTypeMessage:
		ev := &EventMessage{}
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrap(err, "could not decode message event")
		}
		ev.payload = b
		return ev, nil
	case EventTypeDetached:
		ev := &EventDetached{}
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrap(err, "could not decode detached event")
		}
		ev.payload = b
		return ev, nil
	default:
		return nil, errors.Errorf("unknown event type %q", probe.Type)
	}
}
