package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/charmbracelet/lipgloss"
)

var (
	viewStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	startStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	finishStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("118"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// AddPrettyHandler prints a readable stream of view events to a writer.
func AddPrettyHandler(router *EventRouter, name string, topic string, w io.Writer) {
	router.AddHandler(name, topic, func(msg *message.Message) error {
		defer msg.Ack()
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		fmt.Fprint(w, FormatEvent(e))
		return nil
	})
}

// PrinterSink writes each event through FormatEvent as it arrives, without
// going through a message router. Used by interactive frontends that want
// the stream inline with their prompt.
type PrinterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPrinterSink(w io.Writer) *PrinterSink {
	return &PrinterSink{w: w}
}

func (s *PrinterSink) PublishEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, FormatEvent(e))
	return err
}

var _ Sink = &PrinterSink{}

// FormatEvent renders one event as a terminal line (or block), including the
// trailing newline.
func FormatEvent(e Event) string {
	prefix := viewStyle.Render(fmt.Sprintf("[view %d]", e.Metadata().View))

	switch ev := e.(type) {
	case *EventLoad:
		style := startStyle
		label := "load start"
		if ev.Type() == EventTypeLoadFinish {
			style = finishStyle
			label = "load finish"
		}
		parts := []string{prefix, style.Render(label), detailStyle.Render(ev.Page.URI)}
		if ev.Page.Title != "" {
			parts = append(parts, detailStyle.Render(fmt.Sprintf("title=%q", ev.Page.Title)))
		}
		parts = append(parts, detailStyle.Render(fmt.Sprintf("back=%t forward=%t", ev.Page.CanGoBack, ev.Page.CanGoForward)))
		return strings.Join(parts, " ") + "\n"
	case *EventLoadError:
		return fmt.Sprintf("%s %s %s\n",
			prefix,
			errorStyle.Render(fmt.Sprintf("load error (status %d)", ev.StatusCode)),
			detailStyle.Render(ev.Message),
		)
	case *EventMessage:
		data := ev.Data
		if s := strings.TrimSpace(data); strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			var tmp interface{}
			if err := json.Unmarshal([]byte(data), &tmp); err == nil {
				if b, err := json.MarshalIndent(tmp, "", "  "); err == nil {
					data = string(b)
				}
			}
		}
		return fmt.Sprintf("%s %s\n%s\n", prefix, messageStyle.Render("message"), detailStyle.Render(data))
	case *EventDetached:
		return fmt.Sprintf("%s %s\n", prefix, detailStyle.Render("detached"))
	default:
		return fmt.Sprintf("%s %s\n", prefix, detailStyle.Render(string(e.Type())))
	}
}
