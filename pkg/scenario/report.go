package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/finestra/pkg/events"
)

// Report is the outcome of one scenario run.
type Report struct {
	Name       string       `json:"name"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
	Events     []string     `json:"events,omitempty"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
}

type StepResult struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

func (r *Report) OK() bool {
	return r.Failed == 0
}

// Markdown renders the report for terminal display (glamour handles the
// styling downstream).
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scenario: %s\n\n", r.Name)

	status := "PASS"
	if r.Failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "**%s** with %d passed and %d failed in %s\n\n",
		status, r.Passed, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	b.WriteString("| # | step | ok | detail |\n")
	b.WriteString("|---|------|----|--------|\n")
	for _, s := range r.Steps {
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", s.Index, s.Kind, okMark(s.OK), mdCell(detail))
	}

	if len(r.Events) > 0 {
		b.WriteString("\n## Events\n\n")
		for _, line := range r.Events {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	return b.String()
}

func okMark(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}

func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// eventLine renders one event as plain text for the report. The styled
// renderer in pkg/events targets live terminals, not markdown.
func eventLine(e events.Event) string {
	switch ev := e.(type) {
	case *events.EventLoad:
		label := "load start"
		if ev.Type() == events.EventTypeLoadFinish {
			label = "load finish"
		}
		if ev.Page.Title != "" {
			return fmt.Sprintf("%s %s title=%q", label, ev.Page.URI, ev.Page.Title)
		}
		return fmt.Sprintf("%s %s", label, ev.Page.URI)
	case *events.EventLoadError:
		return fmt.Sprintf("load error status=%d %s", ev.StatusCode, ev.Message)
	case *events.EventMessage:
		return fmt.Sprintf("message %s", ev.Data)
	case *events.EventDetached:
		return "detached"
	default:
		return string(e.Type())
	}
}
