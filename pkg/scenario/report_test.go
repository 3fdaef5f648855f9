package scenario

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/finestra/pkg/events"
)

func TestReportMarkdown(t *testing.T) {
	started := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	r := &Report{
		Name:       "smoke",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Steps: []StepResult{
			{Index: 1, Kind: "commit", OK: true, ElapsedMs: 3},
			{Index: 2, Kind: "eval", OK: false, Detail: "41", Error: `eval returned "41", expected "42"`},
		},
		Events: []string{"load start about:blank", `load finish about:blank title="Smoke"`},
		Passed: 1,
		Failed: 1,
	}

	md := r.Markdown()
	require.Contains(t, md, "# Scenario: smoke")
	require.Contains(t, md, "**FAIL** with 1 passed and 1 failed in 1.5s")
	require.Contains(t, md, "| 1 | commit | ok |  |")
	require.Contains(t, md, `| 2 | eval | FAIL | eval returned "41", expected "42" |`)
	require.Contains(t, md, "## Events")
	require.Contains(t, md, "- load start about:blank")
	require.False(t, r.OK())
}

func TestReportMarkdownEscapesTableCells(t *testing.T) {
	r := &Report{
		Name:   "pipes",
		Steps:  []StepResult{{Index: 1, Kind: "eval", OK: true, Detail: "a|b\nc"}},
		Passed: 1,
	}
	md := r.Markdown()
	require.Contains(t, md, `| 1 | eval | ok | a\|b c |`)
	require.True(t, r.OK())
}

func TestEventLineShapes(t *testing.T) {
	meta := events.EventMetadata{View: 4}
	start := events.NewLoadStartEvent(meta, events.PageSnapshot{URI: "https://a.test/", Loading: true})
	finish := events.NewLoadFinishEvent(meta, events.PageSnapshot{URI: "https://a.test/", Title: "A"})
	fail := events.NewLoadErrorEvent(meta, 404, "not found")
	msg := events.NewMessageEvent(meta, "hi")
	gone := events.NewDetachedEvent(meta)

	require.Equal(t, "load start https://a.test/", eventLine(start))
	require.Equal(t, `load finish https://a.test/ title="A"`, eventLine(finish))
	require.Equal(t, "load error status=404 not found", eventLine(fail))
	require.Equal(t, "message hi", eventLine(msg))
	require.Equal(t, "detached", eventLine(gone))
}
