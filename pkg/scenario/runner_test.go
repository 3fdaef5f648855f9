package scenario

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/relay"
)

func intp(i int) *int { return &i }

func mapControlBuilder(pages ...*headless.Page) func() (relay.Control, error) {
	fetcher := headless.NewMapFetcher(pages...)
	return func() (relay.Control, error) {
		return headless.NewControl(headless.WithFetcher(fetcher)), nil
	}
}

func TestRunnerInlineDrive(t *testing.T) {
	sc, err := Load(strings.NewReader(driveYAML))
	require.NoError(t, err)

	report, err := NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.OK(), "steps: %+v", report.Steps)
	require.Equal(t, 6, report.Passed)
	require.Equal(t, 0, report.Failed)
	require.Len(t, report.Steps, 6)

	require.Equal(t, "Drive", report.Steps[2].Detail)
	require.Equal(t, "reload", report.Steps[3].Detail)

	joined := strings.Join(report.Events, "\n")
	require.Contains(t, joined, `load finish about:blank title="Drive"`)
}

func TestRunnerRemoteDrive(t *testing.T) {
	sc := &Scenario{
		Name:  "remote drive",
		Props: &relay.Props{Source: &relay.Source{URI: relay.StringProp("https://app.test/home")}},
		Steps: []Step{
			{Commit: true},
			{Expect: &Expectation{Event: "load-finish", URI: "https://app.test/home", Title: "Home"}},
			{Command: &CommandStep{Opcode: int(relay.CommandReload)}},
			{Expect: &Expectation{Event: "load-finish", URI: "https://app.test/home"}},
		},
	}

	builder := mapControlBuilder(&headless.Page{
		URI:   "https://app.test/home",
		Title: "Home",
		HTML:  "<title>Home</title>",
	})
	report, err := NewRunner(WithControlBuilder(builder)).Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.OK(), "steps: %+v", report.Steps)
	require.Equal(t, 4, report.Passed)
}

func TestRunnerExpectationsConsumeInOrder(t *testing.T) {
	// The second expect must not re-match the first load-finish.
	sc := &Scenario{
		Name:  "ordered",
		Props: &relay.Props{Source: &relay.Source{HTML: relay.StringProp("<title>One</title>")}},
		Steps: []Step{
			{Commit: true},
			{Expect: &Expectation{Event: "load-finish", Title: "One"}},
			{Update: &relay.Props{Source: &relay.Source{HTML: relay.StringProp("<title>Two</title>")}}},
			{Commit: true},
			{Expect: &Expectation{Event: "load-finish", Title: "Two"}},
			{Expect: &Expectation{Event: "load-finish", Title: "One", TimeoutMs: 50}},
		},
	}

	report, err := NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	require.Equal(t, 5, report.Passed)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.Steps[5].Error, "no load-finish event matched")
}

func TestRunnerMessageEcho(t *testing.T) {
	sc := &Scenario{
		Name: "echo",
		Props: &relay.Props{
			MessagingEnabled: relay.BoolProp(true),
			Source:           &relay.Source{HTML: relay.StringProp("<title>Echo</title>")},
		},
		Steps: []Step{
			{Commit: true},
			{Eval: &EvalStep{Script: "__viewBridge.onMessage = function (m) { external.notify('echo:' + m); }"}},
			{Post: relay.StringProp("ping")},
			{Expect: &Expectation{Event: "message", Data: "echo:ping"}},
		},
	}

	report, err := NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.OK(), "steps: %+v", report.Steps)
	require.Contains(t, report.Events, "message echo:ping")
}

func TestRunnerLoadErrorExpectation(t *testing.T) {
	sc := &Scenario{
		Name:  "missing page",
		Props: &relay.Props{Source: &relay.Source{URI: relay.StringProp("https://app.test/gone")}},
		Steps: []Step{
			{Commit: true},
			{Expect: &Expectation{Event: "load-error", Status: intp(404)}},
		},
	}

	report, err := NewRunner(WithControlBuilder(mapControlBuilder())).Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.OK(), "steps: %+v", report.Steps)
}

func TestRunnerRecordsFailuresAndContinues(t *testing.T) {
	sc := &Scenario{
		Name:  "flaky",
		Props: &relay.Props{Source: &relay.Source{HTML: relay.StringProp("<title>Flaky</title>")}},
		Steps: []Step{
			{Commit: true},
			{Eval: &EvalStep{Script: "6*7", Result: relay.StringProp("43")}},
			{Expect: &Expectation{Event: "message", TimeoutMs: 50}},
			{Eval: &EvalStep{Script: "document.title", Result: relay.StringProp("Flaky")}},
		},
	}

	report, err := NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, 2, report.Passed)
	require.Equal(t, 2, report.Failed)

	require.False(t, report.Steps[1].OK)
	require.Contains(t, report.Steps[1].Error, `eval returned "42", expected "43"`)
	require.False(t, report.Steps[2].OK)
	require.Contains(t, report.Steps[2].Error, "no message event matched")
	require.True(t, report.Steps[3].OK)
}

func TestRunnerRejectsInvalidScenario(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), &Scenario{Name: "empty"})
	require.ErrorContains(t, err, "no steps")
}

func TestRunnerStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &Scenario{Name: "canceled", Steps: []Step{{Commit: true}}}
	report, err := NewRunner().Run(ctx, sc)
	require.ErrorContains(t, err, "scenario interrupted")
	require.NotNil(t, report)
	require.Empty(t, report.Steps)
}

func TestRunnerSleepStepWaits(t *testing.T) {
	sc := &Scenario{
		Name:  "sleepy",
		Steps: []Step{{Commit: true}, {SleepMs: 30}},
	}

	started := time.Now()
	report, err := NewRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
	require.Equal(t, "30ms", report.Steps[1].Detail)
}
