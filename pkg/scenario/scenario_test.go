package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/finestra/pkg/relay"
)

const driveYAML = `name: inline drive
props:
  messagingEnabled: true
  source:
    html: "<title>Drive</title><p>hi</p>"
steps:
  - commit: true
  - expect:
      event: load-finish
      title: Drive
  - eval:
      script: document.title
      result: Drive
  - command:
      name: reload
  - post: ping
  - sleep_ms: 5
`

func TestLoadParsesEveryStepKind(t *testing.T) {
	sc, err := Load(strings.NewReader(driveYAML))
	require.NoError(t, err)
	require.Equal(t, "inline drive", sc.Name)
	require.NotNil(t, sc.Props)
	require.NotNil(t, sc.Props.Source)
	require.NotNil(t, sc.Props.Source.HTML)
	require.NotNil(t, sc.Props.MessagingEnabled)
	require.True(t, *sc.Props.MessagingEnabled)

	kinds := []string{}
	for _, step := range sc.Steps {
		kinds = append(kinds, step.Kind())
	}
	require.Equal(t, []string{"commit", "expect", "eval", "command", "post", "sleep_ms"}, kinds)

	require.Equal(t, "load-finish", sc.Steps[1].Expect.Event)
	require.Equal(t, "Drive", sc.Steps[1].Expect.Title)
	require.NotNil(t, sc.Steps[2].Eval.Result)
	require.Equal(t, "Drive", *sc.Steps[2].Eval.Result)
	require.Equal(t, "reload", sc.Steps[3].Command.Name)
	require.Equal(t, "ping", *sc.Steps[4].Post)
	require.Equal(t, 5, sc.Steps[5].SleepMs)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("name: typo\nsteps:\n  - commmit: true\n"))
	require.Error(t, err)
	require.ErrorContains(t, err, "could not decode scenario yaml")
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "could not open scenario")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(driveYAML), 0o644))

	sc, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "inline drive", sc.Name)
	require.Len(t, sc.Steps, 6)
}

func TestValidateRejectsAmbiguousStep(t *testing.T) {
	sc := &Scenario{
		Name:  "bad",
		Steps: []Step{{Commit: true, Post: relay.StringProp("hi")}},
	}
	err := sc.Validate()
	require.ErrorContains(t, err, "exactly one operation")
	require.ErrorContains(t, err, "commit, post")
}

func TestValidateRejectsEmptyStep(t *testing.T) {
	sc := &Scenario{Name: "bad", Steps: []Step{{}}}
	require.ErrorContains(t, sc.Validate(), "step 1")
}

func TestValidateRequiresNameAndSteps(t *testing.T) {
	require.ErrorContains(t, (&Scenario{Steps: []Step{{Commit: true}}}).Validate(), "name is required")
	require.ErrorContains(t, (&Scenario{Name: "x"}).Validate(), "no steps")
}

func TestValidateCommandStep(t *testing.T) {
	sc := &Scenario{Name: "x", Steps: []Step{{Command: &CommandStep{}}}}
	require.ErrorContains(t, sc.Validate(), "needs a name or opcode")

	sc.Steps[0].Command.Name = "teleport"
	require.ErrorContains(t, sc.Validate(), `unknown command name "teleport"`)

	sc.Steps[0].Command.Name = "goBack"
	require.NoError(t, sc.Validate())

	sc.Steps[0].Command = &CommandStep{Opcode: 3}
	require.NoError(t, sc.Validate())
}

func TestValidateEvalAndExpect(t *testing.T) {
	sc := &Scenario{Name: "x", Steps: []Step{{Eval: &EvalStep{}}}}
	require.ErrorContains(t, sc.Validate(), "eval needs script text")

	sc.Steps = []Step{{Expect: &Expectation{}}}
	require.ErrorContains(t, sc.Validate(), "expect needs an event type")
}

func TestSkeletonRoundTrips(t *testing.T) {
	sc := Skeleton("smoke", "https://example.test/")
	require.NoError(t, sc.Validate())

	b, err := sc.YAML()
	require.NoError(t, err)

	back, err := Load(strings.NewReader(string(b)))
	require.NoError(t, err)
	require.Equal(t, "smoke", back.Name)
	require.Equal(t, "https://example.test/", *back.Props.Source.URI)
	require.Len(t, back.Steps, 3)
	require.Equal(t, "commit", back.Steps[0].Kind())
	require.Equal(t, "expect", back.Steps[1].Kind())
	require.Equal(t, "eval", back.Steps[2].Kind())
}
