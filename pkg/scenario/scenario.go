// Package scenario runs YAML-scripted drives against a view relay. Scenarios
// are small ordered programs (update, commit, command, eval, post, sleep_ms,
// expect) used for smoke tests and demos of view behavior.
package scenario

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/finestra/pkg/relay"
)

// Scenario is one scripted drive. Props are the initial update batch; the
// first commit step settles them.
type Scenario struct {
	Name  string       `yaml:"name"`
	Props *relay.Props `yaml:"props,omitempty"`
	Steps []Step       `yaml:"steps"`
}

// Step is a one-of: exactly one operation field may be set.
type Step struct {
	Update  *relay.Props `yaml:"update,omitempty"`
	Commit  bool         `yaml:"commit,omitempty"`
	Command *CommandStep `yaml:"command,omitempty"`
	Eval    *EvalStep    `yaml:"eval,omitempty"`
	Post    *string      `yaml:"post,omitempty"`
	SleepMs int          `yaml:"sleep_ms,omitempty"`
	Expect  *Expectation `yaml:"expect,omitempty"`
}

// CommandStep dispatches one imperative command, by name or numeric opcode.
type CommandStep struct {
	Name   string   `yaml:"name,omitempty"`
	Opcode int      `yaml:"opcode,omitempty"`
	Args   []string `yaml:"args,omitempty"`
}

// EvalStep evaluates script in the page. When Result is set the returned
// value must match it exactly.
type EvalStep struct {
	Script string  `yaml:"script"`
	Result *string `yaml:"result,omitempty"`
}

// Expectation waits for an event matching all set fields. Events emitted
// before the previous expectation matched are not considered again.
type Expectation struct {
	Event     string `yaml:"event"`
	URI       string `yaml:"uri,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Status    *int   `yaml:"status,omitempty"`
	Message   string `yaml:"message,omitempty"`
	Data      string `yaml:"data,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
}

func (s Step) kinds() []string {
	ret := []string{}
	if s.Update != nil {
		ret = append(ret, "update")
	}
	if s.Commit {
		ret = append(ret, "commit")
	}
	if s.Command != nil {
		ret = append(ret, "command")
	}
	if s.Eval != nil {
		ret = append(ret, "eval")
	}
	if s.Post != nil {
		ret = append(ret, "post")
	}
	if s.SleepMs > 0 {
		ret = append(ret, "sleep_ms")
	}
	if s.Expect != nil {
		ret = append(ret, "expect")
	}
	return ret
}

// Kind names the step's operation, empty for an invalid step.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (sc *Scenario) Validate() error {
	if sc == nil {
		return errors.New("scenario is nil")
	}
	if strings.TrimSpace(sc.Name) == "" {
		return errors.New("scenario name is required")
	}
	if len(sc.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	for i, step := range sc.Steps {
		kinds := step.kinds()
		if len(kinds) != 1 {
			return errors.Errorf("step %d: expected exactly one operation, got %d (%s)",
				i+1, len(kinds), strings.Join(kinds, ", "))
		}
		switch kinds[0] {
		case "command":
			if strings.TrimSpace(step.Command.Name) == "" && step.Command.Opcode == 0 {
				return errors.Errorf("step %d: command needs a name or opcode", i+1)
			}
			if name := strings.TrimSpace(step.Command.Name); name != "" {
				if _, ok := relay.CommandFromName(name); !ok {
					return errors.Errorf("step %d: unknown command name %q (known: %s)",
						i+1, name, strings.Join(relay.CommandNames(), ", "))
				}
			}
		case "eval":
			if strings.TrimSpace(step.Eval.Script) == "" {
				return errors.Errorf("step %d: eval needs script text", i+1)
			}
		case "expect":
			if strings.TrimSpace(step.Expect.Event) == "" {
				return errors.Errorf("step %d: expect needs an event type", i+1)
			}
		}
	}
	return nil
}

// Load decodes and validates a scenario. Unknown fields are rejected so
// typos in step names fail loudly instead of silently skipping work.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	sc := &Scenario{}
	if err := dec.Decode(sc); err != nil {
		return nil, errors.Wrap(err, "could not decode scenario yaml")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open scenario %s", path)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// YAML marshals the scenario back to its file form.
func (sc *Scenario) YAML() ([]byte, error) {
	b, err := yaml.Marshal(sc)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal scenario")
	}
	return b, nil
}

// Skeleton builds a starter scenario navigating to uri and waiting for the
// load to settle.
func Skeleton(name string, uri string) *Scenario {
	return &Scenario{
		Name: name,
		Props: &relay.Props{
			Source: &relay.Source{URI: relay.StringProp(uri)},
		},
		Steps: []Step{
			{Commit: true},
			{Expect: &Expectation{Event: "load-finish", URI: uri}},
			{Eval: &EvalStep{Script: "document.title"}},
		},
	}
}
