package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/relay"
)

// Runner executes scenarios against a fresh relay and view control. One
// runner drives one view at a time; every emitted event is captured for
// expectations and the final report.
type Runner struct {
	relay      *relay.Relay
	collector  *events.CollectorSink
	newControl func() (relay.Control, error)
	handle     events.ViewHandle
	poll       time.Duration
}

type RunnerOption func(*runnerConfig)

type runnerConfig struct {
	newControl func() (relay.Control, error)
	relayOpts  []relay.Option
	handle     events.ViewHandle
}

// WithControlBuilder swaps the view control built per run. The default is a
// plain headless control fetching remote documents over HTTP.
func WithControlBuilder(f func() (relay.Control, error)) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.newControl = f
	}
}

func WithRelayOptions(opts ...relay.Option) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.relayOpts = append(cfg.relayOpts, opts...)
	}
}

func WithHandle(h events.ViewHandle) RunnerOption {
	return func(cfg *runnerConfig) {
		cfg.handle = h
	}
}

func NewRunner(options ...RunnerOption) *Runner {
	cfg := &runnerConfig{
		newControl: func() (relay.Control, error) {
			return headless.NewControl(), nil
		},
		handle: 1,
	}
	for _, opt := range options {
		opt(cfg)
	}

	collector := events.NewCollectorSink()
	opts := append([]relay.Option{relay.WithSink(collector)}, cfg.relayOpts...)

	return &Runner{
		relay:      relay.New(opts...),
		collector:  collector,
		newControl: cfg.newControl,
		handle:     cfg.handle,
		poll:       10 * time.Millisecond,
	}
}

// Run executes every step in order. Step failures are recorded in the report
// and do not stop the run; only setup problems or context cancellation
// return an error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "scenario").Str("scenario", sc.Name).Logger()

	control, err := r.newControl()
	if err != nil {
		return nil, errors.Wrap(err, "could not build view control")
	}
	r.collector.Reset()
	if err := r.relay.Attach(r.handle, control); err != nil {
		return nil, errors.Wrap(err, "could not attach scenario view")
	}
	defer func() {
		if err := r.relay.Detach(r.handle); err != nil {
			logger.Warn().Err(err).Msg("failed to detach scenario view")
		}
	}()

	if sc.Props != nil {
		if err := r.relay.ApplyProps(r.handle, sc.Props); err != nil {
			return nil, errors.Wrap(err, "could not apply scenario props")
		}
	}

	report := &Report{Name: sc.Name, StartedAt: time.Now()}
	consumed := 0
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now()
			return report, errors.Wrap(err, "scenario interrupted")
		}
		res := r.runStep(ctx, i, step, &consumed)
		if res.OK {
			report.Passed++
		} else {
			report.Failed++
			logger.Warn().Int("step", res.Index).Str("kind", res.Kind).Str("error", res.Error).Msg("scenario step failed")
		}
		report.Steps = append(report.Steps, res)
	}
	report.FinishedAt = time.Now()

	for _, e := range r.collector.Events() {
		report.Events = append(report.Events, eventLine(e))
	}
	logger.Info().Int("passed", report.Passed).Int("failed", report.Failed).Msg("scenario finished")
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, index int, step Step, consumed *int) StepResult {
	started := time.Now()
	res := StepResult{Index: index + 1, Kind: step.Kind(), OK: true}

	var err error
	switch res.Kind {
	case "update":
		err = r.relay.ApplyProps(r.handle, step.Update)
	case "commit":
		err = r.relay.Commit(ctx, r.handle)
	case "command":
		opcode := relay.CommandID(step.Command.Opcode)
		if name := strings.TrimSpace(step.Command.Name); name != "" {
			// Validate() already vetted the name.
			opcode, _ = relay.CommandFromName(name)
		}
		res.Detail = opcode.String()
		err = r.relay.Dispatch(ctx, r.handle, opcode, step.Command.Args)
	case "eval":
		var value string
		value, err = r.relay.Eval(ctx, r.handle, step.Eval.Script)
		res.Detail = value
		if err == nil && step.Eval.Result != nil && value != *step.Eval.Result {
			err = errors.Errorf("eval returned %q, expected %q", value, *step.Eval.Result)
		}
	case "post":
		err = r.relay.Dispatch(ctx, r.handle, relay.CommandPostMessage, []string{*step.Post})
	case "sleep_ms":
		res.Detail = fmt.Sprintf("%dms", step.SleepMs)
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Duration(step.SleepMs) * time.Millisecond):
		}
	case "expect":
		res.Detail = step.Expect.Event
		err = r.waitFor(ctx, *step.Expect, consumed)
	}

	if err != nil {
		res.OK = false
		res.Error = err.Error()
	}
	res.ElapsedMs = time.Since(started).Milliseconds()
	return res
}

// waitFor polls the collector until an event at or past the consumed offset
// matches. On success the offset moves past the match, so expectations see
// the stream in order. On timeout the offset is left alone.
func (r *Runner) waitFor(ctx context.Context, exp Expectation, consumed *int) error {
	timeout := time.Duration(exp.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		evs := r.collector.Events()
		for i := *consumed; i < len(evs); i++ {
			if exp.matches(evs[i]) {
				*consumed = i + 1
				return nil
			}
		}
		if time.Now().After(deadline) {
			return errors.Errorf("no %s event matched within %s", exp.Event, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

func (exp Expectation) matches(e events.Event) bool {
	if string(e.Type()) != exp.Event {
		return false
	}
	switch ev := e.(type) {
	case *events.EventLoad:
		if exp.URI != "" && ev.Page.URI != exp.URI {
			return false
		}
		if exp.Title != "" && ev.Page.Title != exp.Title {
			return false
		}
	case *events.EventLoadError:
		if exp.Status != nil && ev.StatusCode != *exp.Status {
			return false
		}
		if exp.Message != "" && !strings.Contains(ev.Message, exp.Message) {
			return false
		}
	case *events.EventMessage:
		if exp.Data != "" && ev.Data != exp.Data {
			return false
		}
	}
	return true
}
