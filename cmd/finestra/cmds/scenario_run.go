package cmds

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/relay"
	"github.com/go-go-golems/finestra/pkg/scenario"
)

type ScenarioRunCommand struct {
	*cmds.CommandDescription
}

type ScenarioRunSettings struct {
	Files          []string `glazed:"files"`
	Report         bool     `glazed:"report"`
	TimeoutSeconds int      `glazed:"timeout-seconds"`
	Session        string   `glazed:"session"`
}

var _ cmds.GlazeCommand = &ScenarioRunCommand{}

func NewScenarioRunCommand() (*ScenarioRunCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"run",
		cmds.WithShort("Run scenario files against headless views"),
		cmds.WithLong(`Run one or more scenario files, each against a fresh headless view, and
print every step outcome as a structured row. With --report a rendered
summary per scenario goes to stderr. Exits non-zero when any step fails.`),
		cmds.WithFlags(
			fields.New(
				"report",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Render a per-scenario summary report to stderr"),
			),
			fields.New(
				"timeout-seconds",
				fields.TypeInteger,
				fields.WithDefault(60),
				fields.WithHelp("Abort each scenario after this long"),
			),
			fields.New(
				"session",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Session identifier stamped onto every emitted event"),
			),
		),
		cmds.WithArguments(
			fields.New(
				"files",
				fields.TypeStringList,
				fields.WithHelp("Scenario files to run"),
				fields.WithRequired(true),
			),
		),
		cmds.WithSections(glazedSection),
	)
	return &ScenarioRunCommand{CommandDescription: desc}, nil
}

func (c *ScenarioRunCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &ScenarioRunSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if len(s.Files) == 0 {
		return errors.New("pass at least one scenario file")
	}

	failed := 0
	for _, file := range s.Files {
		sc, err := scenario.LoadFile(file)
		if err != nil {
			return err
		}

		report, err := runScenario(ctx, sc, s)
		if err != nil {
			return errors.Wrapf(err, "scenario %s", sc.Name)
		}
		if !report.OK() {
			failed++
		}

		for _, step := range report.Steps {
			row := types.NewRow(
				types.MRP("scenario", report.Name),
				types.MRP("step", step.Index),
				types.MRP("kind", step.Kind),
				types.MRP("ok", step.OK),
				types.MRP("detail", step.Detail),
				types.MRP("error", step.Error),
				types.MRP("elapsed_ms", step.ElapsedMs),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}

		if s.Report {
			styled, err := glamour.Render(report.Markdown(), "dark")
			if err != nil {
				return errors.Wrap(err, "render report")
			}
			fmt.Fprint(os.Stderr, styled)
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d scenarios failed", failed, len(s.Files))
	}
	return nil
}

func runScenario(ctx context.Context, sc *scenario.Scenario, s *ScenarioRunSettings) (*scenario.Report, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(s.TimeoutSeconds)*time.Second)
	defer cancel()

	opts := []scenario.RunnerOption{}
	if s.Session != "" {
		opts = append(opts, scenario.WithRelayOptions(relay.WithSession(s.Session)))
	}
	runner := scenario.NewRunner(opts...)
	return runner.Run(runCtx, sc)
}
