package cmds

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/finestra/pkg/scenario"
)

// AddScenarioCommands registers the scenario command group on root.
func AddScenarioCommands(root *cobra.Command) error {
	scenarioCmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run and scaffold scripted view drives",
		Long:  "Scenarios are YAML programs of view updates, commands and expectations, run against a headless view.",
	}

	runCmd, err := NewScenarioRunCommand()
	if err != nil {
		return err
	}
	cobraRunCmd, err := cli.BuildCobraCommand(runCmd, cli.WithCobraMiddlewaresFunc(finestraMiddlewares))
	if err != nil {
		return err
	}
	scenarioCmd.AddCommand(cobraRunCmd)

	newCmd, err := NewScenarioNewCommand()
	if err != nil {
		return err
	}
	cobraNewCmd, err := cli.BuildCobraCommand(newCmd, cli.WithCobraMiddlewaresFunc(finestraMiddlewares))
	if err != nil {
		return err
	}
	scenarioCmd.AddCommand(cobraNewCmd)

	root.AddCommand(scenarioCmd)
	return nil
}

// finestraMiddlewares parses flags from cobra, then arguments, then the
// FINESTRA_ environment, then defaults.
func finestraMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd,
			sources.WithSource("cobra"),
		),
		sources.FromArgs(args,
			sources.WithSource("arguments"),
		),
		sources.FromEnv("FINESTRA",
			sources.WithSource("env"),
		),
		sources.FromDefaults(
			sources.WithSource("defaults"),
		),
	}, nil
}

type ScenarioNewCommand struct {
	*cmds.CommandDescription
}

type ScenarioNewSettings struct {
	Name   string `glazed:"name"`
	URI    string `glazed:"uri"`
	Output string `glazed:"output"`
	Force  bool   `glazed:"force"`
}

var _ cmds.BareCommand = &ScenarioNewCommand{}

func NewScenarioNewCommand() (*ScenarioNewCommand, error) {
	desc := cmds.NewCommandDescription(
		"new",
		cmds.WithShort("Scaffold a starter scenario file"),
		cmds.WithLong(`Write a starter scenario that navigates to a URI, waits for the load to
settle and reads the document title. On a terminal the name and URI are
collected through a form, prefilled from the flags.`),
		cmds.WithFlags(
			fields.New(
				"name",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Scenario name"),
			),
			fields.New(
				"uri",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("URI the scenario navigates to"),
			),
			fields.New(
				"output",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Output file (default <name>.yaml, - for stdout)"),
			),
			fields.New(
				"force",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Overwrite an existing file without asking"),
			),
		),
	)
	return &ScenarioNewCommand{CommandDescription: desc}, nil
}

func (c *ScenarioNewCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &ScenarioNewSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
	if interactive {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Scenario name").
					Value(&s.Name).
					Validate(func(v string) error {
						if strings.TrimSpace(v) == "" {
							return errors.New("name is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("URI to navigate to").
					Value(&s.URI).
					Validate(func(v string) error {
						if strings.TrimSpace(v) == "" {
							return errors.New("uri is required")
						}
						return nil
					}),
			),
		).WithTheme(huh.ThemeCharm())
		if err := form.Run(); err != nil {
			return errors.Wrap(err, "scenario form")
		}
	}
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.URI) == "" {
		return errors.New("pass --name and --uri (or run on a terminal)")
	}

	sc := scenario.Skeleton(s.Name, s.URI)
	b, err := sc.YAML()
	if err != nil {
		return err
	}

	path := s.Output
	if path == "-" {
		_, err := os.Stdout.Write(b)
		return err
	}
	if path == "" {
		path = scenarioFileName(s.Name)
	}

	if _, err := os.Stat(path); err == nil && !s.Force {
		if !interactive {
			return errors.Errorf("%s already exists, pass --force to overwrite", path)
		}
		overwrite := false
		confirm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s already exists, overwrite?", path)).
					Value(&overwrite),
			),
		).WithTheme(huh.ThemeCharm())
		if err := confirm.Run(); err != nil {
			return errors.Wrap(err, "overwrite prompt")
		}
		if !overwrite {
			return errors.New("aborted")
		}
	}

	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	log.Info().Str("path", path).Str("scenario", s.Name).Msg("wrote scenario")
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}

// scenarioFileName derives a safe file name from the scenario name.
func scenarioFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(name))
	for strings.Contains(mapped, "--") {
		mapped = strings.ReplaceAll(mapped, "--", "-")
	}
	mapped = strings.Trim(mapped, "-")
	if mapped == "" {
		mapped = "scenario"
	}
	return mapped + ".yaml"
}
