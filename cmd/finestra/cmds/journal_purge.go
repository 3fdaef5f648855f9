package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/finestra/pkg/events"
)

type JournalPurgeCommand struct {
	*cmds.CommandDescription
}

type JournalPurgeSettings struct {
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
	View       int    `glazed:"view"`
	Force      bool   `glazed:"force"`
}

var _ cmds.WriterCommand = &JournalPurgeCommand{}

func NewJournalPurgeCommand() (*JournalPurgeCommand, error) {
	flags := append(journalStoreFlagDefs(),
		fields.New(
			"force",
			fields.TypeBool,
			fields.WithDefault(false),
			fields.WithHelp("Purge without asking for confirmation"),
		),
	)

	desc := cmds.NewCommandDescription(
		"purge",
		cmds.WithShort("Delete one view's records from the journal"),
		cmds.WithLong(`Delete every journal record and the summary for a view. Asks for
confirmation on a terminal; pass --force in scripts.`),
		cmds.WithFlags(flags...),
		cmds.WithArguments(
			fields.New(
				"view",
				fields.TypeInteger,
				fields.WithHelp("View handle"),
				fields.WithRequired(true),
			),
		),
	)
	return &JournalPurgeCommand{CommandDescription: desc}, nil
}

func (c *JournalPurgeCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *values.Values,
	w io.Writer,
) error {
	s := &JournalPurgeSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	if !s.Force {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return errors.New("refusing to purge without a terminal, pass --force")
		}
		ui := &input.UI{
			Writer: os.Stderr,
			Reader: os.Stdin,
		}
		answer, err := ui.Ask(
			fmt.Sprintf("Purge all journal records for view %d? [y/N]", s.View),
			&input.Options{
				Default:  "n",
				Required: true,
				Loop:     true,
				ValidateFunc: func(answer string) error {
					switch answer {
					case "y", "Y", "n", "N", "":
						return nil
					default:
						return errors.Errorf("please enter 'y' or 'n'")
					}
				},
			},
		)
		if err != nil {
			return errors.Wrap(err, "confirmation prompt")
		}
		if answer != "y" && answer != "Y" {
			return errors.New("aborted")
		}
	}

	store, err := openJournalStore(&JournalStoreSettings{JournalDSN: s.JournalDSN, JournalDB: s.JournalDB})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	purged, err := store.Purge(ctx, events.ViewHandle(s.View))
	if err != nil {
		return err
	}
	log.Info().Int64("view", int64(s.View)).Int64("purged", purged).Msg("purged journal records")
	_, err = fmt.Fprintf(w, "purged %d records for view %d\n", purged, s.View)
	return err
}
