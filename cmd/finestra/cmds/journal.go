package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/finestra/pkg/journal"
)

// AddJournalCommands registers the journal command group on root.
func AddJournalCommands(root *cobra.Command) error {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the persisted view event journal",
		Long:  "Read and prune the SQLite journal the bridge server writes view events to.",
	}

	listCmd, err := NewJournalListCommand()
	if err != nil {
		return err
	}
	cobraListCmd, err := cli.BuildCobraCommand(listCmd, cli.WithCobraMiddlewaresFunc(finestraMiddlewares))
	if err != nil {
		return err
	}
	journalCmd.AddCommand(cobraListCmd)

	eventsCmd, err := NewJournalEventsCommand()
	if err != nil {
		return err
	}
	cobraEventsCmd, err := cli.BuildCobraCommand(eventsCmd, cli.WithCobraMiddlewaresFunc(finestraMiddlewares))
	if err != nil {
		return err
	}
	journalCmd.AddCommand(cobraEventsCmd)

	purgeCmd, err := NewJournalPurgeCommand()
	if err != nil {
		return err
	}
	cobraPurgeCmd, err := cli.BuildCobraCommand(purgeCmd, cli.WithCobraMiddlewaresFunc(finestraMiddlewares))
	if err != nil {
		return err
	}
	journalCmd.AddCommand(cobraPurgeCmd)

	root.AddCommand(journalCmd)
	return nil
}

type JournalStoreSettings struct {
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
}

func journalStoreFlagDefs() []*fields.Definition {
	return []*fields.Definition{
		fields.New(
			"journal-dsn",
			fields.TypeString,
			fields.WithDefault(""),
			fields.WithHelp("SQLite DSN for the event journal (wins over journal-db)"),
		),
		fields.New(
			"journal-db",
			fields.TypeString,
			fields.WithDefault(""),
			fields.WithHelp("SQLite file path for the event journal"),
		),
	}
}

func (s *JournalStoreSettings) resolveJournalDSN() (string, error) {
	if s == nil {
		return "", errors.New("journal store settings are nil")
	}
	if s.JournalDSN != "" {
		return s.JournalDSN, nil
	}
	if s.JournalDB == "" {
		return "", errors.New("journal store not configured (set --journal-dsn or --journal-db)")
	}
	return journal.SQLiteDSNForFile(s.JournalDB)
}

func openJournalStore(s *JournalStoreSettings) (*journal.SQLiteStore, error) {
	dsn, err := s.resolveJournalDSN()
	if err != nil {
		return nil, err
	}
	return journal.NewSQLiteStore(dsn)
}
