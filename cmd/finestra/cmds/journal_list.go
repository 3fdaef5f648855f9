package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
)

type JournalListCommand struct {
	*cmds.CommandDescription
}

type JournalListSettings struct {
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
	Limit      int    `glazed:"limit"`
	SinceMs    int    `glazed:"since-ms"`
}

var _ cmds.GlazeCommand = &JournalListCommand{}

func NewJournalListCommand() (*JournalListCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}

	flags := append(journalStoreFlagDefs(),
		fields.New(
			"limit",
			fields.TypeInteger,
			fields.WithDefault(200),
			fields.WithHelp("Limit number of views"),
		),
		fields.New(
			"since-ms",
			fields.TypeInteger,
			fields.WithDefault(0),
			fields.WithHelp("Only views active at or after this unix millisecond timestamp"),
		),
	)

	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List views recorded in the journal"),
		cmds.WithLong("List per-view aggregates from the journal, most recently active first."),
		cmds.WithFlags(flags...),
		cmds.WithSections(glazedSection),
	)
	return &JournalListCommand{CommandDescription: desc}, nil
}

func (c *JournalListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &JournalListSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openJournalStore(&JournalStoreSettings{JournalDSN: s.JournalDSN, JournalDB: s.JournalDB})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	views, err := store.ListViews(ctx, s.Limit, int64(s.SinceMs))
	if err != nil {
		return err
	}
	for _, v := range views {
		row := types.NewRow(
			types.MRP("view", int64(v.View)),
			types.MRP("first_seen_ms", v.FirstSeenMs),
			types.MRP("last_activity_ms", v.LastActivityMs),
			types.MRP("event_count", v.EventCount),
			types.MRP("last_uri", v.LastURI),
			types.MRP("last_title", v.LastTitle),
			types.MRP("detached", v.Detached),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
