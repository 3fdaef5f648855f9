package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"

	"github.com/go-go-golems/finestra/pkg/events"
)

type JournalEventsCommand struct {
	*cmds.CommandDescription
}

type JournalEventsSettings struct {
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
	View       int    `glazed:"view"`
	SinceID    int    `glazed:"since-id"`
	Limit      int    `glazed:"limit"`
	Type       string `glazed:"type"`
	Raw        bool   `glazed:"raw"`
}

var _ cmds.GlazeCommand = &JournalEventsCommand{}

func NewJournalEventsCommand() (*JournalEventsCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}

	flags := append(journalStoreFlagDefs(),
		fields.New(
			"since-id",
			fields.TypeInteger,
			fields.WithDefault(0),
			fields.WithHelp("Only records with an ID greater than this"),
		),
		fields.New(
			"limit",
			fields.TypeInteger,
			fields.WithDefault(200),
			fields.WithHelp("Limit number of records"),
		),
		fields.New(
			"type",
			fields.TypeString,
			fields.WithDefault(""),
			fields.WithHelp("Only records of this event type (load-start, load-finish, load-error, message, detached)"),
		),
		fields.New(
			"raw",
			fields.TypeBool,
			fields.WithDefault(false),
			fields.WithHelp("Include the raw event JSON column"),
		),
	)

	desc := cmds.NewCommandDescription(
		"events",
		cmds.WithShort("List one view's journaled events"),
		cmds.WithLong(`List a view's journal records in append order. Pass --since-id with the
last seen ID to tail the journal incrementally.`),
		cmds.WithFlags(flags...),
		cmds.WithArguments(
			fields.New(
				"view",
				fields.TypeInteger,
				fields.WithHelp("View handle"),
				fields.WithRequired(true),
			),
		),
		cmds.WithSections(glazedSection),
	)
	return &JournalEventsCommand{CommandDescription: desc}, nil
}

func (c *JournalEventsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &JournalEventsSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	store, err := openJournalStore(&JournalStoreSettings{JournalDSN: s.JournalDSN, JournalDB: s.JournalDB})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	recs, err := store.Events(ctx, events.ViewHandle(s.View), int64(s.SinceID), s.Limit)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if s.Type != "" && rec.Type != s.Type {
			continue
		}
		row := types.NewRow(
			types.MRP("id", rec.ID),
			types.MRP("view", int64(rec.View)),
			types.MRP("type", rec.Type),
			types.MRP("at_ms", rec.AtMs),
			types.MRP("uri", rec.URI),
			types.MRP("title", rec.Title),
			types.MRP("status", rec.Status),
			types.MRP("message", rec.Message),
			types.MRP("data", rec.Data),
		)
		if s.Raw {
			row.Set("raw", rec.Raw)
		}
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
