package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/bridge"
	"github.com/go-go-golems/finestra/pkg/redisstream"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = &ServeCommand{}

func NewServeCommand() (*ServeCommand, error) {
	redisSection, err := redisstream.NewSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"serve",
		cmds.WithShort("Serve the view bridge HTTP API and websocket event mirror"),
		cmds.WithLong(`Serve the view lifecycle API (create, update, commit, command, eval,
detach), the journal API and the per-view websocket event mirror. Views run
on headless controls; point clients at /api/views and /ws?view=N.`),
		cmds.WithFlags(
			fields.New(
				"addr",
				fields.TypeString,
				fields.WithDefault(":8080"),
				fields.WithHelp("HTTP listen address"),
			),
			fields.New(
				"idle-timeout-seconds",
				fields.TypeInteger,
				fields.WithDefault(300),
				fields.WithHelp("Stop mirroring a view's events after its last websocket disconnects for this long (0 = immediately)"),
			),
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
			fields.New(
				"journal-inmem-max-events",
				fields.TypeInteger,
				fields.WithDefault(1000),
				fields.WithHelp("Per-view cap for the in-memory journal used when no journal DB is configured (0 = unbounded)"),
			),
			fields.New(
				"session",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Session identifier stamped onto every emitted event"),
			),
		),
		cmds.WithSections(redisSection),
	)
	return &ServeCommand{CommandDescription: desc}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	srv, err := bridge.NewServer(ctx, parsedLayers)
	if err != nil {
		return errors.Wrap(err, "build bridge server")
	}
	return srv.Run(ctx)
}
