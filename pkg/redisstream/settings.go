package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const SectionSlug = "redis"

// Settings holds Redis Streams transport configuration for the event router.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled"`
	Addr     string `glazed:"redis-addr"`
	Group    string `glazed:"redis-group"`
	Consumer string `glazed:"redis-consumer"`
}

// NewSection returns the settings section for the Redis Streams transport.
func NewSection() (schema.Section, error) {
	return schema.NewSection(
		SectionSlug,
		"Redis Streams transport for view events",
		schema.WithFields(
			fields.New(
				"redis-enabled",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Publish view events over Redis Streams"),
			),
			fields.New(
				"redis-addr",
				fields.TypeString,
				fields.WithDefault("localhost:6379"),
				fields.WithHelp("Redis address host:port"),
			),
			fields.New(
				"redis-group",
				fields.TypeString,
				fields.WithDefault("finestra"),
				fields.WithHelp("Redis consumer group"),
			),
			fields.New(
				"redis-consumer",
				fields.TypeString,
				fields.WithDefault("relay-1"),
				fields.WithHelp("Redis consumer name"),
			),
		),
	)
}
