package redisstream

import (
	"context"
	"strings"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
)

// BuildRouter constructs an events.EventRouter backed by Redis Streams when
// enabled. With Enabled false it returns the default in-memory router.
func BuildRouter(s Settings, verbose bool) (*events.EventRouter, error) {
	if !s.Enabled {
		return events.NewEventRouter(optVerbose(verbose))
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, err
	}

	return events.NewEventRouter(
		events.WithPublisher(message.Publisher(pub)),
		events.WithSubscriber(message.Subscriber(sub)),
		optVerbose(verbose),
	)
}

// BuildGroupSubscriber returns a Redis Streams subscriber bound to the given
// consumer group and name, so each event forwarder reads independently.
func BuildGroupSubscriber(addr, group, consumer string) (message.Subscriber, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := events.NewWatermillLogger(log.Logger)
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: group,
		Consumer:      consumer,
	}, logger)
}

func optVerbose(v bool) events.EventRouterOption {
	if v {
		return events.WithVerbose(true)
	}
	return func(r *events.EventRouter) {}
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($)
// if it does not exist yet, so a first subscribe does not replay history.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at stream tail")
	return nil
}

// EnsureViewGroup creates the consumer group for one view's event stream.
func EnsureViewGroup(ctx context.Context, addr string, view events.ViewHandle, group string) error {
	return EnsureGroupAtTail(ctx, addr, events.TopicForView(view), group)
}
