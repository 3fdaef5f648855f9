package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter fans view events out to handlers. By default it runs on an
// in-process gochannel pub/sub; WithPublisher/WithSubscriber swap in an
// external transport such as Redis streams.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
	}
}

func WithPublisher(publisher message.Publisher) EventRouterOption {
	return func(r *EventRouter) {
		r.Publisher = publisher
	}
}

func WithSubscriber(subscriber message.Subscriber) EventRouterOption {
	return func(r *EventRouter) {
		r.Subscriber = subscriber
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	if ret.verbose {
		ret.logger = NewWatermillLogger(log.Logger)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		goChannel := gochannel.NewGoChannel(gochannel.Config{}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = goChannel
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goChannel
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create watermill router")
	}
	ret.router = router

	return ret, nil
}

// AddHandler subscribes f to topic. Handlers added after Run require a call
// to RunHandlers to start.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// RunHandlers starts handlers added while the router is already running.
func (e *EventRouter) RunHandlers(ctx context.Context) error {
	return e.router.RunHandlers(ctx)
}

// Run blocks until ctx is cancelled or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

// Running is closed once the router has started all handlers.
func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	var firstErr error

	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event router")
		firstErr = err
	}
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
		if firstErr == nil {
			firstErr = err
		}
	}
	if any(e.Subscriber) != any(e.Publisher) {
		if err := e.Subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event subscriber")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
