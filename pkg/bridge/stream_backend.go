package bridge

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/go-go-golems/glazed/pkg/cmds/values"

	"github.com/go-go-golems/finestra/pkg/events"
	rediscfg "github.com/go-go-golems/finestra/pkg/redisstream"
)

// StreamBackend wraps transport setup concerns (in-memory or redis) and
// exposes publisher/subscriber construction for view event streams.
type StreamBackend interface {
	EventRouter() *events.EventRouter
	Publisher() message.Publisher
	BuildSubscriber(ctx context.Context, view events.ViewHandle) (message.Subscriber, bool, error)
	Close() error
}

type eventRouterStreamBackend struct {
	router       *events.EventRouter
	redisEnabled bool
	redisAddr    string
}

func NewStreamBackendFromValues(ctx context.Context, parsed *values.Values) (StreamBackend, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if parsed == nil {
		return nil, errors.New("parsed values are nil")
	}
	rs := rediscfg.Settings{}
	_ = parsed.DecodeSectionInto(rediscfg.SectionSlug, &rs)
	router, err := rediscfg.BuildRouter(rs, false)
	if err != nil {
		return nil, errors.Wrap(err, "build event router")
	}
	return &eventRouterStreamBackend{
		router:       router,
		redisEnabled: rs.Enabled,
		redisAddr:    rs.Addr,
	}, nil
}

// NewStreamBackendFromRouter wraps an already-built event router, mostly for
// tests and embedded setups.
func NewStreamBackendFromRouter(router *events.EventRouter) StreamBackend {
	return &eventRouterStreamBackend{router: router}
}

func (b *eventRouterStreamBackend) EventRouter() *events.EventRouter {
	if b == nil {
		return nil
	}
	return b.router
}

func (b *eventRouterStreamBackend) Publisher() message.Publisher {
	if b == nil || b.router == nil {
		return nil
	}
	return b.router.Publisher
}

// BuildSubscriber returns the subscriber to read one view's events from. The
// bool reports ownership: redis subscribers are per-caller and must be closed
// by the caller, the shared in-memory subscriber must not.
func (b *eventRouterStreamBackend) BuildSubscriber(ctx context.Context, view events.ViewHandle) (message.Subscriber, bool, error) {
	if b == nil || b.router == nil {
		return nil, false, errors.New("stream backend is not initialized")
	}
	if b.redisEnabled {
		if ctx == nil {
			return nil, false, errors.New("ctx is nil")
		}
		_ = rediscfg.EnsureViewGroup(ctx, b.redisAddr, view, "bridge")
		sub, err := rediscfg.BuildGroupSubscriber(b.redisAddr, "bridge", fmt.Sprintf("ws-forwarder:%d", view))
		if err != nil {
			return nil, false, err
		}
		return sub, true, nil
	}
	return b.router.Subscriber, false, nil
}

func (b *eventRouterStreamBackend) Close() error {
	if b == nil || b.router == nil {
		return nil
	}
	return b.router.Close()
}
