package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/relay"
)

// ControlFactory builds the native control backing a new view.
type ControlFactory func(view events.ViewHandle) (relay.Control, error)

// SubscriberBuilder returns the subscriber for one view's event topic plus
// whether the caller owns it and must close it.
type SubscriberBuilder func(ctx context.Context, view events.ViewHandle) (message.Subscriber, bool, error)

// View is one managed view: the websocket pool mirroring its event stream
// plus the reader goroutine feeding that pool.
type View struct {
	Handle events.ViewHandle

	pool *ConnectionPool

	mu       sync.Mutex
	sub      message.Subscriber
	ownSub   bool
	stopRead context.CancelFunc
	reading  bool

	closeOnce sync.Once
}

// Pool returns the view's websocket connection pool.
func (v *View) Pool() *ConnectionPool {
	return v.pool
}

func (v *View) isReading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reading
}

func (v *View) stopReader() {
	v.mu.Lock()
	cancel := v.stopRead
	v.stopRead = nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// finalize tears the view's transport side down exactly once: reader, pool,
// and any subscriber the view owns.
func (v *View) finalize() {
	v.closeOnce.Do(func() {
		v.stopReader()
		v.pool.CloseAll()
		v.mu.Lock()
		sub := v.sub
		own := v.ownSub
		v.sub = nil
		v.mu.Unlock()
		if own && sub != nil {
			_ = sub.Close()
		}
	})
}

// ViewManagerOptions configures NewViewManager.
type ViewManagerOptions struct {
	BaseCtx            context.Context
	Relay              *relay.Relay
	ControlFactory     ControlFactory
	BuildSubscriber    SubscriberBuilder
	IdleTimeoutSeconds int
}

// ViewManager owns view lifecycles: handle allocation, control construction,
// relay attachment, event mirroring and teardown.
type ViewManager struct {
	baseCtx         context.Context
	relay           *relay.Relay
	controlFactory  ControlFactory
	buildSubscriber SubscriberBuilder
	idleTimeout     time.Duration

	mu         sync.Mutex
	views      map[events.ViewHandle]*View
	nextHandle events.ViewHandle
}

func NewViewManager(opts ViewManagerOptions) (*ViewManager, error) {
	if opts.Relay == nil {
		return nil, errors.New("relay is nil")
	}
	if opts.ControlFactory == nil {
		return nil, errors.New("control factory is nil")
	}
	if opts.BuildSubscriber == nil {
		return nil, errors.New("subscriber builder is nil")
	}
	baseCtx := opts.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &ViewManager{
		baseCtx:         baseCtx,
		relay:           opts.Relay,
		controlFactory:  opts.ControlFactory,
		buildSubscriber: opts.BuildSubscriber,
		idleTimeout:     time.Duration(opts.IdleTimeoutSeconds) * time.Second,
		views:           map[events.ViewHandle]*View{},
	}, nil
}

// CreateView allocates a handle, builds its control and attaches it. When
// props are given they are applied as the first update batch; committing is
// the caller's move, matching the update-then-commit protocol.
func (vm *ViewManager) CreateView(props *relay.Props) (*View, error) {
	vm.mu.Lock()
	vm.nextHandle++
	handle := vm.nextHandle
	vm.mu.Unlock()

	control, err := vm.controlFactory(handle)
	if err != nil {
		return nil, errors.Wrap(err, "could not build view control")
	}
	if err := vm.relay.Attach(handle, control); err != nil {
		_ = control.Close()
		return nil, err
	}

	v := &View{Handle: handle}
	v.pool = NewConnectionPool(handle, vm.idleTimeout, func() { vm.onViewIdle(handle) })

	vm.mu.Lock()
	vm.views[handle] = v
	vm.mu.Unlock()

	if props != nil {
		if err := vm.relay.ApplyProps(handle, props); err != nil {
			_ = vm.DetachView(handle)
			return nil, err
		}
	}
	log.Info().Int64("view", int64(handle)).Msg("view created")
	return v, nil
}

func (vm *ViewManager) GetView(handle events.ViewHandle) (*View, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, ok := vm.views[handle]
	return v, ok
}

// Handles lists the attached views in handle order.
func (vm *ViewManager) Handles() []events.ViewHandle {
	return vm.relay.Handles()
}

func (vm *ViewManager) Update(handle events.ViewHandle, props *relay.Props) error {
	return vm.relay.ApplyProps(handle, props)
}

func (vm *ViewManager) Commit(ctx context.Context, handle events.ViewHandle) error {
	return vm.relay.Commit(ctx, handle)
}

func (vm *ViewManager) Command(ctx context.Context, handle events.ViewHandle, opcode relay.CommandID, args []string) error {
	return vm.relay.Dispatch(ctx, handle, opcode, args)
}

func (vm *ViewManager) Eval(ctx context.Context, handle events.ViewHandle, script string) (string, error) {
	return vm.relay.Eval(ctx, handle, script)
}

func (vm *ViewManager) Status(handle events.ViewHandle) (*relay.ViewStatus, error) {
	return vm.relay.Status(handle)
}

// DetachView detaches the relay side and tears the transport side down. The
// running reader forwards the final detached event to websocket clients and
// finalizes itself; without a reader the teardown happens inline.
func (vm *ViewManager) DetachView(handle events.ViewHandle) error {
	vm.mu.Lock()
	v := vm.views[handle]
	delete(vm.views, handle)
	vm.mu.Unlock()
	if v == nil {
		return errors.Wrapf(relay.ErrViewNotFound, "handle %d", handle)
	}

	err := vm.relay.Detach(handle)
	if !v.isReading() {
		v.finalize()
	}
	return err
}

// AttachConn adds a websocket connection to the view's pool and makes sure
// the event reader is running.
func (vm *ViewManager) AttachConn(handle events.ViewHandle, conn wsConn) (*View, error) {
	v, ok := vm.GetView(handle)
	if !ok {
		return nil, errors.Wrapf(relay.ErrViewNotFound, "handle %d", handle)
	}
	v.pool.Add(conn)
	if err := vm.ensureReader(v); err != nil {
		v.pool.Remove(conn)
		return nil, err
	}
	return v, nil
}

func (vm *ViewManager) ensureReader(v *View) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.reading {
		return nil
	}
	if v.sub == nil {
		sub, own, err := vm.buildSubscriber(vm.baseCtx, v.Handle)
		if err != nil {
			return errors.Wrap(err, "could not build view subscriber")
		}
		v.sub = sub
		v.ownSub = own
	}

	topic := events.TopicForView(v.Handle)
	readCtx, readCancel := context.WithCancel(vm.baseCtx)
	ch, err := v.sub.Subscribe(readCtx, topic)
	if err != nil {
		readCancel()
		return errors.Wrapf(err, "could not subscribe to %s", topic)
	}
	v.stopRead = readCancel
	v.reading = true
	log.Info().Int64("view", int64(v.Handle)).Str("topic", topic).Msg("starting view event reader")
	go vm.readLoop(v, ch)
	return nil
}

// readLoop mirrors the view's event stream into its websocket pool. It stops
// when its subscription is cancelled or after forwarding the final detached
// event, in which case it also finalizes the view.
func (vm *ViewManager) readLoop(v *View, ch <-chan *message.Message) {
	sawDetached := false
	for msg := range ch {
		e, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("component", "bridge").Msg("failed to decode event json")
			msg.Ack()
			continue
		}
		if e.Metadata().View != v.Handle {
			msg.Ack()
			continue
		}
		v.pool.Broadcast(wrapEvent(msg.Payload))
		sawDetached = e.Type() == events.EventTypeDetached
		msg.Ack()
		if sawDetached {
			break
		}
	}

	v.mu.Lock()
	v.reading = false
	cancel := v.stopRead
	v.stopRead = nil
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	log.Info().Int64("view", int64(v.Handle)).Msg("view event reader stopped")

	if sawDetached {
		v.finalize()
	}
}

func (vm *ViewManager) onViewIdle(handle events.ViewHandle) {
	v, ok := vm.GetView(handle)
	if !ok {
		return
	}
	if !v.pool.IsEmpty() {
		return
	}
	log.Debug().Int64("view", int64(handle)).Msg("ws pool idle, stopping event reader")
	v.stopReader()
}

// Close detaches every remaining view.
func (vm *ViewManager) Close() error {
	vm.mu.Lock()
	views := make([]*View, 0, len(vm.views))
	for _, v := range vm.views {
		views = append(views, v)
	}
	vm.views = map[events.ViewHandle]*View{}
	vm.mu.Unlock()

	for _, v := range views {
		_ = vm.relay.Detach(v.Handle)
		v.finalize()
	}
	return nil
}
