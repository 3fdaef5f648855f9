package bridge

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/glazed/pkg/cmds/values"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/journal"
	"github.com/go-go-golems/finestra/pkg/relay"
)

// RouterSettings are exposed via parameter layers (addr, idle timeout, journal
// store, etc.).
type RouterSettings struct {
	Addr               string `glazed:"addr"`
	IdleTimeoutSeconds int    `glazed:"idle-timeout-seconds"`
	// Durable event journal configuration (optional).
	// Use either:
	// - journal-dsn (preferred; full sqlite DSN)
	// - journal-db (file path; DSN derived)
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
	// In-memory journal sizing (used when no journal DB is configured).
	JournalInMemoryMaxEvents int `glazed:"journal-inmem-max-events"`
	// Session identifier stamped onto every emitted event.
	Session string `glazed:"session"`
}

// Router wires the relay, view lifecycle and HTTP endpoints together.
type Router struct {
	baseCtx context.Context
	parsed  *values.Values
	mux     *http.ServeMux

	// event router (in-memory or Redis)
	router *events.EventRouter
	// stream backend abstraction for publisher/subscriber construction.
	streamBackend StreamBackend

	relay        *relay.Relay
	vm           *ViewManager
	journalStore journal.Store

	controlFactory ControlFactory
	relayOptions   []relay.Option
	upgrader       websocket.Upgrader

	idleTimeoutSec int
}

// RouterOption mutates the Router during construction.
type RouterOption func(*Router) error

// WithControlFactory replaces how native controls are built for new views.
// The default spins up one headless control per view.
func WithControlFactory(f ControlFactory) RouterOption {
	return func(r *Router) error {
		if f == nil {
			return errors.New("control factory is nil")
		}
		r.controlFactory = f
		return nil
	}
}

// WithStreamBackend injects a pre-built stream backend instead of deriving
// one from parsed values.
func WithStreamBackend(b StreamBackend) RouterOption {
	return func(r *Router) error {
		if b == nil {
			return errors.New("stream backend is nil")
		}
		r.streamBackend = b
		return nil
	}
}

// WithRelayOptions appends options passed to the relay when it is built.
func WithRelayOptions(opts ...relay.Option) RouterOption {
	return func(r *Router) error {
		r.relayOptions = append(r.relayOptions, opts...)
		return nil
	}
}

// NewRouter builds the relay core plus the HTTP view API and journal API.
func NewRouter(ctx context.Context, parsed *values.Values, opts ...RouterOption) (*Router, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	r := &Router{
		baseCtx: ctx,
		parsed:  parsed,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.streamBackend == nil {
		backend, err := NewStreamBackendFromValues(ctx, parsed)
		if err != nil {
			return nil, err
		}
		r.streamBackend = backend
	}
	r.router = r.streamBackend.EventRouter()

	s := &RouterSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return nil, errors.Wrap(err, "parse router settings")
	}
	r.idleTimeoutSec = s.IdleTimeoutSeconds

	// Event journal (SQLite when configured, in-memory otherwise).
	if dsn := strings.TrimSpace(s.JournalDSN); dsn != "" {
		store, err := journal.NewSQLiteStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "open journal store (dsn)")
		}
		r.journalStore = store
	} else if p := strings.TrimSpace(s.JournalDB); p != "" {
		if dir := filepath.Dir(p); dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0755)
		}
		dsn, err := journal.SQLiteDSNForFile(p)
		if err != nil {
			return nil, errors.Wrap(err, "build journal DSN")
		}
		store, err := journal.NewSQLiteStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "open journal store (file)")
		}
		r.journalStore = store
	} else {
		r.journalStore = journal.NewInMemoryStore(s.JournalInMemoryMaxEvents)
	}

	// The journal sink records straight off the relay so the durable record
	// does not depend on stream delivery; the view topic sink feeds the
	// websocket mirrors through the stream backend.
	relayOpts := []relay.Option{
		relay.WithSink(journal.NewSink(r.journalStore)),
		relay.WithSink(events.NewViewTopicSink(r.router.Publisher)),
	}
	if session := strings.TrimSpace(s.Session); session != "" {
		relayOpts = append(relayOpts, relay.WithSession(session))
	}
	relayOpts = append(relayOpts, r.relayOptions...)
	r.relay = relay.New(relayOpts...)

	if r.controlFactory == nil {
		r.controlFactory = func(events.ViewHandle) (relay.Control, error) {
			return headless.NewControl(), nil
		}
	}

	vm, err := NewViewManager(ViewManagerOptions{
		BaseCtx:            ctx,
		Relay:              r.relay,
		ControlFactory:     r.controlFactory,
		BuildSubscriber:    r.BuildSubscriber,
		IdleTimeoutSeconds: s.IdleTimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}
	r.vm = vm

	r.registerHTTPHandlers()
	return r, nil
}

// Mount attaches all handlers to a parent mux with the given prefix.
// http.ServeMux does not strip prefixes, so we must use StripPrefix explicitly.
func (r *Router) Mount(mux *http.ServeMux, prefix string) {
	if prefix == "" || prefix == "/" {
		mux.Handle("/", r.mux)
		return
	}
	prefix = strings.TrimRight(prefix, "/")
	mux.Handle(prefix+"/", http.StripPrefix(prefix, r.mux))
	mux.HandleFunc(prefix, func(w http.ResponseWriter, r0 *http.Request) {
		http.Redirect(w, r0, prefix+"/", http.StatusPermanentRedirect)
	})
}

// Handle attaches an extra handler to the router mux.
func (r *Router) Handle(pattern string, h http.Handler) { r.mux.Handle(pattern, h) }

// HandleFunc attaches an extra handler to the router mux.
func (r *Router) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	r.mux.HandleFunc(pattern, handler)
}

// Handler returns the router mux (view API + journal API + websocket).
func (r *Router) Handler() http.Handler { return r.mux }

// Relay returns the relay core driving the attached views.
func (r *Router) Relay() *relay.Relay { return r.relay }

// Views returns the view lifecycle manager.
func (r *Router) Views() *ViewManager { return r.vm }

// Journal returns the event journal store.
func (r *Router) Journal() journal.Store { return r.journalStore }

// BuildSubscriber exposes the per-view subscriber builder for external use.
func (r *Router) BuildSubscriber(ctx context.Context, view events.ViewHandle) (message.Subscriber, bool, error) {
	if r == nil || r.streamBackend == nil {
		return nil, false, errors.New("stream backend is nil")
	}
	return r.streamBackend.BuildSubscriber(ctx, view)
}

// BuildHTTPServer constructs an http.Server using settings from layers.
func (r *Router) BuildHTTPServer() (*http.Server, error) {
	s := &RouterSettings{}
	if err := r.parsed.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return nil, err
	}
	r.idleTimeoutSec = s.IdleTimeoutSeconds
	return &http.Server{
		Addr:              s.Addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// RunEventRouter starts the underlying event router loop with the provided
// context. Useful when integrating the bridge into an existing HTTP server
// that needs the event router running independently.
func (r *Router) RunEventRouter(ctx context.Context) error {
	logger := log.With().Str("component", "bridge").Logger()
	logger.Info().Msg("starting event router loop")
	err := r.router.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("event router exited with error")
		return err
	}
	logger.Info().Msg("event router loop exited")
	return nil
}

// Close detaches every view and releases the journal store and stream
// backend.
func (r *Router) Close() error {
	var firstErr error
	if r.vm != nil {
		if err := r.vm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.journalStore != nil {
		if err := r.journalStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.streamBackend != nil {
		if err := r.streamBackend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// registerHTTPHandlers sets up the view API, journal API and websocket
// attach endpoint.
func (r *Router) registerHTTPHandlers() {
	r.registerViewAPIHandlers(r.mux)
	r.registerJournalAPIHandlers(r.mux)
	r.mux.HandleFunc("/ws", r.wsHandler())
}
