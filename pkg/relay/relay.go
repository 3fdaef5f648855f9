package relay

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
)

// BlankURI is the placeholder document used when a view has no usable
// source.
const BlankURI = "about:blank"

// Relay owns the view registry and drives attached controls from property
// batches, commit signals and commands, emitting events through its sinks.
type Relay struct {
	registry   *Registry
	sinks      []events.Sink
	precedence SourcePrecedence
	session    string
}

type Option func(*Relay)

// WithSink adds an event sink. Sinks are invoked in registration order.
func WithSink(sink events.Sink) Option {
	return func(r *Relay) {
		r.sinks = append(r.sinks, sink)
	}
}

// WithSourcePrecedence overrides which source variant wins when an update
// carries both html and uri.
func WithSourcePrecedence(precedence SourcePrecedence) Option {
	return func(r *Relay) {
		r.precedence = precedence
	}
}

// WithSession stamps all emitted events with a session identifier.
func WithSession(session string) Option {
	return func(r *Relay) {
		r.session = session
	}
}

func New(options ...Option) *Relay {
	ret := &Relay{
		registry: NewRegistry(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Attach registers a control under handle and subscribes to its lifecycle.
// A fresh view is marked dirty so that the first commit navigates it to the
// blank placeholder even when no source was supplied.
func (r *Relay) Attach(handle ViewHandle, control Control) error {
	evalCtx, evalCancel := context.WithCancel(context.Background())
	st := &viewState{
		handle:        handle,
		control:       control,
		sourceUpdated: true,
		evalCtx:       evalCtx,
		evalCancel:    evalCancel,
	}

	if err := r.registry.add(handle, st); err != nil {
		evalCancel()
		return err
	}

	st.disposers = append(st.disposers,
		control.OnNavigationStarting(func(uri string) {
			r.handleNavigationStarting(st, uri)
		}),
		control.OnNavigationCompleted(func(res NavigationResult) {
			r.handleNavigationCompleted(st, res)
		}),
		control.OnUnsupportedScheme(func(uri string) bool {
			return r.handleUnsupportedScheme(st, uri)
		}),
		control.OnScriptNotify(func(data string) {
			r.handleScriptNotify(st, data)
		}),
	)

	log.Debug().Int64("view", int64(handle)).Msg("view attached")
	return nil
}

// ApplyProps applies one declarative update batch. Navigation is deferred
// until Commit so that several changes arriving together trigger a single
// navigation.
func (r *Relay) ApplyProps(handle ViewHandle, props *Props) error {
	st, ok := r.registry.get(handle)
	if !ok {
		return errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}
	if props == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if props.JavaScriptEnabled != nil {
		st.control.SetJavaScriptEnabled(*props.JavaScriptEnabled)
	}
	if props.IndexedDBEnabled != nil {
		st.control.SetIndexedDBEnabled(*props.IndexedDBEnabled)
	}
	if props.MessagingEnabled != nil {
		st.messagingEnabled = *props.MessagingEnabled
	}
	if props.InjectedJavaScript != nil {
		st.injectedJS = *props.InjectedJavaScript
	}
	if props.Source != nil {
		st.source = props.Source
		st.sourceUpdated = true
	}

	log.Debug().
		Int64("view", int64(handle)).
		Bool("source_updated", st.sourceUpdated).
		Msg("applied view props")
	return nil
}

// Commit is the end-of-update-batch signal. It performs at most one
// navigation, and only when a source update is pending. The dirty flag is
// cleared before the attempt so a failed navigation is not retried on the
// next commit.
func (r *Relay) Commit(ctx context.Context, handle ViewHandle) error {
	st, ok := r.registry.get(handle)
	if !ok {
		return errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}

	st.mu.Lock()
	if !st.sourceUpdated {
		st.mu.Unlock()
		return nil
	}
	st.sourceUpdated = false
	source := st.source
	kind := source.Kind(r.precedence)
	st.lastKind = kind
	st.mu.Unlock()

	st.navMu.Lock()
	defer st.navMu.Unlock()

	switch kind {
	case SourceHTML:
		if source.BaseURL != nil {
			if err := st.control.SetOrigin(ctx, *source.BaseURL); err != nil {
				return errors.Wrap(err, "could not set view origin")
			}
		}
		log.Info().
			Int64("view", int64(handle)).
			Int("content_length", len(*source.HTML)).
			Msg("loading inline html")
		return errors.Wrap(st.control.NavigateToString(ctx, *source.HTML), "could not load inline html")
	case SourceRemote:
		req, err := buildRequest(source)
		if err != nil {
			return err
		}
		log.Info().
			Int64("view", int64(handle)).
			Str("uri", req.URI).
			Str("method", req.Method).
			Msg("navigating view")
		return errors.Wrap(st.control.Navigate(ctx, req), "navigation failed")
	default:
		log.Info().Int64("view", int64(handle)).Msg("navigating view to blank placeholder")
		return errors.Wrap(st.control.Navigate(ctx, &Request{URI: BlankURI, Method: http.MethodGet}), "navigation failed")
	}
}

func buildRequest(source *Source) (*Request, error) {
	method := strings.ToUpper(strings.TrimSpace(source.Method))
	switch method {
	case "":
		method = http.MethodGet
	case http.MethodGet, http.MethodPost:
	default:
		return nil, errors.Wrapf(ErrUnsupportedMethod, "method %q", source.Method)
	}

	req := &Request{
		URI:    RewriteAppPackageURI(*source.URI),
		Method: method,
	}
	if len(source.Headers) > 0 {
		req.Headers = make(map[string]string, len(source.Headers))
		for k, v := range source.Headers {
			req.Headers[k] = v
		}
	}
	if source.Body != nil {
		req.Body = []byte(*source.Body)
	}
	return req, nil
}

// Dispatch executes one imperative command against the view.
func (r *Relay) Dispatch(ctx context.Context, handle ViewHandle, opcode CommandID, args []string) error {
	st, ok := r.registry.get(handle)
	if !ok {
		return errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}

	log.Debug().
		Int64("view", int64(handle)).
		Stringer("command", opcode).
		Msg("dispatching view command")

	switch opcode {
	case CommandGoBack:
		st.navMu.Lock()
		defer st.navMu.Unlock()
		if !st.control.CanGoBack() {
			log.Debug().Int64("view", int64(handle)).Msg("goBack ignored, no back history")
			return nil
		}
		return errors.Wrap(st.control.GoBack(ctx), "goBack failed")
	case CommandGoForward:
		st.navMu.Lock()
		defer st.navMu.Unlock()
		if !st.control.CanGoForward() {
			log.Debug().Int64("view", int64(handle)).Msg("goForward ignored, no forward history")
			return nil
		}
		return errors.Wrap(st.control.GoForward(ctx), "goForward failed")
	case CommandReload:
		st.navMu.Lock()
		defer st.navMu.Unlock()
		return errors.Wrap(st.control.Reload(ctx), "reload failed")
	case CommandStopLoading:
		return errors.Wrap(st.control.Stop(ctx), "stopLoading failed")
	case CommandPostMessage:
		st.mu.Lock()
		enabled := st.messagingEnabled
		st.mu.Unlock()
		if !enabled {
			return errors.Wrapf(ErrMessagingDisabled, "handle %d", handle)
		}
		if len(args) < 1 {
			return errors.Wrap(ErrMissingArgument, "postMessage needs a message")
		}
		return errors.Wrap(st.control.PostMessage(ctx, args[0]), "postMessage failed")
	case CommandInjectJavaScript:
		if len(args) < 1 {
			return errors.Wrap(ErrMissingArgument, "injectJavaScript needs script text")
		}
		// Fire and forget; failures are logged, not reported as events.
		r.evalAsync(st, args[0], false)
		return nil
	default:
		return errors.Wrapf(ErrUnknownCommand, "opcode %d", int(opcode))
	}
}

// Eval evaluates script in the page and waits for its result. This is the
// synchronous counterpart of the injectJavaScript command, used by drivers
// that want the value back.
func (r *Relay) Eval(ctx context.Context, handle ViewHandle, script string) (string, error) {
	st, ok := r.registry.get(handle)
	if !ok {
		return "", errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}
	return st.control.EvalScript(ctx, script)
}

// Detach removes the handle, cancels pending script evaluations, drops all
// lifecycle subscriptions and closes the control. Events for the handle stop
// with a final detached marker.
func (r *Relay) Detach(handle ViewHandle) error {
	st, ok := r.registry.remove(handle)
	if !ok {
		return errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}

	st.evalCancel()
	for _, dispose := range st.disposers {
		dispose()
	}
	if err := st.control.Close(); err != nil {
		log.Warn().Err(err).Int64("view", int64(handle)).Msg("error closing view control")
	}

	r.emit(events.NewDetachedEvent(r.metadataFor(handle)))
	log.Debug().Int64("view", int64(handle)).Msg("view detached")
	return nil
}

// Handles lists the attached views.
func (r *Relay) Handles() []ViewHandle {
	return r.registry.Handles()
}

// ViewStatus is a point-in-time snapshot of one view, for inspection
// surfaces.
type ViewStatus struct {
	Handle           ViewHandle `json:"handle"`
	URI              string     `json:"uri"`
	Title            string     `json:"title,omitempty"`
	CanGoBack        bool       `json:"canGoBack"`
	CanGoForward     bool       `json:"canGoForward"`
	SourceKind       string     `json:"sourceKind"`
	SourcePending    bool       `json:"sourcePending"`
	MessagingEnabled bool       `json:"messagingEnabled"`
	HasInjectedJS    bool       `json:"hasInjectedJavaScript"`
}

func (r *Relay) Status(handle ViewHandle) (*ViewStatus, error) {
	st, ok := r.registry.get(handle)
	if !ok {
		return nil, errors.Wrapf(ErrViewNotFound, "handle %d", handle)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return &ViewStatus{
		Handle:           st.handle,
		URI:              st.control.CurrentURI(),
		Title:            st.control.Title(),
		CanGoBack:        st.control.CanGoBack(),
		CanGoForward:     st.control.CanGoForward(),
		SourceKind:       st.lastKind.String(),
		SourcePending:    st.sourceUpdated,
		MessagingEnabled: st.messagingEnabled,
		HasInjectedJS:    strings.TrimSpace(st.injectedJS) != "",
	}, nil
}

func (r *Relay) handleNavigationStarting(st *viewState, uri string) {
	r.emit(events.NewLoadStartEvent(r.metadataFor(st.handle), r.snapshot(st.control, uri, true)))
}

func (r *Relay) handleNavigationCompleted(st *viewState, res NavigationResult) {
	if !res.Success {
		r.emit(events.NewLoadErrorEvent(r.metadataFor(st.handle), res.Status, ""))
		return
	}

	r.emit(events.NewLoadFinishEvent(r.metadataFor(st.handle), r.snapshot(st.control, res.URI, false)))

	st.mu.Lock()
	script := st.injectedJS
	st.mu.Unlock()
	if strings.TrimSpace(script) == "" {
		return
	}
	r.evalAsync(st, script, true)
}

func (r *Relay) handleUnsupportedScheme(st *viewState, uri string) bool {
	log.Debug().Int64("view", int64(st.handle)).Str("uri", uri).Msg("unsupported scheme, reporting load start only")
	r.emit(events.NewLoadStartEvent(r.metadataFor(st.handle), r.snapshot(st.control, uri, true)))
	return true
}

func (r *Relay) handleScriptNotify(st *viewState, data string) {
	st.mu.Lock()
	enabled := st.messagingEnabled
	st.mu.Unlock()
	if !enabled {
		log.Debug().Int64("view", int64(st.handle)).Msg("dropping page message, messaging disabled")
		return
	}
	r.emit(events.NewMessageEvent(r.metadataFor(st.handle), data))
}

// evalAsync runs script evaluation off the event path. The outcome is only
// surfaced while the handle is still registered; a detach in the meantime
// discards it. Failures become load-error events when reportErrors is set
// (post-navigation injection), otherwise they are just logged.
func (r *Relay) evalAsync(st *viewState, script string, reportErrors bool) {
	go func() {
		_, err := st.control.EvalScript(st.evalCtx, script)
		if err == nil {
			return
		}
		if current, ok := r.registry.get(st.handle); !ok || current != st {
			log.Debug().Int64("view", int64(st.handle)).Msg("discarding script failure for detached view")
			return
		}
		if reportErrors {
			r.emit(events.NewLoadErrorEvent(r.metadataFor(st.handle), 0, err.Error()))
			return
		}
		log.Warn().Err(err).Int64("view", int64(st.handle)).Msg("injected script failed")
	}()
}

func (r *Relay) snapshot(control Control, uri string, loading bool) events.PageSnapshot {
	return events.PageSnapshot{
		URI:          uri,
		Title:        control.Title(),
		Loading:      loading,
		CanGoBack:    control.CanGoBack(),
		CanGoForward: control.CanGoForward(),
	}
}

func (r *Relay) metadataFor(handle ViewHandle) events.EventMetadata {
	return events.EventMetadata{View: handle, Session: r.session}
}

func (r *Relay) emit(ev events.Event) {
	for _, sink := range r.sinks {
		if err := sink.PublishEvent(ev); err != nil {
			log.Warn().Err(err).Str("event", string(ev.Type())).Msg("could not publish view event")
		}
	}
}
