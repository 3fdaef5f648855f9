// Package headless implements relay.Control without a platform browser. The
// page script context is a goja runtime driven by an event loop, documents
// come from a pluggable Fetcher, and history is an in-memory stack. It exists
// so relays can be driven, tested and scripted end to end in one process.
package headless

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/relay"
)

// Navigation failure statuses, following the platform web error numbering.
// HTTP-level failures carry their HTTP status code instead.
const (
	StatusUnknown           = 0
	StatusTimeout           = 7
	StatusCannotConnect     = 14
	StatusOperationCanceled = 16
)

var supportedSchemes = map[string]bool{
	"about":       true,
	"http":        true,
	"https":       true,
	"ms-appx-web": true,
}

type entry struct {
	page *Page
	// req is kept for reload of remote documents; nil for inline html.
	req *relay.Request
}

// Control simulates one web view. All exported methods are safe for
// concurrent use; lifecycle callbacks fire synchronously on the calling
// goroutine, like a platform control raising events on its own thread.
type Control struct {
	mu sync.Mutex

	fetcher Fetcher
	loop    *eventloop.EventLoop

	back    []*entry
	current *entry
	forward []*entry

	title   string
	origin  string
	loading bool

	jsEnabled  bool
	idbEnabled bool

	navCancel context.CancelFunc

	startingFns  []func(string)
	completedFns []func(relay.NavigationResult)
	schemeFns    []func(string) bool
	notifyFns    []func(string)

	closed bool
}

type Option func(*Control)

// WithFetcher replaces the document fetcher. The default fetches over HTTP.
func WithFetcher(f Fetcher) Option {
	return func(c *Control) {
		c.fetcher = f
	}
}

func NewControl(options ...Option) *Control {
	c := &Control{
		fetcher:   NewHTTPFetcher(nil),
		loop:      eventloop.NewEventLoop(),
		jsEnabled: true,
	}
	for _, o := range options {
		o(c)
	}

	c.loop.Start()
	blank := &Page{URI: relay.BlankURI}
	c.current = &entry{page: blank}
	c.resetPageContext(blank)
	return c
}

var _ relay.Control = &Control{}

func (c *Control) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("control is closed")
	}
	return nil
}

func (c *Control) Navigate(ctx context.Context, req *relay.Request) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	scheme := uriScheme(req.URI)
	if !supportedSchemes[scheme] {
		if !c.fireUnsupportedScheme(req.URI) {
			c.fireCompleted(relay.NavigationResult{URI: req.URI, Success: false, Status: StatusUnknown})
		}
		return nil
	}

	navCtx, cancel := context.WithCancel(ctx)
	c.setNavCancel(cancel)
	defer c.clearNavCancel(cancel)

	c.setLoading(true)
	c.fireStarting(req.URI)

	var page *Page
	if scheme == "about" {
		page = &Page{URI: req.URI}
	} else {
		fetched, err := c.fetcher.Fetch(navCtx, req)
		if err != nil {
			status := statusFromError(err)
			log.Debug().Str("uri", req.URI).Int("status", status).Err(err).Msg("headless fetch failed")
			c.setLoading(false)
			c.fireCompleted(relay.NavigationResult{URI: req.URI, Success: false, Status: status})
			return nil
		}
		page = fetched
	}
	if page.URI == "" {
		page.URI = req.URI
	}

	c.commitPage(page, remoteReq(req), true)
	return nil
}

func (c *Control) NavigateToString(ctx context.Context, html string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.setLoading(true)
	c.fireStarting(relay.BlankURI)

	page := &Page{URI: relay.BlankURI, Title: ExtractTitle(html), HTML: html}
	c.commitPage(page, nil, true)
	return nil
}

func (c *Control) SetOrigin(_ context.Context, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = uri
	return nil
}

// Origin returns the base URI set for inline documents, empty if none.
func (c *Control) Origin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.origin
}

func (c *Control) GoBack(context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.mu.Lock()
	if len(c.back) == 0 {
		c.mu.Unlock()
		return nil
	}
	prev := c.back[len(c.back)-1]
	c.back = c.back[:len(c.back)-1]
	c.forward = append(c.forward, c.current)
	c.current = prev
	c.title = prev.page.Title
	c.mu.Unlock()

	c.fireStarting(prev.page.URI)
	c.resetPageContext(prev.page)
	c.fireCompleted(relay.NavigationResult{URI: prev.page.URI, Success: true})
	return nil
}

func (c *Control) GoForward(context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.mu.Lock()
	if len(c.forward) == 0 {
		c.mu.Unlock()
		return nil
	}
	next := c.forward[len(c.forward)-1]
	c.forward = c.forward[:len(c.forward)-1]
	c.back = append(c.back, c.current)
	c.current = next
	c.title = next.page.Title
	c.mu.Unlock()

	c.fireStarting(next.page.URI)
	c.resetPageContext(next.page)
	c.fireCompleted(relay.NavigationResult{URI: next.page.URI, Success: true})
	return nil
}

func (c *Control) Reload(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return nil
	}

	c.setLoading(true)
	c.fireStarting(cur.page.URI)

	page := cur.page
	if cur.req != nil {
		fetched, err := c.fetcher.Fetch(ctx, cur.req)
		if err != nil {
			status := statusFromError(err)
			c.setLoading(false)
			c.fireCompleted(relay.NavigationResult{URI: cur.page.URI, Success: false, Status: status})
			return nil
		}
		page = fetched
		if page.URI == "" {
			page.URI = cur.page.URI
		}
		c.mu.Lock()
		cur.page = page
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.title = page.Title
	c.loading = false
	c.mu.Unlock()

	c.resetPageContext(page)
	c.fireCompleted(relay.NavigationResult{URI: page.URI, Success: true})
	return nil
}

func (c *Control) Stop(context.Context) error {
	c.mu.Lock()
	cancel := c.navCancel
	c.loading = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Control) CanGoBack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.back) > 0
}

func (c *Control) CanGoForward() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forward) > 0
}

func (c *Control) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

func (c *Control) CurrentURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return relay.BlankURI
	}
	return c.current.page.URI
}

// Loading reports whether a navigation is in flight.
func (c *Control) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Control) SetJavaScriptEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsEnabled = enabled
}

func (c *Control) SetIndexedDBEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idbEnabled = enabled
}

func (c *Control) OnNavigationStarting(f func(uri string)) relay.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startingFns = append(c.startingFns, f)
	idx := len(c.startingFns) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.startingFns[idx] = nil
	}
}

func (c *Control) OnNavigationCompleted(f func(res relay.NavigationResult)) relay.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completedFns = append(c.completedFns, f)
	idx := len(c.completedFns) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.completedFns[idx] = nil
	}
}

func (c *Control) OnUnsupportedScheme(f func(uri string) bool) relay.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemeFns = append(c.schemeFns, f)
	idx := len(c.schemeFns) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.schemeFns[idx] = nil
	}
}

func (c *Control) OnScriptNotify(f func(data string)) relay.Disposer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyFns = append(c.notifyFns, f)
	idx := len(c.notifyFns) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notifyFns[idx] = nil
	}
}

func (c *Control) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.navCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.loop.Stop()
	return nil
}

// commitPage installs page as the current document, optionally pushing the
// previous one onto the back stack, and reports completion.
func (c *Control) commitPage(page *Page, req *relay.Request, push bool) {
	c.mu.Lock()
	if push && c.current != nil {
		c.back = append(c.back, c.current)
		c.forward = nil
	}
	c.current = &entry{page: page, req: req}
	c.title = page.Title
	c.loading = false
	c.mu.Unlock()

	c.resetPageContext(page)
	c.fireCompleted(relay.NavigationResult{URI: page.URI, Success: true})
}

func (c *Control) setLoading(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = loading
}

func (c *Control) setTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
}

func (c *Control) setNavCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navCancel = cancel
}

func (c *Control) clearNavCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.navCancel != nil {
		cancel()
		c.navCancel = nil
	}
}

func (c *Control) jsAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jsEnabled
}

func (c *Control) fireStarting(uri string) {
	c.mu.Lock()
	fns := append([]func(string){}, c.startingFns...)
	c.mu.Unlock()
	for _, f := range fns {
		if f != nil {
			f(uri)
		}
	}
}

func (c *Control) fireCompleted(res relay.NavigationResult) {
	c.mu.Lock()
	fns := append([]func(relay.NavigationResult){}, c.completedFns...)
	c.mu.Unlock()
	for _, f := range fns {
		if f != nil {
			f(res)
		}
	}
}

func (c *Control) fireUnsupportedScheme(uri string) bool {
	c.mu.Lock()
	fns := append([]func(string) bool{}, c.schemeFns...)
	c.mu.Unlock()
	handled := false
	for _, f := range fns {
		if f != nil && f(uri) {
			handled = true
		}
	}
	return handled
}

func (c *Control) fireScriptNotify(data string) {
	c.mu.Lock()
	fns := append([]func(string){}, c.notifyFns...)
	c.mu.Unlock()
	for _, f := range fns {
		if f != nil {
			f(data)
		}
	}
}

func remoteReq(req *relay.Request) *relay.Request {
	if req == nil {
		return nil
	}
	clone := *req
	return &clone
}

func uriScheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func statusFromError(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	if errors.Is(err, context.Canceled) {
		return StatusOperationCanceled
	}
	return StatusCannotConnect
}
