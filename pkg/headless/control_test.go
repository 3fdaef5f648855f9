package headless

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/relay"
)

type lifecycleLog struct {
	mu        sync.Mutex
	starting  []string
	completed []relay.NavigationResult
	schemes   []string
	notified  []string
	handle    bool
}

func (l *lifecycleLog) attach(c *Control) {
	c.OnNavigationStarting(func(uri string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.starting = append(l.starting, uri)
	})
	c.OnNavigationCompleted(func(res relay.NavigationResult) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.completed = append(l.completed, res)
	})
	c.OnUnsupportedScheme(func(uri string) bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.schemes = append(l.schemes, uri)
		return l.handle
	})
	c.OnScriptNotify(func(data string) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.notified = append(l.notified, data)
	})
}

func testPages() *MapFetcher {
	return NewMapFetcher(
		&Page{URI: "https://example.com/a", Title: "Page A", HTML: "<title>Page A</title><p>a</p>"},
		&Page{URI: "https://example.com/b", Title: "Page B", HTML: "<title>Page B</title><p>b</p>"},
	)
}

func newTestControl(t *testing.T, opts ...Option) *Control {
	t.Helper()
	c := NewControl(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestControl_NavigateFiresLifecycleAndUpdatesState(t *testing.T) {
	c := newTestControl(t, WithFetcher(testPages()))
	lc := &lifecycleLog{}
	lc.attach(c)

	require.NoError(t, c.Navigate(context.Background(), &relay.Request{URI: "https://example.com/a", Method: http.MethodGet}))

	require.Equal(t, []string{"https://example.com/a"}, lc.starting)
	require.Len(t, lc.completed, 1)
	require.True(t, lc.completed[0].Success)
	require.Equal(t, "https://example.com/a", lc.completed[0].URI)
	require.Equal(t, "https://example.com/a", c.CurrentURI())
	require.Equal(t, "Page A", c.Title())
	require.False(t, c.Loading())
}

func TestControl_MissingPageReportsHTTPStatus(t *testing.T) {
	c := newTestControl(t, WithFetcher(testPages()))
	lc := &lifecycleLog{}
	lc.attach(c)

	require.NoError(t, c.Navigate(context.Background(), &relay.Request{URI: "https://example.com/missing", Method: http.MethodGet}))

	require.Len(t, lc.completed, 1)
	require.False(t, lc.completed[0].Success)
	require.Equal(t, http.StatusNotFound, lc.completed[0].Status)
	// The old document survives a failed navigation.
	require.Equal(t, relay.BlankURI, c.CurrentURI())
}

func TestControl_UnsupportedScheme(t *testing.T) {
	c := newTestControl(t, WithFetcher(testPages()))
	lc := &lifecycleLog{}
	lc.attach(c)

	// Nobody marks it handled: the control reports a failure.
	require.NoError(t, c.Navigate(context.Background(), &relay.Request{URI: "mailto:x@example.com", Method: http.MethodGet}))
	require.Equal(t, []string{"mailto:x@example.com"}, lc.schemes)
	require.Len(t, lc.completed, 1)
	require.False(t, lc.completed[0].Success)

	// Handled: no completion callback at all.
	lc.mu.Lock()
	lc.handle = true
	lc.mu.Unlock()
	require.NoError(t, c.Navigate(context.Background(), &relay.Request{URI: "tel:12345", Method: http.MethodGet}))
	require.Len(t, lc.schemes, 2)
	require.Len(t, lc.completed, 1)
}

func TestControl_HistoryBackAndForward(t *testing.T) {
	c := newTestControl(t, WithFetcher(testPages()))
	ctx := context.Background()

	require.NoError(t, c.Navigate(ctx, &relay.Request{URI: "https://example.com/a", Method: http.MethodGet}))
	require.NoError(t, c.Navigate(ctx, &relay.Request{URI: "https://example.com/b", Method: http.MethodGet}))

	require.True(t, c.CanGoBack())
	require.False(t, c.CanGoForward())

	require.NoError(t, c.GoBack(ctx))
	require.Equal(t, "https://example.com/a", c.CurrentURI())
	require.Equal(t, "Page A", c.Title())
	require.True(t, c.CanGoForward())

	require.NoError(t, c.GoForward(ctx))
	require.Equal(t, "https://example.com/b", c.CurrentURI())
	require.False(t, c.CanGoForward())

	// No-ops at the edges.
	require.NoError(t, c.GoForward(ctx))
	require.Equal(t, "https://example.com/b", c.CurrentURI())
}

func TestControl_EvalScript(t *testing.T) {
	c := newTestControl(t)
	ctx := context.Background()

	res, err := c.EvalScript(ctx, "6*7")
	require.NoError(t, err)
	require.Equal(t, "42", res)

	res, err = c.EvalScript(ctx, "undefined")
	require.NoError(t, err)
	require.Equal(t, "", res)

	_, err = c.EvalScript(ctx, "boom()")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom is not defined")
}

func TestControl_EvalScriptRespectsJavaScriptToggle(t *testing.T) {
	c := newTestControl(t)

	c.SetJavaScriptEnabled(false)
	_, err := c.EvalScript(context.Background(), "1+1")
	require.Error(t, err)

	c.SetJavaScriptEnabled(true)
	res, err := c.EvalScript(context.Background(), "1+1")
	require.NoError(t, err)
	require.Equal(t, "2", res)
}

func TestControl_DocumentTitleScriptable(t *testing.T) {
	c := newTestControl(t)

	_, err := c.EvalScript(context.Background(), "document.title = 'scripted'")
	require.NoError(t, err)
	require.Equal(t, "scripted", c.Title())

	res, err := c.EvalScript(context.Background(), "document.title")
	require.NoError(t, err)
	require.Equal(t, "scripted", res)
}

func TestControl_ExternalNotifyReachesHost(t *testing.T) {
	c := newTestControl(t)
	lc := &lifecycleLog{}
	lc.attach(c)

	_, err := c.EvalScript(context.Background(), "external.notify('hello host')")
	require.NoError(t, err)
	require.Equal(t, []string{"hello host"}, lc.notified)
}

func TestControl_PostMessageRoundTrip(t *testing.T) {
	c := newTestControl(t)
	lc := &lifecycleLog{}
	lc.attach(c)
	ctx := context.Background()

	// No handler installed: delivery is a silent no-op.
	require.NoError(t, c.PostMessage(ctx, "ignored"))
	require.Empty(t, lc.notified)

	_, err := c.EvalScript(ctx, "__viewBridge.onMessage = function (m) { external.notify('echo:' + m); }")
	require.NoError(t, err)

	require.NoError(t, c.PostMessage(ctx, "ping"))
	require.Equal(t, []string{"echo:ping"}, lc.notified)
}

func TestControl_NavigateToStringExtractsTitle(t *testing.T) {
	c := newTestControl(t)

	require.NoError(t, c.NavigateToString(context.Background(), "<html><head><title>Inline &amp; Co</title></head><body>hi</body></html>"))
	require.Equal(t, "Inline & Co", c.Title())
	require.Equal(t, relay.BlankURI, c.CurrentURI())

	res, err := c.EvalScript(context.Background(), "document.documentElement.innerHTML.indexOf('hi') >= 0")
	require.NoError(t, err)
	require.Equal(t, "true", res)
}

func TestControl_CloseRejectsFurtherWork(t *testing.T) {
	c := NewControl(WithFetcher(testPages()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.EvalScript(context.Background(), "1+1")
	require.Error(t, err)
	require.Error(t, c.Navigate(context.Background(), &relay.Request{URI: "https://example.com/a", Method: http.MethodGet}))
}

func TestControl_DrivenByRelayEndToEnd(t *testing.T) {
	c := newTestControl(t, WithFetcher(testPages()))
	sink := events.NewCollectorSink()
	r := relay.New(relay.WithSink(sink))
	require.NoError(t, r.Attach(1, c))

	require.NoError(t, r.ApplyProps(1, &relay.Props{
		MessagingEnabled:   relay.BoolProp(true),
		InjectedJavaScript: relay.StringProp("document.title = document.title + ' (injected)'"),
		Source:             &relay.Source{URI: relay.StringProp("https://example.com/a")},
	}))
	require.NoError(t, r.Commit(context.Background(), 1))

	evs := sink.Events()
	var finishes int
	for _, e := range evs {
		if e.Type() == events.EventTypeLoadFinish {
			finishes++
			load := e.(*events.EventLoad)
			require.Equal(t, "https://example.com/a", load.Page.URI)
			require.Equal(t, "Page A", load.Page.Title)
		}
	}
	require.Equal(t, 1, finishes)

	require.Eventually(t, func() bool {
		return c.Title() == "Page A (injected)"
	}, time.Second, 10*time.Millisecond)

	// Page messages flow out through the relay.
	_, err := c.EvalScript(context.Background(), "external.notify('from page')")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, e := range sink.Events() {
			if e.Type() == events.EventTypeMessage {
				return e.(*events.EventMessage).Data == "from page"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Detach(1))
	require.Empty(t, r.Handles())
}

func TestControl_AppPackageSchemeDrivenEndToEnd(t *testing.T) {
	assets := NewMapFetcher(
		&Page{URI: "ms-appx-web:///index.html", Title: "Packaged", HTML: "<title>Packaged</title><p>app</p>"},
	)
	c := newTestControl(t, WithFetcher(NewRouteFetcher(testPages()).Route("ms-appx-web", assets)))
	sink := events.NewCollectorSink()
	r := relay.New(relay.WithSink(sink))
	require.NoError(t, r.Attach(1, c))

	require.NoError(t, r.ApplyProps(1, &relay.Props{
		Source: &relay.Source{URI: relay.StringProp("ms-appx:///index.html")},
	}))
	require.NoError(t, r.Commit(context.Background(), 1))

	var finish *events.EventLoad
	for _, e := range sink.Events() {
		if e.Type() == events.EventTypeLoadFinish {
			finish = e.(*events.EventLoad)
		}
	}
	require.NotNil(t, finish)
	require.Equal(t, "ms-appx-web:///index.html", finish.Page.URI)
	require.Equal(t, "Packaged", finish.Page.Title)
	require.NoError(t, r.Detach(1))
}
