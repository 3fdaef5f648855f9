package relay

import (
	"context"
)

// Disposer removes a lifecycle subscription. Calling it more than once is
// harmless.
type Disposer func()

// Request describes one remote navigation. Body is attached verbatim when
// non-nil; Headers are copied onto the request without interpretation.
type Request struct {
	URI     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// NavigationResult reports how a navigation ended. Status carries the
// platform error status and is zero on success.
type NavigationResult struct {
	URI     string
	Success bool
	Status  int
}

// Control is the native web view surface the relay drives. Implementations
// wrap an actual browser control (or simulate one, see pkg/headless).
//
// Subscription callbacks may be invoked from the control's own goroutines;
// the relay serializes its reaction per view.
type Control interface {
	// Navigate issues a request navigation.
	Navigate(ctx context.Context, req *Request) error
	// NavigateToString renders literal HTML without a network fetch.
	NavigateToString(ctx context.Context, html string) error
	// SetOrigin changes the base URI used to resolve relative resources
	// without navigating.
	SetOrigin(ctx context.Context, uri string) error

	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	Stop(ctx context.Context) error

	CanGoBack() bool
	CanGoForward() bool
	Title() string
	CurrentURI() string

	SetJavaScriptEnabled(enabled bool)
	SetIndexedDBEnabled(enabled bool)

	// EvalScript evaluates script in the page and returns its string result.
	EvalScript(ctx context.Context, script string) (string, error)
	// PostMessage delivers a string to the page's message bridge.
	PostMessage(ctx context.Context, data string) error

	// OnNavigationStarting fires when a navigation is about to begin.
	OnNavigationStarting(f func(uri string)) Disposer
	// OnNavigationCompleted fires once per navigation, success or not.
	OnNavigationCompleted(f func(res NavigationResult)) Disposer
	// OnUnsupportedScheme fires for URI schemes the control cannot render.
	// Returning true marks the scheme as handled and suppresses the
	// control's own error path.
	OnUnsupportedScheme(f func(uri string) bool) Disposer
	// OnScriptNotify fires when page script posts a string to the host.
	OnScriptNotify(f func(data string)) Disposer

	Close() error
}
