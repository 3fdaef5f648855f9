package headless

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/relay"
)

// Fetcher resolves a navigation request to a document.
type Fetcher interface {
	Fetch(ctx context.Context, req *relay.Request) (*Page, error)
}

// FetchError is a failed fetch with a navigation status attached.
type FetchError struct {
	Status  int
	Message string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fetch failed with status %d", e.Status)
	}
	return fmt.Sprintf("fetch failed with status %d: %s", e.Status, e.Message)
}

// MapFetcher serves documents from an in-memory URI table. Anything not in
// the table is a 404.
type MapFetcher struct {
	mu    sync.RWMutex
	pages map[string]*Page
}

func NewMapFetcher(pages ...*Page) *MapFetcher {
	f := &MapFetcher{pages: map[string]*Page{}}
	for _, p := range pages {
		f.Add(p)
	}
	return f
}

func (f *MapFetcher) Add(page *Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page.URI] = page
}

func (f *MapFetcher) Fetch(_ context.Context, req *relay.Request) (*Page, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	page, ok := f.pages[req.URI]
	if !ok {
		return nil, &FetchError{Status: http.StatusNotFound, Message: req.URI}
	}
	clone := *page
	return &clone, nil
}

var _ Fetcher = &MapFetcher{}

const maxDocumentSize = 10 << 20

// HTTPFetcher fetches documents over the network, honoring the request's
// method, headers and body.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client, or a 30s-timeout default when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *relay.Request) (*Page, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build request for %s", req.URI)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Status: StatusCannotConnect, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, &FetchError{Status: resp.StatusCode, Message: resp.Status}
	}

	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, &FetchError{Status: StatusCannotConnect, Message: err.Error()}
	}

	text := string(blob)
	return &Page{
		URI:   resp.Request.URL.String(),
		Title: ExtractTitle(text),
		HTML:  text,
	}, nil
}

var _ Fetcher = &HTTPFetcher{}

// FSFetcher serves application-package URIs from a filesystem, mapping the
// URI path onto a file below the root.
type FSFetcher struct {
	fsys fs.FS
}

func NewFSFetcher(fsys fs.FS) *FSFetcher {
	return &FSFetcher{fsys: fsys}
}

func (f *FSFetcher) Fetch(_ context.Context, req *relay.Request) (*Page, error) {
	u, err := url.Parse(req.URI)
	if err != nil {
		return nil, &FetchError{Status: StatusUnknown, Message: err.Error()}
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		name = "index.html"
	}

	blob, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		return nil, &FetchError{Status: http.StatusNotFound, Message: name}
	}

	text := string(blob)
	return &Page{
		URI:   req.URI,
		Title: ExtractTitle(text),
		HTML:  text,
	}, nil
}

var _ Fetcher = &FSFetcher{}

// RouteFetcher picks a fetcher by URI scheme, falling back to a default.
type RouteFetcher struct {
	routes      map[string]Fetcher
	defaultFchr Fetcher
}

func NewRouteFetcher(defaultFetcher Fetcher) *RouteFetcher {
	return &RouteFetcher{
		routes:      map[string]Fetcher{},
		defaultFchr: defaultFetcher,
	}
}

// Route sends URIs with the given scheme to f.
func (r *RouteFetcher) Route(scheme string, f Fetcher) *RouteFetcher {
	r.routes[strings.ToLower(scheme)] = f
	return r
}

func (r *RouteFetcher) Fetch(ctx context.Context, req *relay.Request) (*Page, error) {
	if f, ok := r.routes[uriScheme(req.URI)]; ok {
		return f.Fetch(ctx, req)
	}
	if r.defaultFchr == nil {
		return nil, &FetchError{Status: StatusCannotConnect, Message: "no fetcher for " + req.URI}
	}
	return r.defaultFchr.Fetch(ctx, req)
}

var _ Fetcher = &RouteFetcher{}
