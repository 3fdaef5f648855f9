package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// Page is one loaded document.
type Page struct {
	URI   string
	Title string
	HTML  string
}

// pageBootstrap rebuilds the script globals for a freshly loaded document.
// It mirrors the little corner of the browser surface pages actually touch:
// document.title, location.href, window.external.notify and the message
// bridge used by postMessage.
const pageBootstrap = `(function () {
	globalThis.window = globalThis;
	var doc = {
		location: { href: __location },
		documentElement: { innerHTML: __documentHTML },
	};
	Object.defineProperty(doc, 'title', {
		get: function () { return __getTitle(); },
		set: function (v) { __setTitle(String(v)); },
		configurable: true,
	});
	globalThis.document = doc;
	globalThis.location = doc.location;
	globalThis.external = {
		notify: function (s) { __notifyHost(String(s)); },
	};
	globalThis.__viewBridge = {
		postMessage: function (s) { __notifyHost(String(s)); },
		onMessage: null,
	};
})();`

// resetPageContext swaps the page globals for a new document. It blocks
// until the loop has run the bootstrap so callers observe a consistent
// context afterwards.
func (c *Control) resetPageContext(page *Page) {
	done := make(chan struct{})
	c.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer close(done)

		setErr := func(err error) {
			if err != nil {
				panic(err)
			}
		}
		setErr(vm.Set("__location", page.URI))
		setErr(vm.Set("__documentHTML", page.HTML))
		setErr(vm.Set("__getTitle", func() string { return c.Title() }))
		setErr(vm.Set("__setTitle", func(title string) { c.setTitle(title) }))
		setErr(vm.Set("__notifyHost", func(data string) { c.fireScriptNotify(data) }))

		if _, err := vm.RunScript("page-bootstrap.js", pageBootstrap); err != nil {
			panic(errors.Wrap(err, "page bootstrap failed"))
		}
	})
	<-done
}

// EvalScript runs script in the page context and returns its result as a
// string, the way a platform invoke-script call does. Thrown values come
// back as errors carrying the thrown message.
func (c *Control) EvalScript(ctx context.Context, script string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	if !c.jsAllowed() {
		return "", errors.New("javascript is disabled for this view")
	}

	type evalResult struct {
		value string
		err   error
	}
	ch := make(chan evalResult, 1)

	c.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunScript("eval.js", script)
		if err != nil {
			ch <- evalResult{err: scriptError(err)}
			return
		}
		ch <- evalResult{value: valueToString(v)}
	})

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PostMessage hands data to the page's bridge onMessage handler, if the page
// installed one.
func (c *Control) PostMessage(ctx context.Context, data string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "could not encode message")
	}
	script := fmt.Sprintf(
		"if (window.__viewBridge && typeof window.__viewBridge.onMessage === 'function') { window.__viewBridge.onMessage(%s); }",
		payload,
	)
	_, err = c.EvalScript(ctx, script)
	return errors.Wrap(err, "could not deliver message to page")
}

func scriptError(err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return errors.New(ex.Value().String())
	}
	return err
}

func valueToString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// ExtractTitle pulls the document title out of an HTML blob, unescaped and
// whitespace-trimmed. Empty if there is none.
func ExtractTitle(htmlText string) string {
	m := titleRe.FindStringSubmatch(htmlText)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}
