package cmds

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/journal"
	"github.com/go-go-golems/finestra/pkg/relay"
)

type NavigateCommand struct {
	*cmds.CommandDescription
}

type NavigateSettings struct {
	URI            string   `glazed:"uri"`
	HTML           string   `glazed:"html"`
	BaseURL        string   `glazed:"base-url"`
	Method         string   `glazed:"method"`
	Body           string   `glazed:"body"`
	Headers        []string `glazed:"header"`
	TimeoutSeconds int      `glazed:"timeout-seconds"`
}

var _ cmds.GlazeCommand = &NavigateCommand{}

func NewNavigateCommand() (*NavigateCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"navigate",
		cmds.WithShort("Navigate a headless view once and print the emitted events"),
		cmds.WithLong(`Navigate a one-shot headless view to a URI (or an inline document via
--html) and print every lifecycle event as a structured row. Remote documents
are fetched over HTTP with the given method, headers and body.`),
		cmds.WithFlags(
			fields.New(
				"html",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Inline HTML document to load instead of a URI"),
			),
			fields.New(
				"base-url",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Origin for an inline document"),
			),
			fields.New(
				"method",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("HTTP method for remote documents (default GET)"),
			),
			fields.New(
				"body",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Request body for POST navigations"),
			),
			fields.New(
				"header",
				fields.TypeStringList,
				fields.WithDefault([]string{}),
				fields.WithHelp("Request header as key=value (repeatable)"),
			),
			fields.New(
				"timeout-seconds",
				fields.TypeInteger,
				fields.WithDefault(30),
				fields.WithHelp("Abort the navigation after this long"),
			),
		),
		cmds.WithArguments(
			fields.New(
				"uri",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("URI to navigate to"),
			),
		),
		cmds.WithSections(glazedSection),
	)
	return &NavigateCommand{CommandDescription: desc}, nil
}

func (c *NavigateCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &NavigateSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	source, err := sourceFromSettings(s.URI, s.HTML, s.BaseURL, s.Method, s.Body, s.Headers)
	if err != nil {
		return err
	}

	collector := events.NewCollectorSink()
	r := relay.New(relay.WithSink(collector))

	const handle relay.ViewHandle = 1
	if err := r.Attach(handle, headless.NewControl()); err != nil {
		return errors.Wrap(err, "attach view")
	}
	defer func() { _ = r.Detach(handle) }()

	if err := r.ApplyProps(handle, &relay.Props{Source: source}); err != nil {
		return errors.Wrap(err, "apply source")
	}

	navCtx, cancel := context.WithTimeout(ctx, time.Duration(s.TimeoutSeconds)*time.Second)
	defer cancel()
	if err := r.Commit(navCtx, handle); err != nil {
		return errors.Wrap(err, "commit navigation")
	}

	for i, e := range collector.Events() {
		if err := gp.AddRow(ctx, eventRow(i+1, e)); err != nil {
			return err
		}
	}
	return nil
}

// sourceFromSettings builds the navigation source shared by navigate and
// eval. Exactly one of uri or html must be given.
func sourceFromSettings(uri, html, baseURL, method, body string, headers []string) (*relay.Source, error) {
	if uri != "" && html != "" {
		return nil, errors.New("pass either a uri or --html, not both")
	}
	if uri == "" && html == "" {
		return nil, errors.New("pass a uri or --html")
	}

	source := &relay.Source{}
	if html != "" {
		source.HTML = relay.StringProp(html)
		if baseURL != "" {
			source.BaseURL = relay.StringProp(baseURL)
		}
		return source, nil
	}

	source.URI = relay.StringProp(uri)
	if method != "" {
		source.Method = method
	}
	if body != "" {
		source.Body = relay.StringProp(body)
	}
	if len(headers) > 0 {
		parsed := map[string]string{}
		for _, h := range headers {
			k, v, ok := strings.Cut(h, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, errors.Errorf("bad header %q, expected key=value", h)
			}
			parsed[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		source.Headers = parsed
	}
	return source, nil
}

// eventRow flattens an event with the journal's column mapping so CLI rows
// and journal queries line up.
func eventRow(seq int, e events.Event) types.Row {
	rec, err := journal.RecordFromEvent(e)
	if err != nil {
		return types.NewRow(
			types.MRP("seq", seq),
			types.MRP("type", string(e.Type())),
		)
	}
	return types.NewRow(
		types.MRP("seq", seq),
		types.MRP("type", rec.Type),
		types.MRP("uri", rec.URI),
		types.MRP("title", rec.Title),
		types.MRP("status", rec.Status),
		types.MRP("message", rec.Message),
		types.MRP("data", rec.Data),
	)
}
