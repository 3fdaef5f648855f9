package cmds

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/atotto/clipboard"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/relay"
)

type EvalCommand struct {
	*cmds.CommandDescription
}

type EvalSettings struct {
	Script         string   `glazed:"script"`
	URI            string   `glazed:"uri"`
	HTML           string   `glazed:"html"`
	BaseURL        string   `glazed:"base-url"`
	Method         string   `glazed:"method"`
	Body           string   `glazed:"body"`
	Headers        []string `glazed:"header"`
	TimeoutSeconds int      `glazed:"timeout-seconds"`
	Clipboard      bool     `glazed:"clipboard"`
}

var _ cmds.WriterCommand = &EvalCommand{}

func NewEvalCommand() (*EvalCommand, error) {
	desc := cmds.NewCommandDescription(
		"eval",
		cmds.WithShort("Evaluate a script in a freshly navigated view and print the result"),
		cmds.WithLong(`Navigate a one-shot headless view (remote URI or inline --html), wait for
the document to settle, evaluate the script in its page context and print
the string result. With --clipboard the result is also copied to the system
clipboard, handy for piping extracted values into other tools.`),
		cmds.WithFlags(
			fields.New(
				"uri",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("URI to navigate to before evaluating"),
			),
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
				fields.WithHelp("Abort the navigation and evaluation after this long"),
			),
			fields.New(
				"clipboard",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Copy the result to the system clipboard"),
			),
		),
		cmds.WithArguments(
			fields.New(
				"script",
				fields.TypeString,
				fields.WithHelp("Script to evaluate in the page context"),
				fields.WithRequired(true),
			),
		),
	)
	return &EvalCommand{CommandDescription: desc}, nil
}

func (c *EvalCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *values.Values,
	w io.Writer,
) error {
	s := &EvalSettings{}
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

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(s.TimeoutSeconds)*time.Second)
	defer cancel()
	if err := r.Commit(runCtx, handle); err != nil {
		return errors.Wrap(err, "commit navigation")
	}
	for _, e := range collector.Events() {
		if loadErr, ok := e.(*events.EventLoadError); ok {
			return errors.Errorf("navigation failed with status %d: %s", loadErr.StatusCode, loadErr.Message)
		}
	}

	result, err := r.Eval(runCtx, handle, s.Script)
	if err != nil {
		return errors.Wrap(err, "evaluate script")
	}

	if _, err := fmt.Fprintln(w, result); err != nil {
		return err
	}
	if s.Clipboard {
		if err := clipboard.WriteAll(result); err != nil {
			return errors.Wrap(err, "copy result to clipboard")
		}
		log.Debug().Int("bytes", len(result)).Msg("copied eval result to clipboard")
	}
	return nil
}
