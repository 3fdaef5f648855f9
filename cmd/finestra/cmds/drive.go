package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/headless"
	"github.com/go-go-golems/finestra/pkg/relay"
)

type DriveCommand struct {
	*cmds.CommandDescription
}

type DriveSettings struct {
	URI     string `glazed:"uri"`
	HTML    string `glazed:"html"`
	BaseURL string `glazed:"base-url"`
	Session string `glazed:"session"`
}

var _ cmds.BareCommand = &DriveCommand{}

func NewDriveCommand() (*DriveCommand, error) {
	desc := cmds.NewCommandDescription(
		"drive",
		cmds.WithShort("Drive a headless view interactively from the terminal"),
		cmds.WithLong(`Drive a single headless view from an interactive prompt. Events stream to
stdout as they happen; type help for the command list. Needs a terminal on
stdin and stdout.`),
		cmds.WithFlags(
			fields.New(
				"uri",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("URI to open before the first prompt"),
			),
			fields.New(
				"html",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Inline HTML document to open before the first prompt"),
			),
			fields.New(
				"base-url",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Origin for an inline document"),
			),
			fields.New(
				"session",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Session identifier stamped onto every emitted event"),
			),
		),
	)
	return &DriveCommand{CommandDescription: desc}, nil
}

func (c *DriveCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &DriveSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return errors.New("drive needs an interactive terminal, use navigate or scenario run instead")
	}

	opts := []relay.Option{relay.WithSink(events.NewPrinterSink(os.Stdout))}
	if s.Session != "" {
		opts = append(opts, relay.WithSession(s.Session))
	}
	r := relay.New(opts...)

	const handle relay.ViewHandle = 1
	if err := r.Attach(handle, headless.NewControl()); err != nil {
		return errors.Wrap(err, "attach view")
	}
	defer func() { _ = r.Detach(handle) }()

	if s.URI != "" || s.HTML != "" {
		source, err := sourceFromSettings(s.URI, s.HTML, s.BaseURL, "", "", nil)
		if err != nil {
			return err
		}
		if err := r.ApplyProps(handle, &relay.Props{Source: source}); err != nil {
			return errors.Wrap(err, "apply source")
		}
		if err := r.Commit(ctx, handle); err != nil {
			return errors.Wrap(err, "commit navigation")
		}
	}

	ui := &input.UI{
		Writer: os.Stderr,
		Reader: os.Stdin,
	}
	fmt.Fprintln(os.Stderr, "driving view 1, type help for commands")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := ui.Ask("finestra>", &input.Options{
			Required: false,
			Loop:     false,
		})
		if err != nil {
			// Ctrl-D and closed stdin end the session.
			log.Debug().Err(err).Msg("drive prompt closed")
			return nil
		}
		quit, err := runDriveLine(ctx, r, handle, line)
		if quit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
	}
}

// runDriveLine executes one prompt line. The boolean reports that the user
// asked to quit.
func runDriveLine(ctx context.Context, r *relay.Relay, handle relay.ViewHandle, line string) (bool, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return false, nil
	}
	verb, rest := words[0], strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), words[0]))

	switch verb {
	case "quit", "exit":
		return true, nil
	case "help":
		driveHelp(os.Stderr)
		return false, nil
	case "open":
		if rest == "" {
			return false, errors.New("open needs a uri")
		}
		if err := r.ApplyProps(handle, &relay.Props{Source: &relay.Source{URI: relay.StringProp(rest)}}); err != nil {
			return false, err
		}
		return false, r.Commit(ctx, handle)
	case "html":
		if rest == "" {
			return false, errors.New("html needs an inline document")
		}
		if err := r.ApplyProps(handle, &relay.Props{Source: &relay.Source{HTML: relay.StringProp(rest)}}); err != nil {
			return false, err
		}
		return false, r.Commit(ctx, handle)
	case "back":
		return false, r.Dispatch(ctx, handle, relay.CommandGoBack, nil)
	case "forward":
		return false, r.Dispatch(ctx, handle, relay.CommandGoForward, nil)
	case "reload":
		return false, r.Dispatch(ctx, handle, relay.CommandReload, nil)
	case "stop":
		return false, r.Dispatch(ctx, handle, relay.CommandStopLoading, nil)
	case "eval":
		if rest == "" {
			return false, errors.New("eval needs script text")
		}
		result, err := r.Eval(ctx, handle, rest)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(os.Stdout, result)
		return false, nil
	case "post":
		if rest == "" {
			return false, errors.New("post needs message data")
		}
		return false, r.Dispatch(ctx, handle, relay.CommandPostMessage, []string{rest})
	case "inject":
		if rest == "" {
			return false, errors.New("inject needs script text")
		}
		return false, r.Dispatch(ctx, handle, relay.CommandInjectJavaScript, []string{rest})
	case "js", "msg":
		enabled, err := parseOnOff(rest)
		if err != nil {
			return false, err
		}
		props := &relay.Props{}
		if verb == "js" {
			props.JavaScriptEnabled = relay.BoolProp(enabled)
		} else {
			props.MessagingEnabled = relay.BoolProp(enabled)
		}
		return false, r.ApplyProps(handle, props)
	case "status":
		status, err := r.Status(handle)
		if err != nil {
			return false, err
		}
		printDriveStatus(os.Stdout, status)
		return false, nil
	default:
		// Accept the wire command names directly, with the remainder as
		// the single argument.
		if opcode, ok := relay.CommandFromName(verb); ok {
			var args []string
			if rest != "" {
				args = []string{rest}
			}
			return false, r.Dispatch(ctx, handle, opcode, args)
		}
		return false, errors.Errorf("unknown command %q, type help", verb)
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, errors.Errorf("expected on or off, got %q", s)
	}
}

func printDriveStatus(w io.Writer, status *relay.ViewStatus) {
	fmt.Fprintf(w, "view %d: %s\n", status.Handle, status.URI)
	if status.Title != "" {
		fmt.Fprintf(w, "  title      %s\n", status.Title)
	}
	fmt.Fprintf(w, "  source     %s (pending=%t)\n", status.SourceKind, status.SourcePending)
	fmt.Fprintf(w, "  history    back=%t forward=%t\n", status.CanGoBack, status.CanGoForward)
	fmt.Fprintf(w, "  messaging  %t\n", status.MessagingEnabled)
	fmt.Fprintf(w, "  injected   %t\n", status.HasInjectedJS)
}

func driveHelp(w io.Writer) {
	fmt.Fprint(w, `commands:
  open <uri>        navigate to a uri
  html <document>   load an inline html document
  back, forward     move through history
  reload, stop      reload or stop the current load
  eval <script>     evaluate script and print the result
  post <data>       post a message to the page (needs msg on)
  inject <script>   fire-and-forget script evaluation
  js on|off         toggle page script execution
  msg on|off        toggle page messaging
  status            show the view state
  quit              leave
`)
}
