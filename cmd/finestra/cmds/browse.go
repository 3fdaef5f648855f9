package cmds

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
	"github.com/go-go-golems/finestra/pkg/journal"
)

const browseListWidth = 46

var (
	browseTitleStyle = lipgloss.NewStyle().MarginLeft(2).Bold(true).Foreground(lipgloss.Color("#FFFDF5"))

	browseListPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	browseEventPane = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	browseHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true).MarginBottom(1).Foreground(lipgloss.Color("#FFFDF5"))
	browseKeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	browseValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5"))
	browseErrorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	browseEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Align(lipgloss.Center).
				PaddingTop(2)
)

type BrowseCommand struct {
	*cmds.CommandDescription
}

type BrowseSettings struct {
	JournalDSN string `glazed:"journal-dsn"`
	JournalDB  string `glazed:"journal-db"`
	Limit      int    `glazed:"limit"`
}

var _ cmds.BareCommand = &BrowseCommand{}

func NewBrowseCommand() (*BrowseCommand, error) {
	flags := append(journalStoreFlagDefs(),
		fields.New(
			"limit",
			fields.TypeInteger,
			fields.WithDefault(200),
			fields.WithHelp("Limit number of views to browse"),
		),
	)

	desc := cmds.NewCommandDescription(
		"browse",
		cmds.WithShort("Browse journaled views and their events in a terminal UI"),
		cmds.WithLong(`Browse the journal interactively: views on the left, the selected view's
event history on the right. Press r to reload the selected view's events,
q to leave.`),
		cmds.WithFlags(flags...),
	)
	return &BrowseCommand{CommandDescription: desc}, nil
}

func (c *BrowseCommand) Run(ctx context.Context, parsedLayers *values.Values) error {
	s := &BrowseSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return errors.New("browse needs a terminal, use journal list instead")
	}

	store, err := openJournalStore(&JournalStoreSettings{JournalDSN: s.JournalDSN, JournalDB: s.JournalDB})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	views, err := store.ListViews(ctx, s.Limit, 0)
	if err != nil {
		return err
	}
	if len(views) == 0 {
		return errors.New("the journal has no views yet")
	}

	m := newBrowseModel(ctx, store, views)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// browseItem adapts a view summary to the list widget.
type browseItem struct {
	summary journal.ViewSummary
}

func (i browseItem) Title() string {
	if i.summary.Detached {
		return fmt.Sprintf("view %d (detached)", i.summary.View)
	}
	return fmt.Sprintf("view %d", i.summary.View)
}

func (i browseItem) Description() string {
	where := i.summary.LastURI
	if i.summary.LastTitle != "" {
		where = i.summary.LastTitle
	}
	if where == "" {
		where = "no navigation yet"
	}
	return fmt.Sprintf("%d events, %s", i.summary.EventCount, where)
}

func (i browseItem) FilterValue() string {
	return fmt.Sprintf("%d %s %s", i.summary.View, i.summary.LastURI, i.summary.LastTitle)
}

// viewEventsMsg carries one view's records back into the update loop.
type viewEventsMsg struct {
	view    events.ViewHandle
	records []journal.Record
	err     error
}

type browseModel struct {
	ctx      context.Context
	store    journal.Store
	list     list.Model
	viewport viewport.Model
	selected *journal.ViewSummary
	loadErr  error
	ready    bool
	width    int
	height   int
}

func newBrowseModel(ctx context.Context, store journal.Store, views []journal.ViewSummary) browseModel {
	items := make([]list.Item, 0, len(views))
	for _, v := range views {
		items = append(items, browseItem{summary: v})
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = "Journal"
	l.Styles.Title = browseTitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(true)

	return browseModel{
		ctx:   ctx,
		store: store,
		list:  l,
	}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) loadEvents(view events.ViewHandle) tea.Cmd {
	store := m.store
	ctx := m.ctx
	return func() tea.Msg {
		records, err := store.Events(ctx, view, 0, 0)
		return viewEventsMsg{view: view, records: records, err: err}
	}
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r", "enter":
			if m.selected != nil {
				return m, m.loadEvents(m.selected.View)
			}
		}

		oldSelected := m.list.SelectedItem()
		newList, listCmd := m.list.Update(msg)
		m.list = newList
		newSelected := m.list.SelectedItem()
		cmds = append(cmds, listCmd)

		if item, ok := newSelected.(browseItem); ok {
			changed := true
			if old, ok := oldSelected.(browseItem); ok {
				changed = old.summary.View != item.summary.View
			}
			if changed || m.selected == nil {
				summary := item.summary
				m.selected = &summary
				cmds = append(cmds, m.loadEvents(summary.View))
			}
		}

	case viewEventsMsg:
		// A slow query can land after the selection moved on.
		if m.selected != nil && m.selected.View == msg.view {
			m.loadErr = msg.err
			m.viewport.SetContent(m.renderEvents(msg.records))
			m.viewport.GotoTop()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if !m.ready {
			m.list.SetSize(browseListWidth, m.height-4)
			m.viewport = viewport.New(m.width-browseListWidth-8, m.height-4)
			m.ready = true

			if item, ok := m.list.SelectedItem().(browseItem); ok {
				summary := item.summary
				m.selected = &summary
				cmds = append(cmds, m.loadEvents(summary.View))
			}
		} else {
			m.list.SetSize(browseListWidth, m.height-4)
			m.viewport.Width = m.width - browseListWidth - 8
			m.viewport.Height = m.height - 4
		}
	}

	var viewportCmd tea.Cmd
	m.viewport, viewportCmd = m.viewport.Update(msg)
	cmds = append(cmds, viewportCmd)

	return m, tea.Batch(cmds...)
}

func (m browseModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	listContent := browseListPane.Width(browseListWidth).Render(m.list.View())

	var eventContent string
	switch {
	case m.selected == nil:
		eventContent = browseEmptyStyle.Render("Select a view to see its events")
	case m.loadErr != nil:
		eventContent = browseErrorStyle.Render(fmt.Sprintf("could not load events: %v", m.loadErr))
	default:
		eventContent = m.viewport.View()
	}
	eventPane := browseEventPane.
		Width(m.width - browseListWidth - 6).
		Height(m.height - 4).
		Render(eventContent)

	return lipgloss.JoinHorizontal(lipgloss.Top, listContent, eventPane)
}

func (m browseModel) renderEvents(records []journal.Record) string {
	var sb strings.Builder

	if m.selected != nil {
		sb.WriteString(browseHeaderStyle.Render(fmt.Sprintf("view %d", m.selected.View)))
		sb.WriteString("\n\n")
	}
	if len(records) == 0 {
		sb.WriteString(browseEmptyStyle.Render("No events recorded"))
		return sb.String()
	}

	for _, rec := range records {
		at := time.UnixMilli(rec.AtMs).Format("15:04:05")
		sb.WriteString(browseKeyStyle.Render(fmt.Sprintf("%s  %-11s ", at, rec.Type)))
		sb.WriteString(browseValueStyle.Render(recordDetail(rec)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// recordDetail renders the type-specific part of a journal record line.
func recordDetail(rec journal.Record) string {
	switch rec.Type {
	case string(events.EventTypeLoadStart), string(events.EventTypeLoadFinish):
		if rec.Title != "" {
			return fmt.Sprintf("%s title=%q", rec.URI, rec.Title)
		}
		return rec.URI
	case string(events.EventTypeLoadError):
		return fmt.Sprintf("status=%d %s", rec.Status, rec.Message)
	case string(events.EventTypeMessage):
		return rec.Data
	default:
		return ""
	}
}
