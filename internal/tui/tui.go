package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/idilsaglam/posts/internal/model"
	"github.com/idilsaglam/posts/internal/optimistic"
	"github.com/idilsaglam/posts/internal/ui"
)

// listItem adapts a post to bubbles/list.Item
type listItem struct {
	post    *model.Post
	pending bool
}

func (i listItem) TitleText() string {
	th := ui.Current()
	box := th.BoxUnread
	if i.post.IsRead {
		box = th.BoxRead
	}
	return fmt.Sprintf("%s %s", box, i.post.Title)
}

// Implement list.Item interface
func (i listItem) Title() string       { return i.TitleText() }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.post.Title }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(listItem)
	if it.post == nil {
		return
	}
	th := ui.Current()

	box := th.Muted.Render(th.BoxUnread)
	text := it.post.Title
	if it.post.IsRead {
		box = th.Success.Render(th.BoxRead)
		text = th.Read.Render(text)
	}
	line := fmt.Sprintf("%s %s", box, text)
	switch {
	case it.pending:
		line += " " + th.Pending.Render("…")
	case it.post.Persisted():
		line += " " + th.Muted.Render(fmt.Sprintf("#%d", it.post.ID))
	}

	prefix := "  "
	if index == m.Index() {
		prefix = th.Selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

// Messages delivered back to the loop by commands.
type (
	outcomeMsg struct{ outcome optimistic.Outcome }
	loadedMsg  struct {
		posts []model.Post
		err   error
	}
)

// inbox collects what the controller reports while Update runs.
type inbox struct {
	dirty   bool
	notices []optimistic.Notice
}

func (b *inbox) Notify(n optimistic.Notice) { b.notices = append(b.notices, n) }
func (b *inbox) observe([]*model.Post)     { b.dirty = true }

// Options wire the UI to the rest of the program.
type Options struct {
	Faults  optimistic.FaultReporter
	Logger  *slog.Logger
	Metrics *optimistic.Metrics
}

// Model is the Bubble Tea model for the posts list.
type Model struct {
	ctx    context.Context
	svc    optimistic.Service
	ctrl   *optimistic.Controller
	box    *inbox
	faults optimistic.FaultReporter

	list    list.Model
	spinner spinner.Model
	loading bool

	// Inline add/edit
	adding  bool            // true when the input is open
	editing *model.Post     // post being renamed; nil when adding
	ti      textinput.Model // shared text input (add & edit)
	addErr  string          // last input validation error (shown briefly)

	status string // last notice
	errMsg string // last fault
	width  int
	height int
}

var (
	addBind    = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind   = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	readBind   = key.NewBinding(key.WithKeys(" ", "space", "enter"), key.WithHelp("space", "read/unread"))
	deleteBind = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	reloadBind = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload"))
)

// New builds the model. Posts are fetched by Init.
func New(ctx context.Context, svc optimistic.Service, opt Options) Model {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	if opt.Faults == nil {
		opt.Faults = optimistic.FaultReporterFunc(func(error) {})
	}
	box := &inbox{}
	ctrl := optimistic.New(svc,
		optimistic.WithNotifier(box),
		optimistic.WithObserver(box.observe),
		optimistic.WithMetrics(opt.Metrics),
		optimistic.WithLogger(opt.Logger),
	)

	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = ui.Current().Title
	l.Styles.HelpStyle = ui.Current().Muted
	l.Styles.PaginationStyle = ui.Current().Muted
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("post", "posts")
	extra := func() []key.Binding { return []key.Binding{addBind, editBind, readBind, deleteBind, reloadBind} }
	l.AdditionalShortHelpKeys = extra
	l.AdditionalFullHelpKeys = extra

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "New post title..."
	ti.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.Current().Pending

	m := Model{
		ctx:     ctx,
		svc:     svc,
		ctrl:    ctrl,
		box:     box,
		faults:  opt.Faults,
		list:    l,
		spinner: sp,
		ti:      ti,
		loading: true,
	}
	m.list.Title = m.header()
	return m
}

// Update and View implement Bubble Tea's Model
func (m Model) Init() tea.Cmd { return tea.Batch(m.load(), m.spinner.Tick) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.list.Title = m.header()
		return m, cmd

	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.fault(msg.err)
			return m, nil
		}
		if err := m.ctrl.Reset(msg.posts); err != nil {
			m.status = "reload skipped: changes still in flight"
			return m, nil
		}
		m.errMsg = ""
		return m, m.drain()

	case outcomeMsg:
		if err := m.ctrl.Resolve(msg.outcome); err != nil {
			m.fault(err)
		}
		// pending markers change even when the list does not
		m.box.dirty = true
		return m, m.drain()
	}

	if m.adding {
		return m.updateAdding(msg)
	}

	if km, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch {
		case km.String() == "q" || (km.String() == "esc" && m.list.FilterState() == list.Unfiltered):
			return m, tea.Quit
		case key.Matches(km, addBind):
			return m, m.openInput(nil)
		case key.Matches(km, editBind):
			if p := m.selected(); p != nil {
				return m, m.openInput(p)
			}
			return m, nil
		case key.Matches(km, readBind):
			if p := m.selected(); p != nil {
				mut, err := m.ctrl.Update(p, model.MarkRead(!p.IsRead))
				return m, m.start(mut, err)
			}
			return m, nil
		case key.Matches(km, deleteBind):
			if p := m.selected(); p != nil {
				mut, err := m.ctrl.Delete(p)
				return m, m.start(mut, err)
			}
			return m, nil
		case key.Matches(km, reloadBind):
			if m.ctrl.InFlight() > 0 {
				m.status = "reload skipped: changes still in flight"
				return m, nil
			}
			m.loading = true
			return m, m.load()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateAdding(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "enter":
			title := strings.TrimSpace(m.ti.Value())
			if title == "" {
				m.addErr = "Title cannot be empty"
				return m, nil
			}
			p := m.editing
			m.stopAdding()
			if p != nil {
				if title == p.Title {
					return m, nil
				}
				mut, err := m.ctrl.Update(p, model.Rename(title))
				return m, m.start(mut, err)
			}
			mut := m.ctrl.Create(model.Draft{Title: title})
			cmd := m.start(mut, nil)
			m.list.Select(0)
			return m, cmd
		case "esc":
			m.stopAdding()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// openInput shows the text input, prefilled with p's title when editing.
func (m *Model) openInput(p *model.Post) tea.Cmd {
	m.adding = true
	m.editing = p
	m.addErr = ""
	m.ti.Placeholder = "New post title..."
	m.ti.SetValue("")
	if p != nil {
		m.ti.Placeholder = "Edit post title..."
		m.ti.SetValue(p.Title)
		m.ti.CursorEnd()
	}
	m.ti.Focus()
	m.resize()
	return textinput.Blink
}

func (m *Model) stopAdding() {
	m.adding = false
	m.editing = nil
	m.ti.SetValue("")
	m.ti.Blur()
	m.resize()
}

// start shows the optimistic state and sends the request in the background.
func (m *Model) start(mut *optimistic.Mutation, err error) tea.Cmd {
	if errors.Is(err, optimistic.ErrMutationPending) {
		m.status = "still saving the previous change to this post"
		return nil
	}
	if err != nil {
		m.fault(err)
		return nil
	}
	m.status = ""
	ctx := m.ctx
	run := func() tea.Msg { return outcomeMsg{outcome: mut.Run(ctx)} }
	return tea.Batch(m.drain(), run)
}

func (m Model) load() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		posts, err := svc.GetAll(ctx)
		return loadedMsg{posts: posts, err: err}
	}
}

// drain redraws the list if the controller changed it and surfaces notices.
func (m *Model) drain() tea.Cmd {
	var cmd tea.Cmd
	if m.box.dirty {
		m.box.dirty = false
		items := m.ctrl.Items()
		li := make([]list.Item, len(items))
		for i, p := range items {
			li[i] = listItem{post: p, pending: m.ctrl.Pending(p)}
		}
		cmd = m.list.SetItems(li)
	}
	if n := len(m.box.notices); n > 0 {
		m.status = m.box.notices[n-1].String()
		m.box.notices = nil
	}
	m.list.Title = m.header()
	return cmd
}

func (m *Model) fault(err error) {
	m.faults.Report(err)
	m.errMsg = err.Error()
}

func (m Model) selected() *model.Post {
	it, ok := m.list.SelectedItem().(listItem)
	if !ok {
		return nil
	}
	return it.post
}

func (m *Model) resize() {
	w, h := m.width, m.height
	if w == 0 || h == 0 {
		w, h = 80, 24
	}
	listHeight := h - 5
	if m.adding {
		listHeight = h - 8
	}
	m.list.SetSize(w-4, listHeight)
}

// header shows live counts
func (m Model) header() string {
	th := ui.Current()
	read, unread := stats(m.ctrl.Items())
	title := fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		th.Title.Render("Posts"),
		th.Success.Render(th.BoxRead), read,
		th.Pending.Render(th.BoxUnread), unread,
		th.Accent.Render("Total"), read+unread,
	)
	if n := m.ctrl.InFlight(); n > 0 || m.loading {
		label := "loading"
		if n > 0 {
			label = fmt.Sprintf("saving %d", n)
		}
		title += "  " + m.spinner.View() + " " + th.Muted.Render(label)
	}
	return title
}

func (m Model) View() string {
	th := ui.Current()
	content := m.list.View()
	if m.adding {
		bar := lipgloss.NewStyle().Border(th.Border).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
		title := "New post"
		if m.editing != nil {
			title = "Edit post"
		}
		if m.addErr != "" {
			title += "  " + th.Error.Render(m.addErr)
		}
		content += "\n" + bar.Render(title+"\n"+m.ti.View())
	}
	switch {
	case m.errMsg != "":
		content += "\n" + th.Error.Render(th.SymFail+" "+m.errMsg)
	case m.status != "":
		content += "\n" + th.Pending.Render(th.SymWarn+" "+m.status)
	}
	return ui.PanelString([]string{content})
}

// small list stats used for the header
func stats(items []*model.Post) (read, unread int) {
	for _, p := range items {
		if p.IsRead {
			read++
		} else {
			unread++
		}
	}
	return
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, svc optimistic.Service, opt Options) error {
	p := tea.NewProgram(New(ctx, svc, opt), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
