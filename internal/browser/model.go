package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/dataset"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/state"
)

// Session is what the browser needs from core.Session. Tree loads and
// navigation changes reach the browser through Events, which must not be
// nil.
type Session interface {
	Events() *events.EventBus
	Cache() *dataset.Cache
	Navigator() *state.Navigator
	SelectFile(path string) error
	SelectFolder(path string) error
	ToggleFolder(path string) error
	Delete(ctx context.Context, path string, folder bool) error
}

// KeyMap defines the browser key bindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Select  key.Binding
	Toggle  key.Binding
	Refresh key.Binding
	Delete  key.Binding
	Confirm key.Binding
	Cancel  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Toggle:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "expand/collapse")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		Cancel:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Toggle, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Toggle},
		{k.Refresh, k.Delete, k.Help, k.Quit},
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF80")).MarginBottom(1)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#4A90E2")).Bold(true)
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFEB3B")).Bold(true)
	folderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	confirmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800")).Bold(true)
)

type deletedMsg struct {
	path string
	err  error
}

// EventMsg carries an event bus event into the browser.
type EventMsg struct{ Event events.Event }

// Model is the bubbletea model of the dataset browser.
type Model struct {
	session Session
	updates <-chan events.Event
	keys    KeyMap
	help    help.Model

	lines   []Line
	cursor  int
	offset  int
	height  int
	width   int
	loading bool

	confirmDelete bool
	deleteTarget  Line

	message string
	err     error
}

// NewModel creates a browser over session.
func NewModel(session Session) *Model {
	m := &Model{
		session: session,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		height:  20,
		width:   80,
		loading: true,
	}
	if bus := session.Events(); bus != nil {
		m.updates = bus.SubscribeAll()
	}
	m.rebuild()
	return m
}

// Close drops the model's event subscription.
func (m *Model) Close() {
	if bus := m.session.Events(); bus != nil && m.updates != nil {
		bus.UnsubscribeAll(m.updates)
	}
}

// Init loads the tree and starts listening for events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadTree(), m.listen())
}

// loadTree refreshes the cache. The outcome arrives as a TreeEvent.
func (m *Model) loadTree() tea.Cmd {
	cache := m.session.Cache()
	return func() tea.Msg {
		_ = cache.Refresh(context.Background())
		return nil
	}
}

// listen waits for the next bus event.
func (m *Model) listen() tea.Cmd {
	ch := m.updates
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

func (m *Model) handleEvent(ev events.Event) {
	switch e := ev.(type) {
	case *events.TreeEvent:
		m.loading = false
		if e.Type() == events.EventTreeRefreshFailed {
			m.err = e.Error
			m.message = ""
		} else {
			m.err = nil
		}
	case *events.NavigationEvent:
	default:
		return
	}
	m.rebuild()
}

func (m *Model) deleteLine(l Line) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{path: l.Path, err: m.session.Delete(context.Background(), l.Path, l.IsFolder)}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmDelete {
			return m.handleConfirm(msg)
		}
		return m.handleKey(msg)

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, m.listen()

	case deletedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.message = fmt.Sprintf("Deleted %s", msg.path)
		}
		m.rebuild()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = max(msg.Height-6, 3)
		m.help.Width = msg.Width
		m.scroll()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.scroll()
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.lines)-1 {
			m.cursor++
			m.scroll()
		}

	case key.Matches(msg, m.keys.Select):
		l, ok := m.current()
		if !ok {
			return m, nil
		}
		var err error
		if l.IsFolder {
			err = m.session.SelectFolder(l.Path)
		} else {
			err = m.session.SelectFile(l.Path)
		}
		m.setResult(err, "Selected "+l.Path)
		m.rebuild()

	case key.Matches(msg, m.keys.Toggle):
		l, ok := m.current()
		if !ok || !l.IsFolder {
			return m, nil
		}
		m.setResult(m.session.ToggleFolder(l.Path), "")
		m.rebuild()

	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		m.err = nil
		m.message = ""
		return m, m.loadTree()

	case key.Matches(msg, m.keys.Delete):
		if l, ok := m.current(); ok {
			m.confirmDelete = true
			m.deleteTarget = l
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) handleConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.confirmDelete = false
		m.message = fmt.Sprintf("Deleting %s...", m.deleteTarget.Path)
		return m, m.deleteLine(m.deleteTarget)
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.confirmDelete = false
		m.deleteTarget = Line{}
	}
	return m, nil
}

func (m *Model) setResult(err error, message string) {
	m.err = err
	if err == nil {
		m.message = message
	} else {
		m.message = ""
	}
}

func (m *Model) current() (Line, bool) {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return Line{}, false
	}
	return m.lines[m.cursor], true
}

// rebuild recomputes the visible lines, keeping the cursor on the same
// path when it is still visible.
func (m *Model) rebuild() {
	prev, hadPrev := m.current()
	m.lines = Flatten(m.session.Cache().Root(), m.session.Navigator().Snapshot(), false)

	m.cursor = min(m.cursor, max(len(m.lines)-1, 0))
	if hadPrev {
		for i, l := range m.lines {
			if l.Path == prev.Path && l.IsFolder == prev.IsFolder {
				m.cursor = i
				break
			}
		}
	}
	m.scroll()
}

func (m *Model) scroll() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

// Lines returns the visible rows.
func (m *Model) Lines() []Line { return m.lines }

// Cursor returns the index of the highlighted row.
func (m *Model) Cursor() int { return m.cursor }

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Matflow datasets"))
	b.WriteString("\n")

	switch {
	case m.loading && len(m.lines) == 0:
		b.WriteString(infoStyle.Render("Loading..."))
		b.WriteString("\n")
	case len(m.lines) == 0:
		b.WriteString(infoStyle.Render("(no datasets)"))
		b.WriteString("\n")
	}

	end := min(m.offset+m.height, len(m.lines))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderLine(m.lines[i], i == m.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.confirmDelete:
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Delete %s? (y/n)", m.deleteTarget.Path)))
	case m.err != nil:
		b.WriteString(errorStyle.Render(api.UserMessage(m.err)))
	case m.message != "":
		b.WriteString(infoStyle.Render(m.message))
	default:
		b.WriteString(infoStyle.Render(m.status()))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// status is the footer shown when there is nothing else to report.
func (m *Model) status() string {
	var parts []string
	if active := m.session.Navigator().ActiveFile(); active != "" {
		parts = append(parts, "Active: "+active)
	}
	if at := m.session.Cache().LastRefresh(); !at.IsZero() {
		parts = append(parts, "refreshed "+at.Format("15:04:05"))
	}
	return strings.Join(parts, " | ")
}

func (m *Model) renderLine(l Line, selected bool) string {
	indent := strings.Repeat("  ", l.Depth)
	var text string
	if l.IsFolder {
		text = fmt.Sprintf("%s%s %s", indent, l.Marker(), l.Name+"/")
	} else {
		text = fmt.Sprintf("%s  %s %s", indent, l.Name, kindStyle.Render("["+l.Kind.Label()+"]"))
	}
	if l.Active {
		text = "* " + text
	} else {
		text = "  " + text
	}

	switch {
	case selected:
		return cursorStyle.Render(text)
	case l.Active:
		return activeStyle.Render(text)
	case l.IsFolder:
		return folderStyle.Render(text)
	default:
		return text
	}
}

// Run starts the browser and blocks until the user quits. watch, when not
// nil, is run in the background to pick up navigation changes made by
// other processes; they reach the browser as bus events.
func Run(ctx context.Context, session Session, watch func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(session)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if watch != nil {
		go func() {
			_ = watch(ctx)
		}()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
