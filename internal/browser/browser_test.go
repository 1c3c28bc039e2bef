package browser

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/dataset"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/state"
)

const sampleTree = `{"files": ["iris.csv"], "raw": {"files": ["titanic.csv", "sales.xlsx"], "2024": {"files": ["notes.txt"]}}}`

func decodeTree(t *testing.T) *models.DirectoryNode {
	t.Helper()
	var root models.DirectoryNode
	require.NoError(t, json.Unmarshal([]byte(sampleTree), &root))
	return &root
}

type fakeBackend struct {
	tree    string
	err     error
	deleted []string
}

func (b *fakeBackend) GetDirectoryStructure(ctx context.Context) (*models.DirectoryNode, error) {
	if b.err != nil {
		return nil, b.err
	}
	var root models.DirectoryNode
	if err := json.Unmarshal([]byte(b.tree), &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (b *fakeBackend) ReadFile(ctx context.Context, folder, name string) (models.Rows, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) UploadFile(ctx context.Context, folder, name string, r io.Reader, size int64, onProgress api.ProgressFunc) error {
	return nil
}

func (b *fakeBackend) CreateFolder(ctx context.Context, name, parent string) error { return nil }

func (b *fakeBackend) Delete(ctx context.Context, folder, file string) error {
	b.deleted = append(b.deleted, models.JoinPath(folder, file))
	return nil
}

func (b *fakeBackend) CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error) {
	return filename, nil
}

type fakeSession struct {
	bus   *events.EventBus
	cache *dataset.Cache
	nav   *state.Navigator
}

func (s *fakeSession) Events() *events.EventBus { return s.bus }
func (s *fakeSession) Cache() *dataset.Cache { return s.cache }
func (s *fakeSession) Navigator() *state.Navigator { return s.nav }
func (s *fakeSession) SelectFile(p string) error { return s.nav.SelectFile(p) }
func (s *fakeSession) SelectFolder(p string) error { return s.nav.SelectFolderWithoutExpandToggle(p) }
func (s *fakeSession) ToggleFolder(p string) error { return s.nav.ToggleFolderExpansion(p) }

func (s *fakeSession) Delete(ctx context.Context, p string, folder bool) error {
	if folder {
		return s.cache.DeleteFolder(ctx, p)
	}
	return s.cache.DeleteFile(ctx, p)
}

func newFakeSession(t *testing.T) (*fakeSession, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{tree: sampleTree}
	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)
	return &fakeSession{
		bus:   bus,
		cache: dataset.NewCache(b, nil, bus, nil),
		nav:   state.NewNavigator(state.NewMemoryStore(), bus, nil),
	}, b
}

func paths(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Path
	}
	return out
}

func TestFlatten_HonoursExpansion(t *testing.T) {
	root := decodeTree(t)

	collapsed := Flatten(root, state.Snapshot{}, false)
	assert.Equal(t, []string{"iris.csv", "raw"}, paths(collapsed))

	snap := state.Snapshot{ActiveFile: "raw/titanic.csv", ActiveFolder: "raw", ExpandedFolders: []string{"raw"}}
	lines := Flatten(root, snap, false)
	assert.Equal(t, []string{"iris.csv", "raw", "raw/titanic.csv", "raw/sales.xlsx", "raw/2024"}, paths(lines))
	assert.True(t, lines[1].Active)
	assert.True(t, lines[1].Expanded)
	assert.True(t, lines[2].Active)
	assert.Equal(t, models.FileKindExcel, lines[3].Kind)
	assert.Equal(t, 1, lines[4].Depth)
	assert.False(t, lines[4].Expanded)

	all := Flatten(root, state.Snapshot{}, true)
	assert.Equal(t, "raw/2024/notes.txt", all[len(all)-1].Path)
}

func TestRenderTree(t *testing.T) {
	root := decodeTree(t)
	snap := state.Snapshot{ActiveFile: "raw/titanic.csv", ExpandedFolders: []string{"raw"}}

	want := strings.Join([]string{
		"    iris.csv [csv]",
		"  ▾ raw/",
		"*     titanic.csv [csv]",
		"      sales.xlsx [excel]",
		"    ▸ 2024/",
	}, "\n") + "\n"
	assert.Equal(t, want, RenderTree(root, snap, false))

	assert.Equal(t, "(no datasets)\n", RenderTree(models.NewDirectoryNode(), state.Snapshot{}, false))
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drain delivers every pending bus event to m.
func drain(m *Model) {
	for {
		select {
		case ev := <-m.updates:
			m.Update(EventMsg{Event: ev})
		default:
			return
		}
	}
}

func load(t *testing.T, m *Model) {
	t.Helper()
	assert.Nil(t, m.loadTree()())
	drain(m)
}

func TestModel_NavigateSelectAndToggle(t *testing.T) {
	s, _ := newFakeSession(t)
	m := NewModel(s)
	load(t, m)
	require.Equal(t, []string{"iris.csv", "raw"}, paths(m.Lines()))

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "iris.csv", s.nav.ActiveFile())

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.Cursor())
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	assert.True(t, s.nav.IsExpanded("raw"))
	assert.Len(t, m.Lines(), 5)
	assert.Equal(t, 1, m.Cursor(), "cursor stays on the toggled folder")

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "raw/titanic.csv", s.nav.ActiveFile())
	assert.Equal(t, "raw", s.nav.ActiveFolder())
	assert.Contains(t, m.View(), "Selected raw/titanic.csv")

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.Cursor())
}

func TestModel_DeleteNeedsConfirmation(t *testing.T) {
	s, b := newFakeSession(t)
	m := NewModel(s)
	load(t, m)

	_, cmd := m.Update(runes("d"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "Delete iris.csv? (y/n)")

	_, cmd = m.Update(runes("n"))
	assert.Nil(t, cmd)
	assert.Empty(t, b.deleted)

	m.Update(runes("d"))
	_, cmd = m.Update(runes("y"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	drain(m)
	assert.Equal(t, []string{"iris.csv"}, b.deleted)
	assert.Contains(t, m.View(), "Deleted iris.csv")
}

func TestModel_QuitAndRefresh(t *testing.T) {
	s, b := newFakeSession(t)
	m := NewModel(s)
	load(t, m)

	b.tree = `{"files": ["only.csv"]}`
	_, cmd := m.Update(runes("r"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	drain(m)
	assert.Equal(t, []string{"only.csv"}, paths(m.Lines()))

	_, cmd = m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_NavigationEventRebuilds(t *testing.T) {
	s, _ := newFakeSession(t)
	m := NewModel(s)
	load(t, m)

	// Changes made outside the model arrive as bus events.
	require.NoError(t, s.nav.ToggleFolderExpansion("raw"))
	assert.Len(t, m.Lines(), 2)
	drain(m)
	assert.Len(t, m.Lines(), 5)
}

func TestModel_TreeFailureShowsBannerAndKeepsTree(t *testing.T) {
	s, b := newFakeSession(t)
	m := NewModel(s)
	assert.Contains(t, m.View(), "Loading...")
	load(t, m)
	assert.Contains(t, m.View(), "refreshed ")

	b.err = errors.New("connection refused")
	_, cmd := m.Update(runes("r"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	drain(m)
	assert.Contains(t, m.View(), "connection refused")
	assert.Equal(t, []string{"iris.csv", "raw"}, paths(m.Lines()), "previous tree is kept")

	b.err = nil
	b.tree = `{"files": ["only.csv"]}`
	assert.Nil(t, s.cache.Refresh(context.Background()))
	drain(m)
	assert.NotContains(t, m.View(), "connection refused")
	assert.Equal(t, []string{"only.csv"}, paths(m.Lines()))
}

func TestModel_IgnoresUnrelatedEvents(t *testing.T) {
	s, _ := newFakeSession(t)
	m := NewModel(s)
	load(t, m)

	_, cmd := m.Update(EventMsg{Event: &events.PanelResultEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventPanelResult},
		Error:     errors.New("boom"),
	}})
	assert.NotNil(t, cmd, "keeps listening")
	assert.NotContains(t, m.View(), "boom")
}
