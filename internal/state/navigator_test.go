package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matflow/matflow-cli/internal/events"
)

func TestSelectFile_DerivesFolder(t *testing.T) {
	tests := []struct {
		path   string
		folder string
	}{
		{"a/b/c.csv", "a/b"},
		{"x.csv", ""},
		{"raw/iris.csv", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			nav := NewNavigator(NewMemoryStore(), nil, nil)
			require.NoError(t, nav.SelectFile(tt.path))
			assert.Equal(t, tt.path, nav.ActiveFile())
			assert.Equal(t, tt.folder, nav.ActiveFolder())
		})
	}
}

func TestSelectFile_ClearsToolAndPersists(t *testing.T) {
	store := NewMemoryStore()
	nav := NewNavigator(store, nil, nil)
	require.NoError(t, nav.SetActiveTool("barplot"))
	assert.Equal(t, "barplot", nav.ActiveTool())

	require.NoError(t, nav.SelectFile("a/b/c.csv"))
	assert.Equal(t, "", nav.ActiveTool())

	for key, want := range map[string]string{
		KeyActiveFile:     "a/b/c.csv",
		KeyActiveFolder:   "a/b",
		KeyActiveFunction: "",
	} {
		got, ok, err := store.Get(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestSelectFile_PublishesPreviousFile(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	nav := NewNavigator(NewMemoryStore(), bus, nil)
	ch := bus.Subscribe(events.EventActiveFileChanged)

	require.NoError(t, nav.SelectFile("a.csv"))
	require.NoError(t, nav.SelectFile("b/c.csv"))

	var last *events.NavigationEvent
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			last = ev.(*events.NavigationEvent)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected active file event")
		}
	}
	assert.Equal(t, "b/c.csv", last.ActiveFile)
	assert.Equal(t, "a.csv", last.PreviousFile)
	assert.Equal(t, "b", last.ActiveFolder)
}

func TestToggleFolderExpansion(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)

	require.NoError(t, nav.ToggleFolderExpansion("raw"))
	assert.True(t, nav.IsExpanded("raw"))
	assert.False(t, nav.IsExpanded("raw/2024"), "only the folder itself is expanded")

	require.NoError(t, nav.ToggleFolderExpansion("raw"))
	assert.False(t, nav.IsExpanded("raw"))
}

func TestToggleFolderExpansion_ProtectsActiveFileAncestors(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)
	require.NoError(t, nav.SelectFolderWithoutExpandToggle("a/b/c"))
	require.NoError(t, nav.ToggleFolderExpansion("other"))
	require.NoError(t, nav.SelectFile("a/b/c/d.csv"))
	before := nav.Snapshot().ExpandedFolders

	for _, folder := range []string{"a", "a/b", "a/b/c"} {
		require.NoError(t, nav.ToggleFolderExpansion(folder))
		assert.Equal(t, before, nav.Snapshot().ExpandedFolders, folder)
	}

	// Unrelated folders still collapse.
	require.NoError(t, nav.ToggleFolderExpansion("other"))
	assert.False(t, nav.IsExpanded("other"))

	// A sibling whose name shares a prefix is not an ancestor.
	require.NoError(t, nav.ToggleFolderExpansion("a/bb"))
	require.NoError(t, nav.ToggleFolderExpansion("a/bb"))
	assert.False(t, nav.IsExpanded("a/bb"))
}

func TestSelectFolderWithoutExpandToggle_TwiceCollapsesOnlyFolder(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)

	require.NoError(t, nav.SelectFolderWithoutExpandToggle("a/b/c"))
	assert.Equal(t, "a/b/c", nav.ActiveFolder())
	assert.Equal(t, []string{"a", "a/b", "a/b/c"}, nav.Snapshot().ExpandedFolders)

	require.NoError(t, nav.SelectFolderWithoutExpandToggle("a/b/c"))
	assert.Equal(t, "a/b/c", nav.ActiveFolder())
	assert.Equal(t, []string{"a", "a/b"}, nav.Snapshot().ExpandedFolders)

	// A third click expands it again.
	require.NoError(t, nav.SelectFolderWithoutExpandToggle("a/b/c"))
	assert.True(t, nav.IsExpanded("a/b/c"))
}

func TestSelectFolderWithoutExpandToggle_NewFolderStaysExpanded(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)
	require.NoError(t, nav.ToggleFolderExpansion("x"))

	// x is expanded but not active: selecting it keeps it expanded.
	require.NoError(t, nav.SelectFolderWithoutExpandToggle("x"))
	assert.True(t, nav.IsExpanded("x"))
	assert.Equal(t, "x", nav.ActiveFolder())
}

func TestSelectFolderWithoutExpandToggle_Root(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)
	require.NoError(t, nav.SelectFolderWithoutExpandToggle("raw"))
	require.NoError(t, nav.SelectFolderWithoutExpandToggle(""))
	assert.Equal(t, "", nav.ActiveFolder())
	assert.Equal(t, []string{"raw"}, nav.Snapshot().ExpandedFolders)
}

func TestSelectFileAfterFolderDiverges(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)
	require.NoError(t, nav.SelectFile("a/b.csv"))
	require.NoError(t, nav.SelectFolderWithoutExpandToggle("z"))

	assert.Equal(t, "a/b.csv", nav.ActiveFile())
	assert.Equal(t, "z", nav.ActiveFolder())
}

func TestRestore_RoundTrip(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir() + "/state.json")
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(t.TempDir() + "/state.db")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			nav := NewNavigator(store, nil, nil)
			require.NoError(t, nav.SelectFolderWithoutExpandToggle("raw/2024"))
			require.NoError(t, nav.ToggleFolderExpansion("clean"))
			require.NoError(t, nav.SelectFile("raw/2024/jan.csv"))
			require.NoError(t, nav.SetActiveTool("histogram"))
			want := nav.Snapshot()

			reloaded := NewNavigator(store, nil, nil)
			got := reloaded.Snapshot()
			assert.Equal(t, want.ActiveFile, got.ActiveFile)
			assert.Equal(t, want.ActiveFolder, got.ActiveFolder)
			assert.ElementsMatch(t, want.ExpandedFolders, got.ExpandedFolders)
			assert.Equal(t, "histogram", got.ActiveTool)
		})
	}
}

func TestRestore_CorruptEntriesBecomeDefaults(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(KeyActiveFile, "a/b.csv"))
	require.NoError(t, store.Set(KeyExpandedFolders, "{not json"))

	nav := NewNavigator(store, nil, nil)
	assert.Equal(t, "a/b.csv", nav.ActiveFile())
	assert.Equal(t, "", nav.ActiveFolder())
	assert.Empty(t, nav.Snapshot().ExpandedFolders)
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }
func (brokenStore) Set(string, string) error        { return errors.New("disk gone") }
func (brokenStore) SetMany(map[string]string) error { return errors.New("disk gone") }
func (brokenStore) Snapshot() (map[string]string, error) {
	return nil, errors.New("disk gone")
}
func (brokenStore) Close() error { return nil }

func TestNavigator_StoreFailures(t *testing.T) {
	nav := NewNavigator(brokenStore{}, nil, nil)
	assert.Equal(t, Snapshot{ExpandedFolders: []string{}}, nav.Snapshot())

	err := nav.SelectFile("a/b.csv")
	assert.Error(t, err)
	// The in-memory state is still updated.
	assert.Equal(t, "a/b.csv", nav.ActiveFile())
}

func TestClearActiveFile(t *testing.T) {
	nav := NewNavigator(NewMemoryStore(), nil, nil)
	require.NoError(t, nav.SelectFile("a/b.csv"))
	require.NoError(t, nav.ClearActiveFile())
	assert.Equal(t, "", nav.ActiveFile())
	assert.Equal(t, "a", nav.ActiveFolder())

	// With no active file nothing is protected.
	require.NoError(t, nav.ToggleFolderExpansion("a"))
	require.NoError(t, nav.ToggleFolderExpansion("a"))
	assert.False(t, nav.IsExpanded("a"))
}

// midReadStore runs during once, after Snapshot has read its values.
type midReadStore struct {
	*MemoryStore
	during func()
}

func (m *midReadStore) Snapshot() (map[string]string, error) {
	values, err := m.MemoryStore.Snapshot()
	if f := m.during; f != nil {
		m.during = nil
		f()
	}
	return values, err
}

func TestRestore_DoesNotOverwriteNewerLocalChange(t *testing.T) {
	store := &midReadStore{MemoryStore: NewMemoryStore()}
	nav := NewNavigator(store, nil, nil)
	require.NoError(t, nav.SelectFile("a/x.csv"))

	// Another process selects b/y.csv; this process selects c/z.csv while
	// the reload triggered by that write is reading.
	require.NoError(t, store.MemoryStore.SetMany(map[string]string{KeyActiveFile: "b/y.csv", KeyActiveFolder: "b"}))
	store.during = func() { require.NoError(t, nav.SelectFile("c/z.csv")) }
	nav.Restore()

	assert.Equal(t, "c/z.csv", nav.ActiveFile())
	assert.Equal(t, "c", nav.ActiveFolder())

	nav.Restore()
	assert.Equal(t, "c/z.csv", nav.ActiveFile())
	assert.Equal(t, "c", nav.ActiveFolder())
}

func TestRestore_PublishesOnlyChanges(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	store := NewMemoryStore()
	nav := NewNavigator(store, bus, nil)
	require.NoError(t, nav.SelectFile("a/x.csv"))

	ch := bus.Subscribe(events.EventNavigationChanged)
	nav.Restore()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for an unchanged store: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, store.SetMany(map[string]string{KeyActiveFile: "b/y.csv", KeyActiveFolder: "b"}))
	nav.Restore()
	select {
	case ev := <-ch:
		ne := ev.(*events.NavigationEvent)
		assert.Equal(t, "b/y.csv", ne.ActiveFile)
		assert.Equal(t, "a/x.csv", ne.PreviousFile)
	case <-time.After(time.Second):
		t.Fatal("expected a navigation event")
	}
}

func TestSelectFile_WritesFileAndFolderTogether(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	nav := NewNavigator(store, nil, nil)
	require.NoError(t, nav.SelectFile("a/b/c.csv"))
	assert.Equal(t, 1, store.writes)

	values, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.csv", values[KeyActiveFile])
	assert.Equal(t, "a/b", values[KeyActiveFolder])
}

type countingStore struct {
	*MemoryStore
	writes int
}

func (c *countingStore) SetMany(values map[string]string) error {
	c.writes++
	return c.MemoryStore.SetMany(values)
}
