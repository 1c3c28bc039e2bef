package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/logging"
	"github.com/matflow/matflow-cli/internal/models"
)

// Snapshot is a copy of the navigation state.
type Snapshot struct {
	ActiveFile      string
	ActiveFolder    string
	ExpandedFolders []string // sorted
	ActiveTool      string
}

// Equal reports whether s and o describe the same state.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.ActiveFile != o.ActiveFile || s.ActiveFolder != o.ActiveFolder || s.ActiveTool != o.ActiveTool {
		return false
	}
	if len(s.ExpandedFolders) != len(o.ExpandedFolders) {
		return false
	}
	for i := range s.ExpandedFolders {
		if s.ExpandedFolders[i] != o.ExpandedFolders[i] {
			return false
		}
	}
	return true
}

// Navigator is the single authority over the active file, the active
// folder and the expanded folders. Every mutation is written through to
// the store; the in-memory copy stays authoritative when a write fails.
type Navigator struct {
	store  Store
	bus    *events.EventBus
	logger *logging.Logger

	mu           sync.Mutex
	activeFile   string
	activeFolder string
	expanded     map[string]struct{}
	activeTool   string
	revision     uint64 // bumped by every local mutation
}

// NewNavigator creates a navigator and restores it from store.
// bus and logger may be nil.
func NewNavigator(store Store, bus *events.EventBus, logger *logging.Logger) *Navigator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	n := &Navigator{
		store:    store,
		bus:      bus,
		logger:   logger,
		expanded: make(map[string]struct{}),
	}
	n.Restore()
	return n
}

// Restore reloads the state from the store. Missing or unreadable entries
// become empty defaults; Restore never fails. A reload that raced a local
// mutation is dropped: the mutation's own write triggers the next reload.
func (n *Navigator) Restore() {
	n.mu.Lock()
	revision := n.revision
	n.mu.Unlock()

	values, err := n.store.Snapshot()
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to read navigation state")
		values = map[string]string{}
	}

	expanded := make(map[string]struct{})
	if raw := values[KeyExpandedFolders]; raw != "" {
		var folders []string
		if err := json.Unmarshal([]byte(raw), &folders); err != nil {
			n.logger.Warn().Err(err).Msg("Ignoring corrupt expanded folder list")
		} else {
			for _, f := range folders {
				if f != "" {
					expanded[f] = struct{}{}
				}
			}
		}
	}

	n.mu.Lock()
	if n.revision != revision {
		n.mu.Unlock()
		return
	}
	before := n.snapshotLocked()
	n.activeFile = values[KeyActiveFile]
	n.activeFolder = values[KeyActiveFolder]
	n.activeTool = values[KeyActiveFunction]
	n.expanded = expanded
	snap := n.snapshotLocked()
	n.mu.Unlock()

	if !snap.Equal(before) {
		n.publish(events.EventNavigationChanged, snap, before.ActiveFile)
	}
}

// ActiveFile returns the active file path ("" when none).
func (n *Navigator) ActiveFile() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activeFile
}

// ActiveFolder returns the active folder path ("" is the root).
func (n *Navigator) ActiveFolder() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activeFolder
}

// ActiveTool returns the selected analysis tool.
func (n *Navigator) ActiveTool() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.activeTool
}

// IsExpanded reports whether folder is shown expanded.
func (n *Navigator) IsExpanded(folder string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.expanded[folder]
	return ok
}

// Snapshot returns a copy of the current state.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotLocked()
}

func (n *Navigator) snapshotLocked() Snapshot {
	folders := make([]string, 0, len(n.expanded))
	for f := range n.expanded {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return Snapshot{
		ActiveFile:      n.activeFile,
		ActiveFolder:    n.activeFolder,
		ExpandedFolders: folders,
		ActiveTool:      n.activeTool,
	}
}

// SelectFile makes path the active file. The active folder becomes its
// parent and the active tool is cleared.
func (n *Navigator) SelectFile(path string) error {
	n.mu.Lock()
	previous := n.activeFile
	n.activeFile = path
	n.activeFolder = models.ParentPath(path)
	n.activeTool = ""
	n.revision++
	snap := n.snapshotLocked()
	n.mu.Unlock()

	err := n.persist(snap, KeyActiveFile, KeyActiveFolder, KeyActiveFunction)
	n.publish(events.EventActiveFileChanged, snap, previous)
	return err
}

// SelectFolderWithoutExpandToggle makes path the active folder. A folder
// that was not active is expanded together with its ancestors so it is
// visible. Selecting the already active folder toggles its own expansion.
func (n *Navigator) SelectFolderWithoutExpandToggle(path string) error {
	n.mu.Lock()
	wasActive := n.activeFolder == path
	n.activeFolder = path

	_, expanded := n.expanded[path]
	if wasActive && expanded {
		delete(n.expanded, path)
	} else {
		n.expandWithAncestorsLocked(path)
	}
	n.revision++
	snap := n.snapshotLocked()
	n.mu.Unlock()

	err := n.persist(snap, KeyActiveFolder, KeyExpandedFolders)
	n.publish(events.EventNavigationChanged, snap, "")
	return err
}

// ToggleFolderExpansion flips the expansion of path. Folders containing
// the active file are never collapsed.
func (n *Navigator) ToggleFolderExpansion(path string) error {
	n.mu.Lock()
	if _, ok := n.expanded[path]; ok {
		if models.IsAncestor(path, n.activeFile) {
			n.mu.Unlock()
			return nil
		}
		delete(n.expanded, path)
	} else if path != "" {
		n.expanded[path] = struct{}{}
	}
	n.revision++
	snap := n.snapshotLocked()
	n.mu.Unlock()

	err := n.persist(snap, KeyExpandedFolders)
	n.publish(events.EventNavigationChanged, snap, "")
	return err
}

// SetActiveTool records the selected analysis tool.
func (n *Navigator) SetActiveTool(tool string) error {
	n.mu.Lock()
	n.activeTool = tool
	n.revision++
	snap := n.snapshotLocked()
	n.mu.Unlock()

	err := n.persist(snap, KeyActiveFunction)
	n.publish(events.EventNavigationChanged, snap, "")
	return err
}

// ClearActiveFile forgets the active file, e.g. after it was deleted.
// The active folder is kept.
func (n *Navigator) ClearActiveFile() error {
	n.mu.Lock()
	previous := n.activeFile
	n.activeFile = ""
	n.revision++
	snap := n.snapshotLocked()
	n.mu.Unlock()

	err := n.persist(snap, KeyActiveFile)
	n.publish(events.EventActiveFileChanged, snap, previous)
	return err
}

func (n *Navigator) expandWithAncestorsLocked(path string) {
	if path == "" {
		return
	}
	for _, a := range models.Ancestors(path) {
		n.expanded[a] = struct{}{}
	}
	n.expanded[path] = struct{}{}
}

// persist writes keys from snap in one store operation, so readers never
// see a new active file next to a stale active folder.
func (n *Navigator) persist(snap Snapshot, keys ...string) error {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		switch key {
		case KeyActiveFile:
			values[key] = snap.ActiveFile
		case KeyActiveFolder:
			values[key] = snap.ActiveFolder
		case KeyActiveFunction:
			values[key] = snap.ActiveTool
		case KeyExpandedFolders:
			data, err := json.Marshal(snap.ExpandedFolders)
			if err != nil {
				return fmt.Errorf("failed to encode expanded folders: %w", err)
			}
			values[key] = string(data)
		}
	}
	if err := n.store.SetMany(values); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to persist navigation state")
		return fmt.Errorf("failed to persist navigation state: %w", err)
	}
	return nil
}

func (n *Navigator) publish(t events.EventType, snap Snapshot, previous string) {
	n.bus.Publish(&events.NavigationEvent{
		BaseEvent:       events.BaseEvent{EventType: t, Time: time.Now()},
		ActiveFile:      snap.ActiveFile,
		PreviousFile:    previous,
		ActiveFolder:    snap.ActiveFolder,
		ExpandedFolders: snap.ExpandedFolders,
		ActiveTool:      snap.ActiveTool,
	})
}
