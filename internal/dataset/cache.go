// Package dataset keeps an in-memory mirror of the server's dataset tree.
//
// The cache is refreshed in full after every successful mutation; it never
// patches the tree locally. A failed refresh keeps the previous tree and
// produces exactly one error notification.
package dataset

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/logging"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/notify"
)

// Backend is the subset of the API client the cache needs.
type Backend interface {
	GetDirectoryStructure(ctx context.Context) (*models.DirectoryNode, error)
	ReadFile(ctx context.Context, folder, name string) (models.Rows, error)
	UploadFile(ctx context.Context, folder, name string, r io.Reader, size int64, onProgress api.ProgressFunc) error
	CreateFolder(ctx context.Context, name, parent string) error
	Delete(ctx context.Context, folder, file string) error
	CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error)
}

// Cache mirrors the remote directory tree.
type Cache struct {
	backend  Backend
	notifier *notify.Notifier
	bus      *events.EventBus
	logger   *logging.Logger

	mu          sync.RWMutex
	root        *models.DirectoryNode
	loaded      bool
	lastRefresh time.Time
}

// NewCache creates an empty cache. notifier and bus may be nil.
func NewCache(backend Backend, notifier *notify.Notifier, bus *events.EventBus, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{
		backend:  backend,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		root:     models.NewDirectoryNode(),
	}
}

// Root returns the current tree. The returned node must not be modified;
// a refresh replaces it rather than mutating it.
func (c *Cache) Root() *models.DirectoryNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// Loaded reports whether at least one refresh succeeded.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// LastRefresh returns the time of the last successful refresh.
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Refresh replaces the cached tree with the server's current listing.
func (c *Cache) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DirectoryFetchTimeout)
	defer cancel()

	root, err := c.backend.GetDirectoryStructure(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("directory refresh failed")
		c.notifier.Error("Failed to load datasets", api.UserMessage(err))
		c.bus.Publish(&events.TreeEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventTreeRefreshFailed, Time: time.Now()},
			Error:     err,
		})
		return fmt.Errorf("failed to refresh dataset tree: %w", err)
	}

	c.mu.Lock()
	c.root = root
	c.loaded = true
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	files := len(root.FilePaths())
	c.logger.Debug().Int("files", files).Msg("directory refreshed")
	c.bus.Publish(&events.TreeEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventTreeRefreshed, Time: time.Now()},
		FileCount: files,
	})
	return nil
}

// ListAllFilePaths flattens the cached tree in key order.
func (c *Cache) ListAllFilePaths() []string {
	return c.Root().FilePaths()
}

// ListAllFolderPaths returns every folder path in key order.
func (c *Cache) ListAllFolderPaths() []string {
	return c.Root().FolderPaths()
}

// Contains reports whether filePath names a file in the cached tree.
func (c *Cache) Contains(filePath string) bool {
	return c.Root().ContainsFile(filePath)
}

// ContainsFolder reports whether folderPath names a folder in the cached tree.
func (c *Cache) ContainsFolder(folderPath string) bool {
	return c.Root().ContainsFolder(folderPath)
}

// ReadFile fetches the rows of the file at filePath.
func (c *Cache) ReadFile(ctx context.Context, filePath string) (models.Rows, error) {
	if filePath == "" {
		return nil, api.NewValidationError("read file", "no file selected")
	}
	return c.backend.ReadFile(ctx, models.ParentPath(filePath), models.BaseName(filePath))
}

// Upload sends r as name into folder and refreshes the tree.
func (c *Cache) Upload(ctx context.Context, folder, name string, r io.Reader, size int64, onProgress api.ProgressFunc) error {
	if err := c.backend.UploadFile(ctx, folder, name, r, size, onProgress); err != nil {
		c.notifier.Error("Upload failed", api.UserMessage(err))
		return err
	}
	c.notifier.Success("File uploaded", models.JoinPath(folder, name))
	c.refreshAfter(ctx, "upload")
	return nil
}

// CreateFolder creates name under parent and refreshes the tree.
func (c *Cache) CreateFolder(ctx context.Context, name, parent string) error {
	if err := c.backend.CreateFolder(ctx, name, parent); err != nil {
		c.notifier.Error("Folder creation failed", api.UserMessage(err))
		return err
	}
	c.notifier.Success("Folder created", models.JoinPath(parent, name))
	c.refreshAfter(ctx, "create folder")
	return nil
}

// DeleteFile removes the file at filePath and refreshes the tree.
func (c *Cache) DeleteFile(ctx context.Context, filePath string) error {
	if filePath == "" {
		return api.NewValidationError("delete file", "file path is required")
	}
	if err := c.backend.Delete(ctx, models.ParentPath(filePath), models.BaseName(filePath)); err != nil {
		c.notifier.Error("Delete failed", api.UserMessage(err))
		return err
	}
	c.notifier.Success("File deleted", filePath)
	c.refreshAfter(ctx, "delete file")
	return nil
}

// DeleteFolder removes the folder at folderPath with its contents and
// refreshes the tree.
func (c *Cache) DeleteFolder(ctx context.Context, folderPath string) error {
	if err := c.backend.Delete(ctx, folderPath, ""); err != nil {
		c.notifier.Error("Delete failed", api.UserMessage(err))
		return err
	}
	c.notifier.Success("Folder deleted", folderPath)
	c.refreshAfter(ctx, "delete folder")
	return nil
}

// CreateFile stores rows as a new file in folder and refreshes the tree.
// It returns the path of the created file.
func (c *Cache) CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error) {
	name, err := c.backend.CreateFile(ctx, rows, filename, folder)
	if err != nil {
		c.notifier.Error("Saving dataset failed", api.UserMessage(err))
		return "", err
	}
	created := models.JoinPath(folder, name)
	c.notifier.Success("Dataset saved", created)
	c.refreshAfter(ctx, "create file")
	return created, nil
}

// refreshAfter reloads the tree following a successful mutation. A failed
// reload has already been reported by Refresh and does not fail the mutation.
func (c *Cache) refreshAfter(ctx context.Context, op string) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Str("after", op).Msg("Tree is stale")
	}
}
