package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/notify"
)

type fakeBackend struct {
	tree      string
	treeErr   error
	fetches   int
	mutateErr error
	calls     []string
	rows      models.Rows
}

func (f *fakeBackend) GetDirectoryStructure(ctx context.Context) (*models.DirectoryNode, error) {
	f.fetches++
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	var root models.DirectoryNode
	if err := json.Unmarshal([]byte(f.tree), &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (f *fakeBackend) ReadFile(ctx context.Context, folder, name string) (models.Rows, error) {
	f.calls = append(f.calls, "read "+folder+"|"+name)
	return f.rows, nil
}

func (f *fakeBackend) UploadFile(ctx context.Context, folder, name string, r io.Reader, size int64, onProgress api.ProgressFunc) error {
	f.calls = append(f.calls, "upload "+folder+"|"+name)
	return f.mutateErr
}

func (f *fakeBackend) CreateFolder(ctx context.Context, name, parent string) error {
	f.calls = append(f.calls, "mkdir "+parent+"|"+name)
	return f.mutateErr
}

func (f *fakeBackend) Delete(ctx context.Context, folder, file string) error {
	f.calls = append(f.calls, "delete "+folder+"|"+file)
	return f.mutateErr
}

func (f *fakeBackend) CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error) {
	f.calls = append(f.calls, "create "+folder+"|"+filename)
	if f.mutateErr != nil {
		return "", f.mutateErr
	}
	return api.DerivedFileName(filename), nil
}

func newTestCache(b Backend) (*Cache, *notify.Recorder, *events.EventBus) {
	rec := &notify.Recorder{}
	bus := events.NewEventBus(16)
	n := notify.NewNotifier(nil, nil, rec)
	return NewCache(b, n, bus, nil), rec, bus
}

const sampleTree = `{"files": ["a.csv"], "raw": {"files": ["b.csv", "c.xlsx"], "2024": {"files": ["d.csv"]}}, "empty": {"files": []}}`

func TestRefresh_ReplacesTree(t *testing.T) {
	b := &fakeBackend{tree: sampleTree}
	c, rec, bus := newTestCache(b)
	defer bus.Close()
	ch := bus.Subscribe(events.EventTreeRefreshed)

	assert.False(t, c.Loaded())
	require.NoError(t, c.Refresh(context.Background()))

	assert.True(t, c.Loaded())
	assert.False(t, c.LastRefresh().IsZero())
	assert.Equal(t, []string{"a.csv", "raw/b.csv", "raw/c.xlsx", "raw/2024/d.csv"}, c.ListAllFilePaths())
	assert.Equal(t, []string{"raw", "raw/2024", "empty"}, c.ListAllFolderPaths())
	assert.True(t, c.Contains("raw/2024/d.csv"))
	assert.False(t, c.Contains("raw/2024"))
	assert.True(t, c.ContainsFolder("raw/2024"))
	assert.Empty(t, rec.Notifications())

	select {
	case ev := <-ch:
		assert.Equal(t, 4, ev.(*events.TreeEvent).FileCount)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected tree refreshed event")
	}
}

func TestRefresh_FailureKeepsTreeAndNotifiesOnce(t *testing.T) {
	b := &fakeBackend{tree: sampleTree}
	c, rec, bus := newTestCache(b)
	defer bus.Close()
	require.NoError(t, c.Refresh(context.Background()))
	before := c.ListAllFilePaths()
	ch := bus.Subscribe(events.EventTreeRefreshFailed)

	b.treeErr = &api.Error{Op: "get directory structure", Kind: api.KindStatus, StatusCode: 500, Message: "db down"}
	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindStatus, api.KindOf(err))

	assert.Equal(t, before, c.ListAllFilePaths())
	assert.Equal(t, 1, rec.Count(notify.LevelError))
	assert.Equal(t, "db down", rec.Notifications()[0].Message)

	select {
	case ev := <-ch:
		assert.Error(t, ev.(*events.TreeEvent).Error)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected tree refresh failed event")
	}
}

func TestRefresh_FailureAgainstServer(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if fail.Load() {
			w.WriteHeader(nethttp.StatusNotFound)
			io.WriteString(w, `{"error": "Dataset root missing"}`)
			return
		}
		io.WriteString(w, sampleTree)
	}))
	defer srv.Close()

	cfg := config.NewAPIConfig()
	cfg.APIURL = srv.URL
	client, err := api.NewClient(cfg, nil)
	require.NoError(t, err)

	c, rec, bus := newTestCache(client)
	defer bus.Close()
	require.NoError(t, c.Refresh(context.Background()))
	before := c.Root()

	fail.Store(true)
	require.Error(t, c.Refresh(context.Background()))
	assert.Same(t, before, c.Root())
	assert.Equal(t, 1, len(rec.Notifications()))
	assert.Equal(t, "Dataset root missing", rec.Notifications()[0].Message)
}

func TestMutationsRefresh(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{tree: sampleTree}
	c, rec, bus := newTestCache(b)
	defer bus.Close()

	require.NoError(t, c.Upload(ctx, "raw", "e.csv", strings.NewReader("x"), 1, nil))
	require.NoError(t, c.CreateFolder(ctx, "2025", "raw"))
	require.NoError(t, c.DeleteFile(ctx, "raw/b.csv"))
	require.NoError(t, c.DeleteFolder(ctx, "raw/2024"))
	created, err := c.CreateFile(ctx, nil, "clean", "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw/clean.csv", created)

	assert.Equal(t, 5, b.fetches, "every mutation is followed by a refresh")
	assert.Equal(t, []string{
		"upload raw|e.csv",
		"mkdir raw|2025",
		"delete raw|b.csv",
		"delete raw/2024|",
		"create raw|clean",
	}, b.calls)
	assert.Equal(t, 5, rec.Count(notify.LevelSuccess))
}

func TestMutationFailureSkipsRefresh(t *testing.T) {
	ctx := context.Background()
	b := &fakeBackend{tree: sampleTree, mutateErr: errors.New("boom")}
	c, rec, bus := newTestCache(b)
	defer bus.Close()

	assert.Error(t, c.DeleteFile(ctx, "a.csv"))
	assert.Error(t, c.CreateFolder(ctx, "x", ""))
	_, err := c.CreateFile(ctx, nil, "y", "")
	assert.Error(t, err)

	assert.Equal(t, 0, b.fetches)
	assert.Equal(t, 3, rec.Count(notify.LevelError))
}

func TestMutationSucceedsWhenRefreshFails(t *testing.T) {
	b := &fakeBackend{treeErr: errors.New("offline")}
	c, rec, bus := newTestCache(b)
	defer bus.Close()

	require.NoError(t, c.CreateFolder(context.Background(), "x", ""))
	assert.Equal(t, 1, rec.Count(notify.LevelSuccess))
	assert.Equal(t, 1, rec.Count(notify.LevelError))
}

func TestReadFileSplitsPath(t *testing.T) {
	b := &fakeBackend{rows: models.Rows{models.NewRow("a", 1)}}
	c, _, bus := newTestCache(b)
	defer bus.Close()

	rows, err := c.ReadFile(context.Background(), "raw/2024/d.csv")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = c.ReadFile(context.Background(), "top.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"read raw/2024|d.csv", "read |top.csv"}, b.calls)

	_, err = c.ReadFile(context.Background(), "")
	assert.Equal(t, api.KindValidation, api.KindOf(err))
}
