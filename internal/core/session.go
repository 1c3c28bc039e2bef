// Package core wires the client, cache, navigation state and panels into a
// single Session shared by the CLI commands and the interactive browser.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/dataset"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/logging"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/notify"
	"github.com/matflow/matflow-cli/internal/panels"
	"github.com/matflow/matflow-cli/internal/progress"
	"github.com/matflow/matflow-cli/internal/state"
	"github.com/matflow/matflow-cli/internal/validation"
)

// ErrNoActiveFile is returned when an operation needs a selected file.
var ErrNoActiveFile = errors.New("no file selected")

// ErrUnknownPath is returned when a path is not in the loaded tree.
var ErrUnknownPath = errors.New("path not found in dataset tree")

// Dataset is a loaded file with its inferred column types.
type Dataset struct {
	Path    string
	Rows    models.Rows
	Columns columns.Summary
}

// Option customises NewSession.
type Option func(*sessionOptions)

type sessionOptions struct {
	store state.Store
	sinks []notify.Sink
}

// WithStore uses store instead of the configured state backend.
func WithStore(store state.Store) Option {
	return func(o *sessionOptions) { o.store = store }
}

// WithSinks adds notification sinks.
func WithSinks(sinks ...notify.Sink) Option {
	return func(o *sessionOptions) { o.sinks = append(o.sinks, sinks...) }
}

// Session holds every long-lived component of one matflow invocation.
type Session struct {
	config     *config.APIConfig
	logger     *logging.Logger
	bus        *events.EventBus
	notifier   *notify.Notifier
	client     *api.Client
	cache      *dataset.Cache
	store      state.Store
	nav        *state.Navigator
	columnOpts columns.Options

	mu      sync.Mutex
	runners map[string]*panels.Runner
}

// NewSession builds a session from cfg. logger may be nil.
func NewSession(cfg *config.APIConfig, logger *logging.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.NewAPIConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	columnOpts, err := columns.OptionsFromConfig(cfg.Columns)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	store := o.store
	if store == nil {
		store, err = state.OpenStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	go forwardLogs(bus.Subscribe(events.EventLog), logger)
	notifier := notify.NewNotifier(notify.FromAPIConfig(cfg.Notifications), logger, o.sinks...)

	return &Session{
		config:     cfg,
		logger:     logger,
		bus:        bus,
		notifier:   notifier,
		client:     client,
		cache:      dataset.NewCache(client, notifier, bus, logger),
		store:      store,
		nav:        state.NewNavigator(store, bus, logger),
		columnOpts: columnOpts,
		runners:    make(map[string]*panels.Runner),
	}, nil
}

// forwardLogs writes log events to logger until the bus is closed.
func forwardLogs(ch <-chan events.Event, logger *logging.Logger) {
	for ev := range ch {
		e, ok := ev.(*events.LogEvent)
		if !ok {
			continue
		}
		var entry *zerolog.Event
		switch e.Level {
		case events.DebugLevel:
			entry = logger.Debug()
		case events.InfoLevel:
			entry = logger.Info()
		case events.WarnLevel:
			entry = logger.Warn()
		default:
			entry = logger.Error()
		}
		entry.Err(e.Error).Msg(e.Message)
	}
}

func (s *Session) Config() *config.APIConfig { return s.config }
func (s *Session) Logger() *logging.Logger { return s.logger }
func (s *Session) Events() *events.EventBus { return s.bus }
func (s *Session) Notifier() *notify.Notifier { return s.notifier }
func (s *Session) Client() *api.Client { return s.client }
func (s *Session) Cache() *dataset.Cache { return s.cache }
func (s *Session) Navigator() *state.Navigator { return s.nav }
func (s *Session) ColumnOptions() columns.Options { return s.columnOpts }
func (s *Session) SetColumnOptions(o columns.Options) { s.columnOpts = o }

// Close releases the state store and stops the event bus.
func (s *Session) Close() error {
	s.bus.Close()
	return s.store.Close()
}

// LoadTree refreshes the cached directory tree.
func (s *Session) LoadTree(ctx context.Context) error {
	return s.cache.Refresh(ctx)
}

// SelectFile makes path the active file. When the tree is loaded the path
// must name a file in it.
func (s *Session) SelectFile(path string) error {
	path = models.CleanPath(path)
	if s.cache.Loaded() && !s.cache.Contains(path) {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	return s.nav.SelectFile(path)
}

// SelectFolder selects path as the active folder without toggling it.
func (s *Session) SelectFolder(path string) error {
	path = models.CleanPath(path)
	if path != "" && s.cache.Loaded() && !s.cache.ContainsFolder(path) {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	return s.nav.SelectFolderWithoutExpandToggle(path)
}

// ToggleFolder flips the expansion of path.
func (s *Session) ToggleFolder(path string) error {
	path = models.CleanPath(path)
	if path != "" && s.cache.Loaded() && !s.cache.ContainsFolder(path) {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	return s.nav.ToggleFolderExpansion(path)
}

// Delete removes the file or folder at path and clears the active file
// when it was removed with it.
func (s *Session) Delete(ctx context.Context, path string, folder bool) error {
	path = models.CleanPath(path)
	var err error
	if folder {
		err = s.cache.DeleteFolder(ctx, path)
	} else {
		err = s.cache.DeleteFile(ctx, path)
	}
	if err != nil {
		return err
	}

	active := s.nav.ActiveFile()
	if active == path || (folder && models.IsAncestor(path, active)) {
		return s.nav.ClearActiveFile()
	}
	return nil
}

// Upload sends r as name into folder. Progress is published as
// UploadProgressEvents named by the destination path.
func (s *Session) Upload(ctx context.Context, folder, name string, r io.Reader, size int64) error {
	if err := validateTarget(folder, name); err != nil {
		return err
	}
	folder = models.CleanPath(folder)
	dest := models.JoinPath(folder, name)
	reporter := progress.NewEventProgress(s.bus, dest)
	if err := s.cache.Upload(ctx, folder, name, r, size, progress.Func(reporter, "upload "+dest)); err != nil {
		reporter.Error(err)
		return err
	}
	reporter.Finish()
	return nil
}

// CreateFolder creates name inside parent.
func (s *Session) CreateFolder(ctx context.Context, name, parent string) error {
	if err := validateTarget(parent, name); err != nil {
		return err
	}
	return s.cache.CreateFolder(ctx, name, models.CleanPath(parent))
}

func validateTarget(folder, name string) error {
	if err := validation.ValidateFolderPath(folder); err != nil {
		return err
	}
	return validation.ValidateName(name)
}

// LoadDataset reads path and infers its column types.
func (s *Session) LoadDataset(ctx context.Context, path string) (*Dataset, error) {
	path = models.CleanPath(path)
	rows, err := s.cache.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Dataset{
		Path:    path,
		Rows:    rows,
		Columns: columns.Infer(rows, s.columnOpts),
	}, nil
}

// LoadActiveDataset reads the active file.
func (s *Session) LoadActiveDataset(ctx context.Context) (*Dataset, error) {
	path := s.nav.ActiveFile()
	if path == "" {
		return nil, ErrNoActiveFile
	}
	return s.LoadDataset(ctx, path)
}

// Runner returns the request runner of panel, creating it on first use.
func (s *Session) Runner(panel string) *panels.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[panel]
	if !ok {
		r = panels.NewRunner(panel, s.notifier, s.bus)
		s.runners[panel] = r
	}
	return r
}

// Plot runs p against ds on the plot's panel.
func (s *Session) Plot(ctx context.Context, ds *Dataset, p panels.Plot) panels.Result {
	ctx, cancel := context.WithTimeout(ctx, constants.AnalysisTimeout)
	defer cancel()
	if err := s.nav.SetActiveTool(p.Type()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist active tool")
	}
	return s.Runner(p.Type()).RunPlot(ctx, s.client, p, ds.Rows, ds.Columns)
}

// Transform runs t against ds. A named result is saved into save.Folder,
// or the folder of ds when save.Folder is empty.
func (s *Session) Transform(ctx context.Context, ds *Dataset, t panels.Transform, save panels.SaveAs) panels.Result {
	ctx, cancel := context.WithTimeout(ctx, constants.AnalysisTimeout)
	defer cancel()
	if save.Name != "" && save.Folder == "" {
		save.Folder = models.ParentPath(ds.Path)
	}
	if err := s.nav.SetActiveTool(t.Name()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist active tool")
	}
	return s.Runner(t.Name()).RunTransform(ctx, s.client, s.config.Endpoints, t, ds.Rows, ds.Columns, save, s.cache)
}

// Analyze runs a against ds. A named result is saved like a transform's.
func (s *Session) Analyze(ctx context.Context, ds *Dataset, a panels.Analysis, save panels.SaveAs) panels.Result {
	ctx, cancel := context.WithTimeout(ctx, constants.ModelAnalysisTimeout)
	defer cancel()
	if save.Name != "" && save.Folder == "" {
		save.Folder = models.ParentPath(ds.Path)
	}
	if err := s.nav.SetActiveTool(a.Name()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist active tool")
	}
	return s.Runner(a.Name()).RunAnalysis(ctx, s.client, a, ds.Rows, ds.Columns, save, s.cache)
}

type pathStore interface {
	Path() string
}

// WatchState restores the navigator whenever another process changes the
// persisted state; Restore publishes the change on the event bus. It
// blocks until ctx is done. The memory backend has nothing to watch and
// returns immediately.
func (s *Session) WatchState(ctx context.Context) error {
	ps, ok := s.store.(pathStore)
	if !ok {
		return nil
	}
	w, err := state.NewWatcher(ps.Path())
	if err != nil {
		return err
	}
	return w.Run(ctx, s.nav.Restore)
}
