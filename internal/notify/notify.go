// Package notify delivers transient user notifications for matflow.
// Notifications always reach the console sink; desktop notifications go
// through github.com/gen2brain/beeep when enabled.
package notify

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gen2brain/beeep"

	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/logging"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is one user-facing message.
type Notification struct {
	Level   Level
	Title   string
	Message string
	Time    time.Time
}

// Sink receives notifications.
type Sink interface {
	Deliver(n Notification) error
}

// Notifier fans notifications out to its sinks.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	sinks   []Sink
	mu      sync.RWMutex
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent at all.
	Enabled bool

	// Desktop adds the beeep desktop sink.
	Desktop bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Desktop: false, // terminals are the primary surface
	}
}

// FromAPIConfig converts the [matflow.notifications] section.
func FromAPIConfig(cfg config.NotificationConfig) *Config {
	return &Config{Enabled: cfg.Enabled, Desktop: cfg.Desktop}
}

// NewNotifier creates a notifier with a console sink and, when configured,
// a desktop sink. Extra sinks are appended after those.
func NewNotifier(cfg *Config, logger *logging.Logger, extra ...Sink) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	sinks := []Sink{&ConsoleSink{logger: logger}}
	if cfg.Desktop {
		sinks = append(sinks, DesktopSink{})
	}
	sinks = append(sinks, extra...)

	return &Notifier{
		logger:  logger,
		enabled: cfg.Enabled,
		sinks:   sinks,
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// AddSink registers another sink.
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, s)
}

// Success reports a completed user action.
func (n *Notifier) Success(title, message string) {
	n.send(LevelSuccess, title, message)
}

// Info reports a neutral event.
func (n *Notifier) Info(title, message string) {
	n.send(LevelInfo, title, message)
}

// Error reports a failure.
func (n *Notifier) Error(title, message string) {
	n.send(LevelError, title, message)
}

func (n *Notifier) send(level Level, title, message string) {
	if n == nil {
		return
	}
	n.mu.RLock()
	enabled := n.enabled
	sinks := append([]Sink(nil), n.sinks...)
	n.mu.RUnlock()
	if !enabled {
		return
	}

	note := Notification{
		Level:   level,
		Title:   title,
		Message: truncate(message, constants.NotificationMaxLen),
		Time:    time.Now(),
	}
	for _, s := range sinks {
		if err := s.Deliver(note); err != nil {
			n.logger.Warn().Err(err).Str("title", title).Msg("Failed to deliver notification")
		}
	}
}

// ConsoleSink writes notifications through the logger.
type ConsoleSink struct {
	logger *logging.Logger
}

// NewConsoleSink returns a sink writing to logger.
func NewConsoleSink(logger *logging.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger}
}

func (c *ConsoleSink) Deliver(n Notification) error {
	switch n.Level {
	case LevelError:
		c.logger.Error().Str("title", n.Title).Msg(n.Message)
	default:
		c.logger.Info().Str("title", n.Title).Msg(n.Message)
	}
	return nil
}

// DesktopSink shows notifications through the OS notification center.
type DesktopSink struct{}

func (DesktopSink) Deliver(n Notification) error {
	title := "Matflow: " + n.Title
	if n.Level == LevelError {
		// beeep.Alert is more prominent on some platforms
		if err := beeep.Alert(title, n.Message, ""); err == nil {
			return nil
		}
	}
	// beeep.Notify is cross-platform:
	// - Windows: toast notifications
	// - macOS: NSUserNotificationCenter
	// - Linux: D-Bus notifications
	return beeep.Notify(title, n.Message, "")
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Deliver(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

// Count returns the number of recorded notifications at level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notes {
		if n.Level == level {
			count++
		}
	}
	return count
}

// Reset drops all recorded notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = nil
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
