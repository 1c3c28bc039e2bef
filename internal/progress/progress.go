// Package progress reports upload progress and request waits, either as
// terminal bars or as events on the event bus.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/matflow/matflow-cli/internal/events"
)

// Reporter receives byte progress for one transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// Func adapts r to the (sent, total) callback the API client calls.
// Start is issued on the first call.
func Func(r Reporter, description string) func(sent, total int64) {
	var once sync.Once
	return func(sent, total int64) {
		once.Do(func() { r.Start(total, description) })
		r.Update(sent)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// EventProgress publishes UploadProgressEvents for name.
type EventProgress struct {
	bus   *events.EventBus
	name  string
	total int64
}

// NewEventProgress creates a reporter publishing on bus.
func NewEventProgress(bus *events.EventBus, name string) *EventProgress {
	return &EventProgress{bus: bus, name: name}
}

func (p *EventProgress) Start(total int64, description string) {
	p.total = total
	p.publish(0)
}

func (p *EventProgress) Update(current int64) {
	p.publish(current)
}

func (p *EventProgress) Finish() {
	p.publish(p.total)
}

// Error publishes a final event carrying err and logs it.
func (p *EventProgress) Error(err error) {
	if err == nil {
		return
	}
	p.bus.Publish(&events.UploadProgressEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventUploadProgress, Time: time.Now()},
		Name:      p.name,
		Total:     p.total,
		Error:     err,
	})
	p.bus.PublishLog(events.ErrorLevel, fmt.Sprintf("upload of %s failed", p.name), err)
}

func (p *EventProgress) publish(current int64) {
	var fraction float64
	if p.total > 0 {
		fraction = float64(current) / float64(p.total)
	}
	p.bus.Publish(&events.UploadProgressEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventUploadProgress, Time: time.Now()},
		Name:      p.name,
		Sent:      current,
		Total:     p.total,
		Progress:  fraction,
	})
}

// Spinner animates while a request is outstanding. On a non-terminal it
// prints the description once.
type Spinner struct {
	bar  *progressbar.ProgressBar
	done chan struct{}
	wg   sync.WaitGroup
}

// StartSpinner starts a spinner on out labelled description. animate is
// normally IsTerminal(out).
func StartSpinner(out io.Writer, description string, animate bool) *Spinner {
	s := &Spinner{done: make(chan struct{})}
	if !animate {
		fmt.Fprintln(out, description)
		return s
	}
	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				_ = s.bar.Add(1)
			}
		}
	}()
	return s
}

// Stop ends the animation. It is safe to call more than once.
func (s *Spinner) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}
