package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/events"
)

// UploadUI manages the progress bars of one or more dataset uploads.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int
	started    int32
	completed  int32
	failed     int32

	mu      sync.Mutex
	tracked map[string]*FileBar
}

// FileBar is the bar of a single upload.
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	localPath  string
	folder     string
	size       int64
	startTime  time.Time
	mu         sync.Mutex
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates the UI for totalFiles uploads drawn on out. Bars are
// only rendered when out is a terminal; otherwise one line per upload is
// printed.
func NewUploadUI(totalFiles int, out *os.File) *UploadUI {
	if out == nil {
		out = os.Stderr
	}
	isTerminal := IsTerminal(out)

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(out)
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressUpdateInterval),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates the bar for uploading localPath into folder.
func (u *UploadUI) AddFileBar(localPath, folder string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	dest := displayFolder(folder)

	fb := &FileBar{
		ui:         u,
		index:      index,
		localPath:  localPath,
		folder:     dest,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s → %s", index, u.totalFiles, truncatePath(localPath, 2), dest), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading [%d/%d]: %s (%s) → %s\n",
			index, u.totalFiles, truncatePath(localPath, 2), formatSize(size), dest)
	}
	return fb
}

// Update records sent of total bytes. It has the signature of the API
// client's progress callback. Redraws are throttled.
func (f *FileBar) Update(sent, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar == nil {
		f.lastBytes = sent
		return
	}

	if total > 0 && total != f.size {
		f.size = total
		f.bar.SetTotal(total, false)
	}
	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)
	if elapsed < constants.ProgressUpdateInterval && sent < f.size {
		return
	}
	f.bar.EwmaIncrBy(int(sent-f.lastBytes), elapsed)
	f.lastBytes = sent
	f.lastUpdate = now
}

// Sent returns the byte count of the last recorded update.
func (f *FileBar) Sent() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBytes
}

// Complete finishes the bar and prints a one-line summary.
func (f *FileBar) Complete(err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		msg = fmt.Sprintf("✓ %s → %s (%s, %s)\n",
			truncatePath(f.localPath, 2), f.folder, formatSize(f.size), elapsed.Round(time.Millisecond))
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		atomic.AddInt32(&f.ui.failed, 1)
		msg = fmt.Sprintf("✗ %s → %s: %v\n", truncatePath(f.localPath, 2), f.folder, err)
	}
	_, _ = f.ui.Writer().Write([]byte(msg))
	atomic.AddInt32(&f.ui.completed, 1)
}

// Track routes progress events for the upload to dest to fb. A nil fb
// stops routing.
func (u *UploadUI) Track(dest string, fb *FileBar) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fb == nil {
		delete(u.tracked, dest)
		return
	}
	if u.tracked == nil {
		u.tracked = make(map[string]*FileBar)
	}
	u.tracked[dest] = fb
}

func (u *UploadUI) bar(dest string) *FileBar {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tracked[dest]
}

// Follow feeds the UploadProgressEvents on bus to the tracked bars until
// the returned stop function is called.
func (u *UploadUI) Follow(bus *events.EventBus) (stop func()) {
	ch := bus.Subscribe(events.EventUploadProgress)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				e, ok := ev.(*events.UploadProgressEvent)
				if !ok || e.Error != nil {
					continue
				}
				if fb := u.bar(e.Name); fb != nil {
					fb.Update(e.Sent, e.Total)
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			bus.Unsubscribe(events.EventUploadProgress, ch)
		})
	}
}

// Wait blocks until every bar has completed.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer prints above the bars in terminal mode.
func (u *UploadUI) Writer() io.Writer {
	if u.isTerminal && u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// Counts returns the number of completed and failed uploads.
func (u *UploadUI) Counts() (completed, failed int) {
	return int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

func displayFolder(folder string) string {
	if folder == "" {
		return "/"
	}
	return folder
}

func formatSize(size int64) string {
	switch {
	case size < 0:
		return "unknown size"
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KiB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1024*1024))
	}
}

// truncatePath keeps the last maxComponents elements of path.
// Example: truncatePath("/a/b/c/d/iris.csv", 2) → "…/d/iris.csv"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}

func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
