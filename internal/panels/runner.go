package panels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/events"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/notify"
	"github.com/matflow/matflow-cli/internal/validation"
)

// Plotter posts plot requests.
type Plotter interface {
	Plot(ctx context.Context, plotType string, body interface{}) (*models.PlotResult, error)
}

// Transformer posts feature-engineering requests.
type Transformer interface {
	Transform(ctx context.Context, endpoint string, body interface{}) (models.Rows, error)
}

// FileCreator stores a derived dataset. *dataset.Cache implements it.
type FileCreator interface {
	CreateFile(ctx context.Context, rows models.Rows, filename, folder string) (string, error)
}

// Analyzer posts model-driven analysis requests.
type Analyzer interface {
	Optimize(ctx context.Context, body interface{}) (*models.OptimizationResult, error)
	SelectFeatures(ctx context.Context, body interface{}) (*models.FeatureSelectionResult, error)
}

// Output is what a panel request produced.
type Output struct {
	Plot         *models.PlotResult
	Rows         models.Rows
	Optimization *models.OptimizationResult
	Selection    *models.FeatureSelectionResult
	SavedPath    string // set when the rows were saved as a new file
}

// Result is the outcome of one panel request.
type Result struct {
	Output
	Panel      string
	Generation uint64
	Err        error
	Message    string // inline error text
}

// Job performs one panel request.
type Job func(ctx context.Context) (Output, error)

// Runner serializes the requests of one panel. Issuing a request cancels
// the one in flight; a completion that is no longer the newest is
// returned as ErrSuperseded and never becomes the panel's latest result.
type Runner struct {
	panel    string
	notifier *notify.Notifier
	bus      *events.EventBus

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     Result
}

// NewRunner creates a runner for panel. notifier and bus may be nil.
func NewRunner(panel string, notifier *notify.Notifier, bus *events.EventBus) *Runner {
	return &Runner{panel: panel, notifier: notifier, bus: bus}
}

// Generation returns the number of requests issued so far.
func (r *Runner) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Latest returns the result of the newest completed request.
func (r *Runner) Latest() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Run executes job as the panel's newest request.
func (r *Runner) Run(ctx context.Context, job Job) Result {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	if r.cancel != nil {
		r.cancel()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	out, err := job(jobCtx)

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		cancel()
		return Result{Panel: r.panel, Generation: gen, Err: ErrSuperseded}
	}
	r.cancel = nil
	cancel()

	res := Result{Output: out, Panel: r.panel, Generation: gen}
	if err != nil {
		res.Output = Output{}
		res.Err = err
		res.Message = api.UserMessage(err)
	}
	r.latest = res
	r.mu.Unlock()

	r.report(res)
	return res
}

// reject reports options that failed validation. No request is issued:
// the generation is unchanged and a request in flight keeps running.
func (r *Runner) reject(err error) Result {
	r.mu.Lock()
	res := Result{Panel: r.panel, Generation: r.generation, Err: err, Message: api.UserMessage(err)}
	r.latest = res
	r.mu.Unlock()

	r.report(res)
	return res
}

func (r *Runner) report(res Result) {
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		r.notifier.Error(fmt.Sprintf("%s failed", r.panel), res.Message)
	}
	figures := 0
	if res.Plot != nil {
		figures = len(res.Plot.Figures)
	}
	if res.Selection != nil && len(res.Selection.Figure) > 0 {
		figures = 1
	}
	r.bus.Publish(&events.PanelResultEvent{
		BaseEvent:  events.BaseEvent{EventType: events.EventPanelResult, Time: time.Now()},
		Panel:      r.panel,
		Generation: res.Generation,
		Figures:    figures,
		Error:      res.Err,
	})
}

// RunPlot validates p and, when valid, requests the plot for rows.
func (r *Runner) RunPlot(ctx context.Context, client Plotter, p Plot, rows models.Rows, cols columns.Summary) Result {
	if err := p.Validate(cols); err != nil {
		return r.reject(err)
	}
	return r.Run(ctx, func(ctx context.Context) (Output, error) {
		plot, err := client.Plot(ctx, p.Type(), p.Body(rows))
		if err != nil {
			return Output{}, err
		}
		return Output{Plot: plot}, nil
	})
}

// SaveAs names the file a result's rows are stored under. An empty Name
// keeps the result in memory only.
type SaveAs struct {
	Name   string
	Folder string
}

func (s SaveAs) check(creator FileCreator) error {
	if s.Name == "" {
		return nil
	}
	if creator == nil {
		return invalid("save_as", "saving is not available")
	}
	if err := validation.ValidateName(s.Name); err != nil {
		return invalid("save_as", "%v", err)
	}
	return nil
}

// store saves out.Rows when a name was given.
func (s SaveAs) store(ctx context.Context, creator FileCreator, out Output) (Output, error) {
	if s.Name == "" {
		return out, nil
	}
	saved, err := creator.CreateFile(ctx, out.Rows, s.Name, s.Folder)
	if err != nil {
		return Output{}, err
	}
	out.SavedPath = saved
	return out, nil
}

// RunTransform validates t, posts it and optionally saves the returned
// rows as a new dataset through creator.
func (r *Runner) RunTransform(ctx context.Context, client Transformer, endpoints config.EndpointsConfig, t Transform, rows models.Rows, cols columns.Summary, save SaveAs, creator FileCreator) Result {
	if err := t.Validate(cols); err != nil {
		return r.reject(err)
	}
	if err := save.check(creator); err != nil {
		return r.reject(err)
	}
	return r.Run(ctx, func(ctx context.Context) (Output, error) {
		result, err := client.Transform(ctx, t.Endpoint(endpoints), t.Body(rows))
		if err != nil {
			return Output{}, err
		}
		return save.store(ctx, creator, Output{Rows: result})
	})
}

// RunAnalysis validates a, submits it and optionally saves the tabular
// part of the result as a new dataset through creator.
func (r *Runner) RunAnalysis(ctx context.Context, client Analyzer, a Analysis, rows models.Rows, cols columns.Summary, save SaveAs, creator FileCreator) Result {
	if err := a.Validate(cols); err != nil {
		return r.reject(err)
	}
	if err := save.check(creator); err != nil {
		return r.reject(err)
	}
	body := a.Body(rows, cols)
	return r.Run(ctx, func(ctx context.Context) (Output, error) {
		out, err := a.Submit(ctx, client, body)
		if err != nil {
			return Output{}, err
		}
		return save.store(ctx, creator, out)
	})
}
