package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matflow/matflow-cli/internal/core"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/panels"
	"github.com/matflow/matflow-cli/internal/pathutil"
	"github.com/matflow/matflow-cli/internal/progress"
)

// newOptimizeCmd creates the 'optimize' command.
func newOptimizeCmd() *cobra.Command {
	var flags transformFlags
	var outDir string
	var bounds []string
	opt := panels.Optimize{PSO: panels.DefaultPSOConfig()}

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for feature values that reach a target value",
		Long: `Run inverse-design optimization on the server. Every regression model
the server knows is fit on --features and --target, then a particle
swarm searches for feature values whose predicted target is closest to
--target-value.

Features range over the values seen in the dataset unless --bound
overrides them. --save-as stores the best solutions as a new dataset.
Comparison graphs are written to --out.`,
		Example: `  matflow optimize --features temp,pressure --target yield --target-value 0.9
  matflow optimize --features temp,pressure --target yield --target-value 0.9 \
    --bound temp=20:80 --swarm-size 30 --save-as best.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.Bounds = make(map[string]panels.Bound, len(bounds))
			for _, b := range bounds {
				feature, bound, err := panels.ParseBound(b)
				if err != nil {
					return err
				}
				opt.Bounds[feature] = bound
			}
			return runAnalysis(cmd, &opt, &flags, func(out io.Writer, r panels.Result) error {
				return writeOptimization(out, r.Optimization, flags.limit, outDir)
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opt.Features, "features", nil, "Numeric feature columns")
	f.StringVar(&opt.Target, "target", "", "Numeric target column")
	f.Float64Var(&opt.TargetValue, "target-value", 0, "Target value to reach")
	f.StringArrayVar(&bounds, "bound", nil, "Search range as feature=lower:upper (repeatable)")
	f.IntVar(&opt.PSO.SwarmSize, "swarm-size", opt.PSO.SwarmSize, "Particles per swarm (10-100)")
	f.IntVar(&opt.PSO.MaxIter, "max-iter", opt.PSO.MaxIter, "Iterations per swarm (10-1000)")
	f.Float64Var(&opt.PSO.Omega, "omega", opt.PSO.Omega, "Particle inertia (0-1)")
	f.Float64Var(&opt.PSO.PhiP, "phi-p", opt.PSO.PhiP, "Pull towards a particle's best (0-2)")
	f.Float64Var(&opt.PSO.PhiG, "phi-g", opt.PSO.PhiG, "Pull towards the swarm's best (0-2)")
	f.IntVar(&opt.PSO.Solutions, "solutions", opt.PSO.Solutions, "Solutions to keep (1-50)")
	f.IntVar(&opt.PSO.Processors, "processors", opt.PSO.Processors, "Server processes (1-10)")
	f.IntVar(&opt.PSO.MaxRounds, "max-rounds", opt.PSO.MaxRounds, "Swarm restarts (1-20)")
	f.StringVarP(&outDir, "out", "o", ".", "Directory for the comparison graphs")
	flags.register(cmd)
	return cmd
}

// newSelectFeaturesCmd creates the 'select-features' command.
func newSelectFeaturesCmd() *cobra.Command {
	var flags transformFlags
	var outDir string
	var sel panels.FeatureSelection

	cmd := &cobra.Command{
		Use:   "select-features",
		Short: "Pick the features that improve a model's score",
		Long: `Run progressive feature selection on the server. Features are added
one at a time while the cross-validated score of the estimator keeps
improving.

The problem type follows the target column unless --problem-type is
given: numeric targets are regression problems. Estimators:
  regression:     ` + strings.Join(panels.RegressionEstimators, ", ") + `
  classification: ` + strings.Join(panels.ClassificationEstimators, ", ") + `

--save-as stores the dataset without the dropped features. The score
figure is written to --out.`,
		Example: `  matflow select-features --target price
  matflow select-features --target species --estimator RandomForestClassifier --kfold 5
  matflow select-features --target price --features area,rooms --save-as slim.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, &sel, &flags, func(out io.Writer, r panels.Result) error {
				return writeSelection(out, r.Selection, flags.limit, outDir)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&sel.Target, "target", "", "Target column")
	f.StringVar(&sel.ProblemType, "problem-type", "", "regression or classification (default: from the target)")
	f.StringVar(&sel.Estimator, "estimator", "", "Estimator (default: the first for the problem type)")
	f.IntVar(&sel.KFold, "kfold", 2, "Cross-validation folds")
	f.StringVar(&sel.Display, "display", "", "Score display: All, Custom or None (default: Custom with --features, else All)")
	f.StringSliceVar(&sel.Features, "features", nil, "Features to display with Custom")
	f.StringVarP(&outDir, "out", "o", ".", "Directory for the score figure")
	flags.register(cmd)
	return cmd
}

func runAnalysis(cmd *cobra.Command, a panels.Analysis, f *transformFlags, render func(io.Writer, panels.Result) error) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	ds, err := loadDatasetArg(session, optionalArg(f.file))
	if err != nil {
		return err
	}
	return analyzeDataset(cmd.OutOrStdout(), session, ds, a, f, render)
}

func analyzeDataset(out io.Writer, session *core.Session, ds *core.Dataset, a panels.Analysis, f *transformFlags, render func(io.Writer, panels.Result) error) error {
	save := panels.SaveAs{Name: f.saveAs, Folder: models.CleanPath(f.folder)}

	spin := progress.StartSpinner(os.Stderr, fmt.Sprintf("Running %s on %s", a.Name(), ds.Path), progress.IsTerminal(os.Stderr))
	result := session.Analyze(GetContext(), ds, a, save)
	spin.Stop()

	if result.Err != nil {
		return resultError(result)
	}
	if err := render(out, result); err != nil {
		return err
	}
	if result.SavedPath != "" {
		fmt.Fprintf(out, "Saved as %s\n", result.SavedPath)
	}
	return nil
}

func writeOptimization(out io.Writer, r *models.OptimizationResult, limit int, dir string) error {
	if r == nil {
		fmt.Fprintln(out, "The server returned no result")
		return nil
	}
	fmt.Fprintf(out, "Best model: %s (runtime %.2fs, objective %g)\n", r.BestModel, r.BestRuntime, r.BestFopt)
	fmt.Fprintln(out, "\nBest solutions")
	renderRows(out, r.BestSolution, limit)
	if len(r.Comparison) > 0 {
		fmt.Fprintln(out, "\nModel comparison")
		renderRows(out, r.Comparison, 0)
	}

	files := make(map[string][]byte, len(r.Graphs))
	for format, encoded := range r.Graphs {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(encoded))
		if err != nil {
			return fmt.Errorf("invalid %s graph: %w", format, err)
		}
		files["optimize."+format] = data
	}
	return writeArtifacts(out, dir, files)
}

func writeSelection(out io.Writer, r *models.FeatureSelectionResult, limit int, dir string) error {
	if r == nil {
		fmt.Fprintln(out, "The server returned no result")
		return nil
	}
	fmt.Fprintf(out, "Selected: %s\n", joinOrNone(r.SelectedFeatures))
	fmt.Fprintf(out, "Dropped:  %s\n", joinOrNone(r.DroppedFeatures))
	if len(r.SelectedScores) > 0 {
		fmt.Fprintln(out, "\nSelected feature scores")
		renderRows(out, r.SelectedScores, limit)
	}
	if len(r.DroppedScores) > 0 {
		fmt.Fprintln(out, "\nDropped feature scores")
		renderRows(out, r.DroppedScores, limit)
	}
	if len(r.Figure) == 0 {
		return nil
	}
	return writeArtifacts(out, dir, map[string][]byte{"feature-selection.plotly.json": r.Figure})
}

func joinOrNone(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(s, ", ")
}

// writeArtifacts writes files into dir in name order and prints the paths.
func writeArtifacts(out io.Writer, dir string, files map[string][]byte) error {
	if len(files) == 0 {
		return nil
	}
	dir, err := pathutil.ResolveAbsolutePath(dir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	return nil
}
