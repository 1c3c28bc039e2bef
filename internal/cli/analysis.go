package cli

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matflow/matflow-cli/internal/core"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/panels"
	"github.com/matflow/matflow-cli/internal/pathutil"
	"github.com/matflow/matflow-cli/internal/progress"
)

// newPlotCmd creates the 'plot' command.
func newPlotCmd() *cobra.Command {
	var params panels.Params
	var file string
	var outDir string

	cmd := &cobra.Command{
		Use:   "plot <type>",
		Short: "Render a plot of the active dataset",
		Long: `Render a plot on the server and save the returned images.

Types: ` + strings.Join(panels.PlotTypes(), ", ") + `
Short names (bar, box, count, hist, line, pie, reg, scatter, violin, custom)
are accepted.

Options that a plot does not use are ignored. Unset options are sent as
the server's placeholder values.

Examples:
  matflow plot bar --cat species --num sepal_length
  matflow plot hist --var petal_width --bins 20 --kde
  matflow plot pie --cat species --gap 0.1 --out ./plots
  matflow plot scatter --x sepal_length --y petal_length --hue species`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plot, err := panels.BuildPlot(args[0], params)
			if err != nil {
				return err
			}

			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			ds, err := loadDatasetArg(session, optionalArg(file))
			if err != nil {
				return err
			}

			spin := progress.StartSpinner(os.Stderr, fmt.Sprintf("Rendering %s of %s", plot.Type(), ds.Path), progress.IsTerminal(os.Stderr))
			result := session.Plot(GetContext(), ds, plot)
			spin.Stop()

			if result.Err != nil {
				return resultError(result)
			}
			return writePlot(cmd.OutOrStdout(), plot.Type(), result.Plot, outDir)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "Dataset to plot (default: active file)")
	f.StringVarP(&outDir, "out", "o", ".", "Directory for the rendered images")
	f.StringSliceVar(&params.Cat, "cat", nil, "Categorical column(s)")
	f.StringVar(&params.Num, "num", "", "Numerical column")
	f.StringSliceVar(&params.Var, "var", nil, "Column(s) for a histogram")
	f.StringSliceVar(&params.X, "x", nil, "X column(s)")
	f.StringVar(&params.Y, "y", "", "Y column")
	f.StringVar(&params.Hue, "hue", "", "Column used for color grouping")
	f.StringVar(&params.Style, "style", "", "Column used for line style")
	f.StringVar(&params.Orient, "orient", "", "Orientation: Vertical or Horizontal")
	f.StringVar(&params.Title, "title", "", "Plot title")
	f.StringVar(&params.ColorPalette, "palette", "", "Color palette (default: "+panels.DefaultPalette+")")
	f.BoolVar(&params.Annotate, "annotate", false, "Write values on the bars")
	f.BoolVar(&params.Dodge, "dodge", false, "Separate hue levels")
	f.BoolVar(&params.Split, "split", false, "Split violins (needs a hue with two levels)")
	f.BoolVar(&params.Legend, "legend", false, "Show the legend")
	f.BoolVar(&params.KDE, "kde", false, "Overlay a density estimate")
	f.BoolVar(&params.Scatter, "scatter", true, "Draw the points of a regression plot")
	f.BoolVar(&params.Label, "label", true, "Label pie slices")
	f.BoolVar(&params.Percentage, "percentage", true, "Show pie percentages")
	f.Float64Var(&params.Gap, "gap", 0, "Pie explode value between 0 and 1")
	f.StringVar(&params.Agg, "agg", "", "Histogram statistic: count, frequency, density or probability")
	f.IntVar(&params.Bins, "bins", 0, "Histogram bins (0 for auto)")
	return cmd
}

func optionalArg(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// resultError turns a failed panel result into the error shown to the user.
func resultError(r panels.Result) error {
	if r.Message != "" {
		return fmt.Errorf("%s: %s", r.Panel, r.Message)
	}
	return r.Err
}

// writePlot saves every image of result into dir and prints the paths.
func writePlot(out io.Writer, plotType string, result *models.PlotResult, dir string) error {
	if result == nil || result.Empty() {
		fmt.Fprintln(out, "The server returned an empty plot")
		return nil
	}
	dir, err := pathutil.ResolveAbsolutePath(dir)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
		return nil
	}

	for i, img := range result.PNG {
		data, err := base64.StdEncoding.DecodeString(stripDataURL(img))
		if err != nil {
			return fmt.Errorf("invalid png data: %w", err)
		}
		if err := write(imageName(plotType, i, len(result.PNG), "png"), data); err != nil {
			return err
		}
	}
	for i, svg := range result.SVG {
		if err := write(imageName(plotType, i, len(result.SVG), "svg"), []byte(svg)); err != nil {
			return err
		}
	}
	for i, fig := range result.Figures {
		if err := write(imageName(plotType, i, len(result.Figures), "plotly.json"), fig); err != nil {
			return err
		}
	}
	return nil
}

func imageName(plotType string, i, n int, ext string) string {
	if n == 1 {
		return fmt.Sprintf("%s.%s", plotType, ext)
	}
	return fmt.Sprintf("%s-%d.%s", plotType, i+1, ext)
}

func stripDataURL(s string) string {
	if strings.HasPrefix(s, "data:") {
		if _, data, ok := strings.Cut(s, ","); ok {
			return data
		}
	}
	return s
}

// newTransformCmd creates the 'transform' command group.
func newTransformCmd() *cobra.Command {
	transformCmd := &cobra.Command{
		Use:   "transform",
		Short: "Run feature-engineering steps on a dataset",
		Long: `Run a feature-engineering step on the server. The result is printed,
and saved as a new dataset when --save-as is given.`,
	}
	transformCmd.AddCommand(newDropRowsCmd())
	transformCmd.AddCommand(newAlterFieldsCmd())
	return transformCmd
}

type transformFlags struct {
	file   string
	saveAs string
	folder string
	limit  int
}

func (f *transformFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Dataset to transform (default: active file)")
	cmd.Flags().StringVar(&f.saveAs, "save-as", "", "Save the result as a new dataset with this name")
	cmd.Flags().StringVar(&f.folder, "folder", "", "Folder for --save-as (default: the dataset's folder)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 20, "Maximum rows to print (0 for all)")
}

func runTransform(cmd *cobra.Command, t panels.Transform, f *transformFlags) error {
	session, err := openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	ds, err := loadDatasetArg(session, optionalArg(f.file))
	if err != nil {
		return err
	}
	return transformDataset(cmd.OutOrStdout(), session, ds, t, f)
}

func transformDataset(out io.Writer, session *core.Session, ds *core.Dataset, t panels.Transform, f *transformFlags) error {
	save := panels.SaveAs{Name: f.saveAs, Folder: models.CleanPath(f.folder)}

	spin := progress.StartSpinner(os.Stderr, fmt.Sprintf("Running %s on %s", t.Name(), ds.Path), progress.IsTerminal(os.Stderr))
	result := session.Transform(GetContext(), ds, t, save)
	spin.Stop()

	if result.Err != nil {
		return resultError(result)
	}
	renderRows(out, result.Rows, f.limit)
	if result.SavedPath != "" {
		fmt.Fprintf(out, "Saved as %s\n", result.SavedPath)
	}
	return nil
}

func newDropRowsCmd() *cobra.Command {
	var flags transformFlags
	var cols []string

	cmd := &cobra.Command{
		Use:   "drop-rows",
		Short: "Drop rows that hold nulls in the selected columns",
		Example: `  matflow transform drop-rows --columns age,income
  matflow transform drop-rows --columns age --save-as clean.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, &panels.DropRows{Columns: cols}, &flags)
		},
	}
	cmd.Flags().StringSliceVar(&cols, "columns", nil, "Columns to check for nulls")
	flags.register(cmd)
	return cmd
}

func newAlterFieldsCmd() *cobra.Command {
	var flags transformFlags
	var renames []string

	cmd := &cobra.Command{
		Use:   "alter-fields",
		Short: "Rename columns",
		Example: `  matflow transform alter-fields --rename sepal_length=sl --rename sepal_width=sw
  matflow transform alter-fields --rename a=b --rename b=a --save-as swapped.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := &panels.AlterFields{}
			for _, r := range renames {
				rename, err := panels.ParseRename(r)
				if err != nil {
					return err
				}
				t.Renames = append(t.Renames, rename)
			}
			return runTransform(cmd, t, &flags)
		},
	}
	cmd.Flags().StringArrayVar(&renames, "rename", nil, "Rename as old=new (repeatable)")
	flags.register(cmd)
	return cmd
}
