package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matflow/matflow-cli/internal/browser"
	"github.com/matflow/matflow-cli/internal/columns"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/constants"
	"github.com/matflow/matflow-cli/internal/core"
	"github.com/matflow/matflow-cli/internal/models"
	"github.com/matflow/matflow-cli/internal/pathutil"
	"github.com/matflow/matflow-cli/internal/progress"
)

// newTreeCmd creates the 'tree' command.
func newTreeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the dataset tree",
		Long: `Show the dataset tree as the browser shows it: only expanded folders
are opened and the active file and folder are marked with "*".

Examples:
  matflow tree
  matflow tree --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openLoadedSession()
			if err != nil {
				return err
			}
			defer session.Close()

			fmt.Fprint(cmd.OutOrStdout(), browser.RenderTree(session.Cache().Root(), session.Navigator().Snapshot(), all))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Expand every folder")
	return cmd
}

// newFilesCmd creates the 'files' command.
func newFilesCmd() *cobra.Command {
	var plain, folders bool

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List every dataset file, or every folder with --folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openLoadedSession()
			if err != nil {
				return err
			}
			defer session.Close()

			paths := session.Cache().ListAllFilePaths()
			active := session.Navigator().ActiveFile()
			noun := "files"
			if folders {
				paths = session.Cache().ListAllFolderPaths()
				active = session.Navigator().ActiveFolder()
				noun = "folders"
			}
			out := cmd.OutOrStdout()
			if plain {
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				return nil
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"", "Path", "Kind"})
			for _, p := range paths {
				marker := ""
				if p == active {
					marker = "*"
				}
				kind := "folder"
				if !folders {
					kind = models.KindOf(p).Label()
				}
				t.AppendRow(table.Row{marker, p, kind})
			}
			t.AppendFooter(table.Row{"", fmt.Sprintf("%d %s", len(paths), noun), ""})
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "One path per line")
	cmd.Flags().BoolVar(&folders, "folders", false, "List folders instead of files")
	return cmd
}

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted navigation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			snap := session.Navigator().Snapshot()
			cfg := session.Config()
			orNone := func(s string) string {
				if s == "" {
					return "(none)"
				}
				return s
			}
			folder := snap.ActiveFolder
			if folder == "" {
				folder = "/"
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendRows([]table.Row{
				{"Server", cfg.APIURL},
				{"State backend", cfg.State.Backend},
				{"Active file", orNone(snap.ActiveFile)},
				{"Active folder", folder},
				{"Expanded folders", orNone(strings.Join(snap.ExpandedFolders, ", "))},
				{"Active tool", orNone(snap.ActiveTool)},
			})
			t.Render()
			return nil
		},
	}
}

// newSelectCmd creates the 'select' command.
func newSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <path>",
		Short: "Make a file the active dataset",
		Long: `Make a file the active dataset. Its folder becomes the active folder
and the active tool is cleared.

Examples:
  matflow select iris.csv
  matflow select raw/2024/sales.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openLoadedSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.SelectFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active file: %s\n", session.Navigator().ActiveFile())
			return nil
		},
	}
}

// newFolderCmd creates the 'folder' command group.
func newFolderCmd() *cobra.Command {
	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "Select or expand folders",
	}

	folderCmd.AddCommand(&cobra.Command{
		Use:   "select <path>",
		Short: "Select a folder without toggling it",
		Long: `Select a folder. Selecting the folder that is already active and
expanded collapses it; otherwise the folder and its ancestors are expanded.
Use "/" for the root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openBrowsingSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.SelectFolder(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active folder: /%s\n", session.Navigator().ActiveFolder())
			return nil
		},
	})

	folderCmd.AddCommand(&cobra.Command{
		Use:   "toggle <path>",
		Short: "Expand or collapse a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openBrowsingSession()
			if err != nil {
				return err
			}
			defer session.Close()

			p := models.CleanPath(args[0])
			if err := session.ToggleFolder(p); err != nil {
				return err
			}
			state := "collapsed"
			if session.Navigator().IsExpanded(p) {
				state = "expanded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p, state)
			return nil
		},
	})

	return folderCmd
}

// targetFolder returns the --folder value, or the active folder when the
// flag was not given.
func targetFolder(cmd *cobra.Command, flag, value, active string) string {
	if cmd.Flags().Changed(flag) {
		return models.CleanPath(value)
	}
	return active
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var folder string
	var jobs int

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload local files as datasets",
		Long: `Upload one or more local files into a dataset folder. Without --folder
files go to the active folder.

Examples:
  matflow upload iris.csv
  matflow upload *.csv --folder raw/2024
  matflow upload data.xlsx --folder /`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			dest := targetFolder(cmd, "folder", folder, session.Navigator().ActiveFolder())
			ui := progress.NewUploadUI(len(args), os.Stderr)
			stop := ui.Follow(session.Events())
			defer stop()

			errs := make([]error, len(args))
			var g errgroup.Group
			g.SetLimit(max(jobs, 1))
			for i, local := range args {
				g.Go(func() error {
					errs[i] = uploadOne(session, ui, local, dest)
					return nil
				})
			}
			_ = g.Wait()
			ui.Wait()

			var failed []string
			for i, err := range errs {
				if err != nil {
					failed = append(failed, filepath.Base(args[i]))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d uploads failed: %s", len(failed), len(args), strings.Join(failed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&folder, "folder", "d", "", "Destination folder (default: active folder)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", constants.DefaultUploadConcurrency, "Number of files uploaded at once")
	return cmd
}

func uploadOne(session *core.Session, ui *progress.UploadUI, local, dest string) error {
	path, err := pathutil.ResolveAbsolutePath(local)
	if err != nil {
		err = fmt.Errorf("invalid path %s: %w", local, err)
		ui.AddFileBar(local, dest, 0).Complete(err)
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open %s: %w", local, err)
		ui.AddFileBar(local, dest, 0).Complete(err)
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		err = fmt.Errorf("failed to stat %s: %w", local, err)
		ui.AddFileBar(local, dest, 0).Complete(err)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("%s is a directory", local)
		ui.AddFileBar(local, dest, 0).Complete(err)
		return err
	}

	name := filepath.Base(local)
	target := models.JoinPath(models.CleanPath(dest), name)
	bar := ui.AddFileBar(local, dest, info.Size())
	ui.Track(target, bar)
	err = session.Upload(GetContext(), dest, name, f, info.Size())
	ui.Track(target, nil)
	bar.Complete(err)
	return err
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a dataset folder",
		Long: `Create a folder. Without --parent it is created in the active folder.

Examples:
  matflow mkdir experiments
  matflow mkdir 2024 --parent raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			dest := targetFolder(cmd, "parent", parent, session.Navigator().ActiveFolder())
			if err := session.CreateFolder(GetContext(), args[0], dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created /%s\n", models.JoinPath(dest, args[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent folder (default: active folder)")
	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var folder bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a dataset file or folder",
		Long: `Delete a file, or a folder with everything in it when --folder is set.
Deleting the active file clears the selection.

Examples:
  matflow rm raw/old.csv
  matflow rm raw/2023 --folder --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openLoadedSession()
			if err != nil {
				return err
			}
			defer session.Close()

			p := models.CleanPath(args[0])
			exists := session.Cache().Contains(p)
			if folder {
				exists = session.Cache().ContainsFolder(p)
			}
			if !exists {
				return fmt.Errorf("%w: %s", core.ErrUnknownPath, args[0])
			}

			if !yes {
				what := "file"
				if folder {
					what = "folder and all its contents"
				}
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s %s?", what, p))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}

			if err := session.Delete(GetContext(), p, folder); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", p)
			return nil
		},
	}

	cmd.Flags().BoolVar(&folder, "folder", false, "Delete a folder")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// newReadCmd creates the 'read' command.
func newReadCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "read [path]",
		Short: "Print the rows of a dataset",
		Long: `Print the rows of a dataset, by default the active file.

Examples:
  matflow read
  matflow read raw/iris.csv --limit 5
  matflow read --json > iris.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			ds, err := loadDatasetArg(session, args)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), ds.Rows)
			}
			renderRows(cmd.OutOrStdout(), ds.Rows, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

// newColumnsCmd creates the 'columns' command.
func newColumnsCmd() *cobra.Command {
	var strategy string
	var numericRule string

	cmd := &cobra.Command{
		Use:   "columns [path]",
		Short: "Show the inferred column types of a dataset",
		Long: `Classify the columns of a dataset (default: the active file) as numeric
or categorical.

Strategies:
  first_row  inspect only the first row (default)
  scan_all   inspect every row; a column may then be both

Numeric rules:
  strict     only finite numbers are numeric (default)
  coercing   nulls and booleans also count as numeric`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			opts := session.ColumnOptions()
			if strategy != "" {
				if opts.Strategy, err = columns.ParseStrategy(strategy); err != nil {
					return err
				}
			}
			if numericRule != "" {
				if opts.Rule, err = columns.ParseNumericRule(numericRule); err != nil {
					return err
				}
			}
			session.SetColumnOptions(opts)

			ds, err := loadDatasetArg(session, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows, %s, %s)\n", ds.Path, len(ds.Rows), opts.Strategy, opts.Rule)
			renderColumns(cmd.OutOrStdout(), ds.Rows, ds.Columns)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", fmt.Sprintf("Inference strategy: %s or %s", config.ColumnStrategyFirstRow, config.ColumnStrategyScanAll))
	cmd.Flags().StringVar(&numericRule, "numeric-rule", "", fmt.Sprintf("Numeric rule: %s or %s", config.NumericRuleStrict, config.NumericRuleCoercing))
	return cmd
}

// loadDatasetArg loads the dataset named by args[0], or the active file.
func loadDatasetArg(session *core.Session, args []string) (*core.Dataset, error) {
	if len(args) > 0 {
		return session.LoadDataset(GetContext(), args[0])
	}
	ds, err := session.LoadActiveDataset(GetContext())
	if errors.Is(err, core.ErrNoActiveFile) {
		return nil, fmt.Errorf("%w: pass a path or run 'matflow select <path>'", err)
	}
	return ds, err
}
