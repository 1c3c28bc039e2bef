// Package cli provides the command-line interface for matflow.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matflow/matflow-cli/internal/logging"
	"github.com/matflow/matflow-cli/internal/version"
)

var (
	// Global flags
	cfgFile      string
	apiURL       string
	stateBackend string
	verbose      bool
	debug        bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "matflow",
		Short: "Matflow - browse datasets and run analyses from the terminal",
		Long: `Matflow ` + version.Version + ` - Built: ` + version.BuildTime + `
Client for the Matflow dataset server.

Datasets:
  Browse the dataset tree, select the active file, upload, create
  folders and delete entries.

Analysis:
  Inspect columns, render plots and run feature-engineering steps on
  the active dataset.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logging.Options{Console: os.Stderr})
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default: ~/.config/matflow/apiconfig)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Dataset server URL (overrides config and MATFLOW_API_URL)")
	rootCmd.PersistentFlags().StringVar(&stateBackend, "state", "", "Navigation state backend: file, sqlite or memory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Enable tab-completion for matflow commands",
		Long: `Generate shell completion scripts for matflow.

QUICK START:

  zsh:
    mkdir -p ~/.zsh/completions
    matflow completion zsh > ~/.zsh/completions/_matflow
    # Then add to ~/.zshrc: fpath=(~/.zsh/completions $fpath)

  bash:
    matflow completion bash | sudo tee /etc/bash_completion.d/matflow

  fish:
    matflow completion fish > ~/.config/fish/completions/matflow.fish

  PowerShell:
    matflow completion powershell >> $PROFILE`,
	}

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})
	return completionCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	if logger != nil {
		_ = logger.Close()
	}
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSelectCmd())
	rootCmd.AddCommand(newFolderCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newColumnsCmd())
	rootCmd.AddCommand(newPlotCmd())
	rootCmd.AddCommand(newTransformCmd())
	rootCmd.AddCommand(newOptimizeCmd())
	rootCmd.AddCommand(newSelectFeaturesCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewLogger(logging.Options{Console: os.Stderr})
	}
	return logger
}

// GetContext returns the global CLI context, cancelled on Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
