package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matflow/matflow-cli/internal/api"
	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage matflow configuration",
		Long: `Configuration management commands for matflow.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the server connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns the --config value or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultAPIConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for matflow.

The configuration is saved to ~/.config/matflow/apiconfig unless --config
is given. Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(bufio.NewReader(cmd.InOrStdin()), out)
			if err != nil {
				return err
			}
			if err := config.SaveAPIConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to %s\n", path)
			fmt.Fprintln(out, "Test it with: matflow config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

func runConfigWizard(r *bufio.Reader, out io.Writer) (*config.APIConfig, error) {
	cfg := config.NewAPIConfig()

	fmt.Fprintln(out, "Matflow Configuration Setup")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)

	cfg.APIURL = promptString(r, out, "Server URL", constants.DefaultAPIURL)
	cfg.ReadEndpoint = promptChoice(r, out, "Read endpoint", cfg.ReadEndpoint,
		config.ReadEndpointDataset, config.ReadEndpointReadFile)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Client Settings (press Enter for defaults)")
	fmt.Fprintln(out, "------------------------------------------")
	cfg.State.Backend = promptChoice(r, out, "State backend", cfg.State.Backend,
		config.StateBackendFile, config.StateBackendSQLite, config.StateBackendMemory)
	cfg.Columns.Strategy = promptChoice(r, out, "Column strategy", cfg.Columns.Strategy,
		config.ColumnStrategyFirstRow, config.ColumnStrategyScanAll)
	cfg.Columns.NumericRule = promptChoice(r, out, "Numeric rule", cfg.Columns.NumericRule,
		config.NumericRuleStrict, config.NumericRuleCoercing)
	cfg.Notifications.Desktop = promptChoice(r, out, "Desktop notifications", "no", "yes", "no") == "yes"

	fmt.Fprintln(out)
	cfg.Proxy.Mode = promptChoice(r, out, "Proxy mode", cfg.Proxy.Mode,
		config.ProxyModeNone, config.ProxyModeSystem, config.ProxyModeBasic, config.ProxyModeNTLM)
	if cfg.Proxy.Mode == config.ProxyModeBasic || cfg.Proxy.Mode == config.ProxyModeNTLM {
		cfg.Proxy.Host = promptString(r, out, "Proxy host", "")
		if port, err := strconv.Atoi(promptString(r, out, "Proxy port", "8080")); err == nil && port > 0 {
			cfg.Proxy.Port = port
		}
		cfg.Proxy.User = promptString(r, out, "Proxy user", "")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/matflow/apiconfig)
  2. Environment variables (MATFLOW_API_URL)
  3. Command-line flags (--api-url, --state)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Server:")
			fmt.Fprintf(out, "  API URL:       %s\n", cfg.APIURL)
			fmt.Fprintf(out, "  Read endpoint: %s\n", cfg.ReadEndpoint)
			fmt.Fprintf(out, "  Drop rows:     %s\n", cfg.Endpoints.DropRows)
			fmt.Fprintf(out, "  Alter fields:  %s\n", cfg.Endpoints.AlterFields)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "State:")
			fmt.Fprintf(out, "  Backend: %s\n", cfg.State.Backend)
			if statePath, err := cfg.StatePath(); err == nil && statePath != "" {
				fmt.Fprintf(out, "  Path:    %s\n", statePath)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Columns:")
			fmt.Fprintf(out, "  Strategy:     %s\n", cfg.Columns.Strategy)
			fmt.Fprintf(out, "  Numeric rule: %s\n", cfg.Columns.NumericRule)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Notifications:")
			fmt.Fprintf(out, "  Enabled: %t\n", cfg.Notifications.Enabled)
			fmt.Fprintf(out, "  Desktop: %t\n", cfg.Notifications.Desktop)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy Settings:")
			fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
			if cfg.Proxy.Host != "" {
				fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.Proxy.Host)
				fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.Proxy.Port)
			}
			if cfg.Proxy.Password != "" {
				fmt.Fprintln(out, "  Password:   <set>")
			}
			fmt.Fprintln(out)

			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the server connection",
		Long: `Test the server connection with the current configuration by fetching
the dataset tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Testing Server Connection")
			fmt.Fprintln(out, "=========================")
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Fprintf(out, "API URL: %s\n", cfg.APIURL)
			fmt.Fprintln(out, "Testing connection...")
			fmt.Fprintln(out)

			client, err := api.NewClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}

			ctx, cancel := context.WithTimeout(GetContext(), constants.DirectoryFetchTimeout)
			defer cancel()

			root, err := client.GetDirectoryStructure(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %s\n", api.UserMessage(err))
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")
			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  Datasets: %d files in %d folders\n", len(root.FilePaths()), len(root.FolderPaths()))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n", path)
			fmt.Fprintln(out)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: matflow config init")
			}
			return nil
		},
	}
}
