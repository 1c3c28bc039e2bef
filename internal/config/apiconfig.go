// Package config provides configuration management for the matflow CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/matflow/matflow-cli/internal/constants"
)

// Read endpoints understood by the dataset server.
const (
	ReadEndpointDataset  = "dataset"
	ReadEndpointReadFile = "read_file"
)

// State store backends.
const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
	StateBackendMemory = "memory"
)

// Column inference settings.
const (
	ColumnStrategyFirstRow = "first_row"
	ColumnStrategyScanAll  = "scan_all"

	NumericRuleStrict   = "strict"
	NumericRuleCoercing = "coercing"
)

// Proxy modes, matching the values accepted by internal/http.
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// APIConfig is the persisted client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\matflow\apiconfig
//   - Unix: ~/.config/matflow/apiconfig
//
// INI format:
//
//	[matflow]
//	api_url = http://localhost:8000
//	read_endpoint = dataset
//
//	[matflow.state]
//	backend = file
//	path = /home/me/.config/matflow/state.json
//
//	[matflow.columns]
//	strategy = first_row
//	numeric_rule = strict
//
//	[matflow.notifications]
//	enabled = true
//	desktop = false
//
//	[matflow.proxy]
//	mode = no-proxy
//
//	[matflow.logging]
//	file =
//
//	[matflow.endpoints]
//	drop_rows = /api/drop_rows/
//	alter_fields = /api/alter_field/
type APIConfig struct {
	APIURL       string `ini:"api_url"`
	ReadEndpoint string `ini:"read_endpoint"`

	State         StateConfig
	Columns       ColumnsConfig
	Notifications NotificationConfig
	Proxy         ProxyConfig
	Logging       LoggingConfig
	Endpoints     EndpointsConfig
}

// StateConfig selects where navigation state is persisted.
type StateConfig struct {
	// Backend is one of file, sqlite, memory.
	// Default: file
	Backend string `ini:"backend"`

	// Path is the state file (file backend) or database (sqlite backend).
	// Empty means the default under the config directory.
	Path string `ini:"path"`
}

// ColumnsConfig controls column type inference.
type ColumnsConfig struct {
	Strategy    string `ini:"strategy"`
	NumericRule string `ini:"numeric_rule"`
}

// NotificationConfig contains settings for user notifications.
type NotificationConfig struct {
	// Enabled indicates whether notifications are shown at all.
	// Default: true
	Enabled bool `ini:"enabled"`

	// Desktop additionally raises OS desktop notifications.
	// Default: false
	Desktop bool `ini:"desktop"`
}

// ProxyConfig holds outbound proxy settings.
type ProxyConfig struct {
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	NoProxy  string `ini:"no_proxy"`
}

// EndpointsConfig holds the feature-engineering routes, which differ
// between server deployments.
type EndpointsConfig struct {
	DropRows    string `ini:"drop_rows"`
	AlterFields string `ini:"alter_fields"`
}

// LoggingConfig configures the optional rotating log file.
type LoggingConfig struct {
	File string `ini:"file"`
}

// Validation errors
var (
	ErrMissingAPIURL       = errors.New("api_url is required")
	ErrInvalidAPIURL       = errors.New("api_url must be an absolute http(s) URL")
	ErrInvalidReadEndpoint = errors.New("read_endpoint must be dataset or read_file")
	ErrInvalidStateBackend = errors.New("state backend must be file, sqlite or memory")
	ErrInvalidStrategy     = errors.New("columns strategy must be first_row or scan_all")
	ErrInvalidNumericRule  = errors.New("columns numeric_rule must be strict or coercing")
	ErrInvalidProxyMode    = errors.New("proxy mode must be no-proxy, system, basic or ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidEndpoint     = errors.New("endpoints must be absolute paths starting with /")
)

// ConfigDir returns the matflow configuration directory.
// - Windows: %USERPROFILE%\.config\matflow
// - Unix: ~/.config/matflow
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", constants.AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", constants.AppName), nil
}

// DefaultAPIConfigPath returns the default path for the apiconfig file.
// MATFLOW_CONFIG overrides the location.
func DefaultAPIConfigPath() (string, error) {
	if p := os.Getenv(constants.EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "apiconfig"), nil
}

// NewAPIConfig creates a new APIConfig with default values.
func NewAPIConfig() *APIConfig {
	return &APIConfig{
		APIURL:       constants.DefaultAPIURL,
		ReadEndpoint: ReadEndpointDataset,
		State: StateConfig{
			Backend: StateBackendFile,
		},
		Columns: ColumnsConfig{
			Strategy:    ColumnStrategyFirstRow,
			NumericRule: NumericRuleStrict,
		},
		Notifications: NotificationConfig{
			Enabled: true,
			Desktop: false,
		},
		Proxy: ProxyConfig{
			Mode: ProxyModeNone,
		},
		Endpoints: EndpointsConfig{
			DropRows:    "/api/drop_rows/",
			AlterFields: "/api/alter_field/",
		},
	}
}

// LoadAPIConfig loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadAPIConfig(path string) (*APIConfig, error) {
	cfg := NewAPIConfig()

	if path == "" {
		var err error
		path, err = DefaultAPIConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load apiconfig: %w", err)
	}

	mainSection := iniFile.Section("matflow")
	cfg.APIURL = mainSection.Key("api_url").MustString(cfg.APIURL)
	cfg.ReadEndpoint = mainSection.Key("read_endpoint").MustString(cfg.ReadEndpoint)

	stateSection := iniFile.Section("matflow.state")
	cfg.State.Backend = stateSection.Key("backend").MustString(cfg.State.Backend)
	cfg.State.Path = stateSection.Key("path").String()

	colSection := iniFile.Section("matflow.columns")
	cfg.Columns.Strategy = colSection.Key("strategy").MustString(cfg.Columns.Strategy)
	cfg.Columns.NumericRule = colSection.Key("numeric_rule").MustString(cfg.Columns.NumericRule)

	notifySection := iniFile.Section("matflow.notifications")
	cfg.Notifications.Enabled = notifySection.Key("enabled").MustBool(true)
	cfg.Notifications.Desktop = notifySection.Key("desktop").MustBool(false)

	proxySection := iniFile.Section("matflow.proxy")
	cfg.Proxy.Mode = proxySection.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxySection.Key("host").String()
	cfg.Proxy.Port = proxySection.Key("port").MustInt(0)
	cfg.Proxy.User = proxySection.Key("user").String()
	cfg.Proxy.Password = proxySection.Key("password").String()
	cfg.Proxy.NoProxy = proxySection.Key("no_proxy").String()

	cfg.Logging.File = iniFile.Section("matflow.logging").Key("file").String()

	endpoints := iniFile.Section("matflow.endpoints")
	cfg.Endpoints.DropRows = endpoints.Key("drop_rows").MustString(cfg.Endpoints.DropRows)
	cfg.Endpoints.AlterFields = endpoints.Key("alter_fields").MustString(cfg.Endpoints.AlterFields)

	return cfg, nil
}

// ApplyEnv overlays environment overrides onto cfg.
func (cfg *APIConfig) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(constants.EnvAPIURL)); v != "" {
		cfg.APIURL = v
	}
}

// SaveAPIConfig saves configuration to an INI file.
// Creates parent directories if they don't exist.
func SaveAPIConfig(cfg *APIConfig, path string) error {
	if path == "" {
		var err error
		path, err = DefaultAPIConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sections := []struct {
		name   string
		values [][2]string
	}{
		{"matflow", [][2]string{
			{"api_url", cfg.APIURL},
			{"read_endpoint", cfg.ReadEndpoint},
		}},
		{"matflow.state", [][2]string{
			{"backend", cfg.State.Backend},
			{"path", cfg.State.Path},
		}},
		{"matflow.columns", [][2]string{
			{"strategy", cfg.Columns.Strategy},
			{"numeric_rule", cfg.Columns.NumericRule},
		}},
		{"matflow.notifications", [][2]string{
			{"enabled", fmt.Sprintf("%t", cfg.Notifications.Enabled)},
			{"desktop", fmt.Sprintf("%t", cfg.Notifications.Desktop)},
		}},
		{"matflow.proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", fmt.Sprintf("%d", cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"password", cfg.Proxy.Password},
			{"no_proxy", cfg.Proxy.NoProxy},
		}},
		{"matflow.logging", [][2]string{
			{"file", cfg.Logging.File},
		}},
		{"matflow.endpoints", [][2]string{
			{"drop_rows", cfg.Endpoints.DropRows},
			{"alter_fields", cfg.Endpoints.AlterFields},
		}},
	}
	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			sec.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Proxy password may be stored here, so write 0600 via tmp + rename.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks if the configuration is usable.
// Returns nil if valid, or one of the Err* sentinels.
func (cfg *APIConfig) Validate() error {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(cfg.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAPIURL
	}

	switch cfg.ReadEndpoint {
	case ReadEndpointDataset, ReadEndpointReadFile:
	default:
		return ErrInvalidReadEndpoint
	}

	switch cfg.State.Backend {
	case StateBackendFile, StateBackendSQLite, StateBackendMemory:
	default:
		return ErrInvalidStateBackend
	}

	switch cfg.Columns.Strategy {
	case ColumnStrategyFirstRow, ColumnStrategyScanAll:
	default:
		return ErrInvalidStrategy
	}

	switch cfg.Columns.NumericRule {
	case NumericRuleStrict, NumericRuleCoercing:
	default:
		return ErrInvalidNumericRule
	}

	switch cfg.Proxy.Mode {
	case "", ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(cfg.Proxy.Host) == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	for _, ep := range []string{cfg.Endpoints.DropRows, cfg.Endpoints.AlterFields} {
		if !strings.HasPrefix(ep, "/") {
			return ErrInvalidEndpoint
		}
	}

	return nil
}

// StatePath returns the configured state location, falling back to a
// backend-specific default inside ConfigDir.
func (cfg *APIConfig) StatePath() (string, error) {
	if cfg.State.Path != "" {
		return ExpandHome(cfg.State.Path), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if cfg.State.Backend == StateBackendSQLite {
		return filepath.Join(dir, "state.db"), nil
	}
	return filepath.Join(dir, "state.json"), nil
}
