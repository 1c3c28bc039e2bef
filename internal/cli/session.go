package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/matflow/matflow-cli/internal/config"
	"github.com/matflow/matflow-cli/internal/core"
	"github.com/matflow/matflow-cli/internal/http"
	"github.com/matflow/matflow-cli/internal/logging"
)

// loadConfig reads the apiconfig and applies overrides.
// Priority: flags > environment > config file > defaults.
func loadConfig() (*config.APIConfig, error) {
	cfg, err := config.LoadAPIConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if stateBackend != "" {
		cfg.State.Backend = stateBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if http.NeedsProxyPassword(cfg.Proxy) && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Proxy password for %s: ", cfg.Proxy.User)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Proxy.Password = string(password)
	}
	return cfg, nil
}

// openSession loads the configuration and builds a session. Callers must
// Close it.
func openSession() (*core.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := GetLogger()
	if cfg.Logging.File != "" {
		log = logging.NewLogger(logging.Options{
			Console: os.Stderr,
			LogFile: config.ExpandHome(cfg.Logging.File),
		})
		logger = log
	}

	session, err := core.NewSession(cfg, log)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// openLoadedSession opens a session and loads the dataset tree.
func openLoadedSession() (*core.Session, error) {
	session, err := openSession()
	if err != nil {
		return nil, err
	}
	if err := session.LoadTree(GetContext()); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// openBrowsingSession opens a session and tries to load the dataset tree.
// Navigation works without a tree: a failed fetch has already been
// notified and paths are then accepted unchecked.
func openBrowsingSession() (*core.Session, error) {
	session, err := openSession()
	if err != nil {
		return nil, err
	}
	if err := session.LoadTree(GetContext()); err != nil {
		session.Logger().Debug().Err(err).Msg("Continuing without dataset tree")
	}
	return session, nil
}
