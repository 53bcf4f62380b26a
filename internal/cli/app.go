package cli

import (
	"os"
	"path/filepath"

	"github.com/hmrc/bintray-backup-restore/internal/api"
	"github.com/hmrc/bintray-backup-restore/internal/auth"
	"github.com/hmrc/bintray-backup-restore/internal/config"
	"github.com/hmrc/bintray-backup-restore/internal/logging"
	syncengine "github.com/hmrc/bintray-backup-restore/internal/sync"
	"github.com/hmrc/bintray-backup-restore/internal/sync/index"
	"github.com/hmrc/bintray-backup-restore/internal/types"
)

// effectiveConfig returns the loaded configuration with global flags applied
func effectiveConfig() *config.Config {
	var cfg config.Config
	if appConfig != nil {
		cfg = *appConfig
	} else {
		cfg = *config.DefaultConfig()
	}

	flags := GetGlobalFlags()
	if flags.Organisation != "" {
		cfg.Organisation = flags.Organisation
	}
	if flags.Username != "" {
		cfg.Username = flags.Username
	}
	if flags.LocalDir != "" {
		cfg.LocalDir = flags.LocalDir
	}
	if flags.Concurrency > 0 {
		cfg.Concurrency = flags.Concurrency
	}
	return &cfg
}

func getConfigDir() string {
	dir, err := config.GetConfigDir()
	if err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", config.AppDirName)
}

func newAuthManager() *auth.Manager {
	return auth.NewManager(getConfigDir())
}

// newClient resolves credentials and builds the remote client for cfg
func newClient(cfg *config.Config) (*api.Client, types.CredentialSource, error) {
	flags := GetGlobalFlags()
	creds, source, err := newAuthManager().ResolveCredentials(flags.Profile, types.Credentials{
		Username: cfg.Username,
		Token:    flags.Token,
	})
	if err != nil {
		return nil, source, err
	}

	client, err := newClientWith(cfg, creds)
	if err != nil {
		return nil, source, err
	}
	GetLogger().Debug("Client ready",
		logging.F("organisation", cfg.Organisation),
		logging.F("credentials", string(source)),
	)
	return client, source, nil
}

func newClientWith(cfg *config.Config, creds types.Credentials) (*api.Client, error) {
	opts := api.ClientOptions{
		APIBaseURL:        cfg.APIBaseURL,
		DownloadBaseURL:   cfg.DownloadBaseURL,
		Organisation:      cfg.Organisation,
		Credentials:       creds,
		Timeout:           cfg.GetRequestTimeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Retry:             api.NewRetryPolicy(cfg.MaxRetries, cfg.GetRetryBaseDelay()),
		Logger:            GetLogger(),
	}
	if debugTransport != nil {
		opts.Transport = debugTransport
	}
	return api.NewClient(opts)
}

// newEngine builds a sync engine. A history database that cannot be
// opened is logged and the run continues unrecorded.
func newEngine(cfg *config.Config) (*syncengine.Engine, error) {
	client, _, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	var history *index.DB
	if cfg.HistoryEnabled && !GetGlobalFlags().NoHistory {
		history, err = openHistory()
		if err != nil {
			GetLogger().Warn("Run history unavailable", logging.F("error", err))
			history = nil
		}
	}
	return syncengine.NewEngine(client, history, GetLogger()), nil
}

func openHistory() (*index.DB, error) {
	path, err := config.GetHistoryPath()
	if err != nil {
		return nil, err
	}
	return index.Open(path)
}
