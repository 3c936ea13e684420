package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/backend"
	"github.com/glorpus-work/plugdex/pkg/config"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/filecache"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/index"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
)

// app bundles everything a command needs.
type app struct {
	cfg     *config.Config
	host    *host.Local
	runtime *host.Runtime
	cache   *filecache.Cache
	store   *settings.FileStore
	index   *index.Index
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogging(cfg)
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}
	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path fails with a descriptive error when the config is read
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err.Error()})
		return ""
	}
	return defaultPath
}

func initLogging(cfg *config.Config) {
	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level, logger.OutputFormat(cfg.Settings.LogFormat))
}

// loadApp wires the host, the backends and the index, and rebuilds the index.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	h, err := host.NewLocal(cfg.HostOptions())
	if err != nil {
		return nil, fmt.Errorf("invalid host configuration: %w", err)
	}
	auth, err := cfg.AuthRegistry()
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewHTTPFetcher(cfg.Settings.HTTPTimeout, cfg.Settings.MaxRedirects, auth)
	cache, err := filecache.New(cfg.GetArchiveCacheDir(), fetcher)
	if err != nil {
		return nil, err
	}
	store, err := settings.OpenFileStore(cfg.Settings.SettingsFile)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.Settings.MaxConcurrent
	registry, err := backend.NewRegistry(
		backend.NewHostLegacy(h, fetcher, cache, concurrency),
		backend.NewPackageIndex(h, fetcher, cache, concurrency, cfg.Settings.DefaultRepositoryURL),
		backend.NewNativeExtension(),
	)
	if err != nil {
		return nil, err
	}

	rt := host.NewRuntime(h)
	idx := index.New(registry, store, rt, cfg.IndexOptions())
	if err := idx.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("failed to load plugin index: %w", err)
	}
	return &app{cfg: cfg, host: h, runtime: rt, cache: cache, store: store, index: idx}, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
