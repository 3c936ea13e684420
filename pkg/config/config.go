// Package config provides configuration management for plugdex.
// It handles loading, validating and saving the YAML configuration file that
// describes the host installation, the network and logging settings, and the
// credentials referenced by repositories.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/index"
)

// Config represents the application configuration.
type Config struct {
	Host     HostConfig             `yaml:"host"`
	Settings Settings               `yaml:"settings"`
	Auth     map[string]*AuthConfig `yaml:"auth,omitempty"`
}

// HostConfig describes the host the plugins are installed into.
type HostConfig struct {
	Version    string   `yaml:"version"`
	CoreDir    string   `yaml:"core_dir,omitempty"`
	UserDir    string   `yaml:"user_dir,omitempty"`
	ManagedDir string   `yaml:"managed_dir,omitempty"`
	ExtraDirs  []string `yaml:"extra_dirs,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// SettingsFile holds the persisted repositories.
	SettingsFile string `yaml:"settings_file,omitempty"`
	CacheDir     string `yaml:"cache_dir,omitempty"`

	// Network settings
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxRedirects  int           `yaml:"max_redirects"`
	MaxConcurrent int           `yaml:"max_concurrent_requests"`

	// Output settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	// Repository settings
	DefaultRepositoryURL  string `yaml:"default_repository_url,omitempty"`
	SkipDefaultRepository bool   `yaml:"skip_default_repository"`
	PruneUnavailable      bool   `yaml:"prune_unavailable"`
}

// Default configuration values.
const (
	DefaultHostVersion = "3.34.0"

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxConcurrent is the default number of parallel index requests.
	DefaultMaxConcurrent = 8

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir, err := fsutil.GetDataDir()
	if err != nil {
		// Fallback to current directory if we can't determine the data dir
		dataDir = "."
	}
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		configDir = dataDir
	}
	cacheDir, err := fsutil.GetCacheDir()
	if err != nil {
		cacheDir = filepath.Join(dataDir, "cache")
	}

	return &Config{
		Host: HostConfig{
			Version:    DefaultHostVersion,
			UserDir:    filepath.Join(dataDir, "plugins"),
			ManagedDir: filepath.Join(dataDir, "managed"),
		},
		Settings: Settings{
			SettingsFile:  filepath.Join(configDir, "settings.yaml"),
			CacheDir:      cacheDir,
			HTTPTimeout:   DefaultHTTPTimeout,
			MaxRedirects:  fetch.DefaultMaxRedirects,
			MaxConcurrent: DefaultMaxConcurrent,
			LogLevel:      "info",
			LogFormat:     "text",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errutils.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves configuration to a file, replacing it atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errutils.Wrap(errutils.ErrConfigDirectory, err.Error())
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return errutils.Wrap(errutils.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errutils.Wrap(errutils.ErrConfigFileRename, err.Error())
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errutils.ErrConfigValidation
	}
	if err := validateHost(c.Host); err != nil {
		return err
	}
	if err := validateSettings(c.Settings); err != nil {
		return err
	}
	for id, a := range c.Auth {
		if err := a.validate(id); err != nil {
			return err
		}
	}
	return nil
}

func validateHost(h HostConfig) error {
	if strings.TrimSpace(h.Version) == "" {
		return fmt.Errorf("%w: host version must not be empty", errutils.ErrConfigValidation)
	}
	if h.UserDir == "" {
		return fmt.Errorf("%w: host user_dir must not be empty", errutils.ErrConfigValidation)
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http_timeout must not be negative", errutils.ErrConfigValidation)
	}
	if s.MaxRedirects < 0 {
		return fmt.Errorf("%w: max_redirects must not be negative", errutils.ErrConfigValidation)
	}
	if s.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max_concurrent_requests must be at least 1", errutils.ErrConfigValidation)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.LogFormat] {
		return fmt.Errorf("%w: invalid log format %q, must be text or json", errutils.ErrConfigValidation, s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errutils.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// HostOptions converts the host section.
func (c *Config) HostOptions() host.Options {
	return host.Options{
		Version:     c.Host.Version,
		CoreDir:     c.Host.CoreDir,
		UserDir:     c.Host.UserDir,
		ManagedDir:  c.Host.ManagedDir,
		ExtraDirs:   c.Host.ExtraDirs,
		SettingsDir: filepath.Dir(c.Settings.SettingsFile),
	}
}

// IndexOptions converts the repository settings.
func (c *Config) IndexOptions() index.Options {
	return index.Options{
		DefaultRepositoryURL:  c.Settings.DefaultRepositoryURL,
		SkipDefaultRepository: c.Settings.SkipDefaultRepository,
		PruneUnavailable:      c.Settings.PruneUnavailable,
	}
}

// GetArchiveCacheDir returns the directory downloaded plugin archives are kept in.
func (c *Config) GetArchiveCacheDir() string {
	return filepath.Join(c.Settings.CacheDir, "archives")
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Host.Version == "" {
		c.Host.Version = defaults.Host.Version
	}
	if c.Host.UserDir == "" {
		c.Host.UserDir = defaults.Host.UserDir
	}
	if c.Host.ManagedDir == "" {
		c.Host.ManagedDir = filepath.Join(filepath.Dir(c.Host.UserDir), "managed")
	}
	if c.Settings.SettingsFile == "" {
		c.Settings.SettingsFile = defaults.Settings.SettingsFile
	}
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.MaxRedirects == 0 {
		c.Settings.MaxRedirects = defaults.Settings.MaxRedirects
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
}
