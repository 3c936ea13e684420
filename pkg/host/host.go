// Package host describes the application plugins are installed into.
package host

import (
	"os"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// PluginPathEnv lists additional plugin directories, separated by os.PathListSeparator.
const PluginPathEnv = "PLUGDEX_PLUGINPATH"

// Host exposes the host facts backends need.
type Host interface {
	// Version is the host version parsed without the next-major rule.
	Version() version.Version
	// CompatibilityVersion applies the next-major rule. Use it for plugin
	// compatibility checks only, never for display.
	CompatibilityVersion() version.Version
	// CorePluginDir holds plugins shipped with the host. They are protected.
	CorePluginDir() string
	// UserPluginDir holds plugins the user installed from host repositories.
	UserPluginDir() string
	// ManagedPluginDir holds plugins installed from package indexes.
	ManagedPluginDir() string
	// ExtraPluginDirs are further unprotected plugin locations.
	ExtraPluginDirs() ([]string, error)
	SettingsDir() string
}

// Options configures a Local host.
type Options struct {
	Version     string
	CoreDir     string
	UserDir     string
	ManagedDir  string
	ExtraDirs   []string
	SettingsDir string
}

// Local is a Host backed by static configuration and the environment.
type Local struct {
	opts    Options
	version version.Version
	compat  version.Version
}

// NewLocal validates opts and returns a Local host.
func NewLocal(opts Options) (*Local, error) {
	raw := strings.TrimSpace(opts.Version)
	if _, err := goversion.NewVersion(raw); err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "host version %q: %v", opts.Version, err)
	}
	v, err := version.ParseHost(raw, false)
	if err != nil {
		return nil, err
	}
	compat, err := version.ParseHost(raw, true)
	if err != nil {
		return nil, err
	}
	if opts.UserDir == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "user plugin directory must be set")
	}
	if opts.ManagedDir == "" {
		opts.ManagedDir = filepath.Join(filepath.Dir(opts.UserDir), "managed")
	}
	for _, dir := range []string{opts.UserDir, opts.ManagedDir} {
		if opts.CoreDir != "" && fsutil.SamePath(dir, opts.CoreDir) {
			return nil, errutils.Wrapf(errutils.ErrConfigurationInvariant,
				"plugin directory %q is the core plugin directory", dir)
		}
	}
	if fsutil.SamePath(opts.UserDir, opts.ManagedDir) {
		return nil, errutils.Wrapf(errutils.ErrConfigurationInvariant,
			"user and managed plugin directories are both %q", opts.UserDir)
	}
	return &Local{opts: opts, version: v, compat: compat}, nil
}

func (l *Local) Version() version.Version              { return l.version }
func (l *Local) CompatibilityVersion() version.Version { return l.compat }
func (l *Local) CorePluginDir() string                 { return l.opts.CoreDir }
func (l *Local) UserPluginDir() string                 { return l.opts.UserDir }
func (l *Local) ManagedPluginDir() string              { return l.opts.ManagedDir }
func (l *Local) SettingsDir() string                   { return l.opts.SettingsDir }

// ExtraPluginDirs returns the configured extra directories followed by those from
// PluginPathEnv, without duplicates. Every entry must be an existing directory
// other than the core plugin directory.
func (l *Local) ExtraPluginDirs() ([]string, error) {
	candidates := append([]string{}, l.opts.ExtraDirs...)
	if env := os.Getenv(PluginPathEnv); env != "" {
		candidates = append(candidates, filepath.SplitList(env)...)
	}

	var dirs []string
	for _, dir := range candidates {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if !fsutil.IsDir(dir) {
			return nil, errutils.Wrapf(errutils.ErrConfigurationInvariant, "extra plugin directory %q does not exist", dir)
		}
		if l.opts.CoreDir != "" && fsutil.SamePath(dir, l.opts.CoreDir) {
			return nil, errutils.Wrapf(errutils.ErrConfigurationInvariant,
				"extra plugin directory %q collides with the core plugin directory", dir)
		}
		duplicate := false
		for _, seen := range dirs {
			if fsutil.SamePath(seen, dir) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
