// Package plugin holds the aggregate of one plugin id across its installed
// release and the releases repositories offer for it.
//
//go:generate mockgen -destination=./mocks/loader.go . Loader
package plugin

import (
	"context"
	"fmt"
	"slices"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// Loader starts and stops installed plugins inside the host.
type Loader interface {
	Load(id, path string) error
	Unload(id string) error
	Loaded(id string) bool
}

// InstallOptions control which transitions Install accepts.
type InstallOptions struct {
	// Release to install. Nil selects the newest release of the highest
	// priority repository offering the plugin.
	Release          *release.Release
	AllowTypeChange  bool
	AllowSameVersion bool
	AllowDowngrade   bool
	AllowUpdate      bool
}

// DefaultInstallOptions allow updates only.
func DefaultInstallOptions() InstallOptions {
	return InstallOptions{AllowUpdate: true}
}

// Plugin is either uninstalled or installed. Available releases are never
// installed, and the installed release is never among them.
type Plugin struct {
	id         string
	installed  *release.Release
	available  []*release.Release
	protected  bool
	active     bool
	deprecated bool
	loader     Loader
}

// NewFromInstalled creates an installed plugin.
func NewFromInstalled(r *release.Release, protected, active bool) (*Plugin, error) {
	if r == nil {
		return nil, errutils.Wrap(errutils.ErrTypeMismatch, "release must not be nil")
	}
	if !r.Installed() {
		return nil, fmt.Errorf("%w: release %s", errutils.ErrNotInstalled, r)
	}
	p := &Plugin{id: r.ID(), installed: r, protected: protected, active: active}
	p.updateDeprecated()
	return p, nil
}

// NewFromAvailable creates an uninstalled plugin offering r.
func NewFromAvailable(r *release.Release) (*Plugin, error) {
	if r == nil {
		return nil, errutils.Wrap(errutils.ErrTypeMismatch, "release must not be nil")
	}
	if r.Installed() {
		return nil, fmt.Errorf("%w: release %s", errutils.ErrAlreadyInstalled, r)
	}
	p := &Plugin{id: r.ID(), available: []*release.Release{r}}
	p.updateDeprecated()
	return p, nil
}

func (p *Plugin) ID() string                         { return p.id }
func (p *Plugin) Installed() bool                    { return p.installed != nil }
func (p *Plugin) InstalledRelease() *release.Release { return p.installed }
func (p *Plugin) Protected() bool                    { return p.protected }
func (p *Plugin) Active() bool                       { return p.active }
func (p *Plugin) Deprecated() bool                   { return p.deprecated }
func (p *Plugin) SetLoader(l Loader)                 { p.loader = l }

// AvailableReleases returns a snapshot in repository priority order.
func (p *Plugin) AvailableReleases() []*release.Release { return slices.Clone(p.available) }

// Upgradable reports whether a newer release than the installed one is offered.
func (p *Plugin) Upgradable() bool {
	return p.installed != nil && slices.ContainsFunc(p.available, func(r *release.Release) bool {
		return r.Version().Greater(p.installed.Version())
	})
}

// Downgradable reports whether an older release than the installed one is offered.
func (p *Plugin) Downgradable() bool {
	return p.installed != nil && slices.ContainsFunc(p.available, func(r *release.Release) bool {
		return r.Version().Less(p.installed.Version())
	})
}

// Orphan reports whether the installed version is not offered by any repository.
func (p *Plugin) Orphan() bool {
	return p.installed != nil && !slices.ContainsFunc(p.available, func(r *release.Release) bool {
		return r.Version().Equal(p.installed.Version())
	})
}

func (p *Plugin) updateDeprecated() {
	p.deprecated = (p.installed != nil && p.installed.Deprecated()) ||
		slices.ContainsFunc(p.available, (*release.Release).Deprecated)
}

// AddRelease attaches r. An installed r becomes the installed release of an
// uninstalled plugin.
func (p *Plugin) AddRelease(r *release.Release) error {
	if r == nil {
		return errutils.Wrap(errutils.ErrTypeMismatch, "release must not be nil")
	}
	if r.ID() != p.id {
		return errutils.Wrapf(errutils.ErrInvalidValue, "release %s does not belong to plugin %s", r, p.id)
	}
	if r.Installed() {
		if p.installed != nil {
			return fmt.Errorf("%w: plugin %s already has release %s", errutils.ErrAlreadyInstalled, p.id, p.installed)
		}
		p.installed = r
		p.updateDeprecated()
		return nil
	}
	if slices.ContainsFunc(p.available, r.Equal) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "plugin %s already offers release %s", p.id, r)
	}
	p.available = append(p.available, r)
	p.updateDeprecated()
	return nil
}

// ClearReleases drops every available release.
func (p *Plugin) ClearReleases() {
	p.available = nil
	p.updateDeprecated()
}

// defaultRelease picks the newest release from the repository of the first
// available release.
func (p *Plugin) defaultRelease() (*release.Release, error) {
	if len(p.available) == 0 {
		return nil, fmt.Errorf("%w: plugin %s has no available releases", errutils.ErrNotFound, p.id)
	}
	first := p.available[0]
	best := first
	for _, r := range p.available[1:] {
		if r.Owner() == first.Owner() && r.Kind() == first.Kind() && r.Version().Greater(best.Version()) {
			best = r
		}
	}
	return best, nil
}

func (p *Plugin) checkUpgrade(target *release.Release, opts InstallOptions) error {
	switch c := version.Cmp(target.Version(), p.installed.Version()); {
	case c == 0 && !opts.AllowSameVersion:
		return fmt.Errorf("%w: %s: same version", errutils.ErrAlreadyInstalled, target)
	case c < 0 && !opts.AllowDowngrade:
		return fmt.Errorf("%w: %s: would downgrade %s", errutils.ErrAlreadyInstalled, target, p.installed)
	case c > 0 && !opts.AllowUpdate:
		return fmt.Errorf("%w: %s: would update %s", errutils.ErrAlreadyInstalled, target, p.installed)
	}
	if target.Kind() != p.installed.Kind() && !opts.AllowTypeChange {
		return fmt.Errorf("%w: %s: repository type change from %s", errutils.ErrAlreadyInstalled, target, p.installed.Kind())
	}
	return nil
}

// Install installs opts.Release, replacing the installed release when the
// options allow it. All guards are checked before anything changes.
func (p *Plugin) Install(ctx context.Context, opts InstallOptions) error {
	if p.protected {
		return errutils.ErrProtectedPlugin(p.id)
	}
	target := opts.Release
	if target == nil {
		var err error
		if target, err = p.defaultRelease(); err != nil {
			return err
		}
	}
	if target.ID() != p.id {
		return errutils.Wrapf(errutils.ErrInvalidValue, "release %s does not belong to plugin %s", target, p.id)
	}
	if !slices.ContainsFunc(p.available, target.Equal) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "release %s is not available for plugin %s", target, p.id)
	}

	wasActive := p.active
	if p.installed != nil {
		if err := p.checkUpgrade(target, opts); err != nil {
			return err
		}
		if err := p.removeInstalled(ctx); err != nil {
			return err
		}
	}

	installed, err := target.Install(ctx)
	if err != nil {
		return errutils.Wrapf(err, "failed to install plugin %s", p.id)
	}
	p.installed = installed
	p.updateDeprecated()
	logger.Debug("Plugin installed", logger.Fields{"plugin": p.id, "release": installed.String()})

	if wasActive {
		return p.Load()
	}
	return nil
}

// Uninstall removes the installed release, unloading the plugin first.
func (p *Plugin) Uninstall(ctx context.Context) error {
	if p.protected {
		return errutils.ErrProtectedPlugin(p.id)
	}
	if p.installed == nil {
		return fmt.Errorf("%w: plugin %s", errutils.ErrNotInstalled, p.id)
	}
	if err := p.removeInstalled(ctx); err != nil {
		return err
	}
	logger.Debug("Plugin uninstalled", logger.Fields{"plugin": p.id})
	return nil
}

func (p *Plugin) removeInstalled(ctx context.Context) error {
	if p.active {
		if err := p.Unload(); err != nil {
			return err
		}
	}
	if err := p.installed.Uninstall(ctx); err != nil {
		return errutils.Wrapf(err, "failed to uninstall plugin %s", p.id)
	}
	p.installed = nil
	p.updateDeprecated()
	return nil
}

// Load starts the installed release in the host.
func (p *Plugin) Load() error {
	if p.installed == nil {
		return fmt.Errorf("%w: plugin %s", errutils.ErrNotInstalled, p.id)
	}
	if p.loader == nil {
		return errutils.Wrapf(errutils.ErrNotImplemented, "plugin %s has no loader", p.id)
	}
	if err := p.loader.Load(p.id, p.installed.Path()); err != nil {
		return errutils.Wrapf(err, "failed to load plugin %s", p.id)
	}
	p.active = true
	return nil
}

// Unload stops the plugin in the host.
func (p *Plugin) Unload() error {
	if p.loader == nil {
		return errutils.Wrapf(errutils.ErrNotImplemented, "plugin %s has no loader", p.id)
	}
	if err := p.loader.Unload(p.id); err != nil {
		return errutils.Wrapf(err, "failed to unload plugin %s", p.id)
	}
	p.active = false
	return nil
}

// Reload unloads and loads the plugin. A failed unload skips the load.
func (p *Plugin) Reload() error {
	if err := p.Unload(); err != nil {
		return err
	}
	return p.Load()
}

func (p *Plugin) String() string {
	return fmt.Sprintf("<plugin id=%q installed=%t releases=%d protected=%t active=%t>",
		p.id, p.installed != nil, len(p.available), p.protected, p.active)
}
