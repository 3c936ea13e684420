// Package repository holds prioritized, named sources of plugin releases and
// their persisted form in the settings store.
package repository

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/settings"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// CanonicalURL is the official remote plugin index.
const CanonicalURL = "https://plugins.qgis.org/plugins/plugins.xml"

// Settings keys below a repository group.
const (
	KeyName      = "name"
	KeyEnabled   = "enabled"
	KeyProtected = "protected"
	KeyType      = "repo_type"
	KeyCache     = "cache"
	KeyPriority  = "priority"
	KeyURL       = "url"
	KeyAuthCfg   = "authcfg"
	KeyValid     = "valid"
)

// UnsetPriority sorts repositories without a persisted priority last.
const UnsetPriority = math.MaxInt32

// Driver is the backend side of a repository.
type Driver interface {
	release.Installer
	// Refresh returns the complete current release list of repo.
	Refresh(ctx context.Context, repo *Repository) ([]*release.Release, error)
	// Cleanup runs backend specific removal steps before the settings of repo are deleted.
	Cleanup(repo *Repository) error
}

// Options are the user controlled properties of a new repository.
type Options struct {
	Name      string
	URL       string
	AuthCfg   string
	Active    bool
	Protected bool
}

// Repository is one prioritized source of releases.
type Repository struct {
	id        string
	name      string
	active    bool
	protected bool
	kind      model.Kind
	url       string
	authcfg   string
	priority  int

	mu       sync.RWMutex
	releases []*release.Release

	group  settings.Group
	driver Driver
}

// New creates a repository stored in group. The id is the last segment of the group root.
func New(kind model.Kind, group settings.Group, driver Driver, opts Options) (*Repository, error) {
	id := group.ID()
	if id == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "repository id must not be empty")
	}
	name := opts.Name
	if name == "" {
		name = id
	}
	return &Repository{
		id:        id,
		name:      name,
		active:    opts.Active,
		protected: opts.Protected,
		kind:      kind,
		url:       strings.TrimSpace(opts.URL),
		authcfg:   opts.AuthCfg,
		priority:  UnsetPriority,
		group:     group,
		driver:    driver,
	}, nil
}

// FromConfig loads the repository persisted in group.
func FromConfig(kind model.Kind, group settings.Group, driver Driver) (*Repository, error) {
	url := strings.TrimSpace(group.GetDefault(KeyURL, ""))
	active, err := group.GetBool(KeyEnabled, true)
	if err != nil {
		return nil, errutils.Wrapf(err, "repository %s", group.Root())
	}

	var protected bool
	if _, ok := group.Get(KeyProtected); ok {
		if protected, err = group.GetBool(KeyProtected, false); err != nil {
			return nil, errutils.Wrapf(err, "repository %s", group.Root())
		}
	} else {
		protected = strings.EqualFold(url, CanonicalURL)
	}

	repo, err := New(kind, group, driver, Options{
		Name:      group.GetDefault(KeyName, group.ID()),
		URL:       url,
		AuthCfg:   group.GetDefault(KeyAuthCfg, ""),
		Active:    active,
		Protected: protected,
	})
	if err != nil {
		return nil, err
	}

	if raw, ok := group.Get(KeyPriority); ok {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errutils.Wrapf(errutils.ErrParse, "repository %s: priority %q", repo.id, raw)
		}
		repo.priority = p
	}

	if raw, ok := group.Get(KeyCache); ok && raw != "" {
		var entries []release.CacheEntry
		if err := settings.Unpack(raw, &entries); err != nil {
			return nil, errutils.Wrapf(err, "repository %s: cache", repo.id)
		}
		releases := make([]*release.Release, 0, len(entries))
		for _, entry := range entries {
			r, err := release.FromCachedConfig(kind, repo, entry)
			if err != nil {
				return nil, errutils.Wrapf(err, "repository %s", repo.id)
			}
			releases = append(releases, r)
		}
		repo.adopt(releases)
		repo.releases = releases
	}
	return repo, nil
}

func (r *Repository) ID() string            { return r.id }
func (r *Repository) Name() string          { return r.name }
func (r *Repository) Active() bool          { return r.active }
func (r *Repository) Protected() bool       { return r.protected }
func (r *Repository) Kind() model.Kind      { return r.kind }
func (r *Repository) URL() string           { return r.url }
func (r *Repository) AuthCfg() string       { return r.authcfg }
func (r *Repository) Priority() int         { return r.priority }
func (r *Repository) Group() settings.Group { return r.group }
func (r *Repository) SetActive(active bool) { r.active = active }
func (r *Repository) SetPriority(p int)     { r.priority = p }
func (r *Repository) SetAuthCfg(cfg string) { r.authcfg = cfg }
func (r *Repository) Driver() Driver        { return r.driver }
func (r *Repository) SetDriver(d Driver)    { r.driver = d }
func (r *Repository) HasPriority() bool     { return r.priority != UnsetPriority }

// Equal compares repository ids.
func (r *Repository) Equal(o *Repository) bool { return o != nil && r.id == o.id }

// SetName renames the repository.
func (r *Repository) SetName(name string) error {
	if name == "" {
		return errutils.Wrap(errutils.ErrInvalidValue, "repository name must not be empty")
	}
	r.name = name
	return nil
}

// Len returns the number of releases.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.releases)
}

// Releases returns a snapshot of the releases in the order the backend listed them.
func (r *Repository) Releases() []*release.Release {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.releases)
}

// ReleasesSorted returns a snapshot sorted ascending by version.
func (r *Repository) ReleasesSorted() []*release.Release {
	out := r.Releases()
	slices.SortStableFunc(out, func(a, b *release.Release) int {
		return version.Cmp(a.Version(), b.Version())
	})
	return out
}

// Contains reports whether an equal release is offered.
func (r *Repository) Contains(rel *release.Release) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.releases, rel.Equal)
}

// ContainsPlugin reports whether any release of plugin id is offered.
func (r *Repository) ContainsPlugin(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.ContainsFunc(r.releases, func(rel *release.Release) bool { return rel.ID() == id })
}

// Release looks up the release of plugin id with version v.
func (r *Repository) Release(id string, v version.Version) (*release.Release, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.releases {
		if rel.ID() == id && rel.Version().Equal(v) {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("%w: release %s@%s in repository %s", errutils.ErrNotFound, id, v.Original(), r.id)
}

// Refresh replaces the releases with the driver's current list and persists
// the repository. Readers see either the old or the new list.
func (r *Repository) Refresh(ctx context.Context) error {
	if r.driver == nil {
		return errutils.Wrapf(errutils.ErrNotImplemented, "repository %s has no driver", r.id)
	}
	logger.Debug("Refreshing repository", logger.Fields{"repository": r.id, "kind": r.kind.String()})
	releases, err := r.driver.Refresh(ctx, r)
	if err != nil {
		return errutils.Wrapf(err, "failed to refresh repository %s", r.id)
	}
	r.adopt(releases)

	r.mu.Lock()
	r.releases = releases
	r.mu.Unlock()

	logger.Debug("Repository refreshed", logger.Fields{"repository": r.id, "releases": len(releases)})
	return r.ToConfig()
}

func (r *Repository) adopt(releases []*release.Release) {
	for _, rel := range releases {
		rel.SetOwner(r)
		if r.driver != nil {
			rel.SetInstaller(r.driver)
		}
	}
}

// ToConfig writes the repository into its settings group.
func (r *Repository) ToConfig() error {
	r.mu.RLock()
	entries := make([]release.CacheEntry, 0, len(r.releases))
	for _, rel := range r.releases {
		entry, err := rel.CacheEntry()
		if err != nil {
			r.mu.RUnlock()
			return err
		}
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	cache, err := settings.Pack(entries)
	if err != nil {
		return errutils.Wrapf(err, "repository %s: cache", r.id)
	}

	g := r.group
	steps := []func() error{
		func() error { return g.Set(KeyName, r.name) },
		func() error { return g.SetBool(KeyEnabled, r.active, model.StyleTrueFalse) },
		func() error { return g.SetBool(KeyProtected, r.protected, model.StyleTrueFalse) },
		func() error { return g.Set(KeyType, r.kind.String()) },
		func() error { return g.Set(KeyCache, cache) },
	}
	if r.HasPriority() {
		steps = append(steps, func() error { return g.Set(KeyPriority, strconv.Itoa(r.priority)) })
	}
	if r.url != "" {
		steps = append(steps,
			func() error { return g.Set(KeyURL, r.url) },
			func() error { return g.Set(KeyAuthCfg, r.authcfg) },
			func() error { return g.SetBool(KeyValid, true, model.StyleTrueFalse) },
		)
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return errutils.Wrapf(err, "failed to persist repository %s", r.id)
		}
	}
	return nil
}

// Cleanup runs the driver's cleanup and deletes the settings group.
func (r *Repository) Cleanup() error {
	if r.driver != nil {
		if err := r.driver.Cleanup(r); err != nil {
			return errutils.Wrapf(err, "failed to clean up repository %s", r.id)
		}
	}
	if err := r.group.Delete(); err != nil {
		return errutils.Wrapf(err, "failed to delete settings of repository %s", r.id)
	}
	logger.Debug("Repository cleaned up", logger.Fields{"repository": r.id})
	return nil
}

func (r *Repository) String() string {
	return fmt.Sprintf("<repository id=%q name=%q kind=%s releases=%d protected=%t active=%t>",
		r.id, r.name, r.kind, r.Len(), r.protected, r.active)
}
