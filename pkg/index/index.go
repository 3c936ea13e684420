// Package index owns all repositories and plugins and reconciles the installed
// plugins against the releases the repositories offer.
//
// An Index is not safe for concurrent mutation. Callers serialize Rebuild,
// Reconcile and the repository and plugin operations.
package index

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/backend"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/plugin"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// Options tune the repository invariants and reconciliation.
type Options struct {
	// DefaultRepositoryURL is the url the default package index must point at.
	// Empty selects repository.CanonicalURL.
	DefaultRepositoryURL string
	// SkipDefaultRepository disables creating the default package index.
	SkipDefaultRepository bool
	// PruneUnavailable drops uninstalled plugins no repository offers anymore.
	PruneUnavailable bool
}

// Index is the root of the repository and plugin graph. Repositories are
// ordered by priority, index 0 being the highest.
type Index struct {
	registry     *backend.Registry
	store        settings.Store
	loader       plugin.Loader
	opts         Options
	repositories []*repository.Repository
	plugins      map[string]*plugin.Plugin
}

// New returns an empty index. Call Rebuild to populate it.
func New(registry *backend.Registry, store settings.Store, loader plugin.Loader, opts Options) *Index {
	if opts.DefaultRepositoryURL == "" {
		opts.DefaultRepositoryURL = repository.CanonicalURL
	}
	return &Index{
		registry: registry,
		store:    store,
		loader:   loader,
		opts:     opts,
		plugins:  map[string]*plugin.Plugin{},
	}
}

// Rebuild discards the current state, scans the installed plugins of every
// backend, loads the persisted repositories, ensures the mandatory
// repositories exist and reconciles. On error the index must not be used.
func (idx *Index) Rebuild(ctx context.Context) error {
	idx.repositories = nil
	idx.plugins = map[string]*plugin.Plugin{}

	if err := idx.scanInstalled(ctx); err != nil {
		return err
	}
	if err := idx.loadRepositories(); err != nil {
		return err
	}
	if err := idx.ensureInvariants(); err != nil {
		return err
	}
	if err := idx.persistPriorities(); err != nil {
		return err
	}
	logger.Debug("Index rebuilt", logger.Fields{"repositories": len(idx.repositories), "installed": len(idx.plugins)})
	return idx.Reconcile()
}

func (idx *Index) scanInstalled(ctx context.Context) error {
	for _, kind := range idx.registry.Kinds() {
		b, err := idx.registry.Get(kind)
		if err != nil {
			return err
		}
		for _, protected := range []bool{true, false} {
			releases, err := b.FindPlugins(ctx, protected)
			if err != nil {
				return errutils.Wrapf(err, "failed to scan %s plugins", kind)
			}
			for _, r := range releases {
				if other, ok := idx.plugins[r.ID()]; ok {
					return fmt.Errorf("%w: %s found at %s and %s",
						errutils.ErrIdentityCollision, r.ID(), other.InstalledRelease().Path(), r.Path())
				}
				active := idx.loader != nil && idx.loader.Loaded(r.ID())
				p, err := plugin.NewFromInstalled(r, protected, active)
				if err != nil {
					return err
				}
				p.SetLoader(idx.loader)
				idx.plugins[r.ID()] = p
			}
		}
	}
	return nil
}

func (idx *Index) loadRepositories() error {
	for _, kind := range idx.registry.Kinds() {
		b, err := idx.registry.Get(kind)
		if err != nil {
			return err
		}
		groups, err := b.ConfigGroups(idx.store)
		if err != nil {
			return errutils.Wrapf(err, "failed to list %s repositories", kind)
		}
		for _, g := range groups {
			repo, err := b.RepositoryFromConfig(g)
			if err != nil {
				return err
			}
			if idx.indexOf(repo.ID()) >= 0 {
				return fmt.Errorf("%w: repository id %q is used twice", errutils.ErrConfigurationInvariant, repo.ID())
			}
			idx.repositories = append(idx.repositories, repo)
		}
	}
	slices.SortStableFunc(idx.repositories, func(a, b *repository.Repository) int {
		return a.Priority() - b.Priority()
	})
	return nil
}

func (idx *Index) ensureInvariants() error {
	if !idx.opts.SkipDefaultRepository {
		hasDefault := slices.ContainsFunc(idx.repositories, func(r *repository.Repository) bool {
			return r.Kind() == model.KindPackageIndex && strings.EqualFold(r.URL(), idx.opts.DefaultRepositoryURL)
		})
		if !hasDefault {
			if err := idx.appendDefault(model.KindPackageIndex); err != nil {
				return err
			}
		}
	}

	native := 0
	for _, r := range idx.repositories {
		if r.Kind() == model.KindNativeExtension {
			native++
		}
	}
	switch {
	case native == 0:
		return idx.appendDefault(model.KindNativeExtension)
	case native > 1:
		return fmt.Errorf("%w: %d native-extension repositories configured, exactly one is allowed",
			errutils.ErrConfigurationInvariant, native)
	}
	return nil
}

func (idx *Index) appendDefault(kind model.Kind) error {
	b, err := idx.registry.Get(kind)
	if err != nil {
		return fmt.Errorf("%w: mandatory backend %s is not registered", errutils.ErrConfigurationInvariant, kind)
	}
	repo, err := b.DefaultRepository(idx.store)
	if err != nil {
		return errutils.Wrapf(err, "failed to create default %s repository", kind)
	}
	idx.repositories = append(idx.repositories, repo)
	logger.Debug("Default repository added", logger.Fields{"repository": repo.ID(), "kind": kind.String()})
	return nil
}

func (idx *Index) persistPriorities() error {
	for i, r := range idx.repositories {
		r.SetPriority(i)
		if err := r.ToConfig(); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile recomputes the available releases of every plugin from the
// active repositories, in priority order and ascending by version within a
// repository. Installed plugins are never dropped.
func (idx *Index) Reconcile() error {
	for _, p := range idx.plugins {
		p.ClearReleases()
	}
	for _, repo := range idx.repositories {
		if !repo.Active() {
			continue
		}
		for _, r := range repo.ReleasesSorted() {
			p, ok := idx.plugins[r.ID()]
			if !ok {
				np, err := plugin.NewFromAvailable(r)
				if err != nil {
					return err
				}
				np.SetLoader(idx.loader)
				idx.plugins[r.ID()] = np
				continue
			}
			if err := p.AddRelease(r); err != nil {
				if errors.Is(err, errutils.ErrInvalidValue) {
					logger.Warn("Skipping duplicate release", logger.Fields{"repository": repo.ID(), "release": r.String()})
					continue
				}
				return err
			}
		}
	}
	if idx.opts.PruneUnavailable {
		for id, p := range idx.plugins {
			if !p.Installed() && len(p.AvailableReleases()) == 0 {
				delete(idx.plugins, id)
				logger.Debug("Plugin pruned", logger.Fields{"plugin": id})
			}
		}
	}
	return nil
}

func (idx *Index) indexOf(id string) int {
	return slices.IndexFunc(idx.repositories, func(r *repository.Repository) bool { return r.ID() == id })
}

// Repositories returns a snapshot in priority order.
func (idx *Index) Repositories() []*repository.Repository { return slices.Clone(idx.repositories) }

// Repository returns the repository with the given id.
func (idx *Index) Repository(id string) (*repository.Repository, error) {
	i := idx.indexOf(id)
	if i < 0 {
		return nil, errutils.ErrRepositoryNotFound(id)
	}
	return idx.repositories[i], nil
}

// AddRepository inserts repo at the highest priority.
func (idx *Index) AddRepository(repo *repository.Repository) error {
	if repo == nil {
		return errutils.Wrap(errutils.ErrTypeMismatch, "repository must not be nil")
	}
	if idx.indexOf(repo.ID()) >= 0 {
		return errutils.ErrRepositoryExists(repo.ID())
	}
	idx.repositories = slices.Insert(idx.repositories, 0, repo)
	logger.Debug("Repository added", logger.Fields{"repository": repo.ID()})
	if err := idx.persistPriorities(); err != nil {
		return err
	}
	return idx.Reconcile()
}

// CreateRepository creates a repository of kind through its backend and adds it.
func (idx *Index) CreateRepository(kind model.Kind, id string, opts repository.Options) (*repository.Repository, error) {
	if idx.indexOf(id) >= 0 {
		return nil, errutils.ErrRepositoryExists(id)
	}
	b, err := idx.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	repo, err := b.NewRepository(idx.store, id, opts)
	if err != nil {
		return nil, err
	}
	if err := idx.AddRepository(repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// ChangePriority moves a repository one step up (-1) or down (+1). Moves past
// either end are ignored.
func (idx *Index) ChangePriority(id string, direction int) error {
	if direction != 1 && direction != -1 {
		return errutils.Wrapf(errutils.ErrInvalidValue, "priority direction must be +1 or -1, got %d", direction)
	}
	i := idx.indexOf(id)
	if i < 0 {
		return errutils.ErrRepositoryNotFound(id)
	}
	j := i + direction
	if len(idx.repositories) < 2 || j < 0 || j >= len(idx.repositories) {
		return nil
	}
	idx.repositories[i], idx.repositories[j] = idx.repositories[j], idx.repositories[i]
	if err := idx.persistPriorities(); err != nil {
		return err
	}
	return idx.Reconcile()
}

// SetRepositoryActive enables or disables a repository.
func (idx *Index) SetRepositoryActive(id string, active bool) error {
	repo, err := idx.Repository(id)
	if err != nil {
		return err
	}
	repo.SetActive(active)
	if err := repo.ToConfig(); err != nil {
		return err
	}
	return idx.Reconcile()
}

// RemoveRepository cleans up and removes an unprotected repository.
func (idx *Index) RemoveRepository(id string) error {
	i := idx.indexOf(id)
	if i < 0 {
		return errutils.ErrRepositoryNotFound(id)
	}
	repo := idx.repositories[i]
	if repo.Protected() {
		return errutils.ErrProtectedRepository(id)
	}
	if err := repo.Cleanup(); err != nil {
		return err
	}
	idx.repositories = slices.Delete(idx.repositories, i, i+1)
	logger.Debug("Repository removed", logger.Fields{"repository": id})
	if err := idx.persistPriorities(); err != nil {
		return err
	}
	return idx.Reconcile()
}

// RefreshRepository refreshes one repository and reconciles.
func (idx *Index) RefreshRepository(ctx context.Context, id string) error {
	repo, err := idx.Repository(id)
	if err != nil {
		return err
	}
	if err := repo.Refresh(ctx); err != nil {
		return err
	}
	return idx.Reconcile()
}

// RefreshAll refreshes every active repository and reconciles. Failures do
// not stop the remaining refreshes and are returned together.
func (idx *Index) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, repo := range idx.repositories {
		if !repo.Active() {
			continue
		}
		if err := repo.Refresh(ctx); err != nil {
			logger.Warn("Repository refresh failed", logger.Fields{"repository": repo.ID(), "error": err.Error()})
			errs = append(errs, err)
		}
	}
	if err := idx.Reconcile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Plugin returns the plugin with the given id.
func (idx *Index) Plugin(id string) (*plugin.Plugin, error) {
	p, ok := idx.plugins[id]
	if !ok {
		return nil, errutils.ErrPluginNotFound(id)
	}
	return p, nil
}

// Plugins returns a snapshot sorted by id.
func (idx *Index) Plugins() []*plugin.Plugin {
	out := make([]*plugin.Plugin, 0, len(idx.plugins))
	for _, p := range idx.plugins {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *plugin.Plugin) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// InstallPlugin installs a plugin. See plugin.Plugin.Install.
func (idx *Index) InstallPlugin(ctx context.Context, id string, opts plugin.InstallOptions) error {
	p, err := idx.Plugin(id)
	if err != nil {
		return err
	}
	return p.Install(ctx, opts)
}

// UninstallPlugin uninstalls a plugin. Plugins without releases are pruned
// afterwards when PruneUnavailable is set.
func (idx *Index) UninstallPlugin(ctx context.Context, id string) error {
	p, err := idx.Plugin(id)
	if err != nil {
		return err
	}
	if err := p.Uninstall(ctx); err != nil {
		return err
	}
	if idx.opts.PruneUnavailable && len(p.AvailableReleases()) == 0 {
		delete(idx.plugins, id)
	}
	return nil
}
