// Package backend implements the plugin sources: plugins managed by the host
// itself, remote package indexes, and native extensions. Backends are
// registered explicitly with a Registry.
package backend

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// Settings roots of the repositories of each backend.
const (
	HostLegacyRoot      = "app/plugin_repositories"
	PackageIndexRoot    = "app/pluginmanager/repositories/package-index"
	NativeExtensionRoot = "app/pluginmanager/repositories/native-extension"
)

// Backend is one kind of plugin source.
type Backend interface {
	repository.Driver
	Kind() model.Kind
	// FindPlugins scans the protected or the unprotected plugin locations and
	// returns one installed release per plugin directory.
	FindPlugins(ctx context.Context, protected bool) ([]*release.Release, error)
	// ConfigGroups returns the settings group of every persisted repository.
	ConfigGroups(store settings.Store) ([]settings.Group, error)
	RepositoryFromConfig(group settings.Group) (*repository.Repository, error)
	// DefaultRepository creates the repository that must exist for this kind.
	DefaultRepository(store settings.Store) (*repository.Repository, error)
	// NewRepository creates a user defined repository.
	NewRepository(store settings.Store, id string, opts repository.Options) (*repository.Repository, error)
}

// Registry maps backend kinds to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[model.Kind]Backend
}

// NewRegistry returns a registry holding backends.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[model.Kind]Backend, len(backends))}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds b. A kind can only be registered once.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return errutils.Wrap(errutils.ErrTypeMismatch, "backend must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[b.Kind()]; ok {
		return errutils.Wrapf(errutils.ErrInvalidValue, "backend %s is already registered", b.Kind())
	}
	r.backends[b.Kind()] = b
	return nil
}

// Get returns the backend of kind.
func (r *Registry) Get(kind model.Kind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[kind]
	if !ok {
		return nil, errutils.ErrBackendNotFound(kind.String())
	}
	return b, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []model.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]model.Kind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func configGroups(store settings.Store, root string) ([]settings.Group, error) {
	parent, err := settings.NewGroup(store, root)
	if err != nil {
		return nil, err
	}
	ids := parent.KeysRoot()
	groups := make([]settings.Group, 0, len(ids))
	for _, id := range ids {
		g, err := parent.Group(id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func repositoryGroup(store settings.Store, root, id string) (settings.Group, error) {
	if id == "" {
		return settings.Group{}, errutils.Wrap(errutils.ErrInvalidValue, "repository id must not be empty")
	}
	parent, err := settings.NewGroup(store, root)
	if err != nil {
		return settings.Group{}, err
	}
	g, err := parent.Group(id)
	if err != nil {
		return settings.Group{}, err
	}
	if len(g.Keys()) > 0 {
		return settings.Group{}, errutils.ErrRepositoryExists(id)
	}
	return g, nil
}

func checkKind(b Backend, r *release.Release) error {
	if r.Kind() != b.Kind() {
		return fmt.Errorf("%w: release %s does not belong to backend %s", errutils.ErrTypeMismatch, r, b.Kind())
	}
	return nil
}
