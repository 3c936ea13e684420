package backend

import (
	"context"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/filecache"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// HostLegacy serves the plugin directories of the host and the repositories
// the host configured itself.
type HostLegacy struct {
	*archiveInstaller
	host  host.Host
	index *xmlIndex
}

// NewHostLegacy returns the host-legacy backend. Releases are installed into
// the user plugin directory.
func NewHostLegacy(h host.Host, fetcher fetch.Fetcher, cache *filecache.Cache, concurrency int) *HostLegacy {
	return &HostLegacy{
		archiveInstaller: &archiveInstaller{kind: model.KindHostLegacy, cache: cache, target: h.UserPluginDir},
		host:             h,
		index:            newXMLIndex(fetcher, h, concurrency),
	}
}

func (b *HostLegacy) Kind() model.Kind { return model.KindHostLegacy }

// FindPlugins scans the core plugin directory when protected, the user and
// extra plugin directories otherwise.
func (b *HostLegacy) FindPlugins(_ context.Context, protected bool) ([]*release.Release, error) {
	if protected {
		return scanDirs(b.Kind(), b, b.host.CorePluginDir())
	}
	extra, err := b.host.ExtraPluginDirs()
	if err != nil {
		return nil, err
	}
	return scanDirs(b.Kind(), b, append(extra, b.host.UserPluginDir())...)
}

func (b *HostLegacy) ConfigGroups(store settings.Store) ([]settings.Group, error) {
	return configGroups(store, HostLegacyRoot)
}

func (b *HostLegacy) RepositoryFromConfig(group settings.Group) (*repository.Repository, error) {
	return repository.FromConfig(b.Kind(), group, b)
}

// DefaultRepository is not supported: the host owns its default repository.
func (b *HostLegacy) DefaultRepository(settings.Store) (*repository.Repository, error) {
	return nil, errutils.Wrap(errutils.ErrNotImplemented, "host-legacy has no default repository")
}

func (b *HostLegacy) NewRepository(store settings.Store, id string, opts repository.Options) (*repository.Repository, error) {
	if err := validateIndexURL(opts.URL); err != nil {
		return nil, err
	}
	g, err := repositoryGroup(store, HostLegacyRoot, id)
	if err != nil {
		return nil, err
	}
	return repository.New(b.Kind(), g, b, opts)
}

func (b *HostLegacy) Refresh(ctx context.Context, repo *repository.Repository) ([]*release.Release, error) {
	return b.index.refresh(ctx, b.Kind(), repo)
}

func (b *HostLegacy) Cleanup(*repository.Repository) error { return nil }

func (b *HostLegacy) InstallRelease(ctx context.Context, r *release.Release) (*release.Release, error) {
	if err := checkKind(b, r); err != nil {
		return nil, err
	}
	return b.archiveInstaller.InstallRelease(ctx, r)
}
