package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/filecache"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// DefaultRepositoryName names the default package index.
const DefaultRepositoryName = "QGIS Official Python Plugin Repository"

// PackageIndex serves remote plugin indexes managed by plugdex. Its releases
// live in the managed plugin directory.
type PackageIndex struct {
	*archiveInstaller
	host       host.Host
	index      *xmlIndex
	defaultURL string
}

// NewPackageIndex returns the package-index backend. An empty defaultURL
// selects repository.CanonicalURL.
func NewPackageIndex(h host.Host, fetcher fetch.Fetcher, cache *filecache.Cache, concurrency int, defaultURL string) *PackageIndex {
	if strings.TrimSpace(defaultURL) == "" {
		defaultURL = repository.CanonicalURL
	}
	return &PackageIndex{
		archiveInstaller: &archiveInstaller{kind: model.KindPackageIndex, cache: cache, target: h.ManagedPluginDir},
		host:             h,
		index:            newXMLIndex(fetcher, h, concurrency),
		defaultURL:       defaultURL,
	}
}

func (b *PackageIndex) Kind() model.Kind { return model.KindPackageIndex }

// DefaultURL returns the url of the default repository.
func (b *PackageIndex) DefaultURL() string { return b.defaultURL }

// FindPlugins scans the managed plugin directory. Nothing there is protected.
func (b *PackageIndex) FindPlugins(_ context.Context, protected bool) ([]*release.Release, error) {
	if protected {
		return nil, nil
	}
	return scanDirs(b.Kind(), b, b.host.ManagedPluginDir())
}

func (b *PackageIndex) ConfigGroups(store settings.Store) ([]settings.Group, error) {
	return configGroups(store, PackageIndexRoot)
}

func (b *PackageIndex) RepositoryFromConfig(group settings.Group) (*repository.Repository, error) {
	return repository.FromConfig(b.Kind(), group, b)
}

// DefaultRepository creates the protected repository pointing at the default
// url. The id carries a random suffix so it never collides with user ids.
func (b *PackageIndex) DefaultRepository(store settings.Store) (*repository.Repository, error) {
	id := fmt.Sprintf("%s (%s)", DefaultRepositoryName, uuid.NewString()[:8])
	g, err := repositoryGroup(store, PackageIndexRoot, id)
	if err != nil {
		return nil, err
	}
	logger.Debug("Creating default repository", logger.Fields{"id": id, "url": b.defaultURL})
	return repository.New(b.Kind(), g, b, repository.Options{
		Name:      DefaultRepositoryName,
		URL:       b.defaultURL,
		Active:    true,
		Protected: true,
	})
}

func (b *PackageIndex) NewRepository(store settings.Store, id string, opts repository.Options) (*repository.Repository, error) {
	if err := validateIndexURL(opts.URL); err != nil {
		return nil, err
	}
	g, err := repositoryGroup(store, PackageIndexRoot, id)
	if err != nil {
		return nil, err
	}
	return repository.New(b.Kind(), g, b, opts)
}

func (b *PackageIndex) Refresh(ctx context.Context, repo *repository.Repository) ([]*release.Release, error) {
	return b.index.refresh(ctx, b.Kind(), repo)
}

func (b *PackageIndex) Cleanup(*repository.Repository) error { return nil }

func (b *PackageIndex) InstallRelease(ctx context.Context, r *release.Release) (*release.Release, error) {
	if err := checkKind(b, r); err != nil {
		return nil, err
	}
	return b.archiveInstaller.InstallRelease(ctx, r)
}
