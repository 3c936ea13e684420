package backend

import (
	"context"
	"fmt"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

// NativeRepositoryID is the id of the single native-extension repository.
const NativeRepositoryID = "native"

// NativeExtension is the placeholder backend for compiled host extensions.
// It owns exactly one protected repository and offers no releases.
type NativeExtension struct{}

func NewNativeExtension() *NativeExtension { return &NativeExtension{} }

func (b *NativeExtension) Kind() model.Kind { return model.KindNativeExtension }

func (b *NativeExtension) FindPlugins(context.Context, bool) ([]*release.Release, error) {
	return nil, nil
}

func (b *NativeExtension) ConfigGroups(store settings.Store) ([]settings.Group, error) {
	return configGroups(store, NativeExtensionRoot)
}

func (b *NativeExtension) RepositoryFromConfig(group settings.Group) (*repository.Repository, error) {
	repo, err := repository.FromConfig(b.Kind(), group, b)
	if err != nil {
		return nil, err
	}
	if !repo.Protected() {
		return nil, fmt.Errorf("%w: native-extension repository %s must be protected", errutils.ErrConfigurationInvariant, repo.ID())
	}
	return repo, nil
}

func (b *NativeExtension) DefaultRepository(store settings.Store) (*repository.Repository, error) {
	g, err := repositoryGroup(store, NativeExtensionRoot, NativeRepositoryID)
	if err != nil {
		return nil, err
	}
	return repository.New(b.Kind(), g, b, repository.Options{
		Name:      "Native Extensions",
		Active:    true,
		Protected: true,
	})
}

func (b *NativeExtension) NewRepository(settings.Store, string, repository.Options) (*repository.Repository, error) {
	return nil, errutils.Wrap(errutils.ErrNotImplemented, "native-extension repositories can not be added")
}

func (b *NativeExtension) Refresh(context.Context, *repository.Repository) ([]*release.Release, error) {
	return nil, nil
}

func (b *NativeExtension) Cleanup(*repository.Repository) error {
	return errutils.Wrap(errutils.ErrProtected, "the native-extension repository can not be removed")
}

func (b *NativeExtension) InstallRelease(context.Context, *release.Release) (*release.Release, error) {
	return nil, errutils.Wrap(errutils.ErrNotImplemented, "native extensions can not be installed")
}

func (b *NativeExtension) UninstallRelease(context.Context, *release.Release) error {
	return errutils.Wrap(errutils.ErrNotImplemented, "native extensions can not be uninstalled")
}
