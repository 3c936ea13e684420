// Package release models one versioned build of a plugin from one backend.
//
// A release is either installed, with a path to a local plugin directory, or
// available, offered by a repository and without a path.
package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
	"github.com/glorpus-work/plugdex/pkg/metadata"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/version"
)

const (
	// EntryPointFileName is the tengo script every plugin directory contains.
	EntryPointFileName = "plugin.tengo"
	// ManifestFileName is the INI manifest every plugin directory contains.
	ManifestFileName = metadata.ManifestFileName
)

// Owner is the repository a release belongs to.
type Owner interface {
	ID() string
}

// Installer performs the filesystem side of installing and removing a release.
type Installer interface {
	// InstallRelease installs r and returns its installed counterpart.
	InstallRelease(ctx context.Context, r *Release) (*Release, error)
	UninstallRelease(ctx context.Context, r *Release) error
}

// CacheEntry is the persisted form of an available release.
type CacheEntry struct {
	Meta map[string]string `json:"meta"`
}

// Release is one version of one plugin from one backend.
type Release struct {
	id                    string
	version               version.Version
	meta                  *metadata.Record
	installed             bool
	path                  string
	deprecated            bool
	experimental          bool
	hasProcessingProvider bool
	hasServerFunctions    bool
	kind                  model.Kind
	owner                 Owner
	installer             Installer
}

// defaultedFields are filled from their schema defaults when a source omits them.
var defaultedFields = []string{
	metadata.FieldExperimental,
	metadata.FieldDeprecated,
	metadata.FieldServer,
	metadata.FieldHasProcessingProvider,
}

func newRelease(kind model.Kind, meta *metadata.Record, path string) (*Release, error) {
	if meta == nil {
		return nil, errutils.Wrap(errutils.ErrTypeMismatch, "release metadata is nil")
	}
	if meta.ID() == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "release id must not be empty")
	}
	v := meta.Version()
	if v.IsZero() {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "release %q has no version", meta.ID())
	}
	if path != "" && !fsutil.IsDir(path) {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "release path %q is not an existing directory", path)
	}

	experimental := meta.Bool(metadata.FieldExperimental)
	return &Release{
		id:                    meta.ID(),
		version:               version.New(v.Elements(), v.Original(), experimental),
		meta:                  meta,
		installed:             path != "",
		path:                  path,
		deprecated:            meta.Bool(metadata.FieldDeprecated),
		experimental:          experimental,
		hasProcessingProvider: meta.Bool(metadata.FieldHasProcessingProvider),
		hasServerFunctions:    meta.Bool(metadata.FieldServer),
		kind:                  kind,
	}, nil
}

// IsPluginDir reports whether path is a directory holding both an entry point and a manifest.
func IsPluginDir(path string) bool {
	return fsutil.IsDir(path) &&
		fsutil.IsFile(filepath.Join(path, EntryPointFileName)) &&
		fsutil.IsFile(filepath.Join(path, ManifestFileName))
}

// FromInstalledDirectory builds an installed release from a local plugin directory.
// The directory name is the plugin id. Capability flags absent from the manifest
// are inferred from the entry point source.
func FromInstalledDirectory(kind model.Kind, path string) (*Release, error) {
	if !IsPluginDir(path) {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "%q is not a plugin directory", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to resolve %q: %v", path, err)
	}

	text, err := os.ReadFile(filepath.Join(abs, ManifestFileName))
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to read manifest of %q: %v", abs, err)
	}
	meta, err := metadata.FromManifestText(filepath.Base(abs), text)
	if err != nil {
		return nil, errutils.Wrapf(err, "plugin %q", filepath.Base(abs))
	}

	if err := inferCapabilities(meta, abs); err != nil {
		return nil, err
	}
	meta.ApplyDefaults(defaultedFields...)
	return newRelease(kind, meta, abs)
}

func inferCapabilities(meta *metadata.Record, dir string) error {
	checks := map[string]string{
		metadata.FieldServer:                FactoryServer,
		metadata.FieldHasProcessingProvider: FactoryProcessingProvider,
	}

	var src []byte
	for field, factory := range checks {
		f := meta.Field(field)
		if f == nil || f.HasValue() {
			continue
		}
		if src == nil {
			var err error
			if src, err = os.ReadFile(filepath.Join(dir, EntryPointFileName)); err != nil {
				return errutils.Wrapf(errutils.ErrInvalidValue, "failed to read entry point of %q: %v", dir, err)
			}
		}
		found, err := DefinesName(src, factory)
		if err != nil {
			return errutils.Wrapf(err, "plugin %q", meta.ID())
		}
		if err := f.SetValue(found); err != nil {
			return err
		}
	}
	return nil
}

// FromRemoteDescriptor builds an available release from one entry of a remote index.
func FromRemoteDescriptor(kind model.Kind, owner Owner, descriptor map[string]string) (*Release, error) {
	meta, err := metadata.FromRemoteDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	meta.ApplyDefaults(defaultedFields...)
	r, err := newRelease(kind, meta, "")
	if err != nil {
		return nil, err
	}
	r.owner = owner
	return r, nil
}

// FromCachedConfig rebuilds an available release from a CacheEntry.
func FromCachedConfig(kind model.Kind, owner Owner, entry CacheEntry) (*Release, error) {
	meta, err := metadata.FromCache(entry.Meta)
	if err != nil {
		return nil, errutils.Wrap(err, "cached release")
	}
	meta.ApplyDefaults(defaultedFields...)
	r, err := newRelease(kind, meta, "")
	if err != nil {
		return nil, err
	}
	r.owner = owner
	return r, nil
}

func (r *Release) ID() string                  { return r.id }
func (r *Release) Version() version.Version    { return r.version }
func (r *Release) Meta() *metadata.Record      { return r.meta }
func (r *Release) Installed() bool             { return r.installed }
func (r *Release) Path() string                { return r.path }
func (r *Release) Deprecated() bool            { return r.deprecated }
func (r *Release) Experimental() bool          { return r.experimental }
func (r *Release) HasProcessingProvider() bool { return r.hasProcessingProvider }
func (r *Release) HasServerFunctions() bool    { return r.hasServerFunctions }
func (r *Release) Kind() model.Kind            { return r.kind }
func (r *Release) Owner() Owner                { return r.owner }

// SetOwner attaches the release to a repository.
func (r *Release) SetOwner(o Owner) { r.owner = o }

// SetInstaller sets the backend that installs and removes the release.
func (r *Release) SetInstaller(i Installer) { r.installer = i }

// Equal compares version, kind and owner. Owners are only compared when both are set.
func (r *Release) Equal(o *Release) bool {
	if r == nil || o == nil {
		return r == o
	}
	if !r.version.Equal(o.version) || r.kind != o.kind {
		return false
	}
	if r.owner != nil && o.owner != nil {
		return r.owner == o.owner
	}
	return true
}

// Install installs the release and returns the installed counterpart. The
// receiver is left unchanged.
func (r *Release) Install(ctx context.Context) (*Release, error) {
	if r.installed {
		return nil, fmt.Errorf("%w: release %s is already installed", errutils.ErrAlreadyInstalled, r)
	}
	if r.installer == nil {
		return nil, fmt.Errorf("%w: release %s can not be installed", errutils.ErrNotImplemented, r)
	}
	installed, err := r.installer.InstallRelease(ctx, r)
	if err != nil {
		return nil, err
	}
	if installed == nil || !installed.installed {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "installer returned no installed release for %s", r)
	}
	if installed.installer == nil {
		installed.installer = r.installer
	}
	return installed, nil
}

// Uninstall removes an installed release from disk.
func (r *Release) Uninstall(ctx context.Context) error {
	if !r.installed {
		return fmt.Errorf("%w: release %s", errutils.ErrNotInstalled, r)
	}
	if r.installer == nil {
		return fmt.Errorf("%w: release %s can not be uninstalled", errutils.ErrNotImplemented, r)
	}
	if err := r.installer.UninstallRelease(ctx, r); err != nil {
		return err
	}
	r.installed = false
	r.path = ""
	return nil
}

// CacheEntry exports the release for FromCachedConfig.
func (r *Release) CacheEntry() (CacheEntry, error) {
	values, err := r.meta.ExportCache()
	if err != nil {
		return CacheEntry{}, errutils.Wrapf(err, "release %s", r)
	}
	return CacheEntry{Meta: values}, nil
}

// Compatible reports whether host lies within the release's host version bounds.
func (r *Release) Compatible(host version.Version) bool {
	if lo, ok := r.hostBound(metadata.FieldHostMinimumVersion); ok && host.Less(lo) {
		return false
	}
	if hi, ok := r.hostBound(metadata.FieldHostMaximumVersion); ok && host.Greater(hi) {
		return false
	}
	return true
}

func (r *Release) hostBound(name string) (version.Version, bool) {
	f := r.meta.Field(name)
	if f == nil {
		return version.Version{}, false
	}
	v, ok := f.Value().(version.Version)
	return v, ok
}

func (r *Release) String() string {
	return fmt.Sprintf("%s@%s (%s)", r.id, r.version.Original(), r.kind)
}
