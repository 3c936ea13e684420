package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/filecache"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
	"github.com/glorpus-work/plugdex/pkg/metadata"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
)

// archiveInstaller installs releases from ZIP archives into one plugin directory.
type archiveInstaller struct {
	kind   model.Kind
	cache  *filecache.Cache
	target func() string
}

// InstallRelease downloads the archive of r if it is not cached, unpacks it
// next to the target and moves the plugin directory into place. Every
// precondition is checked before the plugin directory is touched.
func (a *archiveInstaller) InstallRelease(ctx context.Context, r *release.Release) (*release.Release, error) {
	if a.cache == nil {
		return nil, errutils.Wrap(errutils.ErrNotImplemented, "no file cache configured")
	}
	fileName := r.Meta().Text(metadata.FieldFileName)
	downloadURL := r.Meta().Text(metadata.FieldDownloadURL)
	if fileName == "" || downloadURL == "" {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "release %s has no download", r)
	}

	dir := a.target()
	if err := os.MkdirAll(dir, fsutil.DirModeDefault); err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to create plugin directory %q: %v", dir, err)
	}
	if !fsutil.IsWritableDir(dir) {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "plugin directory %q is not writable", dir)
	}
	target := filepath.Join(dir, r.ID())
	if fsutil.Exists(target) {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "plugin directory %q already exists", target)
	}

	if !a.cache.Contains(fileName) {
		authcfg := ""
		if repo, ok := r.Owner().(*repository.Repository); ok {
			authcfg = repo.AuthCfg()
		}
		if err := a.cache.AddRemoteFile(ctx, fileName, downloadURL, authcfg); err != nil {
			return nil, errutils.Wrapf(err, "failed to download release %s", r)
		}
	}

	staging, err := os.MkdirTemp(dir, ".plugdex-install-*")
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to create staging directory: %v", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := a.cache.Extract(ctx, fileName, staging, ""); err != nil {
		return nil, errutils.Wrapf(err, "failed to unpack release %s", r)
	}
	staged := filepath.Join(staging, r.ID())
	if !release.IsPluginDir(staged) {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "archive %s does not contain plugin %s", fileName, r.ID())
	}
	if err := os.Rename(staged, target); err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to move plugin into %q: %v", target, err)
	}

	installed, err := release.FromInstalledDirectory(a.kind, target)
	if err != nil {
		_ = os.RemoveAll(target)
		return nil, errutils.Wrapf(err, "installed release %s is invalid", r)
	}
	logger.Debug("Release installed", logger.Fields{"release": r.String(), "path": target})
	return installed, nil
}

// UninstallRelease moves the plugin directory aside and removes it.
func (a *archiveInstaller) UninstallRelease(_ context.Context, r *release.Release) error {
	path := r.Path()
	parent := filepath.Dir(path)
	if !fsutil.IsDir(path) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "plugin directory %q does not exist", path)
	}
	if !fsutil.IsWritableDir(path) || !fsutil.IsWritableDir(parent) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "plugin directory %q is not writable", path)
	}

	aside := filepath.Join(parent, fmt.Sprintf(".%s.removing-%s", filepath.Base(path), uuid.NewString()))
	if err := os.Rename(path, aside); err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to remove %q: %v", path, err)
	}
	if err := os.RemoveAll(aside); err != nil {
		logger.Warn("Failed to delete removed plugin", logger.Fields{"path": aside, "error": err.Error()})
	}
	logger.Debug("Release uninstalled", logger.Fields{"release": r.String(), "path": path})
	return nil
}
