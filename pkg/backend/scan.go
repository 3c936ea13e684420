package backend

import (
	"os"
	"path/filepath"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
)

// scanDirs returns an installed release for every plugin directory directly
// below dirs. Missing dirs are skipped. Entries are visited in name order.
func scanDirs(kind model.Kind, installer release.Installer, dirs ...string) ([]*release.Release, error) {
	var out []*release.Release
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to read plugin directory %q: %v", dir, err)
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if !release.IsPluginDir(path) {
				continue
			}
			r, err := release.FromInstalledDirectory(kind, path)
			if err != nil {
				return nil, errutils.Wrapf(err, "installed plugin %q", path)
			}
			r.SetInstaller(installer)
			out = append(out, r)
		}
		logger.Debug("Plugin directory scanned", logger.Fields{"dir": dir, "kind": kind.String()})
	}
	return out, nil
}
