package backend

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	fetchmocks "github.com/glorpus-work/plugdex/pkg/fetch/mocks"
	"github.com/glorpus-work/plugdex/pkg/filecache"
	"github.com/glorpus-work/plugdex/pkg/host"
	"github.com/glorpus-work/plugdex/pkg/metadata"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/repository"
	"github.com/glorpus-work/plugdex/pkg/settings"
)

const indexURL = "https://example.com/plugins.xml"

const listingXML = `<?xml version="1.0" encoding="UTF-8"?>
<plugins>
  <pyqgis_plugin name="Foo" version="2.0" plugin_id="7">
    <description>Foo & Bar</description>
    <version>2.0</version>
    <file_name>foo.2.0.zip</file_name>
    <tags></tags>
  </pyqgis_plugin>
  <pyqgis_plugin name="Foo" version="1.0" plugin_id="7">
    <version>1.0</version>
    <file_name>foo.1.0.zip</file_name>
  </pyqgis_plugin>
  <pyqgis_plugin name="Bar" version="0.1" plugin_id="8">
    <version>0.1</version>
    <file_name>bar.0.1.zip</file_name>
  </pyqgis_plugin>
</plugins>`

func pluginXML(entries ...string) []byte {
	return []byte("<plugins>" + strings.Join(entries, "") + "</plugins>")
}

func pluginEntry(id, ver string) string {
	return `<pyqgis_plugin name="` + id + `" version="` + ver + `">` +
		`<version>` + ver + `</version>` +
		`<file_name>` + id + `.` + ver + `.zip</file_name>` +
		`<download_url>https://example.com/download/` + id + `.` + ver + `.zip</download_url>` +
		`<qgis_minimum_version>3.16</qgis_minimum_version>` +
		`<experimental>False</experimental>` +
		`</pyqgis_plugin>`
}

func testHost(t *testing.T) *host.Local {
	t.Helper()
	root := t.TempDir()
	t.Setenv(host.PluginPathEnv, "")
	h, err := host.NewLocal(host.Options{
		Version:    "3.34.1",
		CoreDir:    filepath.Join(root, "core"),
		UserDir:    filepath.Join(root, "user"),
		ManagedDir: filepath.Join(root, "managed"),
	})
	require.NoError(t, err)
	return h
}

func pluginZip(t *testing.T, id, ver string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	_, err := zw.Create(id + "/")
	require.NoError(t, err)
	files := map[string]string{
		id + "/metadata.txt": "[general]\nname = " + id + "\nversion = " + ver + "\nqgisMinimumVersion = 3.16\n",
		id + "/plugin.tengo": "classFactory := func() {}\nprocessingProvider := func() {}\n",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeInstalled(t *testing.T, dir, id, ver string) {
	t.Helper()
	p := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(p, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p, release.ManifestFileName), []byte("[general]\nname = "+id+"\nversion = "+ver+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(p, release.EntryPointFileName), []byte("classFactory := func() {}\n"), 0o644))
}

func TestParseIndex(t *testing.T) {
	descriptors, err := parseIndex([]byte(listingXML))
	require.NoError(t, err)
	require.Len(t, descriptors, 3)
	assert.Equal(t, map[string]string{
		"@name":       "Foo",
		"@version":    "2.0",
		"@plugin_id":  "7",
		"description": "Foo & Bar",
		"version":     "2.0",
		"file_name":   "foo.2.0.zip",
	}, descriptors[0])

	tests := []struct {
		name string
		data string
	}{
		{name: "wrong root", data: "<repository></repository>"},
		{name: "broken", data: "<plugins><pyqgis_plugin>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseIndex([]byte(tt.data))
			assert.ErrorIs(t, err, errutils.ErrParse)
		})
	}
}

func TestRegistry(t *testing.T) {
	h := testHost(t)
	reg, err := NewRegistry(NewPackageIndex(h, nil, nil, 1, ""), NewNativeExtension(), NewHostLegacy(h, nil, nil, 1))
	require.NoError(t, err)
	assert.Equal(t, []model.Kind{model.KindHostLegacy, model.KindNativeExtension, model.KindPackageIndex}, reg.Kinds())

	b, err := reg.Get(model.KindNativeExtension)
	require.NoError(t, err)
	assert.Equal(t, model.KindNativeExtension, b.Kind())

	_, err = reg.Get("pip")
	assert.ErrorIs(t, err, errutils.ErrNotFound)
	assert.ErrorIs(t, reg.Register(NewNativeExtension()), errutils.ErrInvalidValue)
	assert.ErrorIs(t, reg.Register(nil), errutils.ErrTypeMismatch)
}

func TestPackageIndexRefresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := fetchmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?qgis=3.34", "cfg").Return([]byte(listingXML), nil)
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?package_name=foo&qgis=3.34", "cfg").
		Return(pluginXML(pluginEntry("foo", "1.0"), pluginEntry("foo", "2.0")), nil)
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?package_name=bar&qgis=3.34", "cfg").
		Return(pluginXML(pluginEntry("bar", "0.1")), nil)

	b := NewPackageIndex(testHost(t), fetcher, nil, 2, "")
	store := settings.NewMemoryStore(nil)
	repo, err := b.NewRepository(store, "main", repository.Options{URL: indexURL, AuthCfg: "cfg", Active: true})
	require.NoError(t, err)

	require.NoError(t, repo.Refresh(context.Background()))
	releases := repo.ReleasesSorted()
	require.Len(t, releases, 3)
	assert.Equal(t, "bar", releases[0].ID())
	assert.Equal(t, "1.0", releases[1].Version().Original())
	assert.Equal(t, "2.0", releases[2].Version().Original())
	for _, r := range releases {
		assert.Equal(t, model.KindPackageIndex, r.Kind())
		assert.Same(t, repo, r.Owner())
		assert.False(t, r.Installed())
	}

	groups, err := b.ConfigGroups(store)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	loaded, err := b.RepositoryFromConfig(groups[0])
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
}

func TestPackageIndexRefresh_DetailFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	fetcher := fetchmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?qgis=3.34", "").Return([]byte(listingXML), nil)
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?package_name=foo&qgis=3.34", "").Return(nil, errutils.ErrRequestFailed).AnyTimes()
	fetcher.EXPECT().Request(gomock.Any(), indexURL+"?package_name=bar&qgis=3.34", "").Return(pluginXML(pluginEntry("bar", "0.1")), nil).AnyTimes()

	b := NewPackageIndex(testHost(t), fetcher, nil, 1, "")
	repo, err := b.NewRepository(settings.NewMemoryStore(nil), "main", repository.Options{URL: indexURL, Active: true})
	require.NoError(t, err)

	err = repo.Refresh(context.Background())
	assert.ErrorIs(t, err, errutils.ErrRequestFailed)
	assert.Zero(t, repo.Len())
}

func TestNewRepository_Errors(t *testing.T) {
	h := testHost(t)
	store := settings.NewMemoryStore(nil)
	b := NewPackageIndex(h, nil, nil, 1, "")

	_, err := b.NewRepository(store, "x", repository.Options{URL: "ftp://example.com"})
	assert.ErrorIs(t, err, errutils.ErrInvalidValue)
	_, err = b.NewRepository(store, "", repository.Options{URL: indexURL})
	assert.ErrorIs(t, err, errutils.ErrInvalidValue)

	repo, err := b.NewRepository(store, "x", repository.Options{URL: indexURL})
	require.NoError(t, err)
	require.NoError(t, repo.ToConfig())
	_, err = b.NewRepository(store, "x", repository.Options{URL: indexURL})
	assert.ErrorIs(t, err, errutils.ErrInvalidValue, "duplicate id")

	_, err = NewNativeExtension().NewRepository(store, "y", repository.Options{})
	assert.ErrorIs(t, err, errutils.ErrNotImplemented)
}

func TestDefaultRepositories(t *testing.T) {
	store := settings.NewMemoryStore(nil)
	pi := NewPackageIndex(testHost(t), nil, nil, 1, "")
	repo, err := pi.DefaultRepository(store)
	require.NoError(t, err)
	assert.True(t, repo.Protected())
	assert.Equal(t, repository.CanonicalURL, repo.URL())
	assert.Regexp(t, `^QGIS Official Python Plugin Repository \([0-9a-f]{8}\)$`, repo.ID())

	native := NewNativeExtension()
	nrepo, err := native.DefaultRepository(store)
	require.NoError(t, err)
	assert.True(t, nrepo.Protected())
	releases, err := native.Refresh(context.Background(), nrepo)
	require.NoError(t, err)
	assert.Empty(t, releases)
	assert.ErrorIs(t, native.Cleanup(nrepo), errutils.ErrProtected)

	_, err = NewHostLegacy(testHost(t), nil, nil, 1).DefaultRepository(store)
	assert.ErrorIs(t, err, errutils.ErrNotImplemented)
}

func TestNativeRepositoryFromConfig_Unprotected(t *testing.T) {
	store := settings.NewMemoryStore(map[string]string{NativeExtensionRoot + "/n/protected": "false"})
	native := NewNativeExtension()
	groups, err := native.ConfigGroups(store)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	_, err = native.RepositoryFromConfig(groups[0])
	assert.ErrorIs(t, err, errutils.ErrConfigurationInvariant)
}

func TestHostLegacyFindPlugins(t *testing.T) {
	h := testHost(t)
	writeInstalled(t, h.CorePluginDir(), "core_one", "1.0")
	writeInstalled(t, h.UserPluginDir(), "user_one", "0.3")
	require.NoError(t, os.MkdirAll(filepath.Join(h.UserPluginDir(), "not_a_plugin"), 0o755))
	extra := t.TempDir()
	writeInstalled(t, extra, "extra_one", "2.1")
	t.Setenv(host.PluginPathEnv, extra)

	b := NewHostLegacy(h, nil, nil, 1)
	ctx := context.Background()

	protected, err := b.FindPlugins(ctx, true)
	require.NoError(t, err)
	require.Len(t, protected, 1)
	assert.Equal(t, "core_one", protected[0].ID())
	assert.True(t, protected[0].Installed())
	assert.Equal(t, model.KindHostLegacy, protected[0].Kind())

	unprotected, err := b.FindPlugins(ctx, false)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range unprotected {
		ids = append(ids, r.ID())
	}
	assert.Equal(t, []string{"extra_one", "user_one"}, ids)

	t.Setenv(host.PluginPathEnv, h.CorePluginDir())
	_, err = b.FindPlugins(ctx, false)
	assert.ErrorIs(t, err, errutils.ErrConfigurationInvariant)
}

func TestPackageIndexInstallUninstall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	fetcher := fetchmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Request(gomock.Any(), "https://example.com/download/foo.1.0.zip", "cfg").
		Return(pluginZip(t, "foo", "1.0"), nil).Times(1)

	cache, err := filecache.New(t.TempDir(), fetcher)
	require.NoError(t, err)
	h := testHost(t)
	b := NewPackageIndex(h, fetcher, cache, 1, "")
	repo, err := b.NewRepository(settings.NewMemoryStore(nil), "main", repository.Options{URL: indexURL, AuthCfg: "cfg", Active: true})
	require.NoError(t, err)

	descriptors, err := parseIndex(pluginXML(pluginEntry("foo", "1.0")))
	require.NoError(t, err)
	available, err := release.FromRemoteDescriptor(model.KindPackageIndex, repo, descriptors[0])
	require.NoError(t, err)
	available.SetInstaller(b)

	installed, err := available.Install(ctx)
	require.NoError(t, err)
	assert.False(t, available.Installed(), "the available release stays available")
	assert.True(t, installed.Installed())
	assert.Equal(t, filepath.Join(h.ManagedPluginDir(), "foo"), installed.Path())
	assert.Equal(t, model.KindPackageIndex, installed.Kind())
	assert.True(t, installed.HasProcessingProvider())
	assert.True(t, cache.Contains("foo.1.0.zip"))

	found, err := b.FindPlugins(ctx, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "foo", found[0].ID())

	_, err = available.Install(ctx)
	assert.ErrorIs(t, err, errutils.ErrInvalidValue, "the target directory exists")

	require.NoError(t, installed.Uninstall(ctx))
	assert.False(t, installed.Installed())
	assert.NoDirExists(t, filepath.Join(h.ManagedPluginDir(), "foo"))
	entries, err := os.ReadDir(h.ManagedPluginDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging and removal directories are cleaned up")

	reinstalled, err := available.Install(ctx)
	require.NoError(t, err, "the archive is served from the cache")
	assert.True(t, reinstalled.Installed())
}

func TestInstall_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()

	fetcher := fetchmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Request(gomock.Any(), "https://example.com/download/foo.1.0.zip", "").
		Return(pluginZip(t, "other", "1.0"), nil)

	cache, err := filecache.New(t.TempDir(), fetcher)
	require.NoError(t, err)
	h := testHost(t)
	b := NewHostLegacy(h, fetcher, cache, 1)

	descriptors, err := parseIndex(pluginXML(pluginEntry("foo", "1.0")))
	require.NoError(t, err)

	t.Run("wrong kind", func(t *testing.T) {
		r, err := release.FromRemoteDescriptor(model.KindPackageIndex, nil, descriptors[0])
		require.NoError(t, err)
		_, err = b.InstallRelease(ctx, r)
		assert.ErrorIs(t, err, errutils.ErrTypeMismatch)
	})

	t.Run("no download", func(t *testing.T) {
		d := map[string]string{"@version": "1.0", "version": "1.0", "file_name": "foo.1.0.zip"}
		r, err := release.FromRemoteDescriptor(model.KindHostLegacy, nil, d)
		require.NoError(t, err)
		_, err = b.InstallRelease(ctx, r)
		assert.ErrorIs(t, err, errutils.ErrInvalidValue)
	})

	t.Run("archive without plugin", func(t *testing.T) {
		r, err := release.FromRemoteDescriptor(model.KindHostLegacy, nil, descriptors[0])
		require.NoError(t, err)
		_, err = b.InstallRelease(ctx, r)
		assert.ErrorIs(t, err, errutils.ErrInvalidValue)
		assert.NoDirExists(t, filepath.Join(h.UserPluginDir(), "foo"))
		entries, err := os.ReadDir(h.UserPluginDir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("uninstall missing", func(t *testing.T) {
		writeInstalled(t, h.UserPluginDir(), "gone", "1.0")
		r, err := release.FromInstalledDirectory(model.KindHostLegacy, filepath.Join(h.UserPluginDir(), "gone"))
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(r.Path()))
		assert.ErrorIs(t, b.UninstallRelease(ctx, r), errutils.ErrInvalidValue)
	})
}

func TestBackendMetadataFromIndex(t *testing.T) {
	descriptors, err := parseIndex(pluginXML(pluginEntry("foo", "1.0")))
	require.NoError(t, err)
	r, err := release.FromRemoteDescriptor(model.KindPackageIndex, nil, descriptors[0])
	require.NoError(t, err)
	assert.Equal(t, "foo", r.ID())
	assert.Equal(t, "https://example.com/download/foo.1.0.zip", r.Meta().Text(metadata.FieldDownloadURL))
	assert.False(t, r.Experimental())
}
