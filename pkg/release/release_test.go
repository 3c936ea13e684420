package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/metadata"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/version"
)

const baseManifest = "[general]\nname = Foo\nversion = 1.0\nqgisMinimumVersion = 3.16\nqgisMaximumVersion = 3.99\n"

func writePlugin(t *testing.T, root, id, manifest, entry string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, EntryPointFileName), []byte(entry), 0o644))
	return dir
}

type mockOwner struct{ id string }

func (o *mockOwner) ID() string { return o.id }

type mockInstaller struct {
	root        string
	installs    int
	uninstalls  int
	installErr  error
	returnPlain bool
}

func (m *mockInstaller) InstallRelease(_ context.Context, r *Release) (*Release, error) {
	m.installs++
	if m.installErr != nil {
		return nil, m.installErr
	}
	if m.returnPlain {
		return r, nil
	}
	manifest := "[general]\nname = x\nversion = " + r.Version().Original() + "\n"
	dir := filepath.Join(m.root, r.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(manifest), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, EntryPointFileName), []byte("classFactory := func() {}\n"), 0o644); err != nil {
		return nil, err
	}
	return FromInstalledDirectory(r.Kind(), dir)
}

func (m *mockInstaller) UninstallRelease(_ context.Context, r *Release) error {
	m.uninstalls++
	return os.RemoveAll(r.Path())
}

func descriptor(id, ver string) map[string]string {
	return map[string]string{
		"@name":    id,
		"@version": ver,
		"version":  ver,
		"id":       id,
	}
}

func TestDefinesName(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{name: "function literal", src: "serverClassFactory := func(iface) { return {} }\n", want: true},
		{name: "plain assignment", src: "serverClassFactory = 1\n", want: true},
		{name: "renamed import", src: "serverClassFactory := import(\"fmt\")\n", want: true},
		{name: "export key", src: "export { serverClassFactory: func() {} }\n", want: true},
		{name: "nested definition", src: "f := func() { serverClassFactory := 1 }\n", want: false},
		{name: "only referenced", src: "x := serverClassFactory\n", want: false},
		{name: "absent", src: "classFactory := func() {}\n", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefinesName([]byte(tt.src), FactoryServer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DefinesName([]byte("serverClassFactory := func("), FactoryServer)
	assert.ErrorIs(t, err, errutils.ErrParse)
}

func TestFromInstalledDirectory(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "foo", baseManifest,
		"serverClassFactory := func(iface) { return {} }\nexport { processingProvider: func() {} }\n")

	r, err := FromInstalledDirectory(model.KindHostLegacy, dir)
	require.NoError(t, err)
	assert.Equal(t, "foo", r.ID())
	assert.True(t, r.Installed())
	assert.Equal(t, dir, r.Path())
	assert.True(t, r.HasServerFunctions())
	assert.True(t, r.HasProcessingProvider())
	assert.False(t, r.Experimental())
	assert.False(t, r.Deprecated())
	assert.Equal(t, model.KindHostLegacy, r.Kind())
	assert.Nil(t, r.Owner())

	// Defaults are applied, not just read through.
	assert.True(t, r.Meta().Field(metadata.FieldExperimental).HasValue())
}

func TestFromInstalledDirectory_ManifestWins(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "foo", baseManifest+"server = False\nhasProcessingProvider = no\n",
		"this is not tengo (")

	r, err := FromInstalledDirectory(model.KindHostLegacy, dir)
	require.NoError(t, err, "entry point is not parsed when the manifest has both flags")
	assert.False(t, r.HasServerFunctions())
	assert.False(t, r.HasProcessingProvider())
}

func TestFromInstalledDirectory_Errors(t *testing.T) {
	root := t.TempDir()

	t.Run("missing entry point", func(t *testing.T) {
		dir := filepath.Join(root, "bare")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(baseManifest), 0o644))
		assert.False(t, IsPluginDir(dir))
		_, err := FromInstalledDirectory(model.KindHostLegacy, dir)
		assert.ErrorIs(t, err, errutils.ErrInvalidValue)
	})

	t.Run("bad entry point", func(t *testing.T) {
		dir := writePlugin(t, root, "broken", baseManifest, "serverClassFactory := func(")
		_, err := FromInstalledDirectory(model.KindHostLegacy, dir)
		assert.ErrorIs(t, err, errutils.ErrParse)
	})

	t.Run("no general section", func(t *testing.T) {
		dir := writePlugin(t, root, "nosection", "[other]\nname = x\n", "")
		_, err := FromInstalledDirectory(model.KindHostLegacy, dir)
		assert.ErrorIs(t, err, errutils.ErrParse)
	})

	t.Run("no version", func(t *testing.T) {
		dir := writePlugin(t, root, "noversion", "[general]\nname = x\n", "")
		_, err := FromInstalledDirectory(model.KindHostLegacy, dir)
		assert.ErrorIs(t, err, errutils.ErrInvalidValue)
	})
}

func TestFromRemoteDescriptorAndCache(t *testing.T) {
	owner := &mockOwner{id: "repo"}
	desc := descriptor("foo", "2.0")
	desc["experimental"] = "True"

	r, err := FromRemoteDescriptor(model.KindPackageIndex, owner, desc)
	require.NoError(t, err)
	assert.False(t, r.Installed())
	assert.Empty(t, r.Path())
	assert.True(t, r.Experimental())
	assert.True(t, r.Version().Experimental())
	assert.Same(t, owner, r.Owner())

	entry, err := r.CacheEntry()
	require.NoError(t, err)
	assert.Equal(t, "2.0", entry.Meta[metadata.FieldVersion])

	back, err := FromCachedConfig(model.KindPackageIndex, owner, entry)
	require.NoError(t, err)
	assert.True(t, back.Equal(r))
	assert.True(t, back.Experimental())

	_, err = FromCachedConfig(model.KindPackageIndex, owner, CacheEntry{})
	assert.ErrorIs(t, err, errutils.ErrTypeMismatch)
}

func TestEqual(t *testing.T) {
	a := &mockOwner{id: "a"}
	b := &mockOwner{id: "b"}

	mk := func(kind model.Kind, owner Owner, ver string) *Release {
		r, err := FromRemoteDescriptor(kind, owner, descriptor("foo", ver))
		require.NoError(t, err)
		return r
	}

	assert.True(t, mk(model.KindPackageIndex, a, "1.0").Equal(mk(model.KindPackageIndex, a, "1.0")))
	assert.True(t, mk(model.KindPackageIndex, a, "1.0").Equal(mk(model.KindPackageIndex, nil, "1.0")), "missing owner is not compared")
	assert.False(t, mk(model.KindPackageIndex, a, "1.0").Equal(mk(model.KindPackageIndex, b, "1.0")))
	assert.False(t, mk(model.KindPackageIndex, a, "1.0").Equal(mk(model.KindHostLegacy, a, "1.0")))
	assert.False(t, mk(model.KindPackageIndex, a, "1.0").Equal(mk(model.KindPackageIndex, a, "1.1")))
	assert.True(t, mk(model.KindPackageIndex, a, "v1.0").Equal(mk(model.KindPackageIndex, a, "1.0")))
}

func TestInstallReturnsInstalledCopy(t *testing.T) {
	ctx := context.Background()
	installer := &mockInstaller{root: t.TempDir()}

	available, err := FromRemoteDescriptor(model.KindPackageIndex, &mockOwner{id: "repo"}, descriptor("foo", "1.5"))
	require.NoError(t, err)

	_, err = available.Install(ctx)
	assert.ErrorIs(t, err, errutils.ErrNotImplemented)

	available.SetInstaller(installer)
	installed, err := available.Install(ctx)
	require.NoError(t, err)
	assert.True(t, installed.Installed())
	assert.DirExists(t, installed.Path())
	assert.False(t, available.Installed(), "available release is never marked installed")
	assert.Empty(t, available.Path())

	_, err = installed.Install(ctx)
	assert.ErrorIs(t, err, errutils.ErrAlreadyInstalled)

	assert.ErrorIs(t, available.Uninstall(ctx), errutils.ErrNotInstalled)

	path := installed.Path()
	require.NoError(t, installed.Uninstall(ctx))
	assert.NoDirExists(t, path)
	assert.False(t, installed.Installed())
	assert.Equal(t, 1, installer.installs)
	assert.Equal(t, 1, installer.uninstalls)
}

func TestInstallRejectsUninstalledResult(t *testing.T) {
	r, err := FromRemoteDescriptor(model.KindPackageIndex, nil, descriptor("foo", "1.0"))
	require.NoError(t, err)
	r.SetInstaller(&mockInstaller{returnPlain: true})

	_, err = r.Install(context.Background())
	assert.ErrorIs(t, err, errutils.ErrInvalidValue)
}

func TestCompatible(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "foo", baseManifest, "")
	r, err := FromInstalledDirectory(model.KindHostLegacy, dir)
	require.NoError(t, err)

	host := func(s string) version.Version {
		v, err := version.ParseHost(s, false)
		require.NoError(t, err)
		return v
	}
	assert.True(t, r.Compatible(host("3.28.1")))
	assert.True(t, r.Compatible(host("3.16.0")))
	assert.False(t, r.Compatible(host("3.10.0")))
	assert.False(t, r.Compatible(host("4.0.0")))
}
