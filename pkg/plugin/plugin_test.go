package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/model"
	loadermocks "github.com/glorpus-work/plugdex/pkg/plugin/mocks"
	"github.com/glorpus-work/plugdex/pkg/release"
)

type mockOwner struct{ id string }

func (o *mockOwner) ID() string { return o.id }

type mockInstaller struct {
	root       string
	installErr error
	installs   int
	uninstalls int
}

func (m *mockInstaller) InstallRelease(_ context.Context, r *release.Release) (*release.Release, error) {
	m.installs++
	if m.installErr != nil {
		return nil, m.installErr
	}
	dir := writeDir(m.root, r.ID(), r.Version().Original(), r.Deprecated())
	return release.FromInstalledDirectory(r.Kind(), dir)
}

func (m *mockInstaller) UninstallRelease(_ context.Context, r *release.Release) error {
	m.uninstalls++
	return os.RemoveAll(r.Path())
}

func writeDir(root, id, ver string, deprecated bool) string {
	dir := filepath.Join(root, id)
	_ = os.MkdirAll(dir, 0o755)
	manifest := "[general]\nname = " + id + "\nversion = " + ver + "\n"
	if deprecated {
		manifest += "deprecated = True\n"
	}
	_ = os.WriteFile(filepath.Join(dir, release.ManifestFileName), []byte(manifest), 0o644)
	_ = os.WriteFile(filepath.Join(dir, release.EntryPointFileName), []byte("classFactory := func() {}\n"), 0o644)
	return dir
}

type fixture struct {
	t         *testing.T
	installer *mockInstaller
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, installer: &mockInstaller{root: t.TempDir()}}
}

func (f *fixture) available(id, ver string, owner release.Owner, kind model.Kind) *release.Release {
	f.t.Helper()
	r, err := release.FromRemoteDescriptor(kind, owner, map[string]string{
		"@name":    id,
		"@version": ver,
		"version":  ver,
		"id":       id,
	})
	require.NoError(f.t, err)
	r.SetInstaller(f.installer)
	return r
}

func (f *fixture) installed(id, ver string, kind model.Kind) *release.Release {
	f.t.Helper()
	r, err := release.FromInstalledDirectory(kind, writeDir(f.installer.root, id, ver, false))
	require.NoError(f.t, err)
	r.SetInstaller(f.installer)
	return r
}

func assertInvariants(t *testing.T, p *Plugin) {
	t.Helper()
	for _, r := range p.AvailableReleases() {
		assert.False(t, r.Installed(), "available release %s is installed", r)
		assert.NotSame(t, p.InstalledRelease(), r)
	}
}

func TestConstructors(t *testing.T) {
	f := newFixture(t)
	repo := &mockOwner{id: "a"}

	p, err := NewFromAvailable(f.available("foo", "1.0", repo, model.KindPackageIndex))
	require.NoError(t, err)
	assert.Equal(t, "foo", p.ID())
	assert.False(t, p.Installed())
	assert.Len(t, p.AvailableReleases(), 1)

	_, err = NewFromAvailable(f.installed("bar", "1.0", model.KindHostLegacy))
	assert.ErrorIs(t, err, errutils.ErrAlreadyInstalled)
	_, err = NewFromInstalled(f.available("foo", "1.0", repo, model.KindPackageIndex), false, false)
	assert.ErrorIs(t, err, errutils.ErrNotInstalled)
	_, err = NewFromInstalled(nil, false, false)
	assert.ErrorIs(t, err, errutils.ErrTypeMismatch)
}

func TestAddRelease(t *testing.T) {
	f := newFixture(t)
	a := &mockOwner{id: "a"}
	b := &mockOwner{id: "b"}

	p, err := NewFromAvailable(f.available("foo", "1.0", a, model.KindPackageIndex))
	require.NoError(t, err)

	require.NoError(t, p.AddRelease(f.available("foo", "1.0", b, model.KindPackageIndex)), "same version from another repository")
	assert.ErrorIs(t, p.AddRelease(f.available("foo", "1.0", a, model.KindPackageIndex)), errutils.ErrInvalidValue)
	assert.ErrorIs(t, p.AddRelease(f.available("bar", "1.0", a, model.KindPackageIndex)), errutils.ErrInvalidValue)
	assert.ErrorIs(t, p.AddRelease(nil), errutils.ErrTypeMismatch)

	inst := f.installed("foo", "0.9", model.KindPackageIndex)
	require.NoError(t, p.AddRelease(inst))
	assert.Same(t, inst, p.InstalledRelease())
	assert.Len(t, p.AvailableReleases(), 2)
	assert.ErrorIs(t, p.AddRelease(f.installed("foo", "0.8", model.KindPackageIndex)), errutils.ErrAlreadyInstalled)
	assertInvariants(t, p)

	p.ClearReleases()
	assert.Empty(t, p.AvailableReleases())
	assert.True(t, p.Installed())
}

func TestDerivedState(t *testing.T) {
	f := newFixture(t)
	a := &mockOwner{id: "a"}

	p, err := NewFromInstalled(f.installed("foo", "2.0", model.KindPackageIndex), false, false)
	require.NoError(t, err)
	assert.True(t, p.Orphan())
	assert.False(t, p.Upgradable())
	assert.False(t, p.Downgradable())

	require.NoError(t, p.AddRelease(f.available("foo", "2.0", a, model.KindPackageIndex)))
	assert.False(t, p.Orphan())

	require.NoError(t, p.AddRelease(f.available("foo", "3.0", a, model.KindPackageIndex)))
	assert.True(t, p.Upgradable())
	require.NoError(t, p.AddRelease(f.available("foo", "1.0", a, model.KindPackageIndex)))
	assert.True(t, p.Downgradable())
	assert.False(t, p.Deprecated())

	dep, err := release.FromRemoteDescriptor(model.KindPackageIndex, a, map[string]string{
		"id": "foo", "version": "4.0", "deprecated": "True",
	})
	require.NoError(t, err)
	require.NoError(t, p.AddRelease(dep))
	assert.True(t, p.Deprecated())
	p.ClearReleases()
	assert.False(t, p.Deprecated())
	assert.True(t, p.Orphan())
}

func TestUpgradeGuard(t *testing.T) {
	f := newFixture(t)
	a := &mockOwner{id: "a"}
	ctx := context.Background()

	p, err := NewFromInstalled(f.installed("foo", "1.0", model.KindPackageIndex), false, false)
	require.NoError(t, err)
	target := f.available("foo", "2.0", a, model.KindPackageIndex)
	require.NoError(t, p.AddRelease(target))

	opts := DefaultInstallOptions()
	opts.Release = target
	opts.AllowUpdate = false
	err = p.Install(ctx, opts)
	require.ErrorIs(t, err, errutils.ErrAlreadyInstalled)
	assert.Contains(t, err.Error(), "would update")
	assert.Equal(t, "1.0", p.InstalledRelease().Version().Original(), "a rejected install changes nothing")
	assert.Zero(t, f.installer.uninstalls)

	opts.AllowUpdate = true
	require.NoError(t, p.Install(ctx, opts))
	assert.Equal(t, "2.0", p.InstalledRelease().Version().Original())
	assert.Equal(t, 1, f.installer.uninstalls)
	assertInvariants(t, p)
}

func TestInstallGuards(t *testing.T) {
	a := &mockOwner{id: "a"}
	tests := []struct {
		name      string
		installed string
		kind      model.Kind
		target    string
		protected bool
		mutate    func(*InstallOptions)
		want      error
		message   string
	}{
		{name: "same version", installed: "1.0", kind: model.KindPackageIndex, target: "1.0", want: errutils.ErrAlreadyInstalled, message: "same version"},
		{name: "same version allowed", installed: "1.0", kind: model.KindPackageIndex, target: "1.0", mutate: func(o *InstallOptions) { o.AllowSameVersion = true }},
		{name: "downgrade", installed: "2.0", kind: model.KindPackageIndex, target: "1.0", want: errutils.ErrAlreadyInstalled, message: "would downgrade"},
		{name: "downgrade allowed", installed: "2.0", kind: model.KindPackageIndex, target: "1.0", mutate: func(o *InstallOptions) { o.AllowDowngrade = true }},
		{name: "type change", installed: "1.0", kind: model.KindHostLegacy, target: "2.0", want: errutils.ErrAlreadyInstalled, message: "repository type change"},
		{name: "type change allowed", installed: "1.0", kind: model.KindHostLegacy, target: "2.0", mutate: func(o *InstallOptions) { o.AllowTypeChange = true }},
		{name: "protected", installed: "1.0", kind: model.KindPackageIndex, target: "2.0", protected: true, want: errutils.ErrProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p, err := NewFromInstalled(f.installed("foo", tt.installed, tt.kind), tt.protected, false)
			require.NoError(t, err)
			target := f.available("foo", tt.target, a, model.KindPackageIndex)
			require.NoError(t, p.AddRelease(target))

			opts := DefaultInstallOptions()
			opts.Release = target
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			err = p.Install(context.Background(), opts)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.target, p.InstalledRelease().Version().Original())
				assert.Equal(t, model.KindPackageIndex, p.InstalledRelease().Kind())
				return
			}
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.installed, p.InstalledRelease().Version().Original())
			assert.Zero(t, f.installer.installs)
		})
	}
}

func TestInstallTargetChecks(t *testing.T) {
	f := newFixture(t)
	a := &mockOwner{id: "a"}
	ctx := context.Background()

	p, err := NewFromAvailable(f.available("foo", "1.0", a, model.KindPackageIndex))
	require.NoError(t, err)

	opts := DefaultInstallOptions()
	opts.Release = f.available("bar", "1.0", a, model.KindPackageIndex)
	assert.ErrorIs(t, p.Install(ctx, opts), errutils.ErrInvalidValue)

	opts.Release = f.available("foo", "9.0", a, model.KindPackageIndex)
	assert.ErrorIs(t, p.Install(ctx, opts), errutils.ErrInvalidValue)

	f.installer.installErr = errors.New("disk full")
	assert.Error(t, p.Install(ctx, DefaultInstallOptions()))
	assert.False(t, p.Installed(), "a failed install leaves the plugin uninstalled")

	empty, err := NewFromAvailable(f.available("baz", "1.0", a, model.KindPackageIndex))
	require.NoError(t, err)
	empty.ClearReleases()
	assert.ErrorIs(t, empty.Install(ctx, DefaultInstallOptions()), errutils.ErrNotFound)
}

func TestDefaultReleasePrefersFirstRepository(t *testing.T) {
	f := newFixture(t)
	c := &mockOwner{id: "c"}
	a := &mockOwner{id: "a"}
	b := &mockOwner{id: "b"}

	p, err := NewFromAvailable(f.available("foo", "2.5", c, model.KindPackageIndex))
	require.NoError(t, err)
	require.NoError(t, p.AddRelease(f.available("foo", "3.0", c, model.KindPackageIndex)))
	require.NoError(t, p.AddRelease(f.available("foo", "1.0", a, model.KindPackageIndex)))
	require.NoError(t, p.AddRelease(f.available("foo", "9.0", b, model.KindPackageIndex)))

	require.NoError(t, p.Install(context.Background(), DefaultInstallOptions()))
	assert.Equal(t, "3.0", p.InstalledRelease().Version().Original())
	assertInvariants(t, p)
}

func TestUninstall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	ctx := context.Background()
	f := newFixture(t)

	loader := loadermocks.NewMockLoader(ctrl)
	inst := f.installed("foo", "1.0", model.KindHostLegacy)
	p, err := NewFromInstalled(inst, false, true)
	require.NoError(t, err)
	p.SetLoader(loader)

	path := inst.Path()
	loader.EXPECT().Unload("foo").Return(nil)
	require.NoError(t, p.Uninstall(ctx))
	assert.False(t, p.Installed())
	assert.False(t, p.Active())
	assert.NoDirExists(t, path)
	assert.ErrorIs(t, p.Uninstall(ctx), errutils.ErrNotInstalled)

	protected, err := NewFromInstalled(f.installed("core", "1.0", model.KindHostLegacy), true, false)
	require.NoError(t, err)
	assert.ErrorIs(t, protected.Uninstall(ctx), errutils.ErrProtected)
	assert.True(t, protected.Installed())
}

func TestUninstall_UnloadFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	loader := loadermocks.NewMockLoader(ctrl)
	loader.EXPECT().Unload("foo").Return(errors.New("busy"))
	p, err := NewFromInstalled(f.installed("foo", "1.0", model.KindHostLegacy), false, true)
	require.NoError(t, err)
	p.SetLoader(loader)

	require.Error(t, p.Uninstall(context.Background()))
	assert.True(t, p.Installed())
	assert.Zero(t, f.installer.uninstalls)
}

func TestLoadUnloadReload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)

	loader := loadermocks.NewMockLoader(ctrl)
	inst := f.installed("foo", "1.0", model.KindHostLegacy)
	p, err := NewFromInstalled(inst, false, false)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Load(), errutils.ErrNotImplemented)
	p.SetLoader(loader)

	gomock.InOrder(
		loader.EXPECT().Load("foo", inst.Path()).Return(nil),
		loader.EXPECT().Unload("foo").Return(nil),
		loader.EXPECT().Load("foo", inst.Path()).Return(nil),
		loader.EXPECT().Unload("foo").Return(errors.New("stuck")),
	)
	require.NoError(t, p.Load())
	assert.True(t, p.Active())
	require.NoError(t, p.Reload())
	assert.True(t, p.Active())
	require.Error(t, p.Reload(), "a failed unload skips the load")
	assert.True(t, p.Active())
}

func TestUpgradeKeepsActivePluginLoaded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newFixture(t)
	a := &mockOwner{id: "a"}

	loader := loadermocks.NewMockLoader(ctrl)
	p, err := NewFromInstalled(f.installed("foo", "1.0", model.KindPackageIndex), false, true)
	require.NoError(t, err)
	p.SetLoader(loader)
	require.NoError(t, p.AddRelease(f.available("foo", "2.0", a, model.KindPackageIndex)))

	gomock.InOrder(
		loader.EXPECT().Unload("foo").Return(nil),
		loader.EXPECT().Load("foo", gomock.Any()).Return(nil),
	)
	require.NoError(t, p.Install(context.Background(), DefaultInstallOptions()))
	assert.True(t, p.Active())
	assert.Equal(t, "2.0", p.InstalledRelease().Version().Original())
}

func TestInvariantsAcrossSequence(t *testing.T) {
	f := newFixture(t)
	a := &mockOwner{id: "a"}
	b := &mockOwner{id: "b"}
	ctx := context.Background()

	p, err := NewFromAvailable(f.available("foo", "1.0", a, model.KindPackageIndex))
	require.NoError(t, err)
	steps := []func() error{
		func() error { return p.AddRelease(f.available("foo", "2.0", b, model.KindPackageIndex)) },
		func() error { return p.Install(ctx, DefaultInstallOptions()) },
		func() error { return p.AddRelease(f.available("foo", "3.0", a, model.KindPackageIndex)) },
		func() error { p.ClearReleases(); return nil },
		func() error { return p.AddRelease(f.available("foo", "1.0", a, model.KindPackageIndex)) },
		func() error { return p.AddRelease(f.available("foo", "2.0", b, model.KindPackageIndex)) },
		func() error {
			opts := DefaultInstallOptions()
			opts.Release = p.AvailableReleases()[1]
			return p.Install(ctx, opts)
		},
		func() error { return p.Uninstall(ctx) },
		func() error { return p.Install(ctx, DefaultInstallOptions()) },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assertInvariants(t, p)
	}
	assert.Equal(t, "1.0", p.InstalledRelease().Version().Original())
}
