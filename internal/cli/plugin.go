package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/metadata"
	"github.com/glorpus-work/plugdex/pkg/plugin"
	"github.com/glorpus-work/plugdex/pkg/release"
	"github.com/glorpus-work/plugdex/pkg/version"
)

// NewPluginCmd creates the plugin command with subcommands.
func NewPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugins",
		Long:  "List, inspect, install, uninstall and check plugins",
	}

	cmd.AddCommand(
		newPluginListCmd(),
		newPluginInfoCmd(),
		newPluginInstallCmd(),
		newPluginUninstallCmd(),
		newPluginCheckCmd(),
	)

	return cmd
}

func newPluginListCmd() *cobra.Command {
	var (
		installed  bool
		upgradable bool
		nameFilter string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins",
		Long: `List every known plugin, installed or offered by an enabled repository.

Use --installed or --upgradable to narrow the list and --name to filter by id.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			var plugins []*plugin.Plugin
			for _, p := range a.index.Plugins() {
				switch {
				case installed && !p.Installed():
				case upgradable && !p.Upgradable():
				case nameFilter != "" && !strings.Contains(p.ID(), nameFilter):
				default:
					plugins = append(plugins, p)
				}
			}
			if len(plugins) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No plugins found")
				return nil
			}
			renderPlugins(cmd.OutOrStdout(), plugins, a.host.CompatibilityVersion())
			return nil
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "Only list installed plugins")
	cmd.Flags().BoolVar(&upgradable, "upgradable", false, "Only list plugins with a newer release available")
	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter plugins by id (partial match)")

	return cmd
}

func newPluginInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info ID",
		Short: "Show plugin details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.index.Plugin(args[0])
			if err != nil {
				return err
			}
			renderPluginInfo(cmd.OutOrStdout(), p, a.host.CompatibilityVersion())
			return nil
		},
	}
}

func newPluginInstallCmd() *cobra.Command {
	var (
		ver        string
		repo       string
		opts       = plugin.DefaultInstallOptions()
		noUpdate   bool
		reinstall  bool
		typeChange bool
		downgrade  bool
	)

	cmd := &cobra.Command{
		Use:   "install ID",
		Short: "Install or upgrade a plugin",
		Long: `Install a plugin from the enabled repositories.

Without --version the newest release of the highest priority repository
offering the plugin is installed. An installed plugin is replaced only when
the flags allow the transition.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.index.Plugin(args[0])
			if err != nil {
				return err
			}
			if ver != "" || repo != "" {
				if opts.Release, err = selectRelease(p, ver, repo); err != nil {
					return err
				}
			}
			opts.AllowUpdate = !noUpdate
			opts.AllowSameVersion = reinstall
			opts.AllowTypeChange = typeChange
			opts.AllowDowngrade = downgrade
			if err := a.index.InstallPlugin(cmd.Context(), p.ID(), opts); err != nil {
				return fmt.Errorf("failed to install plugin: %w", err)
			}
			installed := p.InstalledRelease()
			if !installed.Compatible(a.host.CompatibilityVersion()) {
				logger.Warn("Installed release does not support this host version", logger.Fields{
					"plugin": p.ID(), "host": a.host.Version().Original(),
				})
			}
			logger.Success("Plugin installed", logger.Fields{"plugin": p.ID(), "release": installed.String()})
			return nil
		},
	}

	cmd.Flags().StringVar(&ver, "version", "", "Release version to install")
	cmd.Flags().StringVar(&repo, "repository", "", "Repository id to install from")
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "Refuse to replace an older installed release")
	cmd.Flags().BoolVar(&reinstall, "reinstall", false, "Allow installing the installed version again")
	cmd.Flags().BoolVar(&typeChange, "allow-type-change", false, "Allow replacing a release from another repository type")
	cmd.Flags().BoolVar(&downgrade, "allow-downgrade", false, "Allow replacing a newer installed release")

	return cmd
}

func newPluginUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall ID",
		Short: "Uninstall a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.index.UninstallPlugin(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to uninstall plugin: %w", err)
			}
			logger.Success("Plugin uninstalled", logger.Fields{"plugin": args[0]})
			return nil
		},
	}
}

func newPluginCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check ID",
		Short: "Load an installed plugin in the host runtime and unload it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := a.index.Plugin(args[0])
			if err != nil {
				return err
			}
			if err := p.Load(); err != nil {
				return err
			}
			if err := p.Unload(); err != nil {
				return err
			}
			logger.Success("Plugin loads", logger.Fields{"plugin": p.ID()})
			return nil
		},
	}
}

func selectRelease(p *plugin.Plugin, ver, repo string) (*release.Release, error) {
	for _, r := range p.AvailableReleases() {
		if ver != "" && r.Version().Original() != ver && r.Version().String() != ver {
			continue
		}
		if repo != "" && (r.Owner() == nil || r.Owner().ID() != repo) {
			continue
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: no release of %s matches version %q repository %q", errutils.ErrNotFound, p.ID(), ver, repo)
}

// newestRelease returns the newest available release supporting host, or the
// newest overall when none does. The second result reports compatibility.
func newestRelease(p *plugin.Plugin, host version.Version) (*release.Release, bool) {
	var newest, compatible *release.Release
	for _, r := range p.AvailableReleases() {
		if newest == nil || r.Version().Greater(newest.Version()) {
			newest = r
		}
		if r.Compatible(host) && (compatible == nil || r.Version().Greater(compatible.Version())) {
			compatible = r
		}
	}
	if compatible != nil {
		return compatible, true
	}
	return newest, false
}

func pluginStatus(p *plugin.Plugin, host version.Version) string {
	newest, compatible := newestRelease(p, host)
	switch {
	case !p.Installed() && newest != nil && !compatible:
		return "incompatible"
	case !p.Installed():
		return "available"
	case !p.InstalledRelease().Compatible(host):
		return "incompatible"
	case p.Upgradable():
		return "upgradable"
	case p.Orphan():
		return "orphan"
	default:
		return "installed"
	}
}

func renderPlugins(w io.Writer, plugins []*plugin.Plugin, host version.Version) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Installed", "Latest", "Status", "Description"})
	for _, p := range plugins {
		installed, latest, description := "", "", ""
		if r := p.InstalledRelease(); r != nil {
			installed = r.Version().Original()
			description = r.Meta().Text(metadata.FieldDescription)
		}
		newest, _ := newestRelease(p, host)
		if newest != nil {
			latest = newest.Version().Original()
			if description == "" {
				description = newest.Meta().Text(metadata.FieldDescription)
			}
		}
		status := pluginStatus(p, host)
		if p.Deprecated() {
			status += ", deprecated"
		}
		t.AppendRow(table.Row{p.ID(), installed, latest, status, truncate(description, MaxDescriptionLength)})
	}
	t.SetStyle(tableStyle())
	t.Render()
}

func renderPluginInfo(w io.Writer, p *plugin.Plugin, host version.Version) {
	_, _ = fmt.Fprintf(w, "Plugin: %s\n", p.ID())
	_, _ = fmt.Fprintf(w, "Status: %s\n", pluginStatus(p, host))
	_, _ = fmt.Fprintf(w, "Protected: %s\n", yesNo(p.Protected()))
	_, _ = fmt.Fprintf(w, "Deprecated: %s\n", yesNo(p.Deprecated()))
	if r := p.InstalledRelease(); r != nil {
		_, _ = fmt.Fprintf(w, "Installed: %s at %s\n", r, r.Path())
		if !r.Meta().RequiredFieldsPresent(metadata.FieldID) {
			_, _ = fmt.Fprintf(w, "Missing metadata: %s\n", strings.Join(r.Meta().MissingRequiredFields(metadata.FieldID), ", "))
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Version", "Repository", "Type", "Stable", "Compatible", "Minimum host"})
	for _, r := range p.AvailableReleases() {
		owner := ""
		if r.Owner() != nil {
			owner = r.Owner().ID()
		}
		t.AppendRow(table.Row{
			r.Version().Original(),
			owner,
			r.Kind(),
			yesNo(r.Version().Stable() && !r.Experimental()),
			yesNo(r.Compatible(host)),
			fieldText(r.Meta(), metadata.FieldHostMinimumVersion),
		})
	}
	t.SetStyle(tableStyle())
	t.Render()
}

// fieldText renders any field kind, empty when unset.
func fieldText(meta *metadata.Record, name string) string {
	f := meta.Field(name)
	if f == nil || !f.HasValue() {
		return ""
	}
	s, _ := f.ValueString()
	return s
}
