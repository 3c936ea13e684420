package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/model"
	"github.com/glorpus-work/plugdex/pkg/repository"
)

// NewRepoCmd creates the repo command with subcommands.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
		Long:  "Add, remove, list, reorder and refresh plugin repositories",
	}

	cmd.AddCommand(
		newRepoListCmd(),
		newRepoAddCmd(),
		newRepoRemoveCmd(),
		newRepoPriorityCmd("up", -1),
		newRepoPriorityCmd("down", 1),
		newRepoActiveCmd("enable", true),
		newRepoActiveCmd("disable", false),
		newRepoRefreshCmd(),
	)

	return cmd
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured repositories",
		Long:  "List all repositories in priority order, highest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			renderRepositories(cmd.OutOrStdout(), a.index.Repositories())
			return nil
		},
	}
}

func newRepoAddCmd() *cobra.Command {
	var (
		id       string
		name     string
		kind     string
		authcfg  string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Add a repository",
		Long:  "Add a plugin repository by URL. New repositories get the highest priority.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if id == "" {
				id = repositoryIDFromURL(args[0])
			}
			repo, err := a.index.CreateRepository(model.Kind(kind), id, repository.Options{
				Name:    name,
				URL:     args[0],
				AuthCfg: authcfg,
				Active:  !disabled,
			})
			if err != nil {
				return fmt.Errorf("failed to add repository: %w", err)
			}
			logger.Success("Repository added", logger.Fields{"id": repo.ID(), "url": repo.URL()})
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Repository id (derived from the URL host if not provided)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().StringVar(&kind, "type", model.KindPackageIndex.String(), "Repository type (package-index, host-legacy)")
	cmd.Flags().StringVar(&authcfg, "authcfg", "", "Authentication config id from the auth section of the config file")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Add the repository disabled")

	return cmd
}

func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a repository",
		Long:  "Remove an unprotected repository and its cached release list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.index.RemoveRepository(args[0]); err != nil {
				return fmt.Errorf("failed to remove repository '%s': %w", args[0], err)
			}
			logger.Success("Repository removed", logger.Fields{"id": args[0]})
			return nil
		},
	}
}

func newRepoPriorityCmd(use string, direction int) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: "Move a repository " + use + " by one priority step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.index.ChangePriority(args[0], direction); err != nil {
				return err
			}
			renderRepositories(cmd.OutOrStdout(), a.index.Repositories())
			return nil
		},
	}
}

func newRepoActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.index.SetRepositoryActive(args[0], active); err != nil {
				return err
			}
			logger.Success("Repository updated", logger.Fields{"id": args[0], "enabled": active})
			return nil
		},
	}
}

func newRepoRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [ID...]",
		Short: "Refresh repository release lists",
		Long:  "Fetch the release lists of the given repositories, or of every enabled repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				if err := a.index.RefreshAll(cmd.Context()); err != nil {
					return fmt.Errorf("failed to refresh repositories: %w", err)
				}
			}
			for _, id := range args {
				if err := a.index.RefreshRepository(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to refresh repository '%s': %w", id, err)
				}
			}
			renderRepositories(cmd.OutOrStdout(), a.index.Repositories())
			return nil
		},
	}
}

func renderRepositories(w io.Writer, repos []*repository.Repository) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "ID", "Type", "Enabled", "Protected", "Releases", "URL"})
	for _, r := range repos {
		t.AppendRow(table.Row{
			r.Priority(),
			r.ID(),
			r.Kind(),
			yesNo(r.Active()),
			yesNo(r.Protected()),
			r.Len(),
			truncate(r.URL(), MaxURLLength),
		})
	}
	t.SetStyle(tableStyle())
	t.Render()
}

// repositoryIDFromURL derives an id from the host name of rawURL.
func repositoryIDFromURL(rawURL string) string {
	s := rawURL
	if _, rest, ok := strings.Cut(s, "://"); ok {
		s = rest
	}
	if h, _, ok := strings.Cut(s, "/"); ok {
		s = h
	}
	return strings.TrimPrefix(s, "www.")
}
