package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/filecache"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the plugin archive cache",
		Long:  "Clear, show information about, and locate the downloaded plugin archives",
	}

	cmd.AddCommand(
		newCacheClearCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func openCache() (*filecache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return filecache.New(cfg.GetArchiveCacheDir(), nil)
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached archive",
		RunE: func(*cobra.Command, []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			before, err := cache.Usage()
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			logger.Success("Cache cleared", logger.Fields{"files": before.Files, "bytes": before.Bytes})
			return nil
		},
	}
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := openCache()
			if err != nil {
				return err
			}
			u, err := cache.Usage()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Cache Directory: %s\n", cache.Root())
			_, _ = fmt.Fprintf(out, "Archives: %d\n", u.Files)
			_, _ = fmt.Fprintf(out, "Total Size: %d bytes\n", u.Bytes)
			return nil
		},
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cfg.GetArchiveCacheDir())
			return nil
		},
	}
}
