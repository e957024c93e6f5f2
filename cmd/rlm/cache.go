package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clean the result cache",
	Long:  `Inspect or clean the sub-task result cache in ` + cache.DirName + `/.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cache entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openCache()
		if err != nil {
			return err
		}
		s, err := m.Stats()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(s)
		}
		fmt.Printf("%s %d entries, %d expired, %d corrupt\n", mutedStyle.Render(m.Dir()+":"), s.Entries, s.Expired, s.Corrupt)
		if !m.Enabled() {
			printStatus("⚠", "Caching is disabled in config", color.FgYellow)
		}
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and unreadable entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openCache()
		if err != nil {
			return err
		}
		n, err := m.Prune()
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Removed %d entries", n), color.FgGreen)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openCache()
		if err != nil {
			return err
		}
		if err := m.Clear(); err != nil {
			return err
		}
		printStatus("✓", "Cache cleared", color.FgGreen)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openCache builds the cache manager for the working directory without
// opening storage or the ledger.
func openCache() (*cache.Manager, error) {
	e, err := loadEnv(false)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return cache.New(cache.Config{
		WorkDir: e.dir,
		Enabled: e.cfg.Orchestrator.CacheEnabled,
		TTL:     e.cfg.Orchestrator.CacheTTL(),
	}), nil
}
