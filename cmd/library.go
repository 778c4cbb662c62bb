package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"sonexa/config"
	"sonexa/internal/app"
)

var libraryClear bool

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Show library contents and statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		a, err := app.New(cfg, nil)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		if libraryClear {
			removed, err := a.Library.ClearLibrary()
			if err != nil {
				log.Fatalf("Failed to clear library: %v", err)
			}
			fmt.Printf("Removed %d file(s), catalog emptied\n", removed)
			return
		}

		entries, err := a.Catalog.List()
		if err != nil {
			log.Fatalf("Failed to list library: %v", err)
		}

		for _, e := range entries {
			mirror := "local"
			if e.Mirrored() {
				mirror = "mirrored"
			}
			fmt.Printf("%-36s %-6s %-8s %8.1fs  %s\n", e.ID, e.AssetClass, mirror, e.DurationSeconds, e.Filename)
		}

		stats, err := a.Library.Stats()
		if err != nil {
			log.Fatalf("Failed to aggregate stats: %v", err)
		}
		fmt.Printf("\nmusic: %d  sfx: %d  total size: %.2f MB\n",
			stats.MusicCount, stats.SFXCount, float64(stats.TotalSize)/1024/1024)
	},
}

func init() {
	libraryCmd.Flags().BoolVar(&libraryClear, "clear", false, "remove every library file and empty the catalog")
	rootCmd.AddCommand(libraryCmd)
}
