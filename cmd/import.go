package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"sonexa/config"
	"sonexa/internal/app"
	"sonexa/model"
)

var importForceClass string

var importCmd = &cobra.Command{
	Use:   "import [files...]",
	Short: "Import audio files into the library",
	Long: `Imports the given files: hashes them, drops byte-identical
duplicates, copies accepted files into the managed library tree and
catalogs them.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		a, err := app.New(cfg, nil)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		a.Pool.Start()

		var force model.AssetClass
		if importForceClass != "" {
			force = model.AssetClass(importForceClass)
			if !force.Valid() {
				log.Fatalf("Invalid asset class %q (want music or sfx)", importForceClass)
			}
		}

		result := a.Library.ImportFiles(context.Background(), args, force)

		fmt.Printf("Imported: %d\n", len(result.Success))
		for _, entry := range result.Success {
			fmt.Printf("  %s  %s (%s)\n", entry.ID, entry.Filename, entry.AssetClass)
		}
		if len(result.Duplicates) > 0 {
			fmt.Printf("Duplicates (skipped): %d\n", len(result.Duplicates))
			for _, p := range result.Duplicates {
				fmt.Printf("  %s\n", p)
			}
		}
		if len(result.Failed) > 0 {
			fmt.Printf("Failed: %d\n", len(result.Failed))
			for _, p := range result.Failed {
				fmt.Printf("  %s\n", p)
			}
		}
	},
}

func init() {
	importCmd.Flags().StringVarP(&importForceClass, "class", "c", "", "force asset class (music or sfx) instead of the filename heuristic")
	rootCmd.AddCommand(importCmd)
}
