package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"sonexa/config"
	"sonexa/internal/app"
	"sonexa/storage"
)

var (
	queueClearFailed bool
	queueDrain       bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the sync queue",
	Long: `Shows sync queue statistics. --drain processes one batch of
eligible items; --clear-failed drops items that exhausted their retries.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		a, err := app.New(cfg, nil)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		if err := a.Recover(); err != nil {
			log.Fatalf("Failed to recover sync queue: %v", err)
		}

		if queueClearFailed {
			cleared, err := a.Queue.ClearPermanentlyFailed()
			if err != nil {
				log.Fatalf("Failed to clear failed items: %v", err)
			}
			fmt.Printf("Cleared %d permanently failed item(s)\n", cleared)
		}

		if queueDrain {
			a.Pool.Start()
			processed, err := a.Engine.ProcessQueue(context.Background(), 10)
			if err != nil {
				if errors.Is(err, storage.ErrRemoteNotConfigured) {
					log.Fatal("Remote store is not configured; nothing to drain against.")
				}
				log.Fatalf("Failed to drain queue: %v", err)
			}
			fmt.Printf("Processed %d item(s)\n", processed)
		}

		stats, err := a.Queue.Stats()
		if err != nil {
			log.Fatalf("Failed to read queue stats: %v", err)
		}
		fmt.Printf("Pending:            %d\n", stats.Pending)
		fmt.Printf("Processing:         %d\n", stats.Processing)
		fmt.Printf("Permanently failed: %d\n", stats.PermanentlyFailed)
		fmt.Printf("Total:              %d\n", stats.Total)
	},
}

func init() {
	queueCmd.Flags().BoolVar(&queueClearFailed, "clear-failed", false, "delete permanently failed items")
	queueCmd.Flags().BoolVar(&queueDrain, "drain", false, "process one batch of eligible items")
	rootCmd.AddCommand(queueCmd)
}
