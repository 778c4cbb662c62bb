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

var syncStatusOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local library with the remote store",
	Long: `Diffs the local catalog against the remote listing and moves the
delta: local-only entries are uploaded, remote-only objects downloaded.
With --status only the counts are reported.`,
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
		a.Pool.Start()

		ctx := context.Background()

		if syncStatusOnly {
			report, err := a.Engine.ComputeSyncStatus(ctx)
			if err != nil {
				if errors.Is(err, storage.ErrRemoteNotConfigured) {
					log.Fatal("Remote store is not configured. Set MINIO_ENDPOINT and credentials first.")
				}
				log.Fatalf("Failed to compute sync status: %v", err)
			}
			fmt.Printf("Upload needed:   %d\n", report.UploadNeeded)
			fmt.Printf("Download needed: %d\n", report.DownloadNeeded)
			return
		}

		result, err := a.Engine.FullSync(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrRemoteNotConfigured) {
				log.Fatal("Remote store is not configured. Set MINIO_ENDPOINT and credentials first.")
			}
			log.Fatalf("Sync failed: %v", err)
		}
		fmt.Printf("Uploaded:   %d\n", result.Uploaded)
		fmt.Printf("Downloaded: %d\n", result.Downloaded)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncStatusOnly, "status", false, "report pending counts without syncing")
	rootCmd.AddCommand(syncCmd)
}
