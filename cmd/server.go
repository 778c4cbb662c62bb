package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"sonexa/config"
	"sonexa/internal/app"
	"sonexa/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the library server",
	Long: `Starts the HTTP API, the websocket event stream, the filesystem
watcher over the library tree and the background sync runner.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		hub := server.NewHub()
		a, err := app.New(cfg, hub)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		// Crash recovery first: items stuck in processing become
		// schedulable again before anything new is claimed.
		if err := a.Recover(); err != nil {
			log.Fatalf("Failed to recover sync queue: %v", err)
		}

		a.Pool.Start()
		if err := a.Watcher.Start(); err != nil {
			log.Fatalf("Failed to start watcher: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go a.Engine.Run(ctx)

		handler := server.NewAPIHandler(a.Catalog, a.Queue, a.Library, a.Engine, a.Watcher, a.Settings, a.Secrets)
		if err := server.Start(cfg.HTTPAddr, handler, hub); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
