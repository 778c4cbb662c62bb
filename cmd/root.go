package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sonexa",
	Short: "Sonexa is a local-first audio asset library with remote mirroring.",
	Long: `Sonexa manages a content-addressed local audio library and keeps it
eventually consistent with a remote object store, tolerating intermittent
connectivity and external file-system changes.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
