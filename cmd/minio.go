package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"sonexa/config"
	"sonexa/storage"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the remote bucket",
	Long:  `Lists the objects in the remote store bucket, optionally under a prefix. Useful for checking what reconciliation will see.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		remote, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("Cannot connect to MinIO: %v", err)
		}

		ctx := context.Background()
		if err := remote.EnsureBucket(ctx); err != nil {
			log.Fatalf("Bucket check failed: %v", err)
		}

		objects, err := remote.List(ctx, minioPrefix)
		if err != nil {
			log.Fatalf("Failed to list objects: %v", err)
		}

		var totalSize int64
		for _, obj := range objects {
			fmt.Printf("%-60s %10d  %s\n", obj.Key, obj.Size, obj.UpdatedAt.Format("2006-01-02 15:04:05"))
			totalSize += obj.Size
		}
		fmt.Printf("\n%d object(s), %.2f MB total\n", len(objects), float64(totalSize)/1024/1024)
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "only list objects under this prefix")
	rootCmd.AddCommand(minioCmd)
}
