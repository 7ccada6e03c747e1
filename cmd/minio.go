package cmd

import (
	"context"
	"fmt"
	"log"

	"artistsfirst/config"
	"artistsfirst/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "List objects in the MinIO bucket",
	Long:  `Connect to MinIO with the configured credentials and list bucket objects, optionally filtered by prefix.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Cannot connect to MinIO: %v", err)
		}

		client := storage.GetMinioClient()
		var count int
		var total int64
		for object := range client.ListObjects(context.Background(), cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("Listing failed: %v", object.Err)
			}
			fmt.Printf("%12d  %s\n", object.Size, object.Key)
			count++
			total += object.Size
		}
		fmt.Printf("%d objects, %d bytes\n", count, total)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "filter objects by prefix")
}
