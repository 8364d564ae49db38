package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemdeck/config"
	"stemdeck/core/separator"
	"stemdeck/db"
	"stemdeck/storage"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configured backends and separation tools",
	Long:  `Probe every optional backend (MySQL, Redis, MinIO) plus the separation tool binaries and report what this host can actually run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		fmt.Println("Separation tools:")
		svc := separator.New(separator.Config{
			DemucsPath:   cfg.DemucsPath,
			SpleeterPath: cfg.SpleeterPath,
			SeparatedDir: cfg.SeparatedDir,
			DefaultTool:  cfg.DefaultSplitter,
			DefaultModel: cfg.DefaultModel,
		})
		for _, tool := range svc.Tools() {
			state := "missing"
			if tool.Available {
				state = "ok"
			}
			fmt.Printf("  %-10s %s\n", tool.Name, state)
		}

		fmt.Println("Backends:")
		if cfg.DBEnabled {
			if err := db.ConnectGormDB(cfg); err != nil {
				fmt.Printf("  mysql      failed: %v\n", err)
			} else {
				fmt.Println("  mysql      ok")
				db.CloseGormDB()
			}
		} else {
			fmt.Println("  mysql      disabled")
		}

		if cfg.RedisEnabled {
			if err := db.ConnectRedis(cfg); err != nil {
				fmt.Printf("  redis      failed: %v\n", err)
			} else {
				fmt.Println("  redis      ok")
				db.CloseRedis()
			}
		} else {
			fmt.Println("  redis      disabled")
		}

		if cfg.MinioEnabled {
			_, err := storage.NewMirror(cfg.MinioEndpoint, cfg.MinioAccessKey,
				cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
			if err != nil {
				fmt.Printf("  minio      failed: %v\n", err)
			} else {
				fmt.Println("  minio      ok")
			}
		} else {
			fmt.Println("  minio      disabled")
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
