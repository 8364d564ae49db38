package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"stemdeck/config"
	"stemdeck/core/separator"
	"stemdeck/logger"
	"stemdeck/storage"
)

var (
	separateInput    string
	separateSplitter string
	separateModel    string
)

var separateCmd = &cobra.Command{
	Use:   "separate",
	Short: "Separate an audio file into stems",
	Long:  `Run a stem separation on a local audio file without starting the server. The source is copied into the upload directory and the stems land in the separated directory, exactly as an API upload would.`,
	Run: func(cmd *cobra.Command, args []string) {
		if separateInput == "" && len(args) > 0 {
			separateInput = args[0]
		}
		if separateInput == "" {
			fmt.Println("an input file is required: stemdeck separate <file>")
			os.Exit(1)
		}

		cfg := config.Load()
		logger.Init(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})
		defer logger.Sync()

		store, err := storage.NewStore(cfg.UploadDir, cfg.SeparatedDir)
		if err != nil {
			log.Fatalf("storage setup failed: %v", err)
		}
		if !storage.AllowedExtension(separateInput) {
			log.Fatalf("unsupported file type, allowed: %s",
				strings.Join(storage.AllowedExtensions(), ", "))
		}

		f, err := os.Open(separateInput)
		if err != nil {
			log.Fatalf("could not open input: %v", err)
		}
		jobID := storage.SanitizeJobID(filepath.Base(separateInput))
		src, err := store.SaveSource(jobID, strings.ToLower(filepath.Ext(separateInput)), f)
		f.Close()
		if err != nil {
			log.Fatalf("could not stage input: %v", err)
		}
		fmt.Printf("Separating %s (job %s)...\n", separateInput, jobID)

		svc := separator.New(separator.Config{
			DemucsPath:   cfg.DemucsPath,
			SpleeterPath: cfg.SpleeterPath,
			SeparatedDir: cfg.SeparatedDir,
			DefaultTool:  cfg.DefaultSplitter,
			DefaultModel: cfg.DefaultModel,
		})
		manifest, err := svc.Separate(context.Background(), separator.Request{
			JobID:      jobID,
			SourcePath: src,
			Tool:       separateSplitter,
			Model:      separateModel,
			Progress: func(stem, path string) {
				fmt.Printf("  produced %s\n", stem)
			},
		})
		if err != nil {
			log.Fatalf("separation failed: %v", err)
		}

		fmt.Printf("\nDone. %d stems in %s:\n", len(manifest.Stems), manifest.OutputDir)
		for _, stem := range manifest.Stems {
			fmt.Printf("  %-8s %s\n", stem.Name, stem.Path)
		}
	},
}

func init() {
	separateCmd.Flags().StringVarP(&separateInput, "input", "i", "", "audio file to separate")
	separateCmd.Flags().StringVarP(&separateSplitter, "splitter", "s", "", "separation tool (demucs, spleeter)")
	separateCmd.Flags().StringVarP(&separateModel, "model", "m", "", "model for the chosen splitter")
	rootCmd.AddCommand(separateCmd)
}
