package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/config"
)

var importOutputPath string

var importCmd = &cobra.Command{
	Use:   "import <database-file>",
	Short: "Load a Codec-format database file and re-save it at the configured path",
	Long: "Reads a database file in the Codec format (spec §6.4: library directory, " +
		"artists, albums, songs, covers) and writes it to the configured database " +
		"path, assigning a fresh destination without touching queue state (which " +
		"is never persisted).",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importOutputPath, "database", "", "destination database path (default: configured database_path)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	src := args[0]

	cat, err := catalog.Load(src)
	if err != nil {
		return fmt.Errorf("load %s: %w", src, err)
	}

	dst := importOutputPath
	if dst == "" {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dst = cfg.DatabasePath
	}

	if err := cat.Save(dst); err != nil {
		return fmt.Errorf("save %s: %w", dst, err)
	}

	fmt.Printf("imported %d artists, %d albums, %d songs into %s\n",
		len(cat.Artists()), len(cat.Albums()), len(cat.Songs()), dst)
	return nil
}
