package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/musicdbd/internal/cache"
	"github.com/austinkregel/local-media/musicdbd/internal/catalog"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/config"
	"github.com/austinkregel/local-media/musicdbd/internal/fanout"
	"github.com/austinkregel/local-media/musicdbd/internal/playback"
	"github.com/austinkregel/local-media/musicdbd/internal/queue"
	"github.com/austinkregel/local-media/musicdbd/internal/server"
)

var (
	serveListenAddress string
	serveLibraryDir    string
	serveDatabasePath  string
	serveCustomDir     string
	serveBackend       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the musicdbd server",
	Long:  "Load the database, start the command engine, playback scheduler, and cache manager, and accept client connections",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddress, "listen", "", "TCP address to accept connections on")
	serveCmd.Flags().StringVar(&serveLibraryDir, "library", "", "music library directory")
	serveCmd.Flags().StringVar(&serveDatabasePath, "database", "", "path to the persisted database file")
	serveCmd.Flags().StringVar(&serveCustomDir, "custom-files", "", "directory served by the custom-file bulk-fetch verb")
	serveCmd.Flags().StringVar(&serveBackend, "audio-backend", "", "audio backend to drive: oto, beep, or sleep (default: oto)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyServeFlags(cfg)
	setLogLevel(cfg.LogLevel)

	cat, err := catalog.Load(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}
	if cfg.LibraryDirectory != "" {
		cat.SetLibraryDirectory(cfg.LibraryDirectory)
	}

	q := queue.New()
	fo := fanout.New()
	engine := command.New(cat, q, cfg.DatabasePath, fo)

	backend, err := newAudioBackend(serveBackend, cat)
	if err != nil {
		return fmt.Errorf("audio backend: %w", err)
	}
	scheduler := playback.NewScheduler(engine, backend)
	scheduler.Start()
	defer scheduler.Stop()

	cacheMgr := cache.NewManager(engine,
		cfg.Cache.MinAvailMemMiB*1024*1024,
		cfg.Cache.MaxAvailMemMiB*1024*1024,
		cfg.Cache.SongsToCache)
	cacheMgr.Start()
	defer cacheMgr.Stop()

	bulk := server.NewBulkFetcher(cat)
	if cfg.CustomFilesDirectory != "" {
		bulk.EnableCustomFiles(cfg.CustomFilesDirectory)
	}

	srv := server.New(engine, fo, bulk)
	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		srv.Stop()
		return nil
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func applyServeFlags(cfg *config.Config) {
	if serveListenAddress != "" {
		cfg.ListenAddress = serveListenAddress
	}
	if serveLibraryDir != "" {
		cfg.LibraryDirectory = serveLibraryDir
	}
	if serveDatabasePath != "" {
		cfg.DatabasePath = serveDatabasePath
	}
	if serveCustomDir != "" {
		cfg.CustomFilesDirectory = serveCustomDir
	}
}

func newAudioBackend(name string, cat *catalog.Catalog) (playback.AudioBackend, error) {
	switch name {
	case "beep":
		return playback.NewBeepBackend()
	case "sleep":
		return playback.NewSleepBackend(cat), nil
	case "", "oto":
		return playback.NewOtoBackend()
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}
