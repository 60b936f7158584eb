// Command musicdbd is the server daemon: it owns the catalog and play
// queue, applies commands through the single-writer engine, and serves
// the sync protocol and bulk-fetch protocol over TCP (spec §4.8, §4.9).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var preamble = `musicdbd ` + Version + `

musicdbd is a networked music library and playback engine: a single
server owns the catalog and play queue and broadcasts every mutation to
every connected client in the same order (see SPEC_FULL.md).`

var rootCmd = &cobra.Command{
	Use:     "musicdbd",
	Short:   "musicdbd networked music server",
	Long:    preamble,
	Version: Version,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: XDG config dir)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	execute()
}

// setLogLevel parses level (a logrus level name) and applies it to the
// standard logger every package-level "log" var is derived from.
func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unrecognized log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
