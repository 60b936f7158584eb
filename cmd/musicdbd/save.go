package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/musicdbd/internal/codec"
	"github.com/austinkregel/local-media/musicdbd/internal/command"
	"github.com/austinkregel/local-media/musicdbd/internal/config"
)

var saveAddress string

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Ask a running musicdbd to write its database file",
	Long:  "Connect as a main client and send the Save command (spec §6.4); the command is authoritative and triggers no response",
	RunE:  runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveAddress, "listen", "", "TCP address of the running server")
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	addr := saveAddress
	if addr == "" {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr = cfg.ListenAddress
	}

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("main\n")); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	w := codec.NewWriter()
	command.Save().Encode(w)
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("send save command: %w", err)
	}

	fmt.Println("save requested")
	return nil
}
