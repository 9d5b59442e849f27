// Command framed runs an echo server or a client speaking the framed
// message protocol.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel  string
	logFormat string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "framed",
		Short: "Exchange framed messages over TCP",
		Long: `framed sends and receives length-prefixed, sentinel-delimited messages
over TCP. Each message travels as

  0x01 | u32 length (big-endian) | 0x02 | payload | 0x03 | 0x04`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "console", "log format (console, json)")

	cmd.AddCommand(
		serveCmd(&flags),
		sendCmd(&flags),
		versionCmd(),
	)

	return cmd
}
