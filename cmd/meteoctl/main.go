// Command meteoctl reads channels from and synchronizes the clock of
// Meteodata 3000 stations described in a YAML station file.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	config   string
	logLevel string
	console  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "meteoctl",
		Short: "Meteodata 3000 station client",
		Long: `meteoctl polls Meteodata 3000 environmental stations over TCP or a serial
line, decodes their channel readings and synchronizes their clocks.

Stations, channel catalogs and protocol constants are read from a YAML station
file (--config).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "stations.yaml", "station file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flags.console, "console", false, "human-readable console logs instead of JSON")

	rootCmd.AddCommand(newReadCmd(flags))
	rootCmd.AddCommand(newSyncCmd(flags))
	rootCmd.AddCommand(newPollCmd(flags))
	rootCmd.AddCommand(newEmulateCmd(flags))

	return rootCmd
}
