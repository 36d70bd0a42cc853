package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information, set at build time
var (
	version = "dev"
	commit  = "none"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "offlinecache",
	Short: "Offline cache proxy for the Punto y Lana storefront",
	Long: `offlinecache sits in front of the storefront and keeps it usable offline.

Pages are fetched network-first and copied into a versioned cache. When the
storefront is unreachable, cached pages, the offline page or a 503 are
served instead. Requests under /api/ always go to the network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML configuration file")
	rootCmd.AddCommand(newServeCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "offlinecache: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "offlinecache %s (%s, %s)\n",
				version, commit[:min(7, len(commit))], runtime.Version())
		},
	}
}
