package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "shopsync",
		Short: "shopsync - Shopify stream extraction",
		Long: `shopsync reads a Shopify shop through the Admin REST and bulk GraphQL APIs
and writes RECORD, STATE and LOG messages as JSON lines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to the source configuration file (YAML or JSON)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "-", "Where protocol messages are written; - is stdout")
	root.PersistentFlags().StringVar(&flags.compression, "compression", "none", "Compress the message output (none, gzip, zstd, lz4, snappy, s2)")
	root.PersistentFlags().BoolVar(&flags.gzip, "gzip", false, "Shorthand for --compression gzip")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-encoding", "json", "Log encoding (json, console)")
	root.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	root.PersistentFlags().Bool("trace", false, "Export trace spans to stderr")

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shopsync v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// List command to show available sources
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available sources",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Sources:")
			for _, source := range registry.ListSources() {
				fmt.Fprintf(out, "  - %s\n", source)
			}
		},
	})

	root.AddCommand(
		newSpecCommand(flags),
		newCheckCommand(flags),
		newDiscoverCommand(flags),
		newReadCommand(flags),
	)
	return root
}
