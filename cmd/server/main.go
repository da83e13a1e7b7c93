// Package main is the entry point for the DenApp Control agenda server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/denapp-control/backend/internal/config"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

// rootOptions are flags shared by every command. Set flags win over the
// environment.
type rootOptions struct {
	addr      string
	dataDir   string
	staticDir string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCommand(opts)

	cmd := &cobra.Command{
		Use:           "denapp-server",
		Short:         "DenApp Control agenda server",
		Long:          "Mirrors the clinic agenda sheet into a local cache and serves it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		// With no subcommand the server runs.
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "HTTP server address (overrides DENAPP_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data", "", "Data directory for the SQLite database (overrides DENAPP_DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.staticDir, "static", "", "Directory for static frontend files (overrides DENAPP_STATIC_DIR)")
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(serve)
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newCheckSheetCommand(opts))
	return cmd
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.staticDir != "" {
		cfg.StaticDir = opts.staticDir
	}
	return cfg, nil
}
