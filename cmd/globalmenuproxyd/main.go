// Command globalmenuproxyd bridges GMenu-exporting applications to
// DBusMenu-consuming panels over the session bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/globalmenuproxy/globalmenuproxy/internal/config"
	"github.com/globalmenuproxy/globalmenuproxy/internal/daemon"
	"github.com/globalmenuproxy/globalmenuproxy/internal/windowwatcher"
)

// version is set at build time via -ldflags; it defaults to "dev" for
// local builds.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "globalmenuproxyd",
		Short: "Bridge GMenu application menus to DBusMenu panels",
	}

	resolve := config.BindFlags(root)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolve()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		level := slog.LevelInfo
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
		}
		slog.SetLogLoggerLevel(level)

		watcher := windowwatcher.NewManual()

		d, err := daemon.New(cfg, watcher)
		if err != nil {
			return fmt.Errorf("start daemon: %w", err)
		}
		slog.Info("daemon started", "service", d.ServiceName())

		return d.Run(context.Background())
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	})

	return root
}
