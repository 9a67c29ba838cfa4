//go:build linux

package main

import (
	"context"
	"os/signal"

	"github.com/containerd/log"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/daemon"
	"github.com/spin-stack/procsnap/internal/logging"
	"github.com/spin-stack/procsnap/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot daemon on the control fifo",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	log.G(ctx).WithFields(log.Fields{
		"version":   version.Short(),
		"proc_root": cfg.Paths.ProcRoot,
		"fifo":      cfg.Paths.ControlFIFO,
	}).Info("starting procsnap")

	d, err := daemon.New(cfg, daemon.WithReloader(reloadConfig))
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.G(ctx).WithError(err).Warn("failed to close daemon")
		}
	}()

	if err := d.Run(ctx); err != nil {
		return err
	}
	log.G(ctx).Info("procsnap stopped")
	return nil
}
