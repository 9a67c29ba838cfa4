//go:build linux

package main

import (
	"fmt"
	"io"

	"github.com/containerd/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/daemon"
	"github.com/spin-stack/procsnap/internal/snapshot"
)

var snapshotFlags requestFlags

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take one snapshot in this process, without the daemon",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

func init() {
	snapshotFlags.register(snapshotCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	req, err := snapshotFlags.request(cmd)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, daemon.WithoutMetrics())
	if err != nil {
		return err
	}
	defer d.Close()

	res := d.Submit(cmd.Context(), req)
	printResult(cmd.OutOrStdout(), res)
	return res.AsError()
}

func printResult(w io.Writer, res *snapshot.Result) {
	fmt.Fprintf(w, "%s pid %d in %s\n", res.Status, res.Request.TargetID, res.Duration)
	for _, s := range res.Sections {
		if s.OK() {
			fmt.Fprintf(w, "  %-14s %s (%s)\n", s.Section, s.Path, humanize.IBytes(uint64(s.Bytes)))
			continue
		}
		fmt.Fprintf(w, "  %-14s %s failure: %v\n", s.Section, s.Err.Kind, s.Err.Err)
	}
}
