package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/control"
	"github.com/spin-stack/procsnap/internal/paths"
)

var (
	triggerFlags   requestFlags
	triggerTimeout time.Duration
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Send a snapshot request to the running daemon",
	Long: `trigger writes one request record to the daemon's control fifo and returns.
The outcome is logged by the daemon and kept in its history.`,
	Args: cobra.NoArgs,
	RunE: trigger,
}

func init() {
	triggerFlags.register(triggerCmd)
	triggerCmd.Flags().DurationVar(&triggerTimeout, "timeout", 5*time.Second, "how long to wait for the daemon to open the fifo")
}

func trigger(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	req, err := triggerFlags.request(cmd)
	if err != nil {
		return err
	}

	if !paths.ControlFIFOExists(cfg.Paths) {
		return fmt.Errorf("control fifo %s not found, is the daemon running?", cfg.Paths.ControlFIFO)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), triggerTimeout)
	defer cancel()
	if err := control.Send(ctx, cfg.Paths.ControlFIFO, req); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requested %s of pid %d\n", req.Command, req.TargetID)
	return nil
}
