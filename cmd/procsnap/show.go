package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/control"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print what reading the control channel returns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), control.NewChannel(cfg.Paths.ControlFIFO, nil).Show())
		return nil
	},
}
