package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spin-stack/procsnap/internal/snapshot"
)

// requestFlags are shared by trigger and snapshot.
type requestFlags struct {
	pid      int32
	sections []string
	command  uint32
	dir      string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	var names []string
	for _, s := range snapshot.Sections() {
		names = append(names, s.String())
	}
	cmd.Flags().Int32VarP(&f.pid, "pid", "p", 0, "target process id")
	cmd.Flags().StringSliceVarP(&f.sections, "sections", "s", names, "sections to dump")
	cmd.Flags().Uint32Var(&f.command, "command", 0, "raw command mask, overrides --sections")
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "output directory (default: the daemon's working directory)")
	_ = cmd.MarkFlagRequired("pid")
}

// request builds the operation request. A relative directory is resolved
// here, because the daemon has a different working directory.
func (f *requestFlags) request(cmd *cobra.Command) (snapshot.OperationRequest, error) {
	req := snapshot.OperationRequest{TargetID: f.pid}

	if cmd.Flags().Changed("command") {
		req.Command = snapshot.Command(f.command)
	} else {
		for _, name := range f.sections {
			s, err := snapshot.ParseSection(name)
			if err != nil {
				return req, err
			}
			req.Command |= s.Bit()
		}
	}

	if f.dir != "" {
		abs, err := filepath.Abs(f.dir)
		if err != nil {
			return req, fmt.Errorf("failed to resolve %s: %w", f.dir, err)
		}
		req.OutputDirectory = abs
	}
	return req, nil
}
