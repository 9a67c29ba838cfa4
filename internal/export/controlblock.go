package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"

	"github.com/spin-stack/procsnap/internal/sink"
)

// ControlBlock dumps the scheduler and accounting view of a process, read
// from /proc/<pid>/stat, status and cmdline.
type ControlBlock struct{}

// NewControlBlock returns the control block exporter.
func NewControlBlock() *ControlBlock {
	return &ControlBlock{}
}

// Export writes the control block of p to f starting at *off.
func (c *ControlBlock) Export(ctx context.Context, p procfs.Proc, f sink.File, off *int64) (int64, error) {
	stat, err := p.Stat()
	if err != nil {
		return 0, fmt.Errorf("read stat: %w", err)
	}
	// status and cmdline are best effort; a kernel thread has no cmdline and
	// restricted mounts may hide status.
	status, statusErr := p.NewStatus()
	cmdline, cmdErr := p.CmdLine()

	return render(ctx, f, off, func(buf *bytes.Buffer) error {
		writeFields(buf, statFields(stat))

		buf.WriteString("\n")
		if statusErr != nil {
			fmt.Fprintf(buf, "status: unavailable (%v)\n", statusErr)
		} else {
			writeFields(buf, statusFields(status))
		}

		buf.WriteString("\n")
		switch {
		case cmdErr != nil:
			fmt.Fprintf(buf, "cmdline: unavailable (%v)\n", cmdErr)
		case len(cmdline) == 0:
			fmt.Fprintf(buf, "cmdline: [%s]\n", stat.Comm)
		default:
			fmt.Fprintf(buf, "cmdline: %s\n", strings.Join(cmdline, " "))
		}
		return nil
	})
}

func statFields(s procfs.ProcStat) []field {
	return []field{
		{"pid", s.PID},
		{"comm", s.Comm},
		{"state", s.State},
		{"ppid", s.PPID},
		{"pgrp", s.PGRP},
		{"session", s.Session},
		{"tty", s.TTY},
		{"tpgid", s.TPGID},
		{"flags", fmt.Sprintf("%#x", s.Flags)},
		{"minflt", s.MinFlt},
		{"cminflt", s.CMinFlt},
		{"majflt", s.MajFlt},
		{"cmajflt", s.CMajFlt},
		{"utime", s.UTime},
		{"stime", s.STime},
		{"cutime", s.CUTime},
		{"cstime", s.CSTime},
		{"cpu_seconds", fmt.Sprintf("%.2f", s.CPUTime())},
		{"priority", s.Priority},
		{"nice", s.Nice},
		{"threads", s.NumThreads},
		{"starttime", s.Starttime},
		{"vsize", humanize.IBytes(uint64(s.VirtualMemory()))},
		{"rss", humanize.IBytes(uint64(s.ResidentMemory()))},
		{"processor", s.Processor},
		{"rt_priority", s.RTPriority},
		{"policy", s.Policy},
	}
}

func statusFields(s procfs.ProcStatus) []field {
	return []field{
		{"name", s.Name},
		{"tgid", s.TGID},
		{"vm_peak", humanize.IBytes(s.VmPeak)},
		{"vm_size", humanize.IBytes(s.VmSize)},
		{"vm_lck", humanize.IBytes(s.VmLck)},
		{"vm_pin", humanize.IBytes(s.VmPin)},
		{"vm_hwm", humanize.IBytes(s.VmHWM)},
		{"vm_rss", humanize.IBytes(s.VmRSS)},
		{"vm_data", humanize.IBytes(s.VmData)},
		{"vm_stk", humanize.IBytes(s.VmStk)},
		{"vm_exe", humanize.IBytes(s.VmExe)},
		{"vm_lib", humanize.IBytes(s.VmLib)},
		{"vm_pte", humanize.IBytes(s.VmPTE)},
		{"vm_swap", humanize.IBytes(s.VmSwap)},
		{"voluntary_ctxt_switches", s.VoluntaryCtxtSwitches},
		{"nonvoluntary_ctxt_switches", s.NonVoluntaryCtxtSwitches},
	}
}
