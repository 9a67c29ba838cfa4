//go:build linux

package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/sink"
)

// MemoryMap dumps the address space layout of a process from /proc/<pid>/maps.
type MemoryMap struct{}

// NewMemoryMap returns the memory map exporter.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{}
}

// Export writes one line per mapped region of p to f starting at *off.
func (m *MemoryMap) Export(ctx context.Context, p procfs.Proc, f sink.File, off *int64) (int64, error) {
	maps, err := p.ProcMaps()
	if err != nil {
		return 0, fmt.Errorf("read maps: %w", err)
	}

	return render(ctx, f, off, func(buf *bytes.Buffer) error {
		var total uint64
		for _, r := range maps {
			total += regionSize(r)
		}
		fmt.Fprintf(buf, "pid %d: %d regions, %s mapped\n", p.PID, len(maps), humanize.IBytes(total))

		for _, r := range maps {
			path := r.Pathname
			if path == "" {
				path = "[anon]"
			}
			fmt.Fprintf(buf, "%016x-%016x %s %08x %02x:%02x %-8d %9s %s\n",
				r.StartAddr, r.EndAddr,
				perms(r.Perms),
				r.Offset,
				unix.Major(r.Dev), unix.Minor(r.Dev),
				r.Inode,
				humanize.IBytes(regionSize(r)),
				path,
			)
		}
		return nil
	})
}

func regionSize(r *procfs.ProcMap) uint64 {
	if r.EndAddr < r.StartAddr {
		return 0
	}
	return uint64(r.EndAddr - r.StartAddr)
}

func perms(p *procfs.ProcMapPermissions) string {
	if p == nil {
		return "----"
	}
	b := []byte("----")
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	switch {
	case p.Shared:
		b[3] = 's'
	case p.Private:
		b[3] = 'p'
	}
	return string(b)
}
