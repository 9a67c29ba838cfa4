//go:build linux

package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spin-stack/procsnap/internal/sink"
	"github.com/spin-stack/procsnap/internal/testutil"
)

func fixtureProc(t *testing.T, fix testutil.ProcFixture) procfs.Proc {
	t.Helper()
	root := t.TempDir()
	testutil.WriteProc(t, root, fix)
	fs, err := procfs.NewFS(root)
	require.NoError(t, err)
	p, err := fs.Proc(fix.PID)
	require.NoError(t, err)
	return p
}

func openOut(t *testing.T, name string) (sink.File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := sink.New().Open(path)
	require.NoError(t, err)
	return f, path
}

type failingFile struct{ err error }

func (f failingFile) WriteAt([]byte, int64) (int, error) { return 0, f.err }
func (failingFile) Close() error                         { return nil }
func (failingFile) Name() string                         { return "broken" }

func TestControlBlock(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 42, Comm: "worker", Threads: 3})
	f, path := openOut(t, "task_struct.txt")

	var off int64
	n, err := NewControlBlock().Export(context.Background(), p, f, &off)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, off, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	out := string(data)
	for _, want := range []string{
		"pid:", " 42\n",
		"comm:", "worker",
		"state:", "ppid:", "threads:", "priority:", "policy:",
		"vsize:", "10 MiB",
		"name:", "vm_rss:", "voluntary_ctxt_switches:",
		"cmdline: /usr/bin/worker --interval 1s",
	} {
		assert.Contains(t, out, want)
	}
}

func TestControlBlock_KernelThread(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 2, Comm: "kthreadd", Cmdline: []string{}})
	f, path := openOut(t, "task_struct.txt")

	var off int64
	_, err := NewControlBlock().Export(context.Background(), p, f, &off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cmdline: [kthreadd]")
}

func TestControlBlock_WriteFailure(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 42})
	boom := errors.New("disk full")

	var off int64
	_, err := NewControlBlock().Export(context.Background(), p, failingFile{err: boom}, &off)
	require.Error(t, err)

	var werr *sink.WriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, boom)
}

func TestMemoryMap(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 42})
	f, path := openOut(t, "task_memory_struct.txt")

	var off int64
	n, err := NewMemoryMap().Export(context.Background(), p, f, &off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "pid 42: 6 regions, "), lines[0])

	assert.Contains(t, lines[1], "0000000000400000-0000000000452000 r-xp")
	assert.Contains(t, lines[1], "08:02")
	assert.Contains(t, lines[1], "/usr/bin/sleeper")
	assert.Contains(t, lines[4], "rw-p")
	assert.Contains(t, lines[4], "[heap]")
	assert.Contains(t, lines[6], "[stack]")
}

func TestMemoryMap_Missing(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 42, NoMaps: true})

	var off int64
	_, err := NewMemoryMap().Export(context.Background(), p, failingFile{}, &off)
	require.Error(t, err)

	var werr *sink.WriteError
	assert.False(t, errors.As(err, &werr), "a missing maps file is not a sink failure")
}

func TestExport_AppendsAtOffset(t *testing.T) {
	p := fixtureProc(t, testutil.ProcFixture{PID: 42})
	f, path := openOut(t, "combined.txt")

	var off int64
	n1, err := NewControlBlock().Export(context.Background(), p, f, &off)
	require.NoError(t, err)
	n2, err := NewMemoryMap().Export(context.Background(), p, f, &off)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, n1+n2, info.Size())
	assert.Equal(t, n1+n2, off)
}

func TestPerms(t *testing.T) {
	tests := []struct {
		in   *procfs.ProcMapPermissions
		want string
	}{
		{nil, "----"},
		{&procfs.ProcMapPermissions{Read: true, Private: true}, "r--p"},
		{&procfs.ProcMapPermissions{Read: true, Write: true, Execute: true, Shared: true}, "rwxs"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, perms(tt.in))
	}
}
