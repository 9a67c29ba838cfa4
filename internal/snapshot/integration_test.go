//go:build linux

package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spin-stack/procsnap/internal/export"
	"github.com/spin-stack/procsnap/internal/process"
	"github.com/spin-stack/procsnap/internal/snapshot"
	"github.com/spin-stack/procsnap/internal/testutil"
)

type env struct {
	root  string
	coord *snapshot.Coordinator

	mu   sync.Mutex
	sigs map[int]*testutil.FakeSignaler
}

func newEnv(t *testing.T, pids ...int) *env {
	t.Helper()
	e := &env{root: t.TempDir(), sigs: map[int]*testutil.FakeSignaler{}}
	for _, pid := range pids {
		testutil.WriteProc(t, e.root, testutil.ProcFixture{PID: pid})
	}

	reg, err := process.NewRegistry(e.root,
		process.WithSignaler(func(pid int) (process.Signaler, error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			s := &testutil.FakeSignaler{Root: e.root, PID: pid}
			e.sigs[pid] = s
			return s, nil
		}),
		process.WithTimeouts(time.Second, time.Millisecond, time.Second),
	)
	require.NoError(t, err)

	e.coord = snapshot.NewCoordinator(reg,
		snapshot.WithExporter(snapshot.SectionControlBlock, export.NewControlBlock()),
		snapshot.WithExporter(snapshot.SectionMemoryMap, export.NewMemoryMap()),
	)
	return e
}

func (e *env) signals(pid int) []syscall.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sigs[pid]; ok {
		return s.Signals()
	}
	return nil
}

func TestScenario_ControlBlockToWorkingDirectory(t *testing.T) {
	e := newEnv(t, 1234)
	cwd := t.TempDir()
	t.Chdir(cwd)

	res := e.coord.Submit(context.Background(), snapshot.OperationRequest{
		Command:  snapshot.CommandControlBlock,
		TargetID: 1234,
	})

	require.Equal(t, snapshot.StatusCompleted, res.Status, res.Error())
	data, err := os.ReadFile(filepath.Join(cwd, "task_struct.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "comm:")
	assert.Contains(t, string(data), "sleeper")

	assert.Equal(t, []syscall.Signal{syscall.SIGSTOP, syscall.SIGCONT}, e.signals(1234))
	state, err := testutil.State(e.root, 1234)
	require.NoError(t, err)
	assert.Equal(t, "S", state)
	assert.Equal(t, snapshot.StateAvailable, e.coord.State())
}

func TestScenario_NonexistentTarget(t *testing.T) {
	e := newEnv(t, 1234)
	dir := t.TempDir()

	res := e.coord.Submit(context.Background(), snapshot.OperationRequest{
		Command:         snapshot.CommandControlBlock | snapshot.CommandMemoryMap,
		TargetID:        999999,
		OutputDirectory: dir,
	})

	assert.Equal(t, snapshot.StatusRejectedInvalidTarget, res.Status)
	assert.ErrorIs(t, res.AsError(), snapshot.ErrInvalidTarget)
	assert.ErrorIs(t, res.AsError(), process.ErrNoProcess)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, snapshot.StateAvailable, e.coord.State())
}

func TestScenario_UnwritableDirectory(t *testing.T) {
	e := newEnv(t, 1234)
	dir := filepath.Join(t.TempDir(), "dump")

	res := e.coord.Submit(context.Background(), snapshot.OperationRequest{
		Command:         snapshot.CommandControlBlock | snapshot.CommandMemoryMap,
		TargetID:        1234,
		OutputDirectory: dir,
	})

	require.Equal(t, snapshot.StatusPartialFailure, res.Status)
	assert.Equal(t, []snapshot.Section{snapshot.SectionControlBlock, snapshot.SectionMemoryMap}, res.FailedSections())
	assert.Equal(t, snapshot.StateAvailable, e.coord.State())

	state, err := testutil.State(e.root, 1234)
	require.NoError(t, err)
	assert.Equal(t, "S", state, "target must be schedulable again")
}

func TestScenario_ConcurrentSubmits(t *testing.T) {
	e := newEnv(t, 100, 200)
	dir := t.TempDir()

	// Sample until the two calls actually overlap; each call is short, so
	// a single attempt may run them back to back.
	for attempt := 0; attempt < 200; attempt++ {
		var (
			wg      sync.WaitGroup
			results [2]*snapshot.Result
			start   = make(chan struct{})
		)
		for i, pid := range []int32{100, 200} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				results[i] = e.coord.Submit(context.Background(), snapshot.OperationRequest{
					Command:         snapshot.CommandControlBlock | snapshot.CommandMemoryMap,
					TargetID:        pid,
					OutputDirectory: dir,
				})
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, snapshot.StateAvailable, e.coord.State())
		completed, busy := 0, 0
		for _, r := range results {
			switch r.Status {
			case snapshot.StatusCompleted:
				completed++
			case snapshot.StatusRejectedBusy:
				busy++
			default:
				t.Fatalf("unexpected status %s: %v", r.Status, r.Err)
			}
		}
		require.GreaterOrEqual(t, completed, 1)
		if busy == 1 {
			assert.Equal(t, 1, completed)
			return
		}
	}
	t.Skip("submissions never overlapped")
}
