//go:build linux

// Package testutil builds fake procfs trees and signal handles for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
)

// DefaultMaps is a small but realistic address space.
const DefaultMaps = `00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/sleeper
00651000-00652000 r--p 00051000 08:02 173521 /usr/bin/sleeper
00652000-00655000 rw-p 00052000 08:02 173521 /usr/bin/sleeper
01a3e000-01a5f000 rw-p 00000000 00:00 0 [heap]
7f5c3a000000-7f5c3a1c0000 r-xp 00000000 08:02 135522 /usr/lib/x86_64-linux-gnu/libc.so.6
7ffd4a1e5000-7ffd4a206000 rw-p 00000000 00:00 0 [stack]
`

// ProcFixture describes a fake /proc/<pid> directory.
type ProcFixture struct {
	PID     int
	Comm    string
	State   string
	PPID    int
	Threads int
	VSize   uint64 // bytes
	RSS     int64  // pages
	Cmdline []string
	Maps    string // empty uses DefaultMaps
	NoMaps  bool   // omit the maps file entirely
}

func (f ProcFixture) withDefaults() ProcFixture {
	if f.Comm == "" {
		f.Comm = "sleeper"
	}
	if f.State == "" {
		f.State = "S"
	}
	if f.PPID == 0 {
		f.PPID = 1
	}
	if f.Threads == 0 {
		f.Threads = 1
	}
	if f.VSize == 0 {
		f.VSize = 10 << 20
	}
	if f.RSS == 0 {
		f.RSS = 256
	}
	if f.Cmdline == nil {
		f.Cmdline = []string{"/usr/bin/" + f.Comm, "--interval", "1s"}
	}
	if f.Maps == "" {
		f.Maps = DefaultMaps
	}
	return f
}

// StatLine renders a full 52 field /proc/<pid>/stat line.
func StatLine(f ProcFixture) string {
	f = f.withDefaults()
	fields := []string{
		f.State,
		strconv.Itoa(f.PPID),
		strconv.Itoa(f.PID), // pgrp
		strconv.Itoa(f.PID), // session
		"34817",             // tty_nr
		"-1",                // tpgid
		"4194560",           // flags
		"120", "0", "2", "0", // minflt cminflt majflt cmajflt
		"5", "3", "0", "0", // utime stime cutime cstime
		"20", "0", // priority nice
		strconv.Itoa(f.Threads),
		"0",     // itrealvalue
		"12345", // starttime
		strconv.FormatUint(f.VSize, 10),
		strconv.FormatInt(f.RSS, 10),
		"18446744073709551615", // rsslim
	}
	// startcode .. exit_code; exit_signal 17, processor 1.
	rest := make([]string, 27)
	for i := range rest {
		rest[i] = "0"
	}
	rest[12] = "17"
	rest[13] = "1"
	fields = append(fields, rest...)
	return fmt.Sprintf("%d (%s) %s\n", f.PID, f.Comm, strings.Join(fields, " "))
}

func statusFile(f ProcFixture) string {
	return fmt.Sprintf(`Name:	%s
Umask:	0022
State:	%s (sleeping)
Tgid:	%d
Ngid:	0
Pid:	%d
PPid:	%d
VmPeak:	   12000 kB
VmSize:	   %d kB
VmLck:	       0 kB
VmPin:	       0 kB
VmHWM:	    1100 kB
VmRSS:	    %d kB
VmData:	     400 kB
VmStk:	     132 kB
VmExe:	     328 kB
VmLib:	    2000 kB
VmPTE:	      48 kB
VmSwap:	       0 kB
Threads:	%d
voluntary_ctxt_switches:	10
nonvoluntary_ctxt_switches:	2
`, f.Comm, f.State, f.PID, f.PID, f.PPID, f.VSize/1024, f.RSS*4, f.Threads)
}

// WriteProc creates root/<pid>/{stat,status,cmdline,comm,maps} and one
// task/<tid>/stat per thread. Thread ids count up from the pid.
func WriteProc(t testing.TB, root string, f ProcFixture) {
	t.Helper()
	f = f.withDefaults()

	dir := filepath.Join(root, strconv.Itoa(f.PID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}

	// Kernel threads have an empty cmdline.
	cmdline := ""
	if len(f.Cmdline) > 0 {
		cmdline = strings.Join(f.Cmdline, "\x00") + "\x00"
	}
	files := map[string]string{
		"stat":    StatLine(f),
		"status":  statusFile(f),
		"cmdline": cmdline,
		"comm":    f.Comm + "\n",
	}
	if !f.NoMaps {
		files["maps"] = f.Maps
	}
	for i := range f.Threads {
		thread := f
		thread.PID = f.PID + i
		files[filepath.Join("task", strconv.Itoa(thread.PID), "stat")] = StatLine(thread)
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// SetState rewrites the state field of root/<pid>/stat and of every thread.
func SetState(root string, pid int, state string) error {
	if err := SetLeaderState(root, pid, state); err != nil {
		return err
	}
	threads, err := filepath.Glob(filepath.Join(root, strconv.Itoa(pid), "task", "*", "stat"))
	if err != nil {
		return err
	}
	for _, path := range threads {
		if err := setStatState(path, state); err != nil {
			return err
		}
	}
	return nil
}

// SetLeaderState rewrites the state of the thread-group leader only.
func SetLeaderState(root string, pid int, state string) error {
	dir := filepath.Join(root, strconv.Itoa(pid))
	if err := setStatState(filepath.Join(dir, "stat"), state); err != nil {
		return err
	}
	leader := filepath.Join(dir, "task", strconv.Itoa(pid), "stat")
	if _, err := os.Stat(leader); err != nil {
		return nil
	}
	return setStatState(leader, state)
}

func setStatState(path, state string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	line := string(data)
	r := strings.LastIndex(line, ")")
	if r < 0 || r+3 > len(line) {
		return fmt.Errorf("malformed stat %q", line)
	}
	rest := line[r+2:]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return fmt.Errorf("malformed stat %q", line)
	}
	line = line[:r+2] + state + rest[sp:]
	return os.WriteFile(path, []byte(line), 0o644)
}

// State reads the state field of root/<pid>/stat.
func State(root string, pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return "", err
	}
	line := string(data)
	r := strings.LastIndex(line, ")")
	if r < 0 {
		return "", fmt.Errorf("malformed stat %q", line)
	}
	fields := strings.Fields(line[r+1:])
	if len(fields) == 0 {
		return "", fmt.Errorf("malformed stat %q", line)
	}
	return fields[0], nil
}

// FakeSignaler emulates SIGSTOP and SIGCONT by rewriting the fake stat file.
type FakeSignaler struct {
	Root string
	PID  int

	// IgnoreStop leaves the state untouched on SIGSTOP.
	IgnoreStop bool
	// IgnoreCont leaves the state untouched on SIGCONT.
	IgnoreCont bool
	// StopLeaderOnly stops the leader on SIGSTOP but leaves other threads running.
	StopLeaderOnly bool
	StopErr        error
	ContErr        error

	mu      sync.Mutex
	signals []syscall.Signal
	closed  int
}

// Signal records sig and applies it to the fake stat file.
func (s *FakeSignaler) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	s.signals = append(s.signals, sig)
	s.mu.Unlock()

	switch sig {
	case syscall.SIGSTOP:
		if s.StopErr != nil {
			return s.StopErr
		}
		if s.IgnoreStop {
			return nil
		}
		if s.StopLeaderOnly {
			return SetLeaderState(s.Root, s.PID, "T")
		}
		return SetState(s.Root, s.PID, "T")
	case syscall.SIGCONT:
		if s.ContErr != nil {
			return s.ContErr
		}
		if s.IgnoreCont {
			return nil
		}
		return SetState(s.Root, s.PID, "S")
	}
	return nil
}

// Close counts closes.
func (s *FakeSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Signals returns the signals delivered so far.
func (s *FakeSignaler) Signals() []syscall.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]syscall.Signal(nil), s.signals...)
}

// Closed returns how many times Close was called.
func (s *FakeSignaler) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
