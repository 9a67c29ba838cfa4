package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/config"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"empty directory", "", "task_struct.txt"},
		{"absolute directory", "/tmp/dump", "/tmp/dump/task_struct.txt"},
		{"trailing separator", "/tmp/dump/", "/tmp/dump/task_struct.txt"},
		{"relative directory", "out", "out/task_struct.txt"},
		{"root", "/", "/task_struct.txt"},
		{"not cleaned", "/tmp/a/../b", "/tmp/a/../b/task_struct.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputPath(tt.dir, "task_struct.txt")
			if err != nil {
				t.Fatalf("OutputPath() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("OutputPath(%q) = %q, want %q", tt.dir, got, tt.want)
			}
		})
	}
}

func TestOutputPath_TooLong(t *testing.T) {
	dir := "/" + strings.Repeat("d", unix.PathMax)
	_, err := OutputPath(dir, "task_struct.txt")
	if !errors.Is(err, ErrPathTooLong) {
		t.Fatalf("expected ErrPathTooLong, got %v", err)
	}
	if !errdefs.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument class, got %v", err)
	}
}

func TestLogFilePath(t *testing.T) {
	cfg := config.DefaultConfig()

	if got := LogFilePath(cfg); got != "" {
		t.Errorf("empty file should disable file logging, got %q", got)
	}

	cfg.Logging.File = "procsnap.log"
	if got := LogFilePath(cfg); got != "/var/log/procsnap/procsnap.log" {
		t.Errorf("relative file = %q", got)
	}

	cfg.Logging.File = "/tmp/x.log"
	if got := LogFilePath(cfg); got != "/tmp/x.log" {
		t.Errorf("absolute file = %q", got)
	}
}

func TestHistoryDBPath(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := HistoryDBPath(cfg.Paths); got != "/var/lib/procsnap/history.db" {
		t.Errorf("HistoryDBPath() = %q", got)
	}
}

func TestCheckProcRoot(t *testing.T) {
	tmpDir := t.TempDir()

	if err := CheckProcRoot(config.PathsConfig{ProcRoot: tmpDir}); err != nil {
		t.Errorf("CheckProcRoot(dir) error = %v", err)
	}

	err := CheckProcRoot(config.PathsConfig{ProcRoot: filepath.Join(tmpDir, "missing")})
	if !errdefs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFileExists_ResolvesSymlinks(t *testing.T) {
	tmpDir := t.TempDir()

	realFile := filepath.Join(tmpDir, "realfile")
	if err := os.WriteFile(realFile, []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	symlinkPath := filepath.Join(tmpDir, "linkfile")
	if err := os.Symlink(realFile, symlinkPath); err != nil {
		t.Fatal(err)
	}

	if !fileExists(symlinkPath) {
		t.Error("fileExists should return true for symlink to existing file")
	}
	if !ControlFIFOExists(config.PathsConfig{ControlFIFO: realFile}) {
		t.Error("ControlFIFOExists should return true for an existing file")
	}
}

func TestFileExists_FailsForBrokenSymlink(t *testing.T) {
	tmpDir := t.TempDir()

	brokenLink := filepath.Join(tmpDir, "broken")
	if err := os.Symlink("/nonexistent/target", brokenLink); err != nil {
		t.Fatal(err)
	}

	if fileExists(brokenLink) {
		t.Error("fileExists should return false for broken symlink")
	}
	if dirExists(brokenLink) {
		t.Error("dirExists should return false for broken symlink")
	}
}

func TestFileExists_FailsForDirectory(t *testing.T) {
	if fileExists(t.TempDir()) {
		t.Error("fileExists should return false for directory")
	}
}

func TestEnsureParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "history.db")
	if err := EnsureParent(target, 0750); err != nil {
		t.Fatalf("EnsureParent() error = %v", err)
	}
	if !dirExists(filepath.Dir(target)) {
		t.Error("parent directory was not created")
	}
}
