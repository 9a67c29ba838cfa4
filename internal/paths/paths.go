// Package paths provides the filesystem paths used by procsnap.
// These helpers take configuration as input to avoid global config coupling.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"golang.org/x/sys/unix"

	"github.com/spin-stack/procsnap/internal/config"
)

// ErrPathTooLong is returned when a joined output path exceeds PATH_MAX.
var ErrPathTooLong = fmt.Errorf("output path exceeds %d bytes: %w", unix.PathMax, errdefs.ErrInvalidArgument)

// OutputPath joins a caller supplied directory and a section filename with a
// single separator. The directory is used as given, without cleaning or
// escaping. An empty directory yields the bare filename, which resolves
// against the daemon's working directory.
func OutputPath(dir, filename string) (string, error) {
	var p string
	switch {
	case dir == "":
		p = filename
	case strings.HasSuffix(dir, "/"):
		p = dir + filename
	default:
		p = dir + "/" + filename
	}
	if len(p) >= unix.PathMax {
		return "", ErrPathTooLong
	}
	return p, nil
}

// HistoryDBPath returns the bolt database holding the operation journal.
func HistoryDBPath(pathsCfg config.PathsConfig) string {
	return filepath.Join(pathsCfg.StateDir, "history.db")
}

// LogFilePath resolves the configured log file. Relative names are placed
// under the log directory; an empty name disables file logging.
func LogFilePath(cfg *config.Config) string {
	name := cfg.Logging.File
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Paths.LogDir, name)
}

// CheckProcRoot verifies the configured procfs mount point is a directory.
func CheckProcRoot(pathsCfg config.PathsConfig) error {
	if !dirExists(pathsCfg.ProcRoot) {
		return fmt.Errorf("proc root %s is not a directory: %w", pathsCfg.ProcRoot, errdefs.ErrNotFound)
	}
	return nil
}

// ControlFIFOExists reports whether the control fifo has been created by a
// running (or previously running) daemon.
func ControlFIFOExists(pathsCfg config.PathsConfig) bool {
	return fileExists(pathsCfg.ControlFIFO)
}

// EnsureParent creates the parent directory of path.
func EnsureParent(path string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), perm); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return nil
}

// fileExists checks if a non-directory exists, resolving symlinks to the real path.
// This surfaces the real target but does not prevent TOCTOU issues.
func fileExists(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && !info.IsDir()
}

// dirExists checks if a directory exists, resolving symlinks to the real path.
func dirExists(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.IsDir()
}
