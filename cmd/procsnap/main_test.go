package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spin-stack/procsnap/internal/history"
	"github.com/spin-stack/procsnap/internal/snapshot"
)

func parseRequest(t *testing.T, args ...string) (snapshot.OperationRequest, error) {
	t.Helper()
	var f requestFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return f.request(cmd)
}

func TestRequestFlags(t *testing.T) {
	req, err := parseRequest(t, "--pid", "42")
	require.NoError(t, err)
	assert.Equal(t, int32(42), req.TargetID)
	assert.Equal(t, snapshot.CommandControlBlock|snapshot.CommandMemoryMap, req.Command)
	assert.Empty(t, req.OutputDirectory)

	req, err = parseRequest(t, "-p", "7", "-s", "memory_map", "-d", "/tmp/out")
	require.NoError(t, err)
	assert.Equal(t, snapshot.CommandMemoryMap, req.Command)
	assert.Equal(t, "/tmp/out", req.OutputDirectory)

	req, err = parseRequest(t, "-p", "7", "--command", "0")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Command(0), req.Command)

	_, err = parseRequest(t, "-p", "7", "-s", "registers")
	assert.Error(t, err)
}

func TestRequestFlags_RelativeDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	req, err := parseRequest(t, "-p", "1", "-d", "dumps")
	require.NoError(t, err)
	want, err := filepath.Abs(filepath.Join(dir, "dumps"))
	require.NoError(t, err)
	assert.Equal(t, want, req.OutputDirectory)
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	renderHistory(&buf, []history.Record{
		{
			Started:   time.Now().Add(-time.Minute),
			Status:    "partial_failure",
			TargetID:  1234,
			Directory: "/tmp/dump",
			Duration:  1500 * time.Microsecond,
			Sections: []history.SectionRecord{
				{Section: "control_block", Bytes: 2048},
				{Section: "memory_map", Kind: "io", Error: "permission denied"},
			},
		},
		{Started: time.Now(), Status: "rejected_invalid_target", TargetID: 99, Error: "invalid target"},
	})

	out := buf.String()
	assert.Contains(t, out, "1234")
	assert.Contains(t, out, "partial_failure")
	assert.Contains(t, out, "control_block, memory_map (io)")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "/tmp/dump")
	assert.Contains(t, out, "rejected_invalid_target: invalid target")
	assert.Contains(t, strings.ToLower(out), "2 operations")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "procsnap")
}
