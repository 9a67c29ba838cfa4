package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spin-stack/procsnap/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.DefaultConfig()
}

func restoreLogger(t *testing.T) {
	t.Helper()
	prevOut := log.L.Logger.Out
	prevFmt := log.L.Logger.Formatter
	prevLevel := log.L.Logger.Level
	t.Cleanup(func() {
		log.L.Logger.SetOutput(prevOut)
		log.L.Logger.SetFormatter(prevFmt)
		log.L.Logger.SetLevel(prevLevel)
	})
}

func TestSetup_FileAndStderr(t *testing.T) {
	restoreLogger(t)
	cfg := testConfig(t)
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.File = "procsnap.log"

	var stderr bytes.Buffer
	closer, err := setup(log.L.Logger, &stderr, cfg)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, log.L.Logger.GetLevel())
	log.L.WithField("pid", 42).Debug("hello")
	require.NoError(t, closer.Close())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.EqualValues(t, 42, entry["pid"])

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "procsnap.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestSetup_StderrOnly(t *testing.T) {
	restoreLogger(t)
	cfg := testConfig(t)
	cfg.Logging.File = ""

	var stderr bytes.Buffer
	closer, err := setup(log.L.Logger, &stderr, cfg)
	require.NoError(t, err)
	defer closer.Close()

	log.L.Info("to stderr")
	assert.Contains(t, stderr.String(), "to stderr")
}

func TestSetup_Invalid(t *testing.T) {
	restoreLogger(t)

	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := setup(log.L.Logger, &bytes.Buffer{}, cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Logging.Format = "xml"
	_, err = setup(log.L.Logger, &bytes.Buffer{}, cfg)
	assert.Error(t, err)
}
