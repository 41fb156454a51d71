package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmflow/ptmflow/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ptmflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		content   string
		expErr    bool
		expConfig config.Config
	}{
		"A full config should load all knobs.": {
			content: `
listen_addr: "127.0.0.1:9090"
db_path: /var/lib/ptmflow/orders.db
pipeline:
  stage_concurrency: 4
  stage_timeout: 45m
  stall_threshold: 10m
  watchdog_interval: 1m
  retry_attempts: 3
stream:
  ping_interval: 15s
  reconnect_backoff: 2s
  poll_interval: 10s
`,
			expConfig: config.Config{
				ListenAddr: "127.0.0.1:9090",
				DBPath:     "/var/lib/ptmflow/orders.db",
				Pipeline: config.Pipeline{
					StageConcurrency: 4,
					StageTimeout:     config.Duration(45 * time.Minute),
					StallThreshold:   config.Duration(10 * time.Minute),
					WatchdogInterval: config.Duration(time.Minute),
					RetryAttempts:    3,
				},
				Stream: config.Stream{
					PingInterval:     config.Duration(15 * time.Second),
					ReconnectBackoff: config.Duration(2 * time.Second),
					PollInterval:     config.Duration(10 * time.Second),
				},
			},
		},

		"An empty config should be valid.": {
			content:   "",
			expConfig: config.Config{},
		},

		"Invalid YAML should fail.": {
			content: "listen_addr: [",
			expErr:  true,
		},

		"An unparseable duration should fail.": {
			content: "pipeline:\n  stage_timeout: a-while\n",
			expErr:  true,
		},

		"A negative stage concurrency should fail.": {
			content: "pipeline:\n  stage_concurrency: -1\n",
			expErr:  true,
		},

		"A listen address without a port should fail.": {
			content: "listen_addr: localhost\n",
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, test.content))
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expConfig, *cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
