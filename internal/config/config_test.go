package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/workflow"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/approval.db", cfg.Database.Path)
	assert.Equal(t, 48*time.Hour, cfg.Workflow.DefaultStepTimeout)
	assert.Equal(t, 500, cfg.Workflow.CommentMaxLength)
	assert.Equal(t, "terminate", cfg.Workflow.RejectionPolicy)
	assert.Equal(t, "escalate", cfg.Workflow.TimeoutAction)
	assert.False(t, cfg.Workflow.AllowEmptySteps)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, `
server:
  port: 9090
workflow:
  default_step_timeout: 24h
  rejection_policy: advance
  timeout_action: reject
logger:
  format: console
`)
	t.Setenv("APPROVAL_WORKFLOW_TIMEOUT_BATCH_SIZE", "25")
	t.Setenv("DATABASE_PATH", "/tmp/approval-test.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Workflow.DefaultStepTimeout)
	assert.Equal(t, 25, cfg.Workflow.TimeoutBatchSize)
	assert.Equal(t, "/tmp/approval-test.db", cfg.Database.Path)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, workflow.RejectionAdvance, cc.Workflow.Engine.RejectionPolicy)
	assert.Equal(t, workflow.TimeoutReject, cc.Workflow.Engine.TimeoutAction)
	assert.Equal(t, 25, cc.Workflow.TimeoutBatchSize)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APPROVAL_SERVER_PORT=7070\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("APPROVAL_SERVER_PORT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name string
		body string
	}{
		{"bad rejection policy", "workflow:\n  rejection_policy: ignore\n"},
		{"bad timeout action", "workflow:\n  timeout_action: page\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad log format", "logger:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
