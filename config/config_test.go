package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultMaxConcurrentRequests, cfg.MaxConcurrentRequests)
	require.Equal(t, DefaultMaxOpenWorkspaces, cfg.MaxOpenWorkspaces)
	require.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	require.Equal(t, DefaultSheetName, cfg.DefaultSheet)
	require.Equal(t, DefaultOperationTimeout, cfg.OperationTimeout)
	require.Empty(t, cfg.AllowedDirs)
	require.False(t, cfg.StrictColumns)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpvariance.yaml")
	content := `
allowed_dirs:
  - /data/reports
  - /srv/uploads
disabled_tools: [close_workspace]
max_open_workspaces: 3
operation_timeout: 45s
strict_columns: true
log_format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/data/reports", "/srv/uploads"}, cfg.AllowedDirs)
	require.Equal(t, []string{"close_workspace"}, cfg.DisabledTools)
	require.Equal(t, 3, cfg.MaxOpenWorkspaces)
	require.Equal(t, 45*time.Second, cfg.OperationTimeout)
	require.True(t, cfg.StrictColumns)
	require.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_EnvOverrides(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	t.Setenv("MCPVARIANCE_ALLOWED_DIRS", a+string(os.PathListSeparator)+b)
	t.Setenv("MCPVARIANCE_DISABLED_TOOLS", "get_variance_data, close_workspace")
	t.Setenv("MCPVARIANCE_MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{a, b}, cfg.AllowedDirs)
	require.Equal(t, []string{"get_variance_data", "close_workspace"}, cfg.DisabledTools)
	require.Equal(t, int64(2048), cfg.MaxUploadBytes)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("MCPVARIANCE_MAX_PAGE_SIZE", "0")
	_, err := Load("")
	require.ErrorContains(t, err, "max_page_size")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
