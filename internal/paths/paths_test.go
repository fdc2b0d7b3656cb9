package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHome(t *testing.T) {
	customHome := "/custom/supersim/home"
	t.Setenv(HomeEnvVar, customHome)

	home, err := GetHome()
	require.NoError(t, err)
	assert.Equal(t, customHome, home)

	t.Setenv(HomeEnvVar, "")
	home, err = GetHome()
	require.NoError(t, err)
	assert.Equal(t, DefaultHome, filepath.Base(home))
}

func TestFilePaths(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(HomeEnvVar, tempDir)

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", GetConfigPath, filepath.Join(tempDir, ConfigFile)},
		{"database", GetDatabasePath, filepath.Join(tempDir, DatabaseFile)},
		{"archives", GetArchiveDir, filepath.Join(tempDir, ArchiveDir)},
		{"api log", GetAPILogPath, filepath.Join(tempDir, LogsDir, APILogFile)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "home")
	t.Setenv(HomeEnvVar, tempDir)

	home, err := EnsureHome()
	require.NoError(t, err)
	logs, err := EnsureLogsDir()
	require.NoError(t, err)

	for _, dir := range []string{home, logs} {
		assert.DirExists(t, dir)
	}
}

func TestExpand(t *testing.T) {
	userHome, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no user home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/snaps", filepath.Join(userHome, "snaps")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~", "~"},
		{"~other/x", "~other/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Expand(tt.in), tt.in)
	}
}
