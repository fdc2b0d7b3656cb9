// Package paths locates the per-user supersim directories.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// HomeEnvVar overrides the default home directory.
	HomeEnvVar = "SUPERSIM_HOME"
	// DefaultHome is the directory under the user's home.
	DefaultHome = ".supersim"

	ConfigFile   = "config.json"
	DatabaseFile = "supersim.db"
	ArchiveDir   = "snapshots"
	LogsDir      = "logs"
	APILogFile   = "api.log"
)

// GetHome returns the supersim home directory: $SUPERSIM_HOME when set,
// ~/.supersim otherwise.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(userHome, DefaultHome), nil
}

// EnsureHome creates the home directory if needed.
func EnsureHome() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", home, err)
	}
	return home, nil
}

func underHome(elem ...string) (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}

// GetConfigPath returns the default configuration file.
func GetConfigPath() (string, error) {
	return underHome(ConfigFile)
}

// GetDatabasePath returns the default preset and history database.
func GetDatabasePath() (string, error) {
	return underHome(DatabaseFile)
}

// GetArchiveDir returns the default snapshot archive directory.
func GetArchiveDir() (string, error) {
	return underHome(ArchiveDir)
}

// GetAPILogPath returns the default log file of the HTTP server.
func GetAPILogPath() (string, error) {
	return underHome(LogsDir, APILogFile)
}

// EnsureLogsDir creates the logs directory if needed.
func EnsureLogsDir() (string, error) {
	dir, err := underHome(LogsDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return dir, nil
}

// Expand resolves a leading "~/" against the user's home directory.
func Expand(path string) string {
	if len(path) < 2 || path[0] != '~' || (path[1] != '/' && path[1] != filepath.Separator) {
		return path
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(userHome, path[2:])
}
