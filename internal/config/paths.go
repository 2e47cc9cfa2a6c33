package config

import (
	"os"
	"path/filepath"
)

const appName = "pagepack"

// GetAppDir returns the directory holding settings.json.
// Honors XDG_CONFIG_HOME, falls back to ~/.config/pagepack.
func GetAppDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// GetStateDir returns the directory for the history database, lock and logs.
func GetStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(GetAppDir(), "state")
}

// GetHistoryDBPath returns the path of the sqlite history database.
func GetHistoryDBPath() string {
	return filepath.Join(GetStateDir(), "history.db")
}

// GetLogPath returns the path of the debug log.
func GetLogPath() string {
	return filepath.Join(GetStateDir(), appName+".log")
}

// GetLockPath returns the path of the single-instance lock file.
func GetLockPath() string {
	return filepath.Join(GetStateDir(), appName+".lock")
}

// EnsureDirs creates the app and state directories.
func EnsureDirs() error {
	if err := os.MkdirAll(GetAppDir(), 0755); err != nil {
		return err
	}
	return os.MkdirAll(GetStateDir(), 0755)
}
