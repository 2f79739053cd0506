package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the kget directory, mostly useful for tests and portable installs.
const HomeEnv = "KGET_HOME"

// GetKgetDir returns the directory holding the settings file.
func GetKgetDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "kget")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kget")
}

// GetStateDir returns the directory for the history database and destination locks.
func GetStateDir() string {
	return filepath.Join(GetKgetDir(), "state")
}

// GetLogPath returns the debug log location.
func GetLogPath() string {
	return filepath.Join(GetKgetDir(), "debug.log")
}
