package config

import (
	"os"
	"path/filepath"
)

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultSQLitePath is where play keeps its local question pool.
func DefaultSQLitePath() string {
	return filepath.Join(XDGDataHome(), "quizwhiz", "questions.db")
}

// DefaultLogPath is where play writes logs while the terminal UI owns the screen.
func DefaultLogPath() string {
	return filepath.Join(XDGDataHome(), "quizwhiz", "play.log")
}

// SQLitePath returns the configured sqlite path or the default one.
func (c Config) SQLitePath() string {
	if c.SQLite.Path != "" {
		return c.SQLite.Path
	}
	return DefaultSQLitePath()
}
