package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/kget-downloader/kget/internal/config"
	"github.com/kget-downloader/kget/internal/utils"
)

var (
	dbMu   sync.Mutex
	db     *sql.DB
	dbPath string
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	url_hash     TEXT NOT NULL,
	dest_path    TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_size   INTEGER NOT NULL DEFAULT 0,
	downloaded   INTEGER NOT NULL DEFAULT 0,
	sha256       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	completed_at INTEGER NOT NULL,
	time_taken   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_downloads_completed_at ON downloads(completed_at);
`

// DefaultDBPath returns the history database inside the state directory.
func DefaultDBPath() string {
	return filepath.Join(config.GetStateDir(), "history.db")
}

// Configure points the package at a database file. An already open handle is
// closed; the new one is opened on first use.
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		if err := db.Close(); err != nil {
			utils.Debug("Error closing history database: %v", err)
		}
		db = nil
	}
	dbPath = path
}

// CloseDB releases the database handle.
func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		utils.Debug("Error closing history database: %v", err)
	}
	db = nil
}

func getDB() (*sql.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return db, nil
	}

	path := dbPath
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer at a time; sqlite serialises anyway.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to configure history database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialise history schema: %w", err)
	}

	db = conn
	return db, nil
}
