package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kget-downloader/kget/internal/engine/types"
)

const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// URLHash returns a short hash of the URL for grouping history rows
func URLHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:8]) // 16 chars
}

// RecordDownload adds or replaces the history row with entry.ID.
func RecordDownload(entry types.DownloadEntry) error {
	conn, err := getDB()
	if err != nil {
		return err
	}
	if entry.CompletedAt == 0 {
		entry.CompletedAt = time.Now().Unix()
	}

	_, err = conn.Exec(`
		INSERT INTO downloads (id, url, url_hash, dest_path, status, total_size, downloaded, sha256, error, completed_at, time_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			url_hash = excluded.url_hash,
			dest_path = excluded.dest_path,
			status = excluded.status,
			total_size = excluded.total_size,
			downloaded = excluded.downloaded,
			sha256 = excluded.sha256,
			error = excluded.error,
			completed_at = excluded.completed_at,
			time_taken = excluded.time_taken`,
		entry.ID, entry.URL, URLHash(entry.URL), entry.DestPath, entry.Status,
		entry.TotalSize, entry.Downloaded, entry.SHA256, entry.Error,
		entry.CompletedAt, entry.TimeTaken,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// ListDownloads returns the newest entries first. limit <= 0 means all.
func ListDownloads(limit int) ([]types.DownloadEntry, error) {
	return query("", limit)
}

// LoadCompletedDownloads returns every successful download, newest first.
func LoadCompletedDownloads() ([]types.DownloadEntry, error) {
	return query(StatusCompleted, 0)
}

// FindByURL returns the most recent entry for url, or nil when there is none.
func FindByURL(url string) (*types.DownloadEntry, error) {
	conn, err := getDB()
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(`
		SELECT id, url, dest_path, status, total_size, downloaded, sha256, error, completed_at, time_taken
		FROM downloads WHERE url_hash = ? AND url = ?
		ORDER BY completed_at DESC, rowid DESC LIMIT 1`, URLHash(url), url)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// ClearHistory removes every row.
func ClearHistory() error {
	conn, err := getDB()
	if err != nil {
		return err
	}
	if _, err := conn.Exec("DELETE FROM downloads"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func query(status string, limit int) ([]types.DownloadEntry, error) {
	conn, err := getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	q := `SELECT id, url, dest_path, status, total_size, downloaded, sha256, error, completed_at, time_taken FROM downloads`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY completed_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]types.DownloadEntry, error) {
	defer func() { _ = rows.Close() }()

	var entries []types.DownloadEntry
	for rows.Next() {
		var e types.DownloadEntry
		if err := rows.Scan(&e.ID, &e.URL, &e.DestPath, &e.Status, &e.TotalSize, &e.Downloaded,
			&e.SHA256, &e.Error, &e.CompletedAt, &e.TimeTaken); err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}
