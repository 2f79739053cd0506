package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kget-downloader/kget/internal/engine/types"
)

func setupDB(t *testing.T) {
	t.Helper()
	Configure(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(CloseDB)
}

func TestURLHash(t *testing.T) {
	h := URLHash("https://example.com/file.zip")
	assert.Len(t, h, 16)
	assert.Equal(t, h, URLHash("https://example.com/file.zip"))
	assert.NotEqual(t, h, URLHash("https://example.com/file2.zip"))
}

func TestRecordAndList(t *testing.T) {
	setupDB(t)

	require.NoError(t, RecordDownload(types.DownloadEntry{
		ID: "a", URL: "https://example.com/a", DestPath: "/tmp/a", Status: StatusCompleted,
		TotalSize: 100, Downloaded: 100, CompletedAt: 1000,
	}))
	require.NoError(t, RecordDownload(types.DownloadEntry{
		ID: "b", URL: "https://example.com/b", DestPath: "/tmp/b", Status: StatusError,
		TotalSize: 200, Downloaded: 50, Error: "boom", CompletedAt: 2000,
	}))

	entries, err := ListDownloads(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID, "newest first")
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, int64(50), entries[0].Downloaded)

	limited, err := ListDownloads(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	completed, err := LoadCompletedDownloads()
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "a", completed[0].ID)
}

func TestRecordOverwritesSameID(t *testing.T) {
	setupDB(t)

	entry := types.DownloadEntry{ID: "x", URL: "https://example.com/x", DestPath: "/tmp/x", Status: StatusError, CompletedAt: 10}
	require.NoError(t, RecordDownload(entry))

	entry.Status = StatusCompleted
	entry.SHA256 = "abc"
	require.NoError(t, RecordDownload(entry))

	entries, err := ListDownloads(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusCompleted, entries[0].Status)
	assert.Equal(t, "abc", entries[0].SHA256)
}

func TestFindByURL(t *testing.T) {
	setupDB(t)

	found, err := FindByURL("https://example.com/missing")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, RecordDownload(types.DownloadEntry{ID: "1", URL: "https://example.com/f", DestPath: "/a", Status: StatusError, CompletedAt: 1}))
	require.NoError(t, RecordDownload(types.DownloadEntry{ID: "2", URL: "https://example.com/f", DestPath: "/a", Status: StatusCompleted, CompletedAt: 2}))

	found, err = FindByURL("https://example.com/f")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "2", found.ID)
}

func TestClearHistory(t *testing.T) {
	setupDB(t)

	require.NoError(t, RecordDownload(types.DownloadEntry{ID: "1", URL: "u", DestPath: "/a", Status: StatusCompleted}))
	require.NoError(t, ClearHistory())

	entries, err := ListDownloads(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	Configure(path)
	t.Cleanup(CloseDB)

	require.NoError(t, RecordDownload(types.DownloadEntry{ID: "keep", URL: "u", DestPath: "/a", Status: StatusCompleted}))
	CloseDB()

	entries, err := ListDownloads(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].ID)
	assert.NotZero(t, entries[0].CompletedAt, "CompletedAt defaults to now")
}
