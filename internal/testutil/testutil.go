// Package testutil provides shared test helpers for setting up note
// directories and index databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRepo creates a temporary notes directory with a storage.Dir over it.
func TestRepo(t *testing.T) (string, *storage.Dir) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, repo
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Note builds a note with fixed timestamps for deterministic assertions.
func Note(id, title string, nt models.NoteType, tags ...string) *models.Note {
	ts := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return &models.Note{
		ID:        id,
		Title:     title,
		Content:   "Body of " + title + ".",
		Type:      nt,
		Tags:      tags,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}
