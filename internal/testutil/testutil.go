// Package testutil provides shared test helpers for setting up spot stores and snapshot directories.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/itinera/internal/snapshot"
	"github.com/starford/itinera/internal/spotstore"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStore creates a temporary SQLite spot store that is automatically cleaned up.
func TestStore(t *testing.T) *spotstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "itinera-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := spotstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSnapshots creates a temporary snapshot directory with a snapshot.FS.
func TestSnapshots(t *testing.T) (string, *snapshot.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := snapshot.NewFS(dir, Logger())
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
