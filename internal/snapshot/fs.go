// Package snapshot keeps the locally saved plan of each room and day.
//
// Snapshots are best-effort: anything unreadable is reported as missing so
// the caller rebuilds from the spot pool.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/itinera/internal/checksum"
	"github.com/starford/itinera/internal/timeline"
)

// Snapshot is the saved plan of one room and day.
type Snapshot struct {
	Timeline      timeline.Timeline `json:"timeline"`
	RouteGeometry json.RawMessage   `json:"route_geometry"`
	Unused        []string          `json:"unused"`
	StartTime     *timeline.Clock   `json:"start_time"`
	UpdatedAt     int64             `json:"updated_at"` // epoch millis
}

// Store loads and saves snapshots.
type Store interface {
	// Load returns the snapshot for room and day. A missing, unparsable or
	// malformed snapshot yields false.
	Load(ctx context.Context, room string, day int) (Snapshot, bool)
	// Save replaces the snapshot for room and day.
	Save(ctx context.Context, room string, day int, snap Snapshot) error
}

var keyRe = regexp.MustCompile(`^day-(\d+)\.json$`)

// Key returns the path of a snapshot relative to the store root.
func Key(room string, day int) string {
	return filepath.Join(room, fmt.Sprintf("day-%d.json", day))
}

// ParseKey is the inverse of Key.
func ParseKey(rel string) (room string, day int, ok bool) {
	dir, file := filepath.Split(filepath.Clean(rel))
	m := keyRe.FindStringSubmatch(file)
	room = strings.TrimSuffix(dir, string(os.PathSeparator))
	if m == nil || room == "" || strings.Contains(room, string(os.PathSeparator)) {
		return "", 0, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}
	return room, day, true
}

// FS stores snapshots as JSON files under a root directory.
type FS struct {
	root   string
	logger *slog.Logger

	written *checksum.Ledger
}

// NewFS creates an FS rooted at root, creating the directory if needed.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{root: abs, logger: logger, written: checksum.NewLedger()}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// safePath resolves rel against the root and rejects anything that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("snapshot: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("snapshot: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("snapshot: path escapes root: %s", rel)
	}
	return abs, nil
}

// Load implements Store.
func (f *FS) Load(_ context.Context, room string, day int) (Snapshot, bool) {
	key := Key(room, day)
	data, err := f.read(key)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Debug("snapshot: read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return Snapshot{}, false
	}
	snap, err := Decode(data)
	if err != nil {
		f.logger.Debug("snapshot: discarded", slog.String("key", key), slog.String("error", err.Error()))
		return Snapshot{}, false
	}
	return snap, true
}

// Decode parses a snapshot and checks the timeline is well-formed.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if err := timeline.CheckShape(snap.Timeline); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: shape: %w", err)
	}
	return snap, nil
}

// Save implements Store.
func (f *FS) Save(_ context.Context, room string, day int, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	key := Key(room, day)
	if err := f.write(key, data); err != nil {
		return err
	}
	f.written.Record(key, data)
	return nil
}

// IsOwnWrite reports whether data is what this store last wrote to key.
func (f *FS) IsOwnWrite(key string, data []byte) bool {
	return f.written.Matches(key, data)
}

func (f *FS) read(key string) ([]byte, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// write atomically replaces key: tmp file, fsync, rename.
func (f *FS) write(key string, content []byte) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".itinera-tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	success = true
	return nil
}
