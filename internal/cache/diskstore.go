package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"masterd/internal/models"
)

// WarmStore persists warm-tier chunk payloads outside process memory.
// The cache keeps all recency and tier bookkeeping itself; the store only
// maps keys to payload bytes.
type WarmStore interface {
	Store(key models.ChunkKey, payload []byte, duration time.Duration, lastAccess time.Time) error
	Fetch(key models.ChunkKey) ([]byte, error)
	Delete(key models.ChunkKey) error
	// Records lists stored chunks ordered by recency (most recent first),
	// letting the cache re-adopt them on startup.
	Records() []StoreRecord
	Close() error
}

// StoreRecord describes one persisted chunk.
type StoreRecord struct {
	Key        models.ChunkKey
	Size       int
	Duration   time.Duration
	LastAccess time.Time
}

// DiskStore keeps payloads as files under a directory with a sqlite index
// mapping {key -> file path, size, last access}.
type DiskStore struct {
	dir string
	db  *sql.DB
}

// OpenDiskStore opens (or initializes) a disk-backed warm store.
func OpenDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create warm store dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open warm store index: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	track_id    TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	params_hash TEXT NOT NULL,
	path        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	last_access INTEGER NOT NULL,
	PRIMARY KEY (track_id, sequence, kind, params_hash)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize warm store schema: %w", err)
	}

	return &DiskStore{dir: dir, db: db}, nil
}

func (d *DiskStore) payloadPath(key models.ChunkKey) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%d_%s_%016x.opus", key.TrackID, key.Sequence, key.Kind, key.ParamsHash))
}

// Store writes the payload file first and the index row second, so a crash
// between the two leaves an orphan file rather than a dangling row.
func (d *DiskStore) Store(key models.ChunkKey, payload []byte, duration time.Duration, lastAccess time.Time) error {
	path := d.payloadPath(key)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write chunk payload %s: %w", path, err)
	}

	_, err := d.db.Exec(`INSERT OR REPLACE INTO chunks
		(track_id, sequence, kind, params_hash, path, size, duration_ns, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.TrackID, key.Sequence, string(key.Kind), fmt.Sprintf("%016x", key.ParamsHash),
		path, len(payload), int64(duration), lastAccess.UnixNano())
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to index chunk %s: %w", key, err)
	}
	return nil
}

// Fetch reads a payload back from disk.
func (d *DiskStore) Fetch(key models.ChunkKey) ([]byte, error) {
	var path string
	err := d.db.QueryRow(`SELECT path FROM chunks
		WHERE track_id = ? AND sequence = ? AND kind = ? AND params_hash = ?`,
		key.TrackID, key.Sequence, string(key.Kind), fmt.Sprintf("%016x", key.ParamsHash)).Scan(&path)
	if err != nil {
		return nil, fmt.Errorf("chunk %s not indexed: %w", key, err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk payload %s: %w", path, err)
	}
	return payload, nil
}

// Delete removes the index row and payload file for a key.
func (d *DiskStore) Delete(key models.ChunkKey) error {
	path := d.payloadPath(key)
	_, err := d.db.Exec(`DELETE FROM chunks
		WHERE track_id = ? AND sequence = ? AND kind = ? AND params_hash = ?`,
		key.TrackID, key.Sequence, string(key.Kind), fmt.Sprintf("%016x", key.ParamsHash))
	if err != nil {
		return fmt.Errorf("failed to unindex chunk %s: %w", key, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove chunk payload %s: %w", path, err)
	}
	return nil
}

// Records lists persisted chunks, most recently used first. Unreadable rows
// are skipped; the cache treats missing payloads as misses later anyway.
func (d *DiskStore) Records() []StoreRecord {
	rows, err := d.db.Query(`SELECT track_id, sequence, kind, params_hash, size, duration_ns, last_access
		FROM chunks ORDER BY last_access DESC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var records []StoreRecord
	for rows.Next() {
		var (
			rec        StoreRecord
			kind       string
			hashHex    string
			durationNs int64
			accessNs   int64
		)
		if err := rows.Scan(&rec.Key.TrackID, &rec.Key.Sequence, &kind, &hashHex,
			&rec.Size, &durationNs, &accessNs); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(hashHex, "%016x", &rec.Key.ParamsHash); err != nil {
			continue
		}
		rec.Key.Kind = models.ChunkKind(kind)
		rec.Duration = time.Duration(durationNs)
		rec.LastAccess = time.Unix(0, accessNs)
		records = append(records, rec)
	}
	return records
}

// Close closes the sqlite index.
func (d *DiskStore) Close() error {
	return d.db.Close()
}
