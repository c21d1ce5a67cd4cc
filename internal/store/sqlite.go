package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/vitae/internal/resume"
)

// DefaultDBPath is the default local database location.
const DefaultDBPath = "~/.vitae/vitae.db"

// SQLiteStore implements VectorStore on a local SQLite database.
// Vectors are stored as little-endian float32 blobs and searched by
// brute-force cosine scan, which is fine at resume scale.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store.
// Pass ":memory:" for in-memory databases (testing).
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = expandPath(DefaultDBPath)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY,
			section TEXT NOT NULL,
			payload TEXT NOT NULL,
			vector BLOB,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_section ON records(section);
	`)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, section, payload, vector, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			section = excluded.section,
			payload = excluded.payload,
			vector = excluded.vector,
			updated_at = excluded.updated_at`)
	if err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r.Fields)
		if err != nil {
			return &StoreError{Op: "upsert", Err: fmt.Errorf("marshaling payload for record %d: %w", r.ID, err)}
		}
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, string(r.Section), string(payload),
			float32ToBytes(r.Embedding), updatedAt.Format(time.RFC3339Nano)); err != nil {
			return &StoreError{Op: "upsert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Scroll(ctx context.Context, offset int64, limit int) ([]Record, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section, payload, vector, updated_at FROM records
		 WHERE id >= ? ORDER BY id LIMIT ?`, offset, limit+1)
	if err != nil {
		return nil, 0, &StoreError{Op: "scroll", Err: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, &StoreError{Op: "scroll", Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &StoreError{Op: "scroll", Err: err}
	}

	var next int64
	if len(records) > limit {
		next = records[limit].ID
		records = records[:limit]
	}
	return records, next, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
			return &StoreError{Op: "delete", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, section resume.Section, limit int, withVectors bool) ([]Scored, error) {
	query := "SELECT id, section, payload, vector, updated_at FROM records"
	var args []any
	if section != "" {
		query += " WHERE section = ?"
		args = append(args, string(section))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}
	defer rows.Close()

	var candidates []Scored
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, &StoreError{Op: "search", Err: err}
		}
		score := cosineSimilarity(vector, r.Embedding)
		if !withVectors {
			r.Embedding = nil
		}
		candidates = append(candidates, Scored{Record: r, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}

	// Sort by score descending (insertion sort, N is small).
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Score > candidates[j-1].Score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *SQLiteStore) Collection(ctx context.Context) (CollectionInfo, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return CollectionInfo{}, &StoreError{Op: "collection info", Err: err}
	}
	return CollectionInfo{PointCount: count}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		id        int64
		section   string
		payload   string
		blob      []byte
		updatedAt string
	)
	if err := rows.Scan(&id, &section, &payload, &blob, &updatedAt); err != nil {
		return Record{}, fmt.Errorf("scanning record row: %w", err)
	}

	var fields resume.Fields
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Record{}, fmt.Errorf("unmarshaling payload for record %d: %w", id, err)
	}

	r := Record{
		ID:        id,
		Section:   resume.ParseSection(section),
		Fields:    fields,
		Embedding: bytesToFloat32(blob),
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		r.UpdatedAt = t
	}
	return r, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// float32ToBytes converts a float32 slice to a little-endian byte slice.
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 converts a little-endian byte slice back to float32s.
func bytesToFloat32(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
