package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteIndex persists partitions in a SQLite file and scores by brute force.
type SQLiteIndex struct {
	db     *sql.DB
	metric Metric
}

func NewSQLiteIndex(path string, metric Metric) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS vector_partitions (
			tenant TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS vector_records (
			tenant TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			page_url TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (tenant, id)
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("index migration failed: %w\nSQL: %s", err, m)
		}
	}

	return &SQLiteIndex{db: db, metric: metric}, nil
}

func (s *SQLiteIndex) Reset(ctx context.Context, tenant string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_records WHERE tenant = ?`, tenant); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_partitions WHERE tenant = ?`, tenant); err != nil {
		return fmt.Errorf("failed to delete partition: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteIndex) InsertBatch(ctx context.Context, tenant string, batch Batch) error {
	dim, err := batch.Validate()
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM vector_partitions WHERE tenant = ?`, tenant).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO vector_partitions (tenant, dimension) VALUES (?, ?)`, tenant, dim); err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}
	case err != nil:
		return err
	case existing != dim:
		return dimensionError(tenant, dim, existing)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO vector_records (tenant, id, text, bot_id, page_url, chunk_index, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range batch.IDs {
		md := batch.Metadata[i]
		if _, err := stmt.ExecContext(ctx, tenant, id, batch.Texts[i], md.BotID, md.PageURL, md.ChunkIndex,
			encodeVector(batch.Vectors[i])); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteIndex) Query(ctx context.Context, tenant string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM vector_partitions WHERE tenant = ?`, tenant).Scan(&dim)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, dimensionError(tenant, len(vector), dim)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, bot_id, page_url, chunk_index, vector
		FROM vector_records WHERE tenant = ?
		ORDER BY rowid ASC
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.Metadata.BotID, &m.Metadata.PageURL, &m.Metadata.ChunkIndex, &blob); err != nil {
			return nil, err
		}
		m.Score = s.metric.Score(vector, decodeVector(blob))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topK(matches, k), nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// encodeVector stores float32 values little-endian, four bytes each
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
