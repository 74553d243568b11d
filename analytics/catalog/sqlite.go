package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite catalog. Zero-setup persistence for
// single-host deployments; use MySQLStore when several orchestrators share
// one catalog.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite catalog at path.
// ":memory:" gives an ephemeral database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	// One writer at a time; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure catalog: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS execution_records (
			id TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			algorithm_version TEXT NOT NULL,
			parameters TEXT NOT NULL,
			graph TEXT NOT NULL,
			target_collection TEXT NOT NULL,
			result_count INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create execution_records table: %w", err)
	}
	for _, index := range []string{
		"CREATE INDEX IF NOT EXISTS idx_records_algorithm ON execution_records(algorithm, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_records_status ON execution_records(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_records_created ON execution_records(created_at)",
	} {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("create catalog index: %w", err)
		}
	}
	return nil
}

// Append inserts one record, replacing any record with the same ID so that
// retried appends stay idempotent.
func (s *SQLiteStore) Append(ctx context.Context, r Record) error {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO execution_records
			(id, name, algorithm, algorithm_version, parameters, graph,
			 target_collection, result_count, elapsed_ms, cost_usd, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Algorithm, r.AlgorithmVersion, string(params), r.Graph,
		r.TargetCollection, r.ResultCount, r.Elapsed.Milliseconds(), r.CostUSD,
		r.Status, r.Error, created,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Get returns the record with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, algorithm, algorithm_version, parameters, graph,
		       target_collection, result_count, elapsed_ms, cost_usd, status, error, created_at
		FROM execution_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	return r, nil
}

// List returns matching records newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT id, name, algorithm, algorithm_version, parameters, graph,
		       target_collection, result_count, elapsed_ms, cost_usd, status, error, created_at
		FROM execution_records WHERE 1=1`
	var args []any
	if f.Algorithm != "" {
		query += " AND algorithm = ?"
		args = append(args, f.Algorithm)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r         Record
		params    string
		elapsedMS int64
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Algorithm, &r.AlgorithmVersion, &params, &r.Graph,
		&r.TargetCollection, &r.ResultCount, &elapsedMS, &r.CostUSD, &r.Status, &r.Error, &r.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if params != "" && params != "null" {
		if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
			return Record{}, fmt.Errorf("decode parameters: %w", err)
		}
	}
	return r, nil
}
