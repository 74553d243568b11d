package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed catalog for deployments where several
// orchestrator instances share one execution history.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL catalog.
//
// The DSN must enable parseTime so TIMESTAMP columns scan into time.Time:
//
//	user:pass@tcp(host:3306)/analytics?parseTime=true
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect catalog: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS execution_records (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			algorithm VARCHAR(64) NOT NULL,
			algorithm_version VARCHAR(32) NOT NULL,
			parameters TEXT NOT NULL,
			graph VARCHAR(512) NOT NULL,
			target_collection VARCHAR(255) NOT NULL,
			result_count BIGINT NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			cost_usd DOUBLE NOT NULL,
			status VARCHAR(16) NOT NULL,
			error TEXT,
			created_at TIMESTAMP(3) NOT NULL,
			INDEX idx_records_algorithm (algorithm, created_at),
			INDEX idx_records_status (status, created_at),
			INDEX idx_records_created (created_at)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create execution_records table: %w", err)
	}
	return nil
}

// Append inserts one record, replacing any record with the same ID.
func (s *MySQLStore) Append(ctx context.Context, r Record) error {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO execution_records
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
func (s *MySQLStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, algorithm, algorithm_version, parameters, graph,
		       target_collection, result_count, elapsed_ms, cost_usd, status, COALESCE(error, ''), created_at
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
func (s *MySQLStore) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `
		SELECT id, name, algorithm, algorithm_version, parameters, graph,
		       target_collection, result_count, elapsed_ms, cost_usd, status, COALESCE(error, ''), created_at
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
func (s *MySQLStore) Close() error { return s.db.Close() }
