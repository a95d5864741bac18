package telemetry

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteStore persists query statistics in the side-table database.
type SQLiteStore struct {
	db          *sql.DB
	zeroResults int
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the telemetry tables if needed. The db is shared
// and not closed by the store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS query_daily (
		date         TEXT PRIMARY KEY,
		queries      INTEGER NOT NULL DEFAULT 0,
		zero_results INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS query_terms (
		term      TEXT PRIMARY KEY,
		count     INTEGER NOT NULL DEFAULT 0,
		last_seen INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		query     TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date   TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return &SQLiteStore{db: db, zeroResults: 100}, nil
}

// Save applies d in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, d *Delta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO query_daily (date, queries, zero_results) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			queries = queries + excluded.queries,
			zero_results = zero_results + excluded.zero_results`,
		d.Date, d.Queries, d.ZeroResults); err != nil {
		return fmt.Errorf("save daily counts: %w", err)
	}

	for _, q := range d.ZeroQueries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
			q.Query, q.Time.UnixMilli()); err != nil {
			return fmt.Errorf("insert zero-result query: %w", err)
		}
	}
	if len(d.ZeroQueries) > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM zero_result_queries WHERE id NOT IN (
				SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
			s.zeroResults); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	for term, n := range d.Terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, strftime('%s','now'))
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = excluded.last_seen`,
			term, n); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	for bucket, n := range d.Latency {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
			d.Date, string(bucket), n); err != nil {
			return fmt.Errorf("save latency counts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load reads all persisted statistics.
func (s *SQLiteStore) Load(ctx context.Context, topTerms, zeroResults int) (Snapshot, error) {
	snap := Snapshot{Latency: map[LatencyBucket]int64{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(queries), 0), COALESCE(SUM(zero_results), 0) FROM query_daily`).
		Scan(&snap.Queries, &snap.ZeroResults); err != nil {
		return Snapshot{}, fmt.Errorf("query daily counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, topTerms)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query top terms: %w", err)
	}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("scan term: %w", err)
		}
		snap.TopTerms = append(snap.TopTerms, tc)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, zeroResults)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query zero-result queries: %w", err)
	}
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("scan query: %w", err)
		}
		snap.RecentZeroResults = append(snap.RecentZeroResults, q)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT bucket, SUM(count) FROM query_latency_stats GROUP BY bucket`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query latency counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return Snapshot{}, fmt.Errorf("scan latency: %w", err)
		}
		snap.Latency[LatencyBucket(bucket)] = n
	}
	return snap, rows.Err()
}

// OnClear drops all statistics along with the index.
func (s *SQLiteStore) OnClear(ctx context.Context) error {
	for _, table := range []string{"query_daily", "query_terms", "zero_result_queries", "query_latency_stats"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
