// Package history archives per-run API usage and pipeline outcomes in a
// local sqlite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"creditscout/internal/budget"
)

// Store wraps the SQL database connection with application-specific methods.
type Store struct {
	*sql.DB
	path string
}

// RunSummary is one archived pipeline run.
type RunSummary struct {
	ID          int64
	StartedAt   time.Time
	Topics      int
	Successes   int
	Failures    int
	Selected    int
	EmailedTo   string
	DurationSec float64
}

// Open creates the database connection and initializes the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{DB: sqlDB, path: path}
	if err := s.configure(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS usage_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER DEFAULT 0,
			output_tokens INTEGER DEFAULT 0,
			cost_usd REAL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_entries(provider)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_entries(timestamp)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at DATETIME NOT NULL,
			topics INTEGER DEFAULT 0,
			successes INTEGER DEFAULT 0,
			failures INTEGER DEFAULT 0,
			selected INTEGER DEFAULT 0,
			emailed_to TEXT DEFAULT '',
			duration_sec REAL DEFAULT 0
		)`,
	}
	for _, q := range queries {
		if _, err := s.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// RecordUsage archives ledger entries in one transaction.
func (s *Store) RecordUsage(ctx context.Context, entries []budget.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO usage_entries (timestamp, provider, model, input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Timestamp.UTC().Format(time.RFC3339), e.Provider, e.Model,
			e.InputTokens, e.OutputTokens, e.CostUSD); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecordRun archives one pipeline run summary and returns its id.
func (s *Store) RecordRun(ctx context.Context, run RunSummary) (int64, error) {
	res, err := s.ExecContext(ctx,
		`INSERT INTO runs (started_at, topics, successes, failures, selected, emailed_to, duration_sec)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(time.RFC3339), run.Topics, run.Successes, run.Failures,
		run.Selected, run.EmailedTo, run.DurationSec)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Totals returns all-time usage aggregated per provider.
func (s *Store) Totals(ctx context.Context) (map[string]budget.Totals, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(input_tokens + output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_entries GROUP BY provider`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]budget.Totals)
	for rows.Next() {
		var provider string
		var t budget.Totals
		if err := rows.Scan(&provider, &t.Tokens, &t.CostUSD); err != nil {
			return nil, err
		}
		totals[provider] = t
	}
	return totals, rows.Err()
}

// TotalsSince returns usage aggregated per provider from the given time on.
func (s *Store) TotalsSince(ctx context.Context, since time.Time) (map[string]budget.Totals, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT provider, COALESCE(SUM(input_tokens + output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_entries WHERE timestamp >= ? GROUP BY provider`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]budget.Totals)
	for rows.Next() {
		var provider string
		var t budget.Totals
		if err := rows.Scan(&provider, &t.Tokens, &t.CostUSD); err != nil {
			return nil, err
		}
		totals[provider] = t
	}
	return totals, rows.Err()
}

// RecentRuns returns the latest n run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]RunSummary, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.QueryContext(ctx,
		`SELECT id, started_at, topics, successes, failures, selected, emailed_to, duration_sec
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.ID, &started, &r.Topics, &r.Successes, &r.Failures,
			&r.Selected, &r.EmailedTo, &r.DurationSec); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339, started); perr == nil {
			r.StartedAt = ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
