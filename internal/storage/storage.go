// Package storage persists a log of extraction requests and their outcomes.
// The engine itself never writes here; the API layer records entries after
// each request so operators can audit success rates per host. A nil store
// disables logging entirely.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"recipeharvest/internal/config"
)

// Source identifies which entry point produced a parse.
type Source string

const (
	SourceURL  Source = "url"
	SourceText Source = "text"
)

// Entry is one recorded extraction attempt.
type Entry struct {
	ID         int64
	Source     Source
	Target     string // URL for url-sourced parses, empty for text
	Host       string
	Tier       string // winning tier, or "textai" for the text path
	Succeeded  bool
	ErrorKind  string
	Attempts   int
	Duration   time.Duration
	Confidence *float64
	CreatedAt  time.Time
}

// ParseLogStore writes entries to Postgres through database/sql and lib/pq.
type ParseLogStore struct {
	db          *sql.DB
	autoMigrate bool
}

// Open connects to the configured database and optionally applies the
// schema. Returns (nil, nil) when no DSN is configured: logging is opt-in.
func Open(cfg config.SQLConfig) (*ParseLogStore, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open parse log db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping parse log db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	store := &ParseLogStore{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := store.ensureSchema(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// Record appends one entry. On a missing table with auto-migrate enabled it
// applies the schema and retries once.
func (s *ParseLogStore) Record(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.insert(ctx, e); err != nil {
		if s.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := s.insert(ctx, e); retryErr != nil {
				return fmt.Errorf("record parse: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("record parse: %w", err)
	}
	return nil
}

func (s *ParseLogStore) insert(ctx context.Context, e Entry) error {
	query := `
        INSERT INTO parse_log
            (source, target, host, tier, succeeded, error_kind, attempts, duration_ms, confidence, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		string(e.Source),
		e.Target,
		e.Host,
		e.Tier,
		e.Succeeded,
		e.ErrorKind,
		e.Attempts,
		e.Duration.Milliseconds(),
		e.Confidence,
		createdAt,
	)
	return err
}

// Recent returns the newest entries for a host, or for every host when host
// is empty.
func (s *ParseLogStore) Recent(ctx context.Context, host string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
        SELECT id, source, target, host, tier, succeeded, error_kind, attempts, duration_ms, confidence, created_at
        FROM parse_log
    `
	args := []any{}
	if host != "" {
		query += ` WHERE host = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, strings.ToLower(host), limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query parse log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			source     string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &source, &e.Target, &e.Host, &e.Tier,
			&e.Succeeded, &e.ErrorKind, &e.Attempts, &durationMS, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parse log row: %w", err)
		}
		e.Source = Source(source)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying connection pool.
func (s *ParseLogStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ParseLogStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS parse_log (
		    id BIGSERIAL PRIMARY KEY,
		    source TEXT NOT NULL,
		    target TEXT,
		    host TEXT,
		    tier TEXT,
		    succeeded BOOLEAN NOT NULL,
		    error_kind TEXT,
		    attempts INT,
		    duration_ms BIGINT,
		    confidence DOUBLE PRECISION,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_parse_log_host_created ON parse_log (host, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
