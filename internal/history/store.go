package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; users delete the history database to recover.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible
// version of this tool.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Attempt outcomes.
const (
	OutcomePublished        = "published"
	OutcomeFailed           = "failed"
	OutcomeAlreadyPublished = "already-published"
)

// Attempt is one journal row.
type Attempt struct {
	ID            int64
	SessionID     string
	WorkspaceRoot string
	Package       string
	Version       string
	Outcome       string
	Detail        string
	StartedAt     time.Time
	Duration      time.Duration
}

// Store manages the history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Record appends an attempt to the journal.
func (s *Store) Record(ctx context.Context, attempt Attempt) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO attempts (
            session_id, workspace_root, package, version,
            outcome, detail, started_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.SessionID,
		attempt.WorkspaceRoot,
		attempt.Package,
		attempt.Version,
		attempt.Outcome,
		attempt.Detail,
		attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		attempt.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Recent returns the newest attempts, most recent first. A limit <= 0
// defaults to 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, workspace_root, package, version,
                outcome, COALESCE(detail, ''), started_at, duration_ms
         FROM attempts ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var startedAt string
		var durationMS int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.WorkspaceRoot, &a.Package, &a.Version,
			&a.Outcome, &a.Detail, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
			a.StartedAt = ts
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return tx.Commit()
}
