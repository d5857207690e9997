// Package repository persists shot records.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"

	_ "modernc.org/sqlite" // SQLite driver.
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultBusyTimeout = 5 * time.Second

// Store provides write and read access to stored shots.
type Store interface {
	// Save stores one shot and returns its identifier. Errors wrap ErrStorage.
	Save(ctx context.Context, rec model.ShotRecord) (int64, error)

	// Recent returns the n most recent shots, newest first.
	Recent(ctx context.Context, n int) ([]model.StoredShot, error)

	// Count returns the number of stored shots.
	Count(ctx context.Context) (int64, error)

	Close() error
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db          *sql.DB
	now         func() time.Time
	busyTimeout time.Duration
	logger      logger.Logger
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{now: time.Now, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}

	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w: %w", ErrStorage, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, ErrStorage, err)
	}
	// Each connection to :memory: is a separate database, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w: %w", path, ErrStorage, err)
	}
	s.logger.Info(ctx, "shot store opened", logger.String("path", path))
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`PRAGMA busy_timeout = %d;`, s.busyTimeout.Milliseconds()),
		`CREATE TABLE IF NOT EXISTS shots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_release INTEGER NOT NULL,
			ts_apex INTEGER NOT NULL,
			classification INTEGER NOT NULL,
			scored INTEGER NOT NULL,
			grip_peak INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shots_created_at ON shots(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save stores rec and returns its row id.
func (s *SQLiteStore) Save(ctx context.Context, rec model.ShotRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO shots (ts_release, ts_apex, classification, scored, grip_peak, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TSRelease,
		rec.TSApex,
		int(rec.Classification),
		rec.Scored,
		rec.GripPeak,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert shot: %w: %w", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert shot id: %w: %w", ErrStorage, err)
	}
	return id, nil
}

// Recent returns up to n shots ordered newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]model.StoredShot, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}
	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts_release, ts_apex, classification, scored, grip_peak, created_at
		 FROM shots ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query shots: %w: %w", ErrStorage, err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Warn(ctx, "closing rows", logger.Error(cerr))
		}
	}()

	out := make([]model.StoredShot, 0, n)
	for rows.Next() {
		var (
			shot    model.StoredShot
			class   int
			created string
		)
		if err := rows.Scan(
			&shot.ID,
			&shot.Record.TSRelease,
			&shot.Record.TSApex,
			&class,
			&shot.Record.Scored,
			&shot.Record.GripPeak,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scan shot: %w: %w", ErrStorage, err)
		}
		shot.Record.Classification = model.Classification(class)
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			shot.CreatedAt = t
		}
		out = append(out, shot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shots: %w: %w", ErrStorage, err)
	}
	return out, nil
}

// Count returns the number of stored shots.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count shots: %w: %w", ErrStorage, err)
	}
	return n, nil
}
