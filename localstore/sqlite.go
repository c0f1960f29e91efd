package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS local_store (
	k    TEXT PRIMARY KEY,
	v    TEXT NOT NULL,
	size INTEGER NOT NULL
)`

// SQLite is a Store persisted in a single SQLite file.
type SQLite struct {
	sqlDB *sql.DB
	quota int64
}

// OpenSQLite opens (creating if needed) the store at path. quota <= 0
// selects DefaultQuota.
func OpenSQLite(ctx context.Context, path string, quota int64) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("localstore: storage path is required")
	}
	if quota <= 0 {
		quota = DefaultQuota
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps the quota check and the write in the same view.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB, quota: quota}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT v FROM local_store WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var usage, existing int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM local_store`).Scan(&usage); err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	err = tx.QueryRowContext(ctx, `SELECT size FROM local_store WHERE k = ?`, key).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read entry size: %w", err)
	}

	size := entrySize(key, value)
	if usage-existing+size > s.quota {
		err = ErrQuotaExceeded
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO local_store (k, v, size) VALUES (?, ?, ?)
		 ON CONFLICT(k) DO UPDATE SET v = excluded.v, size = excluded.size`,
		key, value, size,
	); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM local_store WHERE k = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT k FROM local_store WHERE instr(k, ?) = 1 ORDER BY k`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLite) Usage(ctx context.Context) (int64, error) {
	var usage int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM local_store`).Scan(&usage); err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return usage, nil
}

// Quota is the byte budget the store was opened with.
func (s *SQLite) Quota() int64 { return s.quota }

var _ Store = (*SQLite)(nil)
