package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteKeystore is a file-backed [Keystore] for desktop and development
// targets without a reachable vault. Ciphertext lands in a single table;
// the file itself carries no additional protection beyond the encryption
// the [Store] applies.
type SQLiteKeystore struct {
	db *sql.DB
}

// NewSQLiteKeystore opens (or creates) the keystore database at dbPath.
//
// NewSQLiteKeystore may return an error when input validation, dependency calls, or security checks fail.
func NewSQLiteKeystore(dbPath string) (*SQLiteKeystore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}

	// WAL keeps concurrent readers from tripping over monitor writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open keystore database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ks := &SQLiteKeystore{db: db}
	if err := ks.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize keystore schema: %w", err)
	}

	return ks, nil
}

func (s *SQLiteKeystore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS secure_entries (
		service    TEXT NOT NULL,
		key        TEXT NOT NULL,
		ciphertext BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (service, key)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLiteKeystore) Get(ctx context.Context, service, key string) ([]byte, error) {
	var ciphertext []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT ciphertext FROM secure_entries WHERE service = ? AND key = ?`,
		service, key,
	).Scan(&ciphertext)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ciphertext, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLiteKeystore) Set(ctx context.Context, service, key string, value []byte) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secure_entries (service, key, ciphertext, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (service, key)
		DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		service, key, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLiteKeystore) Delete(ctx context.Context, service, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM secure_entries WHERE service = ? AND key = ?`,
		service, key,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteAll describes the deleteall operation and its observable behavior.
//
// DeleteAll may return an error when input validation, dependency calls, or security checks fail.
func (s *SQLiteKeystore) DeleteAll(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM secure_entries WHERE service = ?`,
		service,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Ping describes the ping operation and its observable behavior.
func (s *SQLiteKeystore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteKeystore) Close() error {
	return s.db.Close()
}
