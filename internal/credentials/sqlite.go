package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps secrets in a SQLite file readable only by the owner.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// OpenSQLiteStore opens or creates the secrets database at path with mode 0600.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create secrets directory: %w", err)
		}
	}
	// Create the file up front so it never exists with a wider mode.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets file: %w", err)
	}
	_ = f.Close()
	if err := os.Chmod(path, 0600); err != nil {
		return nil, fmt.Errorf("failed to restrict secrets file: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS secrets (
		service TEXT NOT NULL,
		account TEXT NOT NULL,
		secret TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (service, account)
	);`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize secrets schema: %w", err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

func (s *SQLiteStore) Read(service, account string) (string, bool, error) {
	var secret string
	err := s.db.QueryRow(
		`SELECT secret FROM secrets WHERE service = ? AND account = ?`, service, account,
	).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret: %w", err)
	}
	return secret, true, nil
}

func (s *SQLiteStore) Write(service, account, secret string) error {
	_, err := s.db.Exec(
		`INSERT INTO secrets (service, account, secret, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(service, account) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at`,
		service, account, secret, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(service, account string) error {
	if _, err := s.db.Exec(`DELETE FROM secrets WHERE service = ? AND account = ?`, service, account); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
