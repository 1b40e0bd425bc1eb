// Package store — локальный кеш метаданных скачанных объектов.
// Секретов здесь нет: только идентификаторы, имена и хеши, чтобы
// клиент помнил, что уже загружал.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Object represents a row in the objects table.
type Object struct {
	ObjectID      string
	Name          string
	ContentType   string
	ContentHash   string
	PlaintextSize int64
	CreatedAt     int64
}

// Store wraps a sql.DB for the current user.
type Store struct {
	db *sql.DB
}

// OpenForUser opens (and creates if needed) a SQLite DB file segregated per login.
// Base directory can be overridden via CLIENT_DB_PATH environment variable.
func OpenForUser(login string) (*Store, string, error) {
	if login == "" {
		return nil, "", errors.New("empty login for user store")
	}
	base := os.Getenv("CLIENT_DB_PATH")
	if base == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return nil, "", err
		}
		base = filepath.Join(cfgDir, "ImageVault", "users")
	}
	dir := filepath.Join(base, login)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", err
	}
	dbPath := filepath.Join(dir, "client.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, "", err
	}
	s := &Store{db: db}
	return s, dbPath, nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate ensures the single required table exists.
func (s *Store) Migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS objects (
  object_id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  content_type TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  plaintext_size INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_name ON objects(name);
CREATE INDEX IF NOT EXISTS idx_objects_created_at ON objects(created_at);
`
	_, err := s.db.Exec(ddl)
	return err
}

// SaveObject upserts object metadata after a successful upload or download.
func (s *Store) SaveObject(o Object) error {
	if o.ObjectID == "" || o.Name == "" {
		return errors.New("object_id and name are required")
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.Exec(`
INSERT INTO objects(object_id, name, content_type, content_hash, plaintext_size, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(object_id) DO UPDATE SET
  name=excluded.name, content_type=excluded.content_type,
  content_hash=excluded.content_hash, plaintext_size=excluded.plaintext_size`,
		o.ObjectID, o.Name, o.ContentType, o.ContentHash, o.PlaintextSize, o.CreatedAt,
	)
	return err
}

// ListObjects returns all cached objects ordered by created_at desc.
func (s *Store) ListObjects() ([]Object, error) {
	rows, err := s.db.Query(`SELECT object_id, name, content_type, content_hash, plaintext_size, created_at FROM objects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.ObjectID, &o.Name, &o.ContentType, &o.ContentHash, &o.PlaintextSize, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// GetObjectByName returns a single cached object by exact name.
func (s *Store) GetObjectByName(name string) (*Object, error) {
	var o Object
	err := s.db.QueryRow(`SELECT object_id, name, content_type, content_hash, plaintext_size, created_at FROM objects WHERE name = ?`, name).
		Scan(&o.ObjectID, &o.Name, &o.ContentType, &o.ContentHash, &o.PlaintextSize, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object with name %q not found", name)
		}
		return nil, err
	}
	return &o, nil
}

// DeleteObject removes cached metadata for an object.
func (s *Store) DeleteObject(objectID string) error {
	_, err := s.db.Exec(`DELETE FROM objects WHERE object_id = ?`, objectID)
	return err
}
