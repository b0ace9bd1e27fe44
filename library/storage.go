package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Keys the session persists between runs.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Storage is durable key/value state that survives restarts.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// StateDB keeps client state in a small SQLite database.
type StateDB struct {
	db *sql.DB

	getStmt *sql.Stmt
	setStmt *sql.Stmt
}

// OpenStateDB opens (or creates) the state database at path, applies schema
// migrations, and prepares common statements.
func OpenStateDB(path string) (*StateDB, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrateState(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &StateDB{db: db}
	if s.getStmt, err = db.Prepare(`SELECT value FROM kv WHERE key=?`); err != nil {
		s.Close()
		return nil, err
	}
	if s.setStmt, err = db.Prepare(`INSERT INTO kv(key,value) VALUES(?,?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value`); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *StateDB) Close() error {
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	if s.setStmt != nil {
		s.setStmt.Close()
	}
	return s.db.Close()
}

const stateSchemaVersion = 1

func migrateState(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= stateSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, stateSchemaVersion); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return tx.Commit()
}

func (s *StateDB) Get(key string) (string, bool, error) {
	var v string
	err := s.getStmt.QueryRow(key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *StateDB) Set(key, value string) error {
	_, err := s.setStmt.Exec(key, value)
	return err
}

// Delete removes keys in one transaction; absent keys are ignored.
func (s *StateDB) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, k := range keys {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key=?`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MemoryStorage is a Storage that lives only as long as the process.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: map[string]string{}}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}
