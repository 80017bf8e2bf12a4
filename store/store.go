// Package store persists users and world snapshots in SQLite. Snapshot blobs
// are LZ4-compressed JSON chained by BLAKE3 hashes, so divergence or
// tampering is detectable on rehydrate.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	email TEXT,
	empire_name TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	prev_hash TEXT NOT NULL,
	final_hash TEXT NOT NULL,
	state_blob BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	uid INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (uid, key)
);
`

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CreateUser registers a new account and returns its uid.
func (s *Store) CreateUser(username, password, email, empireName string) (int, error) {
	res, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, email, empire_name, created_at) VALUES (?, ?, ?, ?, ?)",
		username, hashPassword(password), email, empireName, time.Now().Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("username taken")
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user id: %w", err)
	}
	slog.Info("user created", "uid", id, "username", username)
	return int(id), nil
}

// Authenticate checks the credentials and returns the uid on success.
func (s *Store) Authenticate(username, password string) (int, error) {
	var id int
	var hash string
	err := s.db.QueryRow(
		"SELECT id, password_hash FROM users WHERE username = ?", username,
	).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("unknown user")
	}
	if err != nil {
		return 0, fmt.Errorf("authenticate: %w", err)
	}
	if hash != hashPassword(password) {
		return 0, fmt.Errorf("wrong password")
	}
	return id, nil
}

// Preferences returns every stored preference for a uid.
func (s *Store) Preferences(uid int) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM preferences WHERE uid = ?", uid)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}

// SetPreferences upserts the given keys for a uid, leaving other keys alone.
func (s *Store) SetPreferences(uid int, prefs map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	defer tx.Rollback()
	for k, v := range prefs {
		if _, err := tx.Exec(
			"INSERT INTO preferences (uid, key, value) VALUES (?, ?, ?) ON CONFLICT(uid, key) DO UPDATE SET value = excluded.value",
			uid, k, v,
		); err != nil {
			return fmt.Errorf("set preference %q: %w", k, err)
		}
	}
	return tx.Commit()
}

// UserName returns the username and empire name for a uid.
func (s *Store) UserName(uid int) (username, empireName string, err error) {
	err = s.db.QueryRow(
		"SELECT username, empire_name FROM users WHERE id = ?", uid,
	).Scan(&username, &empireName)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("unknown user")
	}
	return username, empireName, err
}
