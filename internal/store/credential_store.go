// Package store persists the authenticated identity across process
// restarts. It is the only writer of the credential record; every other
// component reads through TokenSource-style accessors.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitcoin-gpt-client/internal/dto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Credential is the persisted identity: an opaque bearer token plus the
// user record the backend returned at login. A present token means the
// holder is treated as authenticated.
type Credential struct {
	Token string
	User  dto.UserDTO
}

type CredentialStore struct {
	db *sql.DB

	mu      sync.RWMutex
	current *Credential
}

func NewCredentialStore(dbPath string) (*CredentialStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create credential dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		user_json TEXT NOT NULL,
		saved_at DATETIME NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	s := &CredentialStore{db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *CredentialStore) load() error {
	var token, userJSON string
	err := s.db.QueryRow(`SELECT token, user_json FROM credentials WHERE id = 1`).Scan(&token, &userJSON)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}

	var user dto.UserDTO
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return fmt.Errorf("decode stored user: %w", err)
	}

	s.mu.Lock()
	s.current = &Credential{Token: token, User: user}
	s.mu.Unlock()
	return nil
}

// Save replaces the stored credential. Called only on successful login.
func (s *CredentialStore) Save(cred *Credential) error {
	userJSON, err := json.Marshal(cred.User)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO credentials (id, token, user_json, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, user_json = excluded.user_json, saved_at = excluded.saved_at`,
		cred.Token, string(userJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	s.mu.Lock()
	copied := *cred
	s.current = &copied
	s.mu.Unlock()
	return nil
}

// Clear erases the persisted identity. Called only on logout.
func (s *CredentialStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return nil
}

// Current returns the in-memory credential, or nil when logged out.
func (s *CredentialStore) Current() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Token implements api.TokenSource.
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

func (s *CredentialStore) Close() error {
	return s.db.Close()
}
