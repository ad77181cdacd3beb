package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"diagflow/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite. Sessions are stored
// as JSON documents keyed by id; updated_at is kept in its own column
// for the eviction sweep. Per-session serialization is provided by an
// in-process keyed lock held across the read-modify-write, since the
// service owns the database file exclusively.
type SQLiteStore struct {
	db *sql.DB

	lockMu sync.Mutex
	locks  map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:    db,
		locks: make(map[string]*sessionLock),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		dtc_code TEXT NOT NULL,
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// lock acquires the per-session lock for id.
func (s *SQLiteStore) lock(id string) *sessionLock {
	s.lockMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.lockMu.Unlock()

	l.mu.Lock()
	return l
}

// unlock releases the per-session lock, dropping it from the table
// when no caller still holds a reference.
func (s *SQLiteStore) unlock(id string, l *sessionLock) {
	l.mu.Unlock()

	s.lockMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
	s.lockMu.Unlock()
}

// Create stores a fully-formed session.
func (s *SQLiteStore) Create(ctx context.Context, sess *domain.DiagnosticSession) error {
	if len(sess.Steps) == 0 {
		return ErrEmptyPlan
	}

	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	query := `
	INSERT INTO sessions (id, dtc_code, status, current_step, document, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err = withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sess.ID, sess.DTCCode, string(sess.Status), sess.CurrentStepIndex,
			string(doc), sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getLocked(ctx context.Context, id string) (*domain.DiagnosticSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id = ?`, id)

	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var sess domain.DiagnosticSession
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session document: %w", err)
	}
	if sess.Findings == nil {
		sess.Findings = make(map[string]string)
	}
	return &sess, nil
}

// Get returns the session, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.DiagnosticSession, error) {
	l := s.lock(id)
	defer s.unlock(id, l)
	return s.getLocked(ctx, id)
}

// Update applies mutate under the per-session lock and persists the
// result. A failed mutation persists nothing.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(*domain.DiagnosticSession) error) (*domain.DiagnosticSession, error) {
	l := s.lock(id)
	defer s.unlock(id, l)

	sess, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(sess); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	query := `
	UPDATE sessions SET status = ?, current_step = ?, document = ?, updated_at = ?
	WHERE id = ?`

	err = withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			string(sess.Status), sess.CurrentStepIndex, string(doc), sess.UpdatedAt.Unix(), id,
		)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// Delete removes a session. The per-session lock keeps eviction from
// racing an in-flight Update.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	l := s.lock(id)
	defer s.unlock(id, l)

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ExpiredSessionIDs returns ids of sessions idle longer than ttl.
func (s *SQLiteStore) ExpiredSessionIDs(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return ids, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
