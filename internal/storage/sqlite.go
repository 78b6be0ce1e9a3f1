// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codelens/codelens/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db           *sql.DB
	historyLimit int
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist. Each session
// retains at most historyLimit Q&A records; older ones are pruned on insert.
func NewSQLiteStorage(dbPath string, historyLimit int) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, historyLimit: historyLimit}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_type TEXT NOT NULL,
		files_indexed INTEGER NOT NULL DEFAULT 0,
		files_skipped INTEGER NOT NULL DEFAULT 0,
		total_chunks INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS qa_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		snippets TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_qa_session ON qa_history(session_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession inserts a session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *models.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, source_type, files_indexed, files_skipped, total_chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Source, session.SourceType,
		session.Stats.FilesIndexed, session.Stats.FilesSkipped, session.Stats.TotalChunks,
		session.CreatedAt,
	)
	return err
}

// GetSession returns a session by ID.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, source_type, files_indexed, files_skipped, total_chunks, created_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Source, &sess.SourceType,
		&sess.Stats.FilesIndexed, &sess.Stats.FilesSkipped, &sess.Stats.TotalChunks,
		&sess.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSessionStats replaces a session's indexing counters.
func (s *SQLiteStorage) UpdateSessionStats(ctx context.Context, id string, stats models.IndexStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET files_indexed = ?, files_skipped = ?, total_chunks = ? WHERE id = ?`,
		stats.FilesIndexed, stats.FilesSkipped, stats.TotalChunks, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// SaveQA inserts a history record and prunes the session's history down to
// the retention limit, oldest first.
func (s *SQLiteStorage) SaveQA(ctx context.Context, record *models.QARecord) error {
	snippetsJSON, err := json.Marshal(record.Snippets)
	if err != nil {
		return fmt.Errorf("failed to marshal snippets: %w", err)
	}
	tagsJSON, err := json.Marshal(tagsOrEmpty(record.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO qa_history (id, session_id, question, answer, snippets, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Question, record.Answer,
		string(snippetsJSON), string(tagsJSON), record.CreatedAt,
	)
	if err != nil {
		return err
	}

	if s.historyLimit > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM qa_history WHERE session_id = ? AND id NOT IN (
				SELECT id FROM qa_history WHERE session_id = ?
				ORDER BY created_at DESC, id DESC LIMIT ?
			)`,
			record.SessionID, record.SessionID, s.historyLimit,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetHistory returns a session's history, newest first.
func (s *SQLiteStorage) GetHistory(ctx context.Context, sessionID string) ([]*models.QARecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, snippets, tags, created_at
		 FROM qa_history WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetQA returns a history record by ID.
func (s *SQLiteStorage) GetQA(ctx context.Context, qaID string) (*models.QARecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, question, answer, snippets, tags, created_at
		 FROM qa_history WHERE id = ?`, qaID,
	)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, qaID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateTags replaces the tags of a history record.
func (s *SQLiteStorage) UpdateTags(ctx context.Context, qaID string, tags []string) error {
	tagsJSON, err := json.Marshal(tagsOrEmpty(tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE qa_history SET tags = ? WHERE id = ?`, string(tagsJSON), qaID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, qaID)
	}
	return nil
}

// DeleteQA removes a history record.
func (s *SQLiteStorage) DeleteQA(ctx context.Context, qaID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qa_history WHERE id = ?`, qaID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, qaID)
	}
	return nil
}

// SearchHistory returns a session's records whose question or answer contains
// the query, case-insensitive, newest first.
func (s *SQLiteStorage) SearchHistory(ctx context.Context, sessionID, query string) ([]*models.QARecord, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, snippets, tags, created_at
		 FROM qa_history
		 WHERE session_id = ? AND (LOWER(question) LIKE ? OR LOWER(answer) LIKE ?)
		 ORDER BY created_at DESC, id DESC`,
		sessionID, pattern, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CountSessions returns the total number of sessions.
func (s *SQLiteStorage) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// CountQA returns the total number of history records.
func (s *SQLiteStorage) CountQA(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_history`).Scan(&count)
	return count, err
}

// Ping verifies the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func scanRecord(scan func(dest ...any) error) (*models.QARecord, error) {
	var rec models.QARecord
	var snippetsJSON, tagsJSON string
	if err := scan(&rec.ID, &rec.SessionID, &rec.Question, &rec.Answer,
		&snippetsJSON, &tagsJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snippetsJSON), &rec.Snippets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snippets: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*models.QARecord, error) {
	var records []*models.QARecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
