package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/findify/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
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

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		session_id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		messages TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcripts_closed_at ON transcripts(closed_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveTranscript inserts t, replacing an earlier record for the same session.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, t *models.Transcript) error {
	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts (session_id, query, messages, result_count, pages, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Query, string(messagesJSON), t.ResultCount, t.Pages, t.CreatedAt.UTC(), t.ClosedAt.UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*models.Transcript, error) {
	var t models.Transcript
	var messagesJSON string
	if err := row.Scan(&t.SessionID, &t.Query, &messagesJSON, &t.ResultCount, &t.Pages, &t.CreatedAt, &t.ClosedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messagesJSON), &t.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &t, nil
}

// GetTranscript returns the transcript of sessionID.
func (s *SQLiteStorage) GetTranscript(ctx context.Context, sessionID string) (*models.Transcript, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, query, messages, result_count, pages, created_at, closed_at
		 FROM transcripts WHERE session_id = ?`, sessionID,
	)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTranscripts returns transcripts newest first with offset and limit.
func (s *SQLiteStorage) ListTranscripts(ctx context.Context, offset, limit int) ([]*models.Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, query, messages, result_count, pages, created_at, closed_at
		 FROM transcripts ORDER BY closed_at DESC, session_id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transcripts []*models.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, t)
	}
	return transcripts, rows.Err()
}

// CountTranscripts returns the number of archived transcripts.
func (s *SQLiteStorage) CountTranscripts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
