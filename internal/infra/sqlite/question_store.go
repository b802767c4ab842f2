// Package sqlite keeps the question pool in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"quizwhiz/internal/domain"

	_ "modernc.org/sqlite" // SQLite driver.
)

// QuestionStore implements app.QuestionStore over SQLite.
type QuestionStore struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*QuestionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := &QuestionStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *QuestionStore) Close() error {
	return s.db.Close()
}

func (s *QuestionStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quiz_questions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			data TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_questions_fingerprint ON quiz_questions(fingerprint);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *QuestionStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(domain.StoredQuestion{Topic: topic, Question: q})
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quiz_questions (id, topic, data, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, topic, string(data), domain.Fingerprint(q), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *QuestionStore) SampleRandom(ctx context.Context, limit int) ([]domain.Question, error) {
	if limit <= 0 {
		return []domain.Question{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM quiz_questions ORDER BY random() LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Question, 0, limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc domain.StoredQuestion
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		out = append(out, doc.Question)
	}
	return out, rows.Err()
}

func (s *QuestionStore) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quiz_questions`)
	return err
}

func (s *QuestionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_questions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *QuestionStore) ExistsSimilar(ctx context.Context, q domain.Question) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM quiz_questions WHERE fingerprint = ? LIMIT 1`, domain.Fingerprint(q)).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}
