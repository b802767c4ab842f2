package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizwhiz/internal/domain"
)

// QuestionStore keeps the question pool in the quiz_questions table. The
// document is stored as JSONB next to its fingerprint.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(domain.StoredQuestion{Topic: topic, Question: q})
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_questions (id, topic, data, fingerprint) VALUES ($1, $2, $3, $4)`,
		id, topic, data, domain.Fingerprint(q))
	if err != nil {
		return "", fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func (s *QuestionStore) SampleRandom(ctx context.Context, limit int) ([]domain.Question, error) {
	if limit <= 0 {
		return []domain.Question{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT data FROM quiz_questions ORDER BY random() LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Question, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var doc domain.StoredQuestion
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		out = append(out, doc.Question)
	}
	return out, rows.Err()
}

func (s *QuestionStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM quiz_questions`); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	return nil
}

func (s *QuestionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM quiz_questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

func (s *QuestionStore) ExistsSimilar(ctx context.Context, q domain.Question) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quiz_questions WHERE fingerprint = $1)`,
		domain.Fingerprint(q)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup fingerprint: %w", err)
	}
	return exists, nil
}
