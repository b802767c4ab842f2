package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizwhiz/internal/domain"
)

const defaultPrefix = "quizwhiz"

// QuestionStore keeps the question pool in Redis.
// Documents live in a hash:     HSET {prefix}:questions {id} {json}
// Ids are sampled from a set:     SADD {prefix}:question_ids {id}
// Similarity is a fingerprint set: SADD {prefix}:fingerprints {sha256}
type QuestionStore struct {
	client *redis.Client
	prefix string
}

func NewQuestionStore(client *redis.Client, prefix string) *QuestionStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &QuestionStore{client: client, prefix: prefix}
}

func (s *QuestionStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	id := uuid.NewString()
	doc, err := json.Marshal(domain.StoredQuestion{ID: id, Topic: topic, Question: q})
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.questionsKey(), id, doc)
		pipe.SAdd(ctx, s.idsKey(), id)
		pipe.SAdd(ctx, s.fingerprintsKey(), domain.Fingerprint(q))
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SampleRandom picks up to limit distinct ids with SRANDMEMBER and loads
// their documents in one HMGET.
func (s *QuestionStore) SampleRandom(ctx context.Context, limit int) ([]domain.Question, error) {
	if limit <= 0 {
		return []domain.Question{}, nil
	}
	ids, err := s.client.SRandMemberN(ctx, s.idsKey(), int64(limit)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	docs, err := s.client.HMGet(ctx, s.questionsKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, len(docs))
	for i, raw := range docs {
		str, ok := raw.(string)
		if !ok {
			// id present without its document; a concurrent DeleteAll.
			continue
		}
		var doc domain.StoredQuestion
		if err := json.Unmarshal([]byte(str), &doc); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", ids[i], err)
		}
		out = append(out, doc.Question)
	}
	return out, nil
}

func (s *QuestionStore) DeleteAll(ctx context.Context) error {
	return s.client.Del(ctx, s.questionsKey(), s.idsKey(), s.fingerprintsKey()).Err()
}

func (s *QuestionStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.idsKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *QuestionStore) ExistsSimilar(ctx context.Context, q domain.Question) (bool, error) {
	return s.client.SIsMember(ctx, s.fingerprintsKey(), domain.Fingerprint(q)).Result()
}

func (s *QuestionStore) questionsKey() string {
	return s.prefix + ":questions"
}

func (s *QuestionStore) idsKey() string {
	return s.prefix + ":question_ids"
}

func (s *QuestionStore) fingerprintsKey() string {
	return s.prefix + ":fingerprints"
}
