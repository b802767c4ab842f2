package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quizwhiz/internal/app"
	"quizwhiz/internal/config"
	"quizwhiz/internal/infra/memory"
	"quizwhiz/internal/infra/openai"
	pgstore "quizwhiz/internal/infra/postgres"
	redisstore "quizwhiz/internal/infra/redis"
	"quizwhiz/internal/infra/sqlite"
)

const (
	defaultCountTTL   = 5 * time.Second
	defaultSessionTTL = 10 * time.Minute
)

// backend owns the connections behind the question pool.
type backend struct {
	store   app.QuestionStore
	redis   *redis.Client
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// openBackend connects the question store selected by driver. The store is
// wrapped in a count cache.
func openBackend(ctx context.Context, cfg config.Config, driver string, log logrus.FieldLogger) (*backend, error) {
	b := &backend{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	var store app.QuestionStore
	switch driver {
	case "", "memory":
		store = memory.NewQuestionStore()
	case "redis":
		if b.redis == nil {
			b.Close()
			return nil, fmt.Errorf("store driver redis requires redis.addr")
		}
		store = redisstore.NewQuestionStore(b.redis, cfg.Redis.Prefix)
	case "postgres":
		if cfg.Postgres.URL == "" {
			b.Close()
			return nil, fmt.Errorf("store driver postgres requires postgres.url")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		store = pgstore.NewQuestionStore(pool)
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath())
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		b.closers = append(b.closers, func() { _ = st.Close() })
		store = st
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	log.WithField("store", storeName(driver)).Info("question store ready")

	b.store = memory.NewCachedStore(store, config.Duration(cfg.Quiz.CountTTL, defaultCountTTL))
	return b, nil
}

func storeName(driver string) string {
	if driver == "" {
		return "memory"
	}
	return driver
}

// sessionRepository records sessions in Redis when it is configured.
func (b *backend) sessionRepository(cfg config.Config) app.SessionRepository {
	if b.redis != nil {
		return redisstore.NewSessionStore(b.redis, config.Duration(cfg.Redis.TTL, defaultSessionTTL))
	}
	return memory.NewSessionStore()
}

// newGenerator falls back to the built-in bank when no API key is set.
func newGenerator(cfg config.Config, log logrus.FieldLogger) app.Generator {
	if cfg.Generator.APIKey == "" {
		log.Warn("no generator api key configured; serving built-in questions")
		return memory.NewStaticGenerator(nil)
	}
	return openai.New(openai.Config{
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
		APIKey:  cfg.Generator.APIKey,
		Timeout: config.Duration(cfg.Generator.Timeout, 0),
	}, nil)
}

func sessionOptions(cfg config.Config) app.Options {
	return app.Options{
		QuestionLimit:    cfg.Quiz.QuestionLimit,
		QuestionDuration: config.Duration(cfg.Quiz.QuestionDuration, 0),
		AcquireTimeout:   config.Duration(cfg.Quiz.AcquireTimeout, 0),
		Persist:          cfg.Quiz.PersistEnabled(),
	}
}

func quizTopics(cfg config.Config) []string {
	if len(cfg.Quiz.Topics) > 0 {
		return cfg.Quiz.Topics
	}
	return memory.DefaultTopics
}

// newService loads config-driven dependencies into a QuizService.
func newService(cfg config.Config, b *backend, log logrus.FieldLogger, rec app.Recorder) *app.QuizService {
	return app.NewQuizService(b.sessionRepository(cfg), b.store, newGenerator(cfg, log), sessionOptions(cfg), log, rec)
}
