package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"quizwhiz/internal/app"
	"quizwhiz/internal/cli"
	"quizwhiz/internal/domain"
	"quizwhiz/internal/infra/memory"
	pgstore "quizwhiz/internal/infra/postgres"
	infraredis "quizwhiz/internal/infra/redis"
)

const topic = "Strings in Python"

func TestQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	redisURL := startRedis(t, ctx)

	log, _ := logtest.NewNullLogger()
	if err := cli.Migrate(ctx, pgURL, log); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run finds nothing to apply
	if err := cli.Migrate(ctx, pgURL, log); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := memory.NewCachedStore(pgstore.NewQuestionStore(pool), time.Second)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewQuizService(sessions, store, memory.NewStaticGenerator(nil),
		app.Options{QuestionLimit: 3, Persist: true}, log, nil)

	session := service.NewSession()
	if err := session.Start(ctx, topic, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	answerCorrectly(t, session)
	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	answerCorrectly(t, session)
	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// third question is skipped
	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if session.Phase() != domain.PhaseCompleted {
		t.Fatalf("expected completed session, got %v", session.Phase())
	}
	if score := session.Score(); score.Right != 2 || score.Wrong != 1 {
		t.Fatalf("unexpected score %+v", score)
	}

	live, err := sessions.Live(ctx)
	if err != nil {
		t.Fatalf("live sessions: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected 1 live session, got %d", live)
	}

	// the bank cycles after two questions, so the third one is a duplicate
	n, err := service.PoolCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stored questions, got %d", n)
	}

	replay := service.NewSession()
	if err := replay.LoadRandom(ctx, 10); err != nil {
		t.Fatalf("load random: %v", err)
	}
	snap := replay.Snapshot()
	if snap.Limit != 2 || snap.Loaded != 2 || snap.Phase != domain.PhaseInProgress {
		t.Fatalf("unexpected replay snapshot %+v", snap)
	}

	if err := service.ClearPool(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := service.PoolCount(ctx); n != 0 {
		t.Fatalf("expected empty pool, got %d", n)
	}
}

func TestRedisQuestionStore(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisClient, err := redisClientFromURL(startRedis(t, ctx))
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := infraredis.NewQuestionStore(redisClient, "it")
	q := domain.Question{
		Text:        "What does len('abc') return?",
		Options:     []string{"2", "3", "4", "error"},
		Answer:      "3",
		Explanation: "len counts characters.",
	}
	gate := app.NewGate(store, nil, nil)
	if out := gate.Persist(ctx, topic, q); out.Duplicate || out.AppendErr != nil || out.CheckErr != nil {
		t.Fatalf("unexpected first persist outcome %+v", out)
	}
	if out := gate.Persist(ctx, topic, q); !out.Duplicate {
		t.Fatalf("expected duplicate on second persist, got %+v", out)
	}

	got, err := store.SampleRandom(ctx, 5)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(got) != 1 || got[0].Text != q.Text {
		t.Fatalf("unexpected sample %+v", got)
	}
	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func answerCorrectly(t *testing.T, session *app.Session) {
	t.Helper()
	snap := session.Snapshot()
	if snap.Question == nil {
		t.Fatalf("no current question: %+v", snap)
	}
	correct, err := session.SubmitAnswer(snap.Question.AnswerIndex())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !correct {
		t.Fatalf("expected answer to be correct")
	}
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	return container
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
