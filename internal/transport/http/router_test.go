package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
	"quizwhiz/internal/infra/memory"
	"quizwhiz/internal/metrics"
)

func TestAdminAPI(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuestionStore()
	for _, text := range []string{"one", "two", "three"} {
		_, err := store.Append(ctx, "t", domain.Question{Text: text, Options: []string{"a", "b"}, Answer: "a", Explanation: "e"})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	service := app.NewQuizService(memory.NewSessionStore(), store, nil, app.Options{}, nil, m)
	server := httptest.NewServer(NewRouter(RouterConfig{
		Service:  service,
		Gatherer: reg,
		Topics:   []string{"Strings in Python"},
	}))
	defer server.Close()

	body := get(t, server.URL+"/healthz", http.StatusOK)
	if body != "ok" {
		t.Fatalf("unexpected health body %q", body)
	}

	var topics struct{ Topics []string }
	decode(t, get(t, server.URL+"/api/topics", http.StatusOK), &topics)
	if len(topics.Topics) != 1 {
		t.Fatalf("unexpected topics %+v", topics)
	}

	var count struct{ Count int }
	decode(t, get(t, server.URL+"/api/pool/count", http.StatusOK), &count)
	if count.Count != 3 {
		t.Fatalf("expected 3, got %d", count.Count)
	}

	var sample struct{ Questions []domain.Question }
	decode(t, get(t, server.URL+"/api/pool/sample?limit=2", http.StatusOK), &sample)
	if len(sample.Questions) != 2 {
		t.Fatalf("expected 2 sampled questions, got %d", len(sample.Questions))
	}
	get(t, server.URL+"/api/pool/sample?limit=abc", http.StatusBadRequest)

	m.AnswerScored("right")
	if metricsBody := get(t, server.URL+"/metrics", http.StatusOK); !strings.Contains(metricsBody, "quizwhiz_answers_total") {
		t.Fatalf("expected engine metrics, got %q", metricsBody)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/pool", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	decode(t, get(t, server.URL+"/api/pool/count", http.StatusOK), &count)
	if count.Count != 0 {
		t.Fatalf("expected empty pool, got %d", count.Count)
	}
}

func TestAdminAPIWithoutStore(t *testing.T) {
	service := app.NewQuizService(memory.NewSessionStore(), nil, nil, app.Options{}, nil, nil)
	server := httptest.NewServer(NewRouter(RouterConfig{Service: service}))
	defer server.Close()

	get(t, server.URL+"/api/pool/count", http.StatusServiceUnavailable)
}

func get(t *testing.T, url string, want int) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("get %s: expected %d, got %d (%s)", url, want, resp.StatusCode, body)
	}
	return string(body)
}

func decode(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}
