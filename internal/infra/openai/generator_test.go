package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"quizwhiz/internal/domain"
)

func TestFetchQuestionDecodesFencedReply(t *testing.T) {
	var got goopenai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reply := "```json\n" + `{"question":"Q?","options":["a","b"],"answer":"b","explanation":"e"}` + "\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	defer srv.Close()

	gen := New(Config{BaseURL: srv.URL + "/", APIKey: "key"}, srv.Client())
	q, err := gen.FetchQuestion(context.Background(), "Strings in Python", []string{"strings are immutable"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Text != "Q?" || q.Answer != "b" || len(q.Options) != 2 {
		t.Fatalf("unexpected question %+v", q)
	}
	if got.Model != DefaultModel || got.ResponseFormat == nil || got.ResponseFormat.Type != goopenai.ChatCompletionResponseFormatTypeJSONObject {
		t.Fatalf("unexpected request %+v", got)
	}
	last := got.Messages[len(got.Messages)-1].Content
	if !strings.Contains(last, "Strings in Python") || !strings.Contains(last, "strings are immutable") {
		t.Fatalf("prompt missing topic or context: %q", last)
	}

	if _, err := gen.FetchQuestion(context.Background(), "Strings in Python", nil); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	last = got.Messages[len(got.Messages)-1].Content
	if !strings.Contains(last, "- Q?") {
		t.Fatalf("expected history in prompt, got %q", last)
	}
}

func TestFetchQuestionMapsStatus(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrGeneratorUnauthorized},
		{http.StatusForbidden, domain.ErrGeneratorUnauthorized},
		{http.StatusTooManyRequests, domain.ErrGeneratorUnavailable},
		{http.StatusInternalServerError, domain.ErrGeneratorUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		gen := New(Config{BaseURL: srv.URL, APIKey: "key"}, srv.Client())
		_, err := gen.FetchQuestion(context.Background(), "t", nil)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestFetchQuestionMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"content": "not json"}}},
		})
	}))
	defer srv.Close()

	gen := New(Config{BaseURL: srv.URL, APIKey: "key"}, srv.Client())
	if _, err := gen.FetchQuestion(context.Background(), "t", nil); !errors.Is(err, domain.ErrMalformedQuestion) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestFetchQuestionRequiresKey(t *testing.T) {
	gen := New(Config{}, nil)
	if _, err := gen.FetchQuestion(context.Background(), "t", nil); !errors.Is(err, domain.ErrGeneratorUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	gen := New(Config{History: 2}, nil)
	for _, q := range []string{"a", "b", "c"} {
		gen.remember("t", q)
	}
	if got := gen.recent("t"); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("unexpected history %v", got)
	}
}
