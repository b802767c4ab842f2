package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"quizwhiz/internal/domain"
)

func TestQuestionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "quiz.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.Append(ctx, "Strings in Python", sampleQuestion(text)); err != nil {
			t.Fatalf("append %s: %v", text, err)
		}
	}
	if n, err := store.Count(ctx); err != nil || n != 3 {
		t.Fatalf("expected 3, got %d (%v)", n, err)
	}

	sample, err := store.SampleRandom(ctx, 2)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sample) != 2 || sample[0].Text == sample[1].Text {
		t.Fatalf("expected two distinct questions, got %+v", sample)
	}

	dup, err := store.ExistsSimilar(ctx, sampleQuestion(" Two "))
	if err != nil || !dup {
		t.Fatalf("expected similar question, got %v (%v)", dup, err)
	}
	dup, err = store.ExistsSimilar(ctx, sampleQuestion("four"))
	if err != nil || dup {
		t.Fatalf("expected no match, got %v (%v)", dup, err)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected empty pool, got %d", n)
	}
}

func TestQuestionStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quiz.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Append(ctx, "t", sampleQuestion("one")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected persisted question, got %d", n)
	}
}

func sampleQuestion(text string) domain.Question {
	return domain.Question{
		Text:        text,
		Options:     []string{"a", "b", "c"},
		Answer:      "b",
		Explanation: "because",
	}
}
