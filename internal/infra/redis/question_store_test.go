package redis

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
	"quizwhiz/internal/infra/memory"
)

func TestQuestionStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewQuestionStore(newClient(mr), "")

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.Append(ctx, "topic", sampleQuestion(text)); err != nil {
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
	if sample[0].Answer != "b" || len(sample[0].Options) != 3 {
		t.Fatalf("document not decoded: %+v", sample[0])
	}

	dup, err := store.ExistsSimilar(ctx, sampleQuestion("ONE"))
	if err != nil || !dup {
		t.Fatalf("expected similar question found, got %v (%v)", dup, err)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quizwhiz:questions") || mr.Exists("quizwhiz:fingerprints") {
		t.Fatalf("expected keys removed")
	}
	empty, err := store.SampleRandom(ctx, 5)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty sample, got %v (%v)", empty, err)
	}
}

func TestGateFailsOpenWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewQuestionStore(newClient(mr), "")
	mr.SetError("ERR store down")
	gate := app.NewGate(store, nil, nil)
	out := gate.Persist(context.Background(), "topic", sampleQuestion("one"))
	if out.CheckErr == nil || !errors.Is(out.CheckErr, domain.ErrStore) {
		t.Fatalf("expected wrapped store error, got %v", out.CheckErr)
	}
	if out.AppendErr == nil {
		t.Fatalf("expected append to be attempted and fail while redis errors")
	}

	mr.SetError("")
	out = gate.Persist(context.Background(), "topic", sampleQuestion("one"))
	if out.Degraded() || out.ID == "" {
		t.Fatalf("expected clean persist after recovery, got %+v", out)
	}
}

func TestRedisStoreDrivesSession(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewQuestionStore(newClient(mr), "")
	gen := memory.NewStaticGenerator(nil)
	session := app.NewSession("s-1", app.Deps{Generator: gen, Store: store}, app.Options{QuestionLimit: 2, Persist: true})

	if err := session.Start(ctx, "Print in Python", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected generated question persisted, got %d", n)
	}
	if err := session.LoadRandom(ctx, 5); err != nil {
		t.Fatalf("load random: %v", err)
	}
	if snap := session.Snapshot(); snap.Limit != 1 || snap.Loaded != 1 {
		t.Fatalf("expected batch of one, got %+v", snap)
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
