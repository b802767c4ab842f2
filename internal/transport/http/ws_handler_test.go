package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
	"quizwhiz/internal/infra/memory"
)

func TestWebSocketQuizFlow(t *testing.T) {
	sessions := memory.NewSessionStore()
	service := app.NewQuizService(sessions, memory.NewQuestionStore(), memory.NewStaticGenerator(nil),
		app.Options{QuestionLimit: 2, Persist: true}, nil, nil)
	server := httptest.NewServer(NewRouter(RouterConfig{
		Service: service,
		WS:      NewWSHandler(service, nil, nil, time.Hour),
	}))
	defer server.Close()

	conn := dial(t, server, "/ws?topic=Strings%20in%20Python")
	defer conn.Close()

	snap := waitState(t, conn, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseInProgress })
	if snap.Question == nil || snap.Limit != 2 {
		t.Fatalf("expected first question, got %+v", snap)
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected registered session, got %d", sessions.Len())
	}

	send(t, conn, "answer", map[string]any{"option": snap.Question.AnswerIndex()})
	waitNotice(t, conn, "Correct!")

	send(t, conn, "answer", map[string]any{"option": 0})
	waitType(t, conn, "error")

	send(t, conn, "next", nil)
	waitState(t, conn, func(s domain.Snapshot) bool { return s.Index == 1 && !s.Acquiring })

	send(t, conn, "next", nil)
	done := waitState(t, conn, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseCompleted })
	if done.Score.Right != 1 || done.Score.Wrong != 1 {
		t.Fatalf("unexpected score %+v", done.Score)
	}

	send(t, conn, "export", map[string]any{"format": "json"})
	payload := waitType(t, conn, "export")
	var export exportResult
	if err := json.Unmarshal(payload, &export); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	batch, err := app.DecodeQuestions([]byte(export.Data), app.ExportJSON)
	if err != nil || len(batch) != 2 {
		t.Fatalf("expected two exported questions, got %d (%v)", len(batch), err)
	}

	send(t, conn, "load", map[string]any{"limit": 5})
	loaded := waitState(t, conn, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseInProgress })
	if loaded.Limit != 2 {
		t.Fatalf("expected the two persisted questions, got limit %d", loaded.Limit)
	}

	send(t, conn, "bogus", nil)
	waitType(t, conn, "error")

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for sessions.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected session released on disconnect")
	}
}

func TestWebSocketTickExpiresQuestion(t *testing.T) {
	service := app.NewQuizService(memory.NewSessionStore(), nil, memory.NewStaticGenerator(nil),
		app.Options{QuestionLimit: 1, QuestionDuration: 50 * time.Millisecond}, nil, nil)
	server := httptest.NewServer(NewRouter(RouterConfig{
		Service: service,
		WS:      NewWSHandler(service, nil, nil, 20*time.Millisecond),
	}))
	defer server.Close()

	conn := dial(t, server, "/ws")
	defer conn.Close()

	send(t, conn, "start", map[string]any{"topic": "Print in Python"})
	done := waitState(t, conn, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseCompleted })
	if done.Score.Wrong != 1 {
		t.Fatalf("expected expiry to count as wrong, got %+v", done.Score)
	}
}

func TestWebSocketResetCancelsPendingStart(t *testing.T) {
	gen := &stallingGenerator{entered: make(chan struct{}, 1)}
	service := app.NewQuizService(memory.NewSessionStore(), nil, gen,
		app.Options{AcquireTimeout: time.Minute}, nil, nil)
	server := httptest.NewServer(NewRouter(RouterConfig{
		Service: service,
		WS:      NewWSHandler(service, nil, nil, time.Hour),
	}))
	defer server.Close()

	conn := dial(t, server, "/ws")
	defer conn.Close()

	send(t, conn, "start", map[string]any{"topic": "Print in Python"})
	waitState(t, conn, func(s domain.Snapshot) bool { return s.Acquiring })
	select {
	case <-gen.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("generator was never called")
	}

	send(t, conn, "reset", nil)
	snap := waitState(t, conn, func(s domain.Snapshot) bool { return !s.Acquiring })
	if snap.Phase != domain.PhaseNotStarted {
		t.Fatalf("expected a fresh session after reset, got %+v", snap)
	}
	select {
	case <-gen.cancelled():
	case <-time.After(5 * time.Second):
		t.Fatalf("reset did not cancel the pending fetch")
	}
}

// stallingGenerator blocks every fetch until its context ends.
type stallingGenerator struct {
	entered chan struct{}
	mu      sync.Mutex
	done    chan struct{}
}

func (g *stallingGenerator) FetchQuestion(ctx context.Context, _ string, _ []string) (domain.Question, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	close(g.cancelled())
	return domain.Question{}, ctx.Err()
}

func (g *stallingGenerator) cancelled() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done == nil {
		g.done = make(chan struct{})
	}
	return g.done
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readNext(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	var msg rawMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

func waitType(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg := readNext(t, conn)
		if msg.Type == typ {
			return msg.Payload
		}
	}
	t.Fatalf("no %s message received", typ)
	return nil
}

func waitState(t *testing.T, conn *websocket.Conn, match func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg := readNext(t, conn)
		if msg.Type != "state" {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(msg.Payload, &snap); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if match(snap) {
			return snap
		}
	}
	t.Fatalf("expected state not received")
	return domain.Snapshot{}
}

func waitNotice(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		payload := waitType(t, conn, "notice")
		var m messagePayload
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("decode notice: %v", err)
		}
		if strings.Contains(m.Message, want) {
			return
		}
	}
	t.Fatalf("notice %q not received", want)
}
