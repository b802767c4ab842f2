// Package openai generates quiz questions through an OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"quizwhiz/internal/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = goopenai.GPT4o

	defaultTimeout = 20 * time.Second
	defaultHistory = 20
)

const systemPrompt = "You are a REST API server with an endpoint /generate-random-question/:topic. " +
	"The endpoint returns a random Python quiz question as JSON with the following fields:\n" +
	"- question (string)\n" +
	"- options (list of strings)\n" +
	"- answer (string, must match one of the options)\n" +
	"- explanation (string)"

const primerRequest = "GET /generate-random-question/variables"

const primerResponse = `{
    "question": "Which of the following is a valid variable name in Python?",
    "options": ["2nd_var", "my-var", "_value", "None"],
    "answer": "_value",
    "explanation": "Variable names must begin with a letter or underscore and cannot be a reserved keyword like 'None'."
}`

// Config configures a Generator.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// History bounds how many recent question texts per topic are sent back
	// to the model as ones to avoid.
	History int
}

// Generator implements app.Generator.
type Generator struct {
	cfg    Config
	client *goopenai.Client

	mu      sync.Mutex
	history map[string][]string
}

// New builds a generator. A nil client uses one with cfg.Timeout.
func New(cfg Config, client *http.Client) *Generator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.History <= 0 {
		cfg.History = defaultHistory
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = client
	return &Generator{
		cfg:     cfg,
		client:  goopenai.NewClientWithConfig(apiCfg),
		history: make(map[string][]string),
	}
}

// FetchQuestion asks the model for one question about topic, grounded on the
// first snippet when one is given.
func (g *Generator) FetchQuestion(ctx context.Context, topic string, snippets []string) (domain.Question, error) {
	if g.cfg.APIKey == "" {
		return domain.Question{}, fmt.Errorf("%w: missing api key", domain.ErrGeneratorUnauthorized)
	}
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: g.messages(topic, snippets),
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.Question{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Question{}, fmt.Errorf("%w: empty completion", domain.ErrMalformedQuestion)
	}
	q, err := ParseQuestion(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.Question{}, err
	}
	g.remember(topic, q.Text)
	return q, nil
}

// classify maps client errors onto the generator error kinds.
func classify(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", domain.ErrGeneratorUnauthorized, status)
	case 0:
		return fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	default:
		return fmt.Errorf("%w: HTTP %d: %v", domain.ErrGeneratorUnavailable, status, err)
	}
}

// ParseQuestion decodes a model reply, tolerating a surrounding code fence.
func ParseQuestion(content string) (domain.Question, error) {
	var q domain.Question
	if err := json.Unmarshal([]byte(stripFence(content)), &q); err != nil {
		return domain.Question{}, fmt.Errorf("%w: %v", domain.ErrMalformedQuestion, err)
	}
	return q, nil
}

func (g *Generator) messages(topic string, snippets []string) []goopenai.ChatCompletionMessage {
	material := ""
	if len(snippets) > 0 {
		material = snippets[0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Use the following study material to create a quiz question about %q.\n\n", topic)
	fmt.Fprintf(&b, "Study Material:\n%s\n\n", material)
	b.WriteString(`Return a JSON object with keys: "question", "options", "answer", "explanation".`)
	if recent := g.recent(topic); len(recent) > 0 {
		b.WriteString("\n\nDo not repeat any of these questions:\n")
		for _, r := range recent {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteByte('\n')
		}
	}
	return []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: goopenai.ChatMessageRoleUser, Content: primerRequest},
		{Role: goopenai.ChatMessageRoleAssistant, Content: primerResponse},
		{Role: goopenai.ChatMessageRoleUser, Content: strings.TrimSpace(b.String())},
	}
}

func (g *Generator) recent(topic string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.history[topic]...)
}

func (g *Generator) remember(topic, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := append(g.history[topic], text)
	if len(h) > g.cfg.History {
		h = h[len(h)-g.cfg.History:]
	}
	g.history[topic] = h
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
