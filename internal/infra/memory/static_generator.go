package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quizwhiz/internal/domain"
)

// DefaultTopics are offered when the configuration names none.
var DefaultTopics = []string{
	"Comments in Python",
	"Variables in Python",
	"Reading input from the keyboard in Python",
	"Strings in Python",
	"Print in Python",
	"F-Strings in Python",
}

// StaticGenerator serves questions from a fixed bank, cycling per topic. It
// stands in for the AI generator when no API key is configured.
type StaticGenerator struct {
	mu   sync.Mutex
	bank map[string][]domain.Question
	next map[string]int
}

// NewStaticGenerator builds a generator over bank. A nil bank uses the
// built-in Python questions.
func NewStaticGenerator(bank map[string][]domain.Question) *StaticGenerator {
	if bank == nil {
		bank = builtinBank()
	}
	return &StaticGenerator{bank: bank, next: make(map[string]int)}
}

// FetchQuestion ignores snippets. Unknown topics fall back to the pooled bank
// of every topic.
func (g *StaticGenerator) FetchQuestion(ctx context.Context, topic string, _ []string) (domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return domain.Question{}, fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	qs := g.bank[topic]
	if len(qs) == 0 {
		for _, t := range sortedKeys(g.bank) {
			qs = append(qs, g.bank[t]...)
		}
	}
	if len(qs) == 0 {
		return domain.Question{}, fmt.Errorf("%w: no questions for topic %q", domain.ErrGeneratorUnavailable, topic)
	}
	i := g.next[topic] % len(qs)
	g.next[topic] = i + 1
	return qs[i].Clone(), nil
}

func sortedKeys(m map[string][]domain.Question) []string {
	out := make([]string, 0, len(m))
	for _, t := range DefaultTopics {
		if _, ok := m[t]; ok {
			out = append(out, t)
		}
	}
	known := make(map[string]struct{}, len(out))
	for _, t := range out {
		known[t] = struct{}{}
	}
	var extra []string
	for t := range m {
		if _, ok := known[t]; !ok {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func builtinBank() map[string][]domain.Question {
	return map[string][]domain.Question{
		"Comments in Python": {
			{
				Text:        "Which character starts a single-line comment in Python?",
				Options:     []string{"//", "#", "--", "/*"},
				Answer:      "#",
				Explanation: "Everything after a # on a line is ignored by the interpreter.",
			},
			{
				Text:        "What does the interpreter do with a comment?",
				Options:     []string{"Executes it", "Prints it", "Ignores it", "Raises a warning"},
				Answer:      "Ignores it",
				Explanation: "Comments are skipped entirely when the code runs.",
			},
		},
		"Variables in Python": {
			{
				Text:        "Which of the following is a valid variable name in Python?",
				Options:     []string{"2nd_var", "my-var", "_value", "None"},
				Answer:      "_value",
				Explanation: "Variable names must begin with a letter or underscore and cannot be a reserved keyword like 'None'.",
			},
			{
				Text:        "What is the type of x after x = 3.0?",
				Options:     []string{"int", "float", "str", "decimal"},
				Answer:      "float",
				Explanation: "A literal with a decimal point is a float.",
			},
		},
		"Reading input from the keyboard in Python": {
			{
				Text:        "What type does input() return?",
				Options:     []string{"int", "str", "bytes", "It depends on what was typed"},
				Answer:      "str",
				Explanation: "input() always returns the typed line as a string.",
			},
			{
				Text:        "How do you read an integer from the keyboard?",
				Options:     []string{"int(input())", "input(int)", "read_int()", "input().int"},
				Answer:      "int(input())",
				Explanation: "Convert the string returned by input() with int().",
			},
		},
		"Strings in Python": {
			{
				Text:        "What does 'abc'[1] evaluate to?",
				Options:     []string{"'a'", "'b'", "'c'", "IndexError"},
				Answer:      "'b'",
				Explanation: "String indexing is zero-based.",
			},
			{
				Text:        "Which method returns a copy of a string in upper case?",
				Options:     []string{"upper()", "toUpper()", "capitalize()", "up()"},
				Answer:      "upper()",
				Explanation: "str.upper() returns a new upper-cased string.",
			},
		},
		"Print in Python": {
			{
				Text:        "Which argument changes what print() writes after its output?",
				Options:     []string{"sep", "end", "file", "flush"},
				Answer:      "end",
				Explanation: "end defaults to a newline and is written after the last value.",
			},
			{
				Text:        "What does print('a', 'b', sep='-') output?",
				Options:     []string{"a b", "a-b", "ab", "a,-b"},
				Answer:      "a-b",
				Explanation: "sep is placed between the printed values.",
			},
		},
		"F-Strings in Python": {
			{
				Text:        "Which prefix makes a string literal an f-string?",
				Options:     []string{"f", "r", "b", "u"},
				Answer:      "f",
				Explanation: "An f or F prefix enables expression interpolation in braces.",
			},
			{
				Text:        "What does f'{2 + 3}' evaluate to?",
				Options:     []string{"'2 + 3'", "'5'", "'{2 + 3}'", "5"},
				Answer:      "'5'",
				Explanation: "The expression inside braces is evaluated and formatted as a string.",
			},
		},
	}
}
