package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func questionValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the structural invariants of q: required fields, at least
// two options, and the answer appearing exactly once among the options.
func (q Question) Validate() error {
	if err := questionValidator().Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedQuestion, err)
	}
	matches := 0
	for _, opt := range q.Options {
		if opt == q.Answer {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("%w: %d matches for %q", ErrAnswerNotInOptions, matches, q.Answer)
	}
	return nil
}

// Fingerprint is the similarity key shared by all question stores: two
// questions with equal text and answer, ignoring case and whitespace runs,
// are considered the same.
func Fingerprint(q Question) string {
	h := sha256.New()
	h.Write([]byte(normalize(q.Text)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(q.Answer)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
