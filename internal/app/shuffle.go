package app

import (
	"math/rand"
	"sync"
	"time"

	"quizwhiz/internal/domain"
)

// Randomizer permutes question options. The answer is kept by value, so the
// permutation never changes which option is correct.
type Randomizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomizer wraps rnd; a nil source is seeded from the clock.
func NewRandomizer(rnd *rand.Rand) *Randomizer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Randomizer{rnd: rnd}
}

// Shuffle returns a copy of q with its options uniformly permuted.
func (r *Randomizer) Shuffle(q domain.Question) domain.Question {
	out := q.Clone()
	r.mu.Lock()
	r.rnd.Shuffle(len(out.Options), func(i, j int) {
		out.Options[i], out.Options[j] = out.Options[j], out.Options[i]
	})
	r.mu.Unlock()
	return out
}
