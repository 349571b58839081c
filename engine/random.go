package engine

import (
	"math/rand/v2"
	"sync"
)

// RandomSource picks elimination victims. IntN returns a uniform value in [0, n).
type RandomSource interface {
	IntN(n int) int
}

type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a reproducible source, safe for concurrent use
func NewSeededSource(seed uint64) RandomSource {
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

type systemSource struct{}

// NewSystemSource returns a source backed by the runtime's randomly seeded generator
func NewSystemSource() RandomSource {
	return systemSource{}
}

func (systemSource) IntN(n int) int {
	return rand.IntN(n)
}
