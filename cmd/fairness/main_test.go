package main

import (
	"testing"

	"spinwheel/engine"

	"github.com/stretchr/testify/assert"
)

type firstPick struct{}

func (firstPick) IntN(n int) int { return 0 }

func TestSimulate_AlwaysFirstLeavesLastSeat(t *testing.T) {
	wins := simulate(firstPick{}, 4, 10)
	assert.Equal(t, []int{0, 0, 0, 10}, wins)
}

func TestSimulate_SeededSourceIsFair(t *testing.T) {
	wins := simulate(engine.NewSeededSource(7), 5, 50000)

	total := 0
	for _, w := range wins {
		total += w
	}
	assert.Equal(t, 50000, total)
	assert.True(t, report(wins, 50000))
}
