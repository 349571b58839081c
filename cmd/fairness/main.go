// Standalone fairness check for the elimination draw.
// It replays the engine's selection rule (a uniform pick among the active
// players, in join order) and reports how often each seat wins.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"spinwheel/engine"
)

func main() {
	players := flag.Int("players", 5, "players per wheel")
	trials := flag.Int("trials", 100000, "wheels to simulate")
	seed := flag.Uint64("seed", 0, "random seed, 0 uses the system source")
	flag.Parse()

	if *players < 2 || *trials < 1 {
		fmt.Fprintln(os.Stderr, "players must be at least 2 and trials at least 1")
		os.Exit(2)
	}

	rng := engine.NewSystemSource()
	if *seed != 0 {
		rng = engine.NewSeededSource(*seed)
	}

	fmt.Printf("=== Spin wheel fairness: %d players, %d wheels ===\n\n", *players, *trials)
	wins := simulate(rng, *players, *trials)
	if !report(wins, *trials) {
		os.Exit(1)
	}
}

// simulate runs trials wheels and counts wins per seat
func simulate(rng engine.RandomSource, players, trials int) []int {
	wins := make([]int, players)
	active := make([]int, players)
	for range trials {
		for i := range active {
			active[i] = i
		}
		remaining := active[:players]
		for len(remaining) > 1 {
			victim := rng.IntN(len(remaining))
			remaining = append(remaining[:victim], remaining[victim+1:]...)
		}
		wins[remaining[0]]++
	}
	return wins
}

// report prints per-seat results and the chi-squared statistic. Returns false
// when any seat deviates from the fair share by more than two percentage points.
func report(wins []int, trials int) bool {
	expected := float64(trials) / float64(len(wins))
	chiSquared := 0.0
	pass := true

	for seat, w := range wins {
		rate := float64(w) / float64(trials)
		deviation := rate - 1/float64(len(wins))
		chiSquared += math.Pow(float64(w)-expected, 2) / expected

		status := "✓"
		if math.Abs(deviation) > 0.02 {
			status = "✗"
			pass = false
		}
		fmt.Printf("Seat %2d | Wins: %7d | Rate: %.4f | Deviation: %+.4f %s\n", seat+1, w, rate, deviation, status)
	}

	fmt.Printf("\nχ² = %.2f with %d degrees of freedom\n", chiSquared, len(wins)-1)
	if pass {
		fmt.Println("✓ PASS")
	} else {
		fmt.Println("✗ FAIL")
	}
	return pass
}
