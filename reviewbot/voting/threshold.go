package voting

import (
	"fmt"
	"math"
)

// Threshold is the curve floor(-K1 * e^(K2 * postScore)). Better-received posts need proportionally more net
// "remove" votes before they are flagged.
type Threshold struct {
	K1 float64
	K2 float64
}

func DefaultThreshold() Threshold {
	return Threshold{K1: 3.7272, K2: 0.002}
}

func (t Threshold) For(postScore int) int {
	return int(math.Floor(-t.K1 * math.Exp(t.K2*float64(postScore))))
}

// Outcome of a closed vote.
type Outcome struct {
	Score     int
	Threshold int
	Flagged   bool
}

// Evaluate computes the net vote score (keep minus remove) and flags the post when it is at or below the threshold.
func (t Threshold) Evaluate(tally []int, postScore int) (Outcome, error) {
	if len(tally) < 2 {
		return Outcome{}, fmt.Errorf("vote tally needs at least two options, got %d", len(tally))
	}
	out := Outcome{
		Score:     tally[0] - tally[1],
		Threshold: t.For(postScore),
	}
	out.Flagged = out.Score <= out.Threshold
	return out, nil
}
