package progress

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrWeightSum = errors.New("step weights must sum to 100")

const weightTolerance = 1e-6

// WeightTable maps a pipeline step position to the percent points it is worth.
// It is immutable once built.
type WeightTable struct {
	weights map[int]float64
}

// NewWeightTable copies weights and checks that positions are >= 1, weights
// are non-negative and the total is 100.
func NewWeightTable(weights map[int]float64) (WeightTable, error) {
	cp := make(map[int]float64, len(weights))
	var sum float64
	for pos, w := range weights {
		if pos < 1 {
			return WeightTable{}, fmt.Errorf("step position %d must be >= 1", pos)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return WeightTable{}, fmt.Errorf("step %d weight %v must be a non-negative number", pos, w)
		}
		cp[pos] = w
		sum += w
	}
	if math.Abs(sum-100) > weightTolerance {
		return WeightTable{}, fmt.Errorf("%w (got %v)", ErrWeightSum, sum)
	}
	return WeightTable{weights: cp}, nil
}

// DefaultDesignWeights is the canonical seven-step design template.
func DefaultDesignWeights() WeightTable {
	return WeightTable{weights: map[int]float64{1: 0, 2: 10, 3: 10, 4: 40, 5: 15, 6: 15, 7: 10}}
}

func (w WeightTable) Weight(position int) (float64, bool) {
	v, ok := w.weights[position]
	return v, ok
}

func (w WeightTable) Sum() float64 {
	var sum float64
	for _, v := range w.weights {
		sum += v
	}
	return sum
}

func (w WeightTable) Len() int { return len(w.weights) }

// Positions returns the known positions in ascending order.
func (w WeightTable) Positions() []int {
	out := make([]int, 0, len(w.weights))
	for pos := range w.weights {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
