package matcher

import (
	"github.com/shopspring/decimal"
)

// subsetSearch finds index sets of at least two amounts adding up to a target.
// Amounts may be negative; pruning uses the range still reachable from the
// remaining suffix, so no ordering by sign or size is needed.
type subsetSearch struct {
	amounts []decimal.Decimal
	target  decimal.Decimal
	limit   int

	// suffixNeg[i] and suffixPos[i] bound what amounts[i:] can still add
	suffixNeg []decimal.Decimal
	suffixPos []decimal.Decimal

	current   []int
	solutions [][]int
	truncated bool
}

// SubsetResult is the outcome of a subset search
type SubsetResult struct {
	// Solutions holds index sets in discovery order
	Solutions [][]int
	// Truncated is set when the search stopped after exceeding the limit
	Truncated bool
}

// Unique reports whether exactly one subset was found and the search was complete
func (r SubsetResult) Unique() bool {
	return len(r.Solutions) == 1 && !r.Truncated
}

// FindSubsets searches amounts for subsets of size >= 2 summing exactly to
// target. The search stops as soon as more than limit solutions are known.
func FindSubsets(amounts []decimal.Decimal, target decimal.Decimal, limit int) SubsetResult {
	n := len(amounts)
	s := &subsetSearch{
		amounts:   amounts,
		target:    target,
		limit:     limit,
		suffixNeg: make([]decimal.Decimal, n+1),
		suffixPos: make([]decimal.Decimal, n+1),
	}
	s.suffixNeg[n] = decimal.Zero
	s.suffixPos[n] = decimal.Zero
	for i := n - 1; i >= 0; i-- {
		s.suffixNeg[i] = s.suffixNeg[i+1]
		s.suffixPos[i] = s.suffixPos[i+1]
		if amounts[i].IsNegative() {
			s.suffixNeg[i] = s.suffixNeg[i].Add(amounts[i])
		} else {
			s.suffixPos[i] = s.suffixPos[i].Add(amounts[i])
		}
	}

	if n >= 2 {
		s.search(0, decimal.Zero)
	}
	return SubsetResult{Solutions: s.solutions, Truncated: s.truncated}
}

// search decides amounts[i:]. A set is recorded at the moment its last
// element is included, so each index set is seen exactly once.
func (s *subsetSearch) search(i int, sum decimal.Decimal) {
	if s.truncated || i == len(s.amounts) {
		return
	}

	remaining := s.target.Sub(sum)
	if remaining.LessThan(s.suffixNeg[i]) || remaining.GreaterThan(s.suffixPos[i]) {
		return
	}

	// include amounts[i]
	s.current = append(s.current, i)
	withI := sum.Add(s.amounts[i])
	if len(s.current) >= 2 && withI.Equal(s.target) {
		s.record()
	}
	s.search(i+1, withI)
	s.current = s.current[:len(s.current)-1]

	// exclude amounts[i]
	s.search(i+1, sum)
}

func (s *subsetSearch) record() {
	solution := make([]int, len(s.current))
	copy(solution, s.current)
	s.solutions = append(s.solutions, solution)
	if len(s.solutions) > s.limit {
		s.truncated = true
	}
}
