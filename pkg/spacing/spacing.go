// Package spacing checks that consecutive slices of a sorted group are
// separated by one constant vector, and splits groups where they are not.
//
// Generic volume readers derive the inter-slice vector from the first two
// slices and assume it for the whole stack. A stack violating that
// assumption would be reconstructed with wrong geometry, so it is cut at
// the first slice that does not fit and the rest is handled as a new group.
package spacing

import (
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// ValidateAndSplit scans sorted (with matching positions) and returns the
// longest prefix that obeys the spacing of its first pair, plus the
// remainder starting at the first offending slice. Groups of zero or one
// slice are always valid. positions must be as long as sorted.
func ValidateAndSplit(sorted []string, positions []r3.Vec, tolerance float64) (ok, remainder []string) {
	if len(sorted) < 2 {
		return sorted, nil
	}

	delta := r3.Sub(positions[1], positions[0])
	for i := 2; i < len(sorted); i++ {
		expected := r3.Add(positions[i-1], delta)
		if r3.Norm(r3.Sub(expected, positions[i])) > tolerance {
			return sorted[:i], sorted[i:]
		}
	}
	return sorted, nil
}

// Step returns the vector between the first two positions, or zero when
// there are fewer than two.
func Step(positions []r3.Vec) r3.Vec {
	if len(positions) < 2 {
		return r3.Vec{}
	}
	return r3.Sub(positions[1], positions[0])
}

// Stats summarizes the distances between consecutive slices.
type Stats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes Stats over consecutive positions. It returns the zero
// value for fewer than two positions; StdDev is zero for exactly two.
func Summarize(positions []r3.Vec) Stats {
	if len(positions) < 2 {
		return Stats{}
	}

	gaps := make([]float64, len(positions)-1)
	for i := 1; i < len(positions); i++ {
		gaps[i-1] = r3.Norm(r3.Sub(positions[i], positions[i-1]))
	}

	s := Stats{Min: gaps[0], Max: gaps[0]}
	for _, g := range gaps[1:] {
		s.Min = min(s.Min, g)
		s.Max = max(s.Max, g)
	}
	if len(gaps) == 1 {
		s.Mean = gaps[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(gaps, nil)
	return s
}
