package grading

import "math"

// Strategy reduces a set of scored items to a single grade. Implementations
// are pure: all metadata must already be attached to the items and the input
// slice is never modified.
type Strategy interface {
	Calculate(items []ScoredItem) (float64, error)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(items []ScoredItem) (float64, error)

// Calculate calls f(items).
func (f StrategyFunc) Calculate(items []ScoredItem) (float64, error) {
	return f(items)
}

// AvgWithCriticalFloor averages the grades of non-ignored items and caps the
// result at the lowest grade of any critical item. Items without a grade do
// not take part.
func AvgWithCriticalFloor(items []ScoredItem) (float64, error) {
	var (
		sum   float64
		count int
		floor = math.Inf(1)
	)
	for _, it := range items {
		if it.IsIgnored || it.Grade == nil {
			continue
		}
		g := *it.Grade
		sum += g
		count++
		if it.IsCritical && g < floor {
			floor = g
		}
	}
	if count == 0 {
		return 0, ErrNotComputable
	}

	result := sum / float64(count)
	if floor < result {
		result = floor
	}
	return Round(result), nil
}

// WeightedRatio scores the weighted sum of grades against the weighted sum of
// scale maximums and projects the ratio onto the scale of the first
// contributing item. Items missing a grade, weight or scale maximum do not
// contribute.
func WeightedRatio(items []ScoredItem) (float64, error) {
	var (
		actual, maxPossible float64
		outScale            *float64
	)
	for _, it := range items {
		if it.IsIgnored || it.Grade == nil || it.Weight == nil || it.ScaleMaxValue == nil {
			continue
		}
		if outScale == nil {
			outScale = it.ScaleMaxValue
		}
		actual += *it.Grade * *it.Weight
		maxPossible += *it.ScaleMaxValue * *it.Weight
	}
	if outScale == nil {
		return 0, ErrNotComputable
	}
	if maxPossible == 0 {
		return 0, ErrZeroWeightedScale
	}
	return Round(actual / maxPossible * *outScale), nil
}

// CriteriaFloor returns the lowest matched result grade. Callers pass only
// items that have a match; the result is not rounded.
func CriteriaFloor(items []ScoredItem) (float64, error) {
	if len(items) == 0 {
		return 0, ErrNotComputable
	}
	result := math.Inf(1)
	for _, it := range items {
		if it.MatchedResultGrade == nil {
			return 0, ErrMissingCriteriaMatch
		}
		if *it.MatchedResultGrade < result {
			result = *it.MatchedResultGrade
		}
	}
	return result, nil
}

// Round rounds v half away from zero to two decimal places.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
