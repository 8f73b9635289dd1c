// Package grading implements the inspection grade aggregation strategies.
// A strategy reduces a set of scored items (topic or direction results) to a
// single numeric grade.
package grading

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotComputable is returned when there is nothing to aggregate: the
	// input is empty, fully ignored, or carries no usable grades. The
	// accompanying value is always 0.
	ErrNotComputable = errors.New("grade is not computable")

	// ErrZeroWeightedScale is returned by WeightedRatio when the weighted
	// maximum of the contributing items sums to zero.
	ErrZeroWeightedScale = errors.New("weighted scale total is zero")

	// ErrMissingCriteriaMatch is returned by CriteriaFloor when an item has
	// no matched result grade.
	ErrMissingCriteriaMatch = errors.New("item has no matched criteria grade")
)

// ScoredItem is one scored entity (a topic result or a direction result)
// together with the calculation attributes attached to it during
// aggregation. Optional numeric attributes are nil until resolved.
type ScoredItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Grade       *float64 `json:"grade"`
	Description string   `json:"description,omitempty"`

	IsIgnored          bool     `json:"is_ignored,omitempty"`
	IsCritical         bool     `json:"is_critical,omitempty"`
	Weight             *float64 `json:"weight,omitempty"`
	ScaleMaxValue      *float64 `json:"scale_max_value,omitempty"`
	MatchedResultGrade *float64 `json:"matched_result_grade,omitempty"`
}

// Kind selects a grading strategy. It is chosen per request and never
// persisted.
type Kind string

const (
	KindAvgCritical Kind = "avg_critical"
	KindWeights     Kind = "weights"
	KindCriteria    Kind = "criteria"
)

// DefaultKind is used when neither the request nor the configuration names
// a strategy.
const DefaultKind = KindCriteria

// Kinds lists every supported strategy kind.
func Kinds() []Kind {
	return []Kind{KindAvgCritical, KindWeights, KindCriteria}
}

func (k Kind) String() string { return string(k) }

// Strategy returns the strategy implementation for the kind.
// Unknown kinds fall back to the default.
func (k Kind) Strategy() Strategy {
	switch k {
	case KindAvgCritical:
		return StrategyFunc(AvgWithCriticalFloor)
	case KindWeights:
		return StrategyFunc(WeightedRatio)
	case KindCriteria:
		return StrategyFunc(CriteriaFloor)
	default:
		return DefaultKind.Strategy()
	}
}

// UsesCalcInfo reports whether the strategy needs weight/critical/ignore
// metadata attached to items before calculation.
func (k Kind) UsesCalcInfo() bool {
	return k == KindAvgCritical || k == KindWeights
}

// ParseKind parses a strategy name. Matching is case-insensitive and the
// empty string yields DefaultKind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultKind, nil
	}
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown grading strategy %q (want one of %v)", s, Kinds())
}

// Float returns a pointer to v, for building optional grades.
func Float(v float64) *float64 {
	return &v
}
