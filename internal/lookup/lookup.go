// Package lookup resolves the reference metadata the grading strategies need:
// weight, critical and ignore attributes per topic or direction, and the
// criteria table mapping an observed grade to a result grade. Every query is
// scoped to the type of the inspection target being graded.
package lookup

import (
	"context"
	"fmt"
)

// Entity names the kind of scored entity a lookup applies to.
type Entity string

const (
	EntityTopic     Entity = "topic"
	EntityDirection Entity = "direction"
)

// CalcInfo holds the calculation attributes configured for one entity under
// a target type.
type CalcInfo struct {
	IsCritical    bool     `json:"is_critical" yaml:"critical"`
	IsIgnored     bool     `json:"is_ignored" yaml:"ignored"`
	Weight        float64  `json:"weight" yaml:"weight"`
	ScaleMaxValue *float64 `json:"scale_max_value,omitempty" yaml:"-"`
}

// GradePair is an observed grade for one entity.
type GradePair struct {
	EntityID string
	Grade    float64
}

// Lookup is the metadata source consulted during aggregation. Both methods
// take the whole batch at once; ids without configuration are absent from the
// returned map. An unknown target, or one without a type, yields empty maps.
type Lookup interface {
	CalcInfo(ctx context.Context, entity Entity, ids []string, targetID string) (map[string]CalcInfo, error)
	CriteriaMatches(ctx context.Context, entity Entity, pairs []GradePair, targetID string) (map[string]float64, error)
}

// Namer resolves display names for directions and topics.
type Namer interface {
	Names(ctx context.Context, entity Entity, ids []string) (map[string]string, error)
}

func (e Entity) validate() error {
	switch e {
	case EntityTopic, EntityDirection:
		return nil
	default:
		return fmt.Errorf("unknown entity %q", string(e))
	}
}
