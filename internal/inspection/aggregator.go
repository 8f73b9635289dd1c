package inspection

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/inspectra/inspectra/internal/lookup"
	"github.com/inspectra/inspectra/pkg/grading"
)

// Aggregator turns submitted payloads into graded results. It holds no
// per-request state and is safe for concurrent use.
type Aggregator struct {
	lookup lookup.Lookup
}

// NewAggregator creates an aggregator backed by the given metadata lookup.
func NewAggregator(l lookup.Lookup) *Aggregator {
	return &Aggregator{lookup: l}
}

// BuildDirection builds a direction result from its input. An explicit grade
// is kept as given. Otherwise the grade is computed from the topics, except
// under the criteria strategy, where grading happens at the inspection level.
func (a *Aggregator) BuildDirection(ctx context.Context, in DirectionInput, targetID string, kind grading.Kind) (DirectionResult, error) {
	d := DirectionResult{
		ScoredItem: grading.ScoredItem{
			ID:          in.DirectionID,
			Grade:       in.Grade,
			Description: in.Description,
		},
		Topics: make([]grading.ScoredItem, len(in.Topics)),
	}
	ids := make([]string, len(in.Topics))
	for i, t := range in.Topics {
		d.Topics[i] = grading.ScoredItem{
			ID:          t.TopicID,
			Grade:       t.Grade,
			Description: t.Description,
		}
		ids[i] = t.TopicID
	}

	if in.Grade != nil || !kind.UsesCalcInfo() {
		return d, nil
	}

	if len(ids) > 0 {
		info, err := a.lookup.CalcInfo(ctx, lookup.EntityTopic, ids, targetID)
		if err != nil {
			return d, fmt.Errorf("direction %s: %w", in.DirectionID, err)
		}
		for i := range d.Topics {
			attachCalcInfo(&d.Topics[i], info)
		}
	}

	grade, err := calculate(kind, d.Topics)
	if err != nil {
		return d, fmt.Errorf("direction %s: %w", in.DirectionID, err)
	}
	if grade == nil {
		log.Printf("direction %s: grade not computable with %s", in.DirectionID, kind)
	}
	d.Grade = grade
	return d, nil
}

// Build aggregates a whole inspection payload with the given strategy.
// Duplicate direction or topic ids are rejected before any lookup.
func (a *Aggregator) Build(ctx context.Context, in Payload, kind grading.Kind) (*Result, error) {
	if err := in.checkDuplicates(); err != nil {
		return nil, err
	}

	res := &Result{
		Name:               in.Name,
		Description:        in.Description,
		InspectionOrganID:  in.InspectionOrganID,
		InspectionTargetID: in.InspectionTargetID,
		OperatorID:         in.OperatorID,
		InspectionDate:     in.InspectionDate,
		Grade:              in.Grade,
		Strategy:           kind,
		Directions:         make([]DirectionResult, 0, len(in.Directions)),
	}
	for _, din := range in.Directions {
		d, err := a.BuildDirection(ctx, din, in.InspectionTargetID, kind)
		if err != nil {
			return nil, err
		}
		res.Directions = append(res.Directions, d)
	}

	if in.Grade == nil {
		var err error
		if kind.UsesCalcInfo() {
			err = a.gradeByDirections(ctx, res, kind)
		} else {
			err = a.gradeByCriteria(ctx, res)
		}
		if err != nil {
			return nil, err
		}
		if res.Grade == nil {
			log.Printf("inspection %q: grade not computable with %s", in.Name, kind)
		}
	}

	if err := a.resolveNames(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// gradeByDirections attaches direction metadata and grades the inspection
// over its direction results.
func (a *Aggregator) gradeByDirections(ctx context.Context, res *Result, kind grading.Kind) error {
	if len(res.Directions) == 0 {
		return nil
	}
	ids := make([]string, len(res.Directions))
	for i, d := range res.Directions {
		ids[i] = d.ID
	}
	info, err := a.lookup.CalcInfo(ctx, lookup.EntityDirection, ids, res.InspectionTargetID)
	if err != nil {
		return fmt.Errorf("inspection: %w", err)
	}

	items := make([]grading.ScoredItem, len(res.Directions))
	for i := range res.Directions {
		attachCalcInfo(&res.Directions[i].ScoredItem, info)
		items[i] = res.Directions[i].ScoredItem
	}

	grade, err := calculate(kind, items)
	if err != nil {
		return fmt.Errorf("inspection: %w", err)
	}
	res.Grade = grade
	return nil
}

// gradeByCriteria matches every graded direction and topic against the
// criteria tables in one batch per entity and takes the floor of the matched
// result grades. Unmatched items do not take part.
func (a *Aggregator) gradeByCriteria(ctx context.Context, res *Result) error {
	var directionPairs, topicPairs []lookup.GradePair
	for _, d := range res.Directions {
		if d.Grade != nil {
			directionPairs = append(directionPairs, lookup.GradePair{EntityID: d.ID, Grade: *d.Grade})
		}
		for _, t := range d.Topics {
			if t.Grade != nil {
				topicPairs = append(topicPairs, lookup.GradePair{EntityID: t.ID, Grade: *t.Grade})
			}
		}
	}

	directionMatches, err := a.matches(ctx, lookup.EntityDirection, directionPairs, res.InspectionTargetID)
	if err != nil {
		return err
	}
	topicMatches, err := a.matches(ctx, lookup.EntityTopic, topicPairs, res.InspectionTargetID)
	if err != nil {
		return err
	}

	var pool []grading.ScoredItem
	for i := range res.Directions {
		d := &res.Directions[i]
		if d.Grade != nil {
			if m, ok := directionMatches[d.ID]; ok {
				d.MatchedResultGrade = grading.Float(m)
				pool = append(pool, d.ScoredItem)
			}
		}
		for j := range d.Topics {
			t := &d.Topics[j]
			if t.Grade == nil {
				continue
			}
			if m, ok := topicMatches[t.ID]; ok {
				t.MatchedResultGrade = grading.Float(m)
				pool = append(pool, *t)
			}
		}
	}

	grade, err := calculate(grading.KindCriteria, pool)
	if err != nil {
		return fmt.Errorf("inspection: %w", err)
	}
	res.Grade = grade
	return nil
}

func (a *Aggregator) matches(ctx context.Context, entity lookup.Entity, pairs []lookup.GradePair, targetID string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m, err := a.lookup.CriteriaMatches(ctx, entity, pairs, targetID)
	if err != nil {
		return nil, fmt.Errorf("inspection: %w", err)
	}
	return m, nil
}

// resolveNames fills display names when the lookup can provide them.
func (a *Aggregator) resolveNames(ctx context.Context, res *Result) error {
	namer, ok := a.lookup.(lookup.Namer)
	if !ok || len(res.Directions) == 0 {
		return nil
	}

	var directionIDs, topicIDs []string
	for _, d := range res.Directions {
		directionIDs = append(directionIDs, d.ID)
		for _, t := range d.Topics {
			topicIDs = append(topicIDs, t.ID)
		}
	}

	directionNames, err := namer.Names(ctx, lookup.EntityDirection, directionIDs)
	if err != nil {
		return fmt.Errorf("resolve direction names: %w", err)
	}
	topicNames := map[string]string{}
	if len(topicIDs) > 0 {
		topicNames, err = namer.Names(ctx, lookup.EntityTopic, topicIDs)
		if err != nil {
			return fmt.Errorf("resolve topic names: %w", err)
		}
	}

	for i := range res.Directions {
		d := &res.Directions[i]
		d.Name = directionNames[d.ID]
		for j := range d.Topics {
			d.Topics[j].Name = topicNames[d.Topics[j].ID]
		}
	}
	return nil
}

// attachCalcInfo copies configured attributes onto an item. Items without
// configuration keep nil attributes and are not treated as ignored.
func attachCalcInfo(item *grading.ScoredItem, info map[string]lookup.CalcInfo) {
	ci, ok := info[item.ID]
	if !ok {
		return
	}
	item.IsCritical = ci.IsCritical
	item.IsIgnored = ci.IsIgnored
	item.Weight = grading.Float(ci.Weight)
	if ci.ScaleMaxValue != nil {
		item.ScaleMaxValue = grading.Float(*ci.ScaleMaxValue)
	}
}

// calculate runs the strategy and maps a not-computable outcome to a nil
// grade. Any other strategy error is returned.
func calculate(kind grading.Kind, items []grading.ScoredItem) (*float64, error) {
	v, err := kind.Strategy().Calculate(items)
	if errors.Is(err, grading.ErrNotComputable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
