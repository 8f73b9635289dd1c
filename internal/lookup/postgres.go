package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type entityTables struct {
	rel      string
	criteria string
	ref      string
	idCol    string
	gradeCol string
}

var tables = map[Entity]entityTables{
	EntityTopic: {
		rel:      "refs.inspection_target_type_topic_rel",
		criteria: "refs.grade_criteria_topic",
		ref:      "refs.topic",
		idCol:    "topic_id",
		gradeCol: "topic_grade",
	},
	EntityDirection: {
		rel:      "refs.inspection_target_type_direction_rel",
		criteria: "refs.grade_criteria_direction",
		ref:      "refs.direction",
		idCol:    "direction_id",
		gradeCol: "direction_grade",
	},
}

// Postgres answers lookups from the reference tables. Target types are
// cached; every lookup is otherwise a single batched query.
type Postgres struct {
	db    *sql.DB
	types *TypeCache
}

// NewPostgres creates a lookup over db. A nil cache disables type caching.
func NewPostgres(db *sql.DB, cache *TypeCache) *Postgres {
	return &Postgres{db: db, types: cache}
}

// CalcInfo returns weight, critical and ignore flags with the scale maximum
// for the given ids under the target's type.
func (p *Postgres) CalcInfo(ctx context.Context, entity Entity, ids []string, targetID string) (map[string]CalcInfo, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]CalcInfo)
	if len(ids) == 0 {
		return out, nil
	}

	typeID, err := p.targetType(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if typeID == "" {
		return out, nil
	}

	t := tables[entity]
	query := fmt.Sprintf(`
		SELECT r.%[1]s, r.is_critical, r.weight, r.is_ignored, s.max_value
		FROM %[2]s r
		LEFT JOIN refs.scale s ON s.id = r.scale_id
		WHERE r.inspection_target_type_id = $1 AND r.%[1]s = ANY($2)`,
		t.idCol, t.rel)

	rows, err := p.db.QueryContext(ctx, query, typeID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query %s calc info: %w", entity, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       string
			info     CalcInfo
			maxValue sql.NullFloat64
		)
		if err := rows.Scan(&id, &info.IsCritical, &info.Weight, &info.IsIgnored, &maxValue); err != nil {
			return nil, fmt.Errorf("scan %s calc info: %w", entity, err)
		}
		if maxValue.Valid {
			v := maxValue.Float64
			info.ScaleMaxValue = &v
		}
		out[id] = info
	}
	return out, rows.Err()
}

// CriteriaMatches returns the result grade configured for each observed
// (id, grade) pair. Only exact grade matches count; if several rows match an
// id the lowest result grade wins.
func (p *Postgres) CriteriaMatches(ctx context.Context, entity Entity, pairs []GradePair, targetID string) (map[string]float64, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	if len(pairs) == 0 {
		return out, nil
	}

	typeID, err := p.targetType(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if typeID == "" {
		return out, nil
	}

	ids := make([]string, len(pairs))
	grades := make([]float64, len(pairs))
	for i, pair := range pairs {
		ids[i] = pair.EntityID
		grades[i] = pair.Grade
	}

	t := tables[entity]
	query := fmt.Sprintf(`
		SELECT c.%[1]s, MIN(c.result_grade)
		FROM %[2]s c
		JOIN unnest($2::text[], $3::float8[]) AS p(entity_id, grade)
		  ON c.%[1]s = p.entity_id AND c.%[3]s = p.grade
		WHERE c.inspection_target_type_id = $1
		GROUP BY c.%[1]s`,
		t.idCol, t.criteria, t.gradeCol)

	rows, err := p.db.QueryContext(ctx, query, typeID, pq.Array(ids), pq.Array(grades))
	if err != nil {
		return nil, fmt.Errorf("query %s criteria: %w", entity, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			result float64
		)
		if err := rows.Scan(&id, &result); err != nil {
			return nil, fmt.Errorf("scan %s criteria: %w", entity, err)
		}
		out[id] = result
	}
	return out, rows.Err()
}

// Names returns display names for the given direction or topic ids.
func (p *Postgres) Names(ctx context.Context, entity Entity, ids []string) (map[string]string, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if len(ids) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT id, name FROM %s WHERE id = ANY($1)`, tables[entity].ref)
	rows, err := p.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query %s names: %w", entity, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan %s name: %w", entity, err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

// targetType resolves the type of an inspection target. It returns "" when
// the target does not exist or has no type.
func (p *Postgres) targetType(ctx context.Context, targetID string) (string, error) {
	if p.types != nil {
		if typeID, ok := p.types.Get(targetID); ok {
			return typeID, nil
		}
	}

	var typeID sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT type_id FROM tables.inspection_target WHERE id = $1`, targetID,
	).Scan(&typeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve target type: %w", err)
	}
	if !typeID.Valid {
		return "", nil
	}

	if p.types != nil {
		p.types.Put(targetID, typeID.String)
	}
	return typeID.String, nil
}
