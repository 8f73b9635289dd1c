package lookup

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reference is the YAML form of the reference data a Static lookup serves.
type Reference struct {
	Scales      []Scale      `yaml:"scales"`
	Directions  []Named      `yaml:"directions"`
	Topics      []Named      `yaml:"topics"`
	Targets     []Target     `yaml:"targets"`
	TargetTypes []TargetType `yaml:"target_types"`
}

// Scale is a grading scale.
type Scale struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	MaxValue *float64 `yaml:"max_value"`
}

// Named is a direction or topic reference entry.
type Named struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Target is an inspection target and its type.
type Target struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	TypeID string `yaml:"type_id"`
}

// TargetType holds the per-type configuration of directions and topics.
type TargetType struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Directions []Rel  `yaml:"directions"`
	Topics     []Rel  `yaml:"topics"`
}

// Rel configures one direction or topic under a target type.
type Rel struct {
	ID       string      `yaml:"id"`
	ScaleID  string      `yaml:"scale_id"`
	Weight   *float64    `yaml:"weight"`
	Critical bool        `yaml:"critical"`
	Ignored  bool        `yaml:"ignored"`
	Criteria []Criterion `yaml:"criteria"`
}

// Criterion maps an observed grade to a result grade.
type Criterion struct {
	Grade  float64 `yaml:"grade"`
	Result float64 `yaml:"result"`
}

type typeTables struct {
	calc     map[Entity]map[string]CalcInfo
	criteria map[Entity]map[string][]Criterion
}

// Static serves lookups from in-memory reference data. It is safe for
// concurrent use once built.
type Static struct {
	targets map[string]string
	types   map[string]typeTables
	names   map[Entity]map[string]string
}

// LoadStatic reads reference data from a YAML file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference data: %w", err)
	}
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parsing reference data: %w", err)
	}
	return NewStatic(ref)
}

// NewStatic indexes reference data for lookups.
func NewStatic(ref Reference) (*Static, error) {
	scales := make(map[string]*float64, len(ref.Scales))
	for _, sc := range ref.Scales {
		scales[sc.ID] = sc.MaxValue
	}

	s := &Static{
		targets: make(map[string]string, len(ref.Targets)),
		types:   make(map[string]typeTables, len(ref.TargetTypes)),
		names: map[Entity]map[string]string{
			EntityDirection: {},
			EntityTopic:     {},
		},
	}
	for _, d := range ref.Directions {
		s.names[EntityDirection][d.ID] = d.Name
	}
	for _, t := range ref.Topics {
		s.names[EntityTopic][t.ID] = t.Name
	}
	for _, t := range ref.Targets {
		s.targets[t.ID] = t.TypeID
	}

	for _, tt := range ref.TargetTypes {
		tables := typeTables{
			calc:     map[Entity]map[string]CalcInfo{},
			criteria: map[Entity]map[string][]Criterion{},
		}
		for entity, rels := range map[Entity][]Rel{EntityDirection: tt.Directions, EntityTopic: tt.Topics} {
			calc := make(map[string]CalcInfo, len(rels))
			criteria := make(map[string][]Criterion, len(rels))
			for _, r := range rels {
				if _, dup := calc[r.ID]; dup {
					return nil, fmt.Errorf("target type %s: duplicate %s %s", tt.ID, entity, r.ID)
				}
				maxValue, ok := scales[r.ScaleID]
				if r.ScaleID != "" && !ok {
					return nil, fmt.Errorf("target type %s: %s %s references unknown scale %s", tt.ID, entity, r.ID, r.ScaleID)
				}
				weight := 1.0
				if r.Weight != nil {
					weight = *r.Weight
				}
				calc[r.ID] = CalcInfo{
					IsCritical:    r.Critical,
					IsIgnored:     r.Ignored,
					Weight:        weight,
					ScaleMaxValue: maxValue,
				}
				criteria[r.ID] = r.Criteria
			}
			tables.calc[entity] = calc
			tables.criteria[entity] = criteria
		}
		s.types[tt.ID] = tables
	}
	return s, nil
}

// CalcInfo implements Lookup.
func (s *Static) CalcInfo(_ context.Context, entity Entity, ids []string, targetID string) (map[string]CalcInfo, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]CalcInfo)
	tables, ok := s.types[s.targets[targetID]]
	if !ok {
		return out, nil
	}
	for _, id := range ids {
		if info, ok := tables.calc[entity][id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

// CriteriaMatches implements Lookup with the same tie-break as Postgres: the
// lowest matching result grade wins.
func (s *Static) CriteriaMatches(_ context.Context, entity Entity, pairs []GradePair, targetID string) (map[string]float64, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	tables, ok := s.types[s.targets[targetID]]
	if !ok {
		return out, nil
	}
	for _, pair := range pairs {
		for _, c := range tables.criteria[entity][pair.EntityID] {
			if c.Grade != pair.Grade {
				continue
			}
			if cur, seen := out[pair.EntityID]; !seen || c.Result < cur {
				out[pair.EntityID] = c.Result
			}
		}
	}
	return out, nil
}

// Names implements Namer.
func (s *Static) Names(_ context.Context, entity Entity, ids []string) (map[string]string, error) {
	if err := entity.validate(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if name, ok := s.names[entity][id]; ok {
			out[id] = name
		}
	}
	return out, nil
}
