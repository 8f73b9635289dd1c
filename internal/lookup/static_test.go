package lookup_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/inspectra/inspectra/internal/lookup"
)

func loadReference(t *testing.T) *lookup.Static {
	t.Helper()
	s, err := lookup.LoadStatic("../../testdata/reference.yaml")
	if err != nil {
		t.Fatalf("load reference: %v", err)
	}
	return s
}

func TestStaticCalcInfo(t *testing.T) {
	s := loadReference(t)

	got, err := s.CalcInfo(context.Background(), lookup.EntityTopic, []string{"2", "4", "8"}, "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// topic 8 is not configured for type 2
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got["2"].Weight != 1 {
		t.Errorf("expected weight 1, got %g", got["2"].Weight)
	}
	if sm := got["2"].ScaleMaxValue; sm == nil || *sm != 5 {
		t.Errorf("expected scale max 5, got %v", sm)
	}
	if got["4"].IsCritical || got["4"].IsIgnored {
		t.Errorf("expected topic 4 to be neither critical nor ignored, got %+v", got["4"])
	}
}

func TestStaticCalcInfoScopedToTargetType(t *testing.T) {
	s := loadReference(t)
	ctx := context.Background()

	got, err := s.CalcInfo(ctx, lookup.EntityTopic, []string{"6"}, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got["6"].IsCritical {
		t.Error("expected topic 6 to be critical for type 1")
	}

	got, err = s.CalcInfo(ctx, lookup.EntityTopic, []string{"6"}, "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["6"].IsCritical {
		t.Error("expected topic 6 not to be critical for type 2")
	}
}

func TestStaticUnknownTarget(t *testing.T) {
	s := loadReference(t)
	ctx := context.Background()

	for _, target := range []string{"404", "5"} {
		info, err := s.CalcInfo(ctx, lookup.EntityDirection, []string{"1"}, target)
		if err != nil {
			t.Fatalf("target %s: unexpected error: %v", target, err)
		}
		if len(info) != 0 {
			t.Errorf("target %s: expected no calc info, got %v", target, info)
		}

		matches, err := s.CriteriaMatches(ctx, lookup.EntityDirection, []lookup.GradePair{{EntityID: "1", Grade: 2}}, target)
		if err != nil {
			t.Fatalf("target %s: unexpected error: %v", target, err)
		}
		if len(matches) != 0 {
			t.Errorf("target %s: expected no matches, got %v", target, matches)
		}
	}
}

func TestStaticCriteriaMatches(t *testing.T) {
	s := loadReference(t)

	pairs := []lookup.GradePair{
		{EntityID: "2", Grade: 3},
		{EntityID: "6", Grade: 3},
		{EntityID: "7", Grade: 5},
		{EntityID: "9", Grade: 2.5},
	}
	got, err := s.CriteriaMatches(context.Background(), lookup.EntityTopic, pairs, "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// only exact grade matches count
	want := map[string]float64{"2": 2, "6": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStaticCriteriaTieBreakLowestWins(t *testing.T) {
	ref := lookup.Reference{
		Targets: []lookup.Target{{ID: "t", TypeID: "x"}},
		TargetTypes: []lookup.TargetType{{
			ID: "x",
			Topics: []lookup.Rel{{
				ID: "a",
				Criteria: []lookup.Criterion{
					{Grade: 3, Result: 2},
					{Grade: 3, Result: 1},
				},
			}},
		}},
	}
	s, err := lookup.NewStatic(ref)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	got, err := s.CriteriaMatches(context.Background(), lookup.EntityTopic, []lookup.GradePair{{EntityID: "a", Grade: 3}}, "t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("expected lowest result 1, got %g", got["a"])
	}
}

func TestStaticNames(t *testing.T) {
	s := loadReference(t)

	got, err := s.Names(context.Background(), lookup.EntityDirection, []string{"1", "99"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"1": "Внешний вид товара"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStaticRejectsUnknownEntity(t *testing.T) {
	s := loadReference(t)

	if _, err := s.CalcInfo(context.Background(), lookup.Entity("organ"), []string{"1"}, "3"); err == nil {
		t.Error("expected error for unknown entity")
	}
}

func TestNewStaticValidation(t *testing.T) {
	tests := []struct {
		name string
		ref  lookup.Reference
	}{
		{
			name: "unknown scale",
			ref: lookup.Reference{TargetTypes: []lookup.TargetType{{
				ID: "x", Topics: []lookup.Rel{{ID: "a", ScaleID: "nope"}},
			}}},
		},
		{
			name: "duplicate rel",
			ref: lookup.Reference{TargetTypes: []lookup.TargetType{{
				ID: "x", Directions: []lookup.Rel{{ID: "a"}, {ID: "a"}},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := lookup.NewStatic(tt.ref); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadStaticErrors(t *testing.T) {
	if _, err := lookup.LoadStatic(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("scales: {not a list"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := lookup.LoadStatic(bad); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
