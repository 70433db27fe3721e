package condition

import (
	"reflect"
	"testing"
)

func mustParse(t *testing.T, source string) Predicate {
	t.Helper()
	p, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", source, err)
	}
	return p
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		source string
		fact   FactRecord
		want   bool
	}{
		{
			name:   "home win triggers on a completed home victory",
			source: "home win",
			fact:   FactRecord{IsHome: true, IsComplete: true, TeamScore: 5, OpponentScore: 2},
			want:   true,
		},
		{
			name:   "home win does not trigger away",
			source: "home win",
			fact:   FactRecord{IsHome: false, IsComplete: true, TeamScore: 5, OpponentScore: 2},
			want:   false,
		},
		{
			name:   "incomplete game never triggers a win",
			source: "home win",
			fact:   FactRecord{IsHome: true, IsComplete: false, TeamScore: 5, OpponentScore: 2},
			want:   false,
		},
		{
			name:   "tie is not a win",
			source: "any win",
			fact:   FactRecord{IsComplete: true, TeamScore: 3, OpponentScore: 3},
			want:   false,
		},
		{
			name:   "threshold met",
			source: "7+ strikeouts",
			fact:   FactRecord{IsComplete: true, CountedStats: map[string]int{"strikeouts": 9}},
			want:   true,
		},
		{
			name:   "incomplete game never triggers a threshold",
			source: "7+ strikeouts",
			fact:   FactRecord{IsComplete: false, CountedStats: map[string]int{"strikeouts": 9}},
			want:   false,
		},
		{
			name:   "incomplete game never triggers a bare stat",
			source: "stolen base",
			fact:   FactRecord{IsComplete: false, CountedStats: map[string]int{"stolenBases": 2}},
			want:   false,
		},
		{
			name:   "threshold exactly met",
			source: "7+ strikeouts",
			fact:   FactRecord{IsComplete: true, CountedStats: map[string]int{"strikeouts": 7}},
			want:   true,
		},
		{
			name:   "threshold missed",
			source: "7+ strikeouts",
			fact:   FactRecord{IsComplete: true, CountedStats: map[string]int{"strikeouts": 6}},
			want:   false,
		},
		{
			name:   "missing stat defaults to false",
			source: "7+ strikeouts",
			fact:   FactRecord{IsComplete: true},
			want:   false,
		},
		{
			name:   "conjunction all true",
			source: "home win and 6+ runs",
			fact: FactRecord{
				IsHome: true, IsComplete: true, TeamScore: 6, OpponentScore: 4,
				CountedStats: map[string]int{"runs": 6},
			},
			want: true,
		},
		{
			name:   "conjunction one false",
			source: "home win and 6+ runs",
			fact: FactRecord{
				IsHome: true, IsComplete: true, TeamScore: 6, OpponentScore: 4,
				CountedStats: map[string]int{"runs": 5},
			},
			want: false,
		},
		{
			name:   "contradictory conjunction never evaluates true",
			source: "home win and away win",
			fact:   FactRecord{IsHome: true, IsComplete: true, TeamScore: 9, OpponentScore: 0},
			want:   false,
		},
		{
			name:   "first class field comparison",
			source: "team score >= 10",
			fact:   FactRecord{IsComplete: true, TeamScore: 11},
			want:   true,
		},
		{
			name:   "blank condition never auto-triggers",
			source: "",
			fact:   FactRecord{IsHome: true, IsComplete: true, TeamScore: 9, OpponentScore: 0},
			want:   false,
		},
		{
			name:   "venue suffix requires home",
			source: "stolen base at home",
			fact:   FactRecord{IsHome: false, IsComplete: true, CountedStats: map[string]int{"stolenBases": 2}},
			want:   false,
		},
		{
			name:   "away venue suffix requires away",
			source: "7+ strikeouts away",
			fact:   FactRecord{IsHome: true, IsComplete: true, CountedStats: map[string]int{"strikeouts": 9}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustParse(t, tt.source)
			if got := Evaluate(p, tt.fact); got != tt.want {
				t.Fatalf("Evaluate(%q) = %t, want %t", tt.source, got, tt.want)
			}
		})
	}
}

func TestEvaluateRepeatable(t *testing.T) {
	p := mustParse(t, "home win and 6+ runs")
	fact := FactRecord{
		IsHome: true, IsComplete: true, TeamScore: 6, OpponentScore: 4,
		CountedStats: map[string]int{"runs": 6},
	}
	for range 100 {
		if !Evaluate(p, fact) {
			t.Fatal("Evaluate() must be pure and repeatable")
		}
	}
}

func TestEvaluateDisjunction(t *testing.T) {
	p := Disjunction{Children: []Predicate{
		Comparison{Stat: "runs", Op: OpGTE, Threshold: 6},
		Comparison{Stat: "hits", Op: OpGTE, Threshold: 10},
	}}

	fact := FactRecord{CountedStats: map[string]int{"hits": 12}}
	if !Evaluate(p, fact) {
		t.Fatal("disjunction with one true child must be true")
	}

	fact = FactRecord{CountedStats: map[string]int{"hits": 2}}
	if Evaluate(p, fact) {
		t.Fatal("disjunction with no true children must be false")
	}
}

func TestMissingStats(t *testing.T) {
	p := mustParse(t, "7+ strikeouts and 2+ stolen bases")

	missing := MissingStats(p, FactRecord{CountedStats: map[string]int{"strikeouts": 4}})
	if !reflect.DeepEqual(missing, []string{"stolenBases"}) {
		t.Fatalf("MissingStats() = %v, want [stolenBases]", missing)
	}

	missing = MissingStats(p, FactRecord{CountedStats: map[string]int{"strikeouts": 4, "stolenBases": 0}})
	if len(missing) != 0 {
		t.Fatalf("MissingStats() = %v, want none", missing)
	}
}
