package condition

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	// Every non-blank condition is gated on game completeness.
	completeGate := Comparison{Stat: "isComplete", Op: OpEQ, Threshold: 1}
	anyWin := Comparison{Stat: "margin", Op: OpGT, Threshold: 0}

	tests := []struct {
		name   string
		source string
		want   Predicate
	}{
		{
			name:   "blank condition never triggers",
			source: "   ",
			want:   Literal{Value: false},
		},
		{
			name:   "home win",
			source: "home win",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					anyWin,
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 1},
				}},
			}},
		},
		{
			name:   "any win",
			source: "any win",
			want:   Conjunction{Children: []Predicate{completeGate, anyWin}},
		},
		{
			name:   "bare win means any win",
			source: "win",
			want:   Conjunction{Children: []Predicate{completeGate, anyWin}},
		},
		{
			name:   "away win",
			source: "Away Win",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					anyWin,
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 0},
				}},
			}},
		},
		{
			name:   "plus threshold carries the completeness gate",
			source: "7+ strikeouts",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Comparison{Stat: "strikeouts", Op: OpGTE, Threshold: 7},
			}},
		},
		{
			name:   "comparator threshold",
			source: "strikeouts >= 7",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Comparison{Stat: "strikeouts", Op: OpGTE, Threshold: 7},
			}},
		},
		{
			name:   "synonym maps to canonical stat",
			source: "6+ runs scored",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Comparison{Stat: "runs", Op: OpGTE, Threshold: 6},
			}},
		},
		{
			name:   "conjunction with and",
			source: "home win and 6+ runs",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					anyWin,
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 1},
				}},
				Comparison{Stat: "runs", Op: OpGTE, Threshold: 6},
			}},
		},
		{
			name:   "conjunction with plus separator",
			source: "any win + 10+ hits",
			want: Conjunction{Children: []Predicate{
				completeGate,
				anyWin,
				Comparison{Stat: "hits", Op: OpGTE, Threshold: 10},
			}},
		},
		{
			name:   "bare stat phrase means at least one",
			source: "stolen base at home",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					Comparison{Stat: "stolenBases", Op: OpGTE, Threshold: 1},
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 1},
				}},
			}},
		},
		{
			name:   "away venue suffix",
			source: "7+ strikeouts away",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					Comparison{Stat: "strikeouts", Op: OpGTE, Threshold: 7},
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 0},
				}},
			}},
		},
		{
			name:   "home run phrase is a stat not a venue",
			source: "2+ home runs",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Comparison{Stat: "homeRuns", Op: OpGTE, Threshold: 2},
			}},
		},
		{
			name:   "contradictory conjunction still parses",
			source: "home win and away win",
			want: Conjunction{Children: []Predicate{
				completeGate,
				Conjunction{Children: []Predicate{
					anyWin,
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 1},
				}},
				Conjunction{Children: []Predicate{
					anyWin,
					Comparison{Stat: "isHome", Op: OpEQ, Threshold: 0},
				}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.source)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.source, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q) = %#v, want %#v", tt.source, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		wantToken string
	}{
		{name: "unrecognized token", source: "7+ flurbs", wantToken: "flurbs"},
		{name: "bare number", source: "7", wantToken: "7"},
		{name: "number inside conjunction", source: "home win and 6", wantToken: "6"},
		{name: "unknown win qualifier", source: "neutral win", wantToken: "neutral"},
		{name: "threshold without stat", source: "7+", wantToken: "7+"},
		{name: "comparator without stat", source: ">= 3", wantToken: ">="},
		{name: "venue without clause", source: "at home", wantToken: "at home"},
		{name: "away venue without clause", source: "away", wantToken: "away"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.source)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.source)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("Parse(%q) error = %T, want *ParseError", tt.source, err)
			}
			if parseErr.Token != tt.wantToken {
				t.Fatalf("Parse(%q) offending token = %q, want %q", tt.source, parseErr.Token, tt.wantToken)
			}
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	first, err := Parse("Home Win  and  6+ Runs")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	second, err := Parse("home win and 6+ runs")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("equal normalized sources must compile to equal trees")
	}
}

func TestSignature(t *testing.T) {
	if Signature("  Home   WIN ") != "home win" {
		t.Fatalf("Signature() = %q, want %q", Signature("  Home   WIN "), "home win")
	}
	if Signature("home win") != Signature("HOME  WIN") {
		t.Fatal("signatures of equivalent sources must match")
	}
}
