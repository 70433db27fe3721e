package condition

import (
	"fmt"
	"strconv"
	"strings"
)

// Derived stat keys resolved by the evaluator against FactRecord fields
// rather than CountedStats. Part of the compiled-tree contract; the parser
// emits them for the completed-game gate, win qualifiers, and venue
// suffixes.
const (
	statTeamScore     = "teamScore"
	statOpponentScore = "opponentScore"
	statMargin        = "margin"
	statIsHome        = "isHome"
	statIsComplete    = "isComplete"
)

// ParseError reports condition text the parser could not understand. Token
// names the offending input so authoring tools can point at it; unrecognized
// words are never silently dropped.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return "parse condition: " + e.Reason
	}
	return fmt.Sprintf("parse condition: %s: %q", e.Reason, e.Token)
}

// synonyms maps authored stat phrases to canonical counted-stat keys.
// Multi-word phrases are matched against the whole clause remainder.
var synonyms = map[string]string{
	"strikeout":      "strikeouts",
	"strikeouts":     "strikeouts",
	"k":              "strikeouts",
	"ks":             "strikeouts",
	"run":            "runs",
	"runs":           "runs",
	"runs scored":    "runs",
	"hit":            "hits",
	"hits":           "hits",
	"stolen base":    "stolenBases",
	"stolen bases":   "stolenBases",
	"steal":          "stolenBases",
	"steals":         "stolenBases",
	"home run":       "homeRuns",
	"home runs":      "homeRuns",
	"homer":          "homeRuns",
	"homers":         "homeRuns",
	"rbi":            "rbis",
	"rbis":           "rbis",
	"runs batted in": "rbis",
	"walk":           "walks",
	"walks":          "walks",
	"team score":     statTeamScore,
	"opponent score": statOpponentScore,
}

// Normalize lowercases source and collapses runs of whitespace to single
// spaces. Compiled trees are a pure function of the normalized string, which
// is also the condition signature used for idempotency keys.
func Normalize(source string) string {
	return strings.Join(strings.Fields(strings.ToLower(source)), " ")
}

// Signature returns the stable signature of a condition string: its
// normalized form. Two conditions with equal signatures compile to equal
// trees.
func Signature(source string) string {
	return Normalize(source)
}

// Parse compiles an authored condition string into a predicate tree. A blank
// string compiles to Literal{false}; every non-blank tree is gated on game
// completeness, so incomplete facts never trigger. Logically contradictory
// conjunctions ("home win and away win") parse successfully; the evaluator
// is authoritative on truth.
func Parse(source string) (Predicate, error) {
	normalized := Normalize(source)
	if normalized == "" {
		return Literal{Value: false}, nil
	}

	clauses := splitClauses(strings.Split(normalized, " "))

	// The completed-game gate is the first conjunct of every compiled tree:
	// no condition form, win or threshold, can hold against an in-progress
	// fact.
	children := make([]Predicate, 0, len(clauses)+1)
	children = append(children, Comparison{Stat: statIsComplete, Op: OpEQ, Threshold: 1})
	for _, clause := range clauses {
		if len(clause) == 0 {
			return nil, &ParseError{Reason: "empty clause"}
		}
		p, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}

	return Conjunction{Children: children}, nil
}

// splitClauses splits a word stream on the conjunction separators: the word
// "and" and a standalone "+". A trailing "+" attached to a number ("7+") is
// part of a threshold clause, not a separator.
func splitClauses(words []string) [][]string {
	var clauses [][]string
	var current []string
	for _, w := range words {
		if w == "and" || w == "+" {
			clauses = append(clauses, current)
			current = nil
			continue
		}
		current = append(current, w)
	}
	return append(clauses, current)
}

func parseClause(words []string) (Predicate, error) {
	// Venue suffix: "<clause> at home" / "<clause> away" narrows any clause
	// to one venue, e.g. "stolen base at home", "7+ strikeouts away".
	var venueExtra []Predicate
	switch n := len(words); {
	case n >= 2 && words[n-2] == "at" && words[n-1] == "home":
		venueExtra = append(venueExtra, Comparison{Stat: statIsHome, Op: OpEQ, Threshold: 1})
		words = words[:n-2]
		if len(words) == 0 {
			return nil, &ParseError{Token: "at home", Reason: "venue without a clause"}
		}
	case n >= 1 && words[n-1] == "away":
		venueExtra = append(venueExtra, Comparison{Stat: statIsHome, Op: OpEQ, Threshold: 0})
		words = words[:n-1]
		if len(words) == 0 {
			return nil, &ParseError{Token: "away", Reason: "venue without a clause"}
		}
	}

	p, err := parseBareClause(words)
	if err != nil {
		return nil, err
	}
	if len(venueExtra) == 0 {
		return p, nil
	}
	return Conjunction{Children: append([]Predicate{p}, venueExtra...)}, nil
}

func parseBareClause(words []string) (Predicate, error) {
	// Win qualifier: "win", "any win", "home win", "away win".
	if words[len(words)-1] == "win" {
		return parseWinClause(words)
	}

	// "N+ stat" surface form.
	if threshold, ok := strings.CutSuffix(words[0], "+"); ok {
		if n, err := strconv.Atoi(threshold); err == nil {
			if len(words) == 1 {
				return nil, &ParseError{Token: words[0], Reason: "threshold without a stat"}
			}
			stat, err := resolveStat(words[1:])
			if err != nil {
				return nil, err
			}
			return Comparison{Stat: stat, Op: OpGTE, Threshold: n}, nil
		}
	}

	// "stat <op> N" surface form.
	for i, w := range words {
		op, ok := comparatorToken(w)
		if !ok {
			continue
		}
		if i == 0 {
			return nil, &ParseError{Token: w, Reason: "comparator without a stat"}
		}
		if i != len(words)-2 {
			return nil, &ParseError{Token: strings.Join(words, " "), Reason: "expected a single number after comparator"}
		}
		n, err := strconv.Atoi(words[len(words)-1])
		if err != nil {
			return nil, &ParseError{Token: words[len(words)-1], Reason: "threshold is not a number"}
		}
		stat, err := resolveStat(words[:i])
		if err != nil {
			return nil, err
		}
		return Comparison{Stat: stat, Op: op, Threshold: n}, nil
	}

	// A bare number is ambiguous and rejected at parse time.
	if _, err := strconv.Atoi(words[0]); err == nil {
		return nil, &ParseError{Token: words[0], Reason: "number without a comparator"}
	}

	// Bare stat phrase means "at least one", e.g. "stolen base".
	stat, err := resolveStat(words)
	if err != nil {
		return nil, err
	}
	return Comparison{Stat: stat, Op: OpGTE, Threshold: 1}, nil
}

func parseWinClause(words []string) (Predicate, error) {
	// Completeness is enforced by the tree-level gate in Parse; a win clause
	// only adds the margin and venue requirements.
	margin := Comparison{Stat: statMargin, Op: OpGT, Threshold: 0}

	switch {
	case len(words) == 1: // bare "win" means any win
		return margin, nil
	case len(words) == 2 && words[0] == "any":
		return margin, nil
	case len(words) == 2 && words[0] == "home":
		return Conjunction{Children: []Predicate{margin, Comparison{Stat: statIsHome, Op: OpEQ, Threshold: 1}}}, nil
	case len(words) == 2 && words[0] == "away":
		return Conjunction{Children: []Predicate{margin, Comparison{Stat: statIsHome, Op: OpEQ, Threshold: 0}}}, nil
	default:
		return nil, &ParseError{Token: strings.Join(words[:len(words)-1], " "), Reason: "unknown win qualifier"}
	}
}

func comparatorToken(w string) (Op, bool) {
	switch w {
	case ">=":
		return OpGTE, true
	case ">":
		return OpGT, true
	case "<=":
		return OpLTE, true
	case "<":
		return OpLT, true
	case "=", "==":
		return OpEQ, true
	default:
		return "", false
	}
}

func resolveStat(words []string) (string, error) {
	phrase := strings.Join(words, " ")
	if stat, ok := synonyms[phrase]; ok {
		return stat, nil
	}

	// Name the first word that fails to resolve, not the whole phrase.
	for _, w := range words {
		if _, ok := synonyms[w]; !ok {
			return "", &ParseError{Token: w, Reason: "unrecognized token"}
		}
	}
	return "", &ParseError{Token: phrase, Reason: "unrecognized stat"}
}
