// Package condition implements the trigger-condition language for deals: a
// parser that compiles short authored phrases ("home win", "7+ strikeouts",
// "home win and 6+ runs") into predicate trees, and a pure evaluator that
// decides those trees against per-game fact records.
package condition

// Op is a comparison operator in a threshold clause.
type Op string

const (
	OpGTE Op = ">="
	OpGT  Op = ">"
	OpLTE Op = "<="
	OpLT  Op = "<"
	OpEQ  Op = "="
)

// Predicate is a compiled condition tree node. Trees are immutable once
// parsed and safe for concurrent evaluation.
type Predicate interface {
	pred()
}

// Comparison compares a single game stat against an integer threshold.
// Stat is either a counted-stat key (e.g. "strikeouts") or one of the
// derived keys resolved by the evaluator (teamScore, opponentScore, margin,
// isHome, isComplete).
type Comparison struct {
	Stat      string
	Op        Op
	Threshold int
}

// Conjunction is true when all of its children are true.
type Conjunction struct {
	Children []Predicate
}

// Disjunction is true when at least one of its children is true.
type Disjunction struct {
	Children []Predicate
}

// Literal is a constant boolean predicate. A blank condition compiles to
// Literal{false} so it never auto-triggers.
type Literal struct {
	Value bool
}

func (Comparison) pred()  {}
func (Conjunction) pred() {}
func (Disjunction) pred() {}
func (Literal) pred()     {}

// FactRecord is the immutable snapshot of a completed game's statistics
// delivered by the game-data collaborator. It is never mutated here.
type FactRecord struct {
	GameID        string         `json:"gameId"`
	IsHome        bool           `json:"isHome"`
	IsComplete    bool           `json:"isComplete"`
	TeamScore     int            `json:"teamScore"`
	OpponentScore int            `json:"opponentScore"`
	CountedStats  map[string]int `json:"countedStats,omitempty"`
}
