package condition

// Evaluate decides a compiled predicate against a game fact record. It is
// pure and total: it never panics, and a comparison against a stat absent
// from the record is false rather than an error, because upstream stat
// capture can be partial.
func Evaluate(p Predicate, fact FactRecord) bool {
	switch node := p.(type) {
	case Literal:
		return node.Value
	case Comparison:
		value, ok := statValue(fact, node.Stat)
		if !ok {
			return false
		}
		return compare(value, node.Op, node.Threshold)
	case Conjunction:
		for _, child := range node.Children {
			if !Evaluate(child, fact) {
				return false
			}
		}
		return true
	case Disjunction:
		for _, child := range node.Children {
			if Evaluate(child, fact) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// MissingStats walks a predicate and returns the counted-stat keys it
// references that are absent from the fact record. Missing data is a safe
// default at evaluation time; callers log it as a data-quality signal.
func MissingStats(p Predicate, fact FactRecord) []string {
	seen := make(map[string]bool)
	var missing []string
	collectMissing(p, fact, seen, &missing)
	return missing
}

func collectMissing(p Predicate, fact FactRecord, seen map[string]bool, missing *[]string) {
	switch node := p.(type) {
	case Comparison:
		if _, ok := statValue(fact, node.Stat); !ok && !seen[node.Stat] {
			seen[node.Stat] = true
			*missing = append(*missing, node.Stat)
		}
	case Conjunction:
		for _, child := range node.Children {
			collectMissing(child, fact, seen, missing)
		}
	case Disjunction:
		for _, child := range node.Children {
			collectMissing(child, fact, seen, missing)
		}
	}
}

// statValue resolves a stat key against the record. Derived keys come from
// first-class fields; everything else is looked up in CountedStats.
func statValue(fact FactRecord, stat string) (int, bool) {
	switch stat {
	case statTeamScore:
		return fact.TeamScore, true
	case statOpponentScore:
		return fact.OpponentScore, true
	case statMargin:
		return fact.TeamScore - fact.OpponentScore, true
	case statIsHome:
		return boolStat(fact.IsHome), true
	case statIsComplete:
		return boolStat(fact.IsComplete), true
	}

	value, ok := fact.CountedStats[stat]
	return value, ok
}

func boolStat(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compare(value int, op Op, threshold int) bool {
	switch op {
	case OpGTE:
		return value >= threshold
	case OpGT:
		return value > threshold
	case OpLTE:
		return value <= threshold
	case OpLT:
		return value < threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}
