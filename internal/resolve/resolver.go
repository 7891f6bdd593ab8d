// Package resolve merges per-method extraction candidates for a field into
// a single audited value. Resolution is a pure function over immutable
// candidate lists and is safe to call in parallel across fields.
package resolve

import (
	"github.com/shopspring/decimal"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// group is one set of candidates agreeing on a value.
type group struct {
	members []model.ExtractionCandidate
	// order is the index of the group's first-seen candidate, the
	// deterministic tie-break of last resort.
	order int
}

func (g *group) meanConfidence() float64 {
	var sum float64
	for _, m := range g.members {
		sum += m.Confidence
	}
	return sum / float64(len(g.members))
}

func (g *group) score(total int) float64 {
	return g.meanConfidence() * float64(len(g.members)) / float64(total)
}

func (g *group) hasMethod(m model.Method) bool {
	for _, c := range g.members {
		if c.Method == m {
			return true
		}
	}
	return false
}

// best returns the highest-confidence member, first-seen on ties.
func (g *group) best() model.ExtractionCandidate {
	best := g.members[0]
	for _, m := range g.members[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}
	return best
}

func (g *group) methods() []model.Method {
	var out []model.Method
	seen := make(map[model.Method]bool)
	for _, m := range g.members {
		if !seen[m.Method] {
			seen[m.Method] = true
			out = append(out, m.Method)
		}
	}
	return out
}

func (g *group) evidence() []model.Evidence {
	out := make([]model.Evidence, len(g.members))
	for i, m := range g.members {
		out[i] = m.Evidence
	}
	return out
}

// Resolve merges the candidates for one field. Candidates are grouped by
// normalized value, exact for dates and strings, within the field's grouping
// tolerance for numeric kinds. Each group scores
// mean(confidence) * (size / total); the top group wins, with ties broken by
// table-method membership, then higher mean confidence, then first-seen
// order. Non-selected groups are retained as alternatives. An empty
// candidate list resolves to an empty value with zero confidence.
func Resolve(spec *model.FieldSpec, candidates []model.ExtractionCandidate) model.ResolvedField {
	if len(candidates) == 0 {
		return model.ResolvedField{Field: spec.Canonical}
	}

	// A manual override supersedes every automated candidate.
	for _, c := range candidates {
		if c.Method == model.MethodManual {
			return model.ResolvedField{
				Field:          spec.Canonical,
				Value:          c.Value,
				Amount:         c.Amount,
				Date:           c.Date,
				Confidence:     1.0,
				Methods:        []model.Method{model.MethodManual},
				ConsensusRatio: 1.0,
				Evidence:       []model.Evidence{c.Evidence},
			}
		}
	}

	groups := groupCandidates(spec, candidates)
	total := len(candidates)

	winner := groups[0]
	for _, g := range groups[1:] {
		if better(g, winner, total) {
			winner = g
		}
	}

	best := winner.best()
	resolved := model.ResolvedField{
		Field:          spec.Canonical,
		Value:          best.Value,
		Amount:         best.Amount,
		Date:           best.Date,
		Confidence:     winner.meanConfidence(),
		Methods:        winner.methods(),
		ConsensusRatio: float64(len(winner.members)) / float64(total),
		Evidence:       winner.evidence(),
	}

	for _, g := range groups {
		if g == winner {
			continue
		}
		gb := g.best()
		resolved.Alternatives = append(resolved.Alternatives, model.Alternative{
			Value:      gb.Value,
			Amount:     gb.Amount,
			Methods:    g.methods(),
			Confidence: g.meanConfidence(),
			Score:      g.score(total),
			GroupSize:  len(g.members),
		})
	}
	return resolved
}

// better reports whether group a beats group b under the scoring and
// tie-break rules.
func better(a, b *group, total int) bool {
	sa, sb := a.score(total), b.score(total)
	if sa != sb {
		return sa > sb
	}
	at, bt := a.hasMethod(model.MethodTable), b.hasMethod(model.MethodTable)
	if at != bt {
		return at
	}
	ca, cb := a.meanConfidence(), b.meanConfidence()
	if ca != cb {
		return ca > cb
	}
	return a.order < b.order
}

// groupCandidates partitions candidates into agreement groups in first-seen
// order. Numeric candidates join a group when their amounts differ by at
// most the field's grouping tolerance.
func groupCandidates(spec *model.FieldSpec, candidates []model.ExtractionCandidate) []*group {
	var groups []*group
	tol, hasTol := spec.GroupingTolerance()

	for i, c := range candidates {
		var home *group
		for _, g := range groups {
			if sameValue(g.members[0], c, tol, hasTol) {
				home = g
				break
			}
		}
		if home == nil {
			home = &group{order: i}
			groups = append(groups, home)
		}
		home.members = append(home.members, c)
	}
	return groups
}

func sameValue(a, b model.ExtractionCandidate, tol decimal.Decimal, hasTol bool) bool {
	if a.Value == b.Value {
		return true
	}
	if !hasTol || a.Amount == nil || b.Amount == nil {
		return false
	}
	return a.Amount.Sub(*b.Amount).Abs().LessThanOrEqual(tol)
}
