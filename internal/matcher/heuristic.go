package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"taxonmatch/internal/logging"
	"taxonmatch/internal/taxonomy"
)

// transformStep is one deterministic query rewrite. Every step preserves
// the species being asked about; anything that could silently change the
// semantics (edit distance, synonym guessing) is deferred to the LLM
// stage so this one stays auditable.
type transformStep struct {
	name  string
	apply func(ParsedQuery) ParsedQuery
}

// heuristicSteps is the fixed transform sequence. Steps accumulate: each
// retry sees all previous rewrites, and the first exact hit wins.
var heuristicSteps = []transformStep{
	{"strip-diacritics", mapFields(stripDiacritics)},
	{"strip-punctuation", mapFields(stripPunctuation)},
	{"singularize", mapFields(singularize)},
	{"swap-order", swapFields},
}

// HeuristicMatch retries exact lookup after each transform in the fixed
// sequence. Deterministic and idempotent: the same query always walks the
// same rewrites to the same candidate.
func HeuristicMatch(ix *taxonomy.Index, q ParsedQuery) (*Candidate, bool) {
	log := logging.Get(logging.CategoryMatcher)

	current := q
	for _, step := range heuristicSteps {
		next := step.apply(current)
		if next == current {
			continue
		}
		current = next
		if c, ok := exactWithSource(ix, current, SourceHeuristic); ok {
			log.Debug("heuristic hit for %q after %s: %s@%s", q.Raw, step.name, c.Key, c.Level)
			return c, true
		}
	}
	return nil, false
}

// mapFields lifts a string rewrite over both name fields of a query.
func mapFields(f func(string) string) func(ParsedQuery) ParsedQuery {
	return func(q ParsedQuery) ParsedQuery {
		q.Common = f(q.Common)
		q.Latin = f(q.Latin)
		return q
	}
}

// swapFields exchanges the common/Latin assignment, catching inputs
// written "Latin, Common" instead of the expected "Common, Latin".
func swapFields(q ParsedQuery) ParsedQuery {
	if q.Single {
		return q
	}
	q.Common, q.Latin = q.Latin, q.Common
	return q
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stripDiacritics removes combining marks: "mäuse" -> "mause".
func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// stripPunctuation turns hyphens and underscores into spaces, drops all
// other punctuation, and collapses the whitespace that is left.
func stripPunctuation(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == '/':
			sb.WriteRune(' ')
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// singularize applies simple English plural reduction to the last word of
// a name: "weasels" -> "weasel", "foxes" -> "fox", "flies" -> "fly".
// Deliberately conservative; a wrong singular only costs a missed retry.
func singularize(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	last := fields[len(fields)-1]
	lower := strings.ToLower(last)
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 4:
		last = last[:len(last)-3] + "y"
	case strings.HasSuffix(lower, "xes") || strings.HasSuffix(lower, "ses") ||
		strings.HasSuffix(lower, "ches") || strings.HasSuffix(lower, "shes"):
		last = last[:len(last)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 3:
		last = last[:len(last)-1]
	}
	fields[len(fields)-1] = last
	return strings.Join(fields, " ")
}
