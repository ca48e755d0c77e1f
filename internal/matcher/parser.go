package matcher

import "strings"

// ParsedQuery is the structured form of one raw input line. Parsing is
// best-effort and never fails: an unparseable line simply yields a query
// that no lookup will hit, and the row ends unresolved.
type ParsedQuery struct {
	Raw    string
	Common string
	Latin  string

	// Single marks a line with no delimiter: one name of unknown kind,
	// to be tried against both lookup spaces.
	Single bool
}

// ParseLine splits a raw line into its common/Latin parts. The expected
// pair order is "common, latin"; lines in the opposite order are caught by
// the heuristic matcher's word-order swap. Extra comma fields beyond the
// first two are ignored.
func ParseLine(line string) ParsedQuery {
	q := ParsedQuery{Raw: line}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return q
	}

	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) == 1 {
		// Ambiguous single name: candidate in both spaces.
		q.Common = parts[0]
		q.Latin = parts[0]
		q.Single = true
		return q
	}

	q.Common = parts[0]
	q.Latin = parts[1]
	return q
}
