package matcher

import (
	"taxonmatch/internal/taxonomy"
)

// ExactMatch looks the parsed query up directly against the index: the
// Latin field in the Latin space first (preferred when both are present),
// then the common field in the common-name space. Comparison is
// case-normalized and whitespace-collapsed by the index itself.
// A miss is an expected outcome feeding the next stage, not an error.
func ExactMatch(ix *taxonomy.Index, q ParsedQuery) (*Candidate, bool) {
	return exactWithSource(ix, q, SourceExact)
}

func exactWithSource(ix *taxonomy.Index, q ParsedQuery, source Source) (*Candidate, bool) {
	if q.Latin != "" {
		if e, ok := ix.ByLatin(q.Latin); ok {
			return entryCandidate(e, source), true
		}
	}
	if q.Common != "" {
		if e, ok := ix.ByCommon(q.Common); ok {
			return entryCandidate(e, source), true
		}
	}
	return nil, false
}

// entryCandidate builds a candidate for a direct entry hit. An input that
// names a higher-rank row (a bare genus or family token) matches at that
// rank and is therefore subject to uniqueness arbitration later.
func entryCandidate(e *taxonomy.Entry, source Source) *Candidate {
	return &Candidate{
		Level:  e.Rank(),
		Key:    e.Latin(),
		Entry:  e,
		Source: source,
	}
}
