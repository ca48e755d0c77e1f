package matcher

import (
	"taxonmatch/internal/llm"
	"taxonmatch/internal/logging"
	"taxonmatch/internal/taxonomy"
)

// ResolveHierarchy walks the model's candidate hierarchies in their ranked
// order and resolves each at decreasing specificity (species, genus,
// family, order, class) against the index. The first candidate that
// resolves at any level wins; ties in model confidence are settled by
// ranked-list position.
//
// When no candidate resolves, the model's suggested common name is tried
// against the common-name space as a last resort before giving up.
func ResolveHierarchy(ix *taxonomy.Index, suggestion llm.Suggestion) (*Candidate, bool) {
	log := logging.Get(logging.CategoryMatcher)

	for i, cand := range suggestion.Candidates {
		h := cand.Hierarchy()
		if h.Empty() {
			continue
		}
		hit, ok := ix.ByHierarchy(h)
		if !ok {
			continue
		}
		log.Debug("hierarchy hit for %q: candidate #%d resolved %s@%s", suggestion.InputText, i+1, hit.Key, hit.Level)
		return &Candidate{
			Level:      hit.Level,
			Key:        hit.Key,
			Entry:      hit.Entry,
			Source:     SourceLLM,
			Confidence: cand.Confidence,
		}, true
	}

	if suggestion.SuggestedCommon != "" {
		if e, ok := ix.ByCommon(suggestion.SuggestedCommon); ok {
			log.Debug("common-name fallback for %q: %s", suggestion.InputText, e.Latin())
			return &Candidate{
				Level:     e.Rank(),
				Key:       e.Latin(),
				Entry:     e,
				Source:    SourceLLM,
				ViaCommon: true,
			}, true
		}
	}

	return nil, false
}
