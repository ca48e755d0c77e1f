package matcher

import (
	"taxonmatch/internal/logging"
	"taxonmatch/internal/taxonomy"
)

// Arbitrate is the batch-wide uniqueness pass. It must only run after
// every row's individual resolution has completed, since it is a function
// of the full set of claimed taxa.
//
// Species-level candidates are accepted unconditionally: a binomial can
// distinguish its input on its own. Higher-level candidates are grouped
// by claimed taxon key; a taxon claimed by exactly one row is accepted,
// one claimed by several rows cannot tell the contenders apart, so every
// one of them is marked ambiguous. Precision over recall.
func Arbitrate(results []*Result) {
	log := logging.Get(logging.CategoryMatcher)

	claims := make(map[string][]*Result)
	for _, r := range results {
		if r == nil || r.Candidate == nil {
			continue
		}
		if r.Candidate.Level == taxonomy.LevelSpecies {
			r.Status = StatusMatched
			continue
		}
		claims[r.Candidate.Key] = append(claims[r.Candidate.Key], r)
	}

	for key, group := range claims {
		if len(group) == 1 {
			group[0].Status = StatusMatched
			continue
		}
		log.Info("taxon %q contended by %d rows, marking all ambiguous", key, len(group))
		for _, r := range group {
			r.Status = StatusAmbiguous
			r.Contended = key
		}
	}
}
