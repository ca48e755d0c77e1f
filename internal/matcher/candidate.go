// Package matcher implements the staged resolution engine: exact lookup,
// deterministic heuristic normalization, LLM-backed hierarchical fallback,
// and the batch-wide uniqueness arbitration over higher-level matches.
package matcher

import (
	"taxonmatch/internal/llm"
	"taxonmatch/internal/taxonomy"
)

// Source identifies which stage produced a match candidate.
type Source string

const (
	SourceExact     Source = "exact"
	SourceHeuristic Source = "heuristic"
	SourceLLM       Source = "llm"
	SourceManual    Source = "manual" // user override, never produced by the pipeline
)

// Status is the resolution outcome for one row.
type Status string

const (
	StatusUnresolved Status = "unresolved" // no stage produced a candidate
	StatusMatched    Status = "matched"    // candidate accepted
	StatusAmbiguous  Status = "ambiguous"  // higher-level taxon contended by multiple rows
	StatusFailed     Status = "failed"     // LLM candidates resolved at no level
)

// Candidate is a transient match produced during resolution. Key is the
// normalized canonical name of the claimed taxon at Level; it is what the
// uniqueness pass arbitrates on.
type Candidate struct {
	Level      taxonomy.Level
	Key        string
	Entry      *taxonomy.Entry
	Source     Source
	Confidence float64 // model-reported, LLM source only
	ViaCommon  bool    // matched through the model's suggested common name
}

// Latin returns the Latin name to report for the match: the claimed taxon
// key, which for species matches is the full binomial.
func (c *Candidate) Latin() string { return c.Key }

// Common returns the common name to report for the match. A higher-level
// match only carries a common name when the reference taxonomy has a
// dedicated row at that rank.
func (c *Candidate) Common() string {
	if c.Entry == nil {
		return ""
	}
	if c.Level != taxonomy.LevelSpecies && c.Entry.Rank() != c.Level {
		return ""
	}
	return c.Entry.CommonName()
}

// Result is the engine's full answer for one input line. Everything the
// verbose CLI surfaces lives here: the parsed query, the raw LLM
// suggestion, the accepted candidate, and why resolution stopped.
type Result struct {
	Raw       string
	Query     ParsedQuery
	Candidate *Candidate
	Status    Status

	// Contended is the taxon key that uniqueness arbitration refused,
	// set only when Status is ambiguous.
	Contended string

	// Suggestion is the raw LLM answer, when the LLM stage ran.
	Suggestion *llm.Suggestion

	// Reason explains an unresolved or failed outcome.
	Reason string
}
