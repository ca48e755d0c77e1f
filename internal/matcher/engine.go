package matcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"taxonmatch/internal/llm"
	"taxonmatch/internal/logging"
	"taxonmatch/internal/taxonomy"
)

// Disambiguator is the boundary to the LLM hierarchy-suggestion service.
// Implementations must return an error rather than panic on provider
// failures; the engine treats any error as "no candidates" for that row.
type Disambiguator interface {
	Suggest(ctx context.Context, query, location string) (llm.Suggestion, error)
}

// defaultWorkers bounds concurrent per-row resolution. The LLM call is
// the only blocking stage, so the bound exists to respect provider rate
// limits rather than CPU.
const defaultWorkers = 4

// Engine runs the staged resolution pipeline over batches of raw input
// lines. The taxonomy index is shared and read-only; an Engine is safe
// for concurrent use.
type Engine struct {
	index         *taxonomy.Index
	disambiguator Disambiguator // nil disables the LLM stage
	workers       int
}

// NewEngine creates an engine over the given index. A nil disambiguator
// is allowed: rows then stop after the heuristic stage.
func NewEngine(ix *taxonomy.Index, d Disambiguator, workers int) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{index: ix, disambiguator: d, workers: workers}
}

// WithDisambiguator returns an engine using d for this call chain only,
// e.g. to honor a per-session API key override.
func (e *Engine) WithDisambiguator(d Disambiguator) *Engine {
	return &Engine{index: e.index, disambiguator: d, workers: e.workers}
}

// Options tunes one Resolve call.
type Options struct {
	// Location is optional study-area context forwarded to the LLM.
	Location string
}

// Resolve runs per-row resolution concurrently over all lines, then the
// batch-wide uniqueness arbitration. Per-row failures degrade that row's
// status and never abort the batch; results always come back in input
// order, one per line.
func (e *Engine) Resolve(ctx context.Context, lines []string, opts Options) []*Result {
	results := make([]*Result, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, line := range lines {
		g.Go(func() error {
			results[i] = e.resolveRow(gctx, line, opts.Location)
			return nil
		})
	}
	// Strict synchronization barrier: arbitration is a function of the
	// complete set of claimed taxa.
	_ = g.Wait()

	Arbitrate(results)
	return results
}

// Per-row resolution states. The staged pipeline is an explicit state
// machine so the path every row took stays auditable.
type stage int

const (
	stageUnresolved stage = iota
	stageExactChecked
	stageHeuristicChecked
	stageLLMChecked
	stageDone
)

// resolveRow takes one raw line through exact, heuristic, and LLM
// resolution. It fills in the candidate but leaves the final
// matched/ambiguous decision to Arbitrate.
func (e *Engine) resolveRow(ctx context.Context, raw, location string) *Result {
	log := logging.Get(logging.CategoryMatcher)

	res := &Result{
		Raw:    raw,
		Query:  ParseLine(raw),
		Status: StatusUnresolved,
	}
	if res.Query.Common == "" && res.Query.Latin == "" {
		res.Reason = "empty input"
		return res
	}

	for st := stageUnresolved; st != stageDone; {
		switch st {
		case stageUnresolved:
			if c, ok := ExactMatch(e.index, res.Query); ok {
				res.Candidate = c
				st = stageDone
				break
			}
			st = stageExactChecked

		case stageExactChecked:
			if c, ok := HeuristicMatch(e.index, res.Query); ok {
				res.Candidate = c
				st = stageDone
				break
			}
			st = stageHeuristicChecked

		case stageHeuristicChecked:
			if e.disambiguator == nil {
				res.Reason = "no exact or heuristic match; LLM disambiguation unavailable"
				st = stageDone
				break
			}
			suggestion, err := e.disambiguator.Suggest(ctx, raw, location)
			if err != nil {
				// Any provider failure counts as "no candidates" for this
				// row. A misconfigured model name is reported verbatim so
				// the user sees the offending model.
				if llm.IsModelNotFound(err) {
					res.Reason = err.Error()
				} else {
					res.Reason = fmt.Sprintf("LLM disambiguation failed: %v", err)
				}
				log.Warn("row %q: %s", raw, res.Reason)
				st = stageDone
				break
			}
			res.Suggestion = &suggestion
			st = stageLLMChecked

		case stageLLMChecked:
			if len(res.Suggestion.Candidates) == 0 && res.Suggestion.SuggestedCommon == "" {
				res.Reason = "model returned no candidates"
				st = stageDone
				break
			}
			if c, ok := ResolveHierarchy(e.index, *res.Suggestion); ok {
				res.Candidate = c
				st = stageDone
				break
			}
			// Candidates existed but none resolved at any level: failed,
			// deliberately distinct from the ambiguous outcome.
			res.Status = StatusFailed
			res.Reason = "no candidate hierarchy matched the taxonomy at any level"
			st = stageDone
		}
	}

	return res
}
