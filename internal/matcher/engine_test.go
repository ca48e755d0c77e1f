package matcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"taxonmatch/internal/llm"
	"taxonmatch/internal/taxonomy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDisambiguator serves canned suggestions keyed by raw query. Safe
// for concurrent use since the engine fans rows out to workers.
type fakeDisambiguator struct {
	mu        sync.Mutex
	responses map[string]llm.Suggestion
	errs      map[string]error
	calls     []string
}

func (f *fakeDisambiguator) Suggest(ctx context.Context, query, location string) (llm.Suggestion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	if err, ok := f.errs[query]; ok {
		return llm.Suggestion{}, err
	}
	return f.responses[query], nil
}

func (f *fakeDisambiguator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestEngineExactSkipsLLM(t *testing.T) {
	fake := &fakeDisambiguator{}
	e := NewEngine(testIndex(t), fake, 0)

	results := e.Resolve(context.Background(), []string{"brown creeper"}, Options{})

	r := results[0]
	if r.Status != StatusMatched {
		t.Fatalf("Status = %s (reason %q)", r.Status, r.Reason)
	}
	if r.Candidate.Source != SourceExact || r.Candidate.Key != "certhia americana" {
		t.Fatalf("Candidate = %+v", r.Candidate)
	}
	if fake.callCount() != 0 {
		t.Fatalf("LLM called %d times for an exact match", fake.callCount())
	}
}

func TestEngineLLMGenusMatch(t *testing.T) {
	fake := &fakeDisambiguator{
		responses: map[string]llm.Suggestion{
			"three-toed woodpecker": {
				InputText: "three-toed woodpecker",
				Candidates: []llm.Candidate{
					{Class: "aves", Order: "piciformes", Family: "picidae", Genus: "picoides", Species: "tridactylus", Confidence: 0.9},
				},
			},
		},
	}
	e := NewEngine(testIndex(t), fake, 2)

	results := e.Resolve(context.Background(), []string{"three-toed woodpecker"}, Options{})

	r := results[0]
	if r.Status != StatusMatched {
		t.Fatalf("Status = %s (reason %q)", r.Status, r.Reason)
	}
	if r.Candidate.Level != taxonomy.LevelGenus || r.Candidate.Latin() != "picoides" {
		t.Fatalf("Candidate = %+v", r.Candidate)
	}
	if r.Suggestion == nil || len(r.Suggestion.Candidates) != 1 {
		t.Fatalf("Suggestion = %+v", r.Suggestion)
	}
}

func TestEngineContendedGenus(t *testing.T) {
	picoides := llm.Suggestion{
		Candidates: []llm.Candidate{
			{Class: "aves", Order: "piciformes", Family: "picidae", Genus: "picoides", Species: "dorsalis"},
		},
	}
	fake := &fakeDisambiguator{
		responses: map[string]llm.Suggestion{
			"three-toed woodpecker":          picoides,
			"american three-toed woodpecker": picoides,
		},
	}
	e := NewEngine(testIndex(t), fake, 2)

	lines := []string{"three-toed woodpecker", "american three-toed woodpecker", "brown creeper"}
	results := e.Resolve(context.Background(), lines, Options{})

	for _, r := range results[:2] {
		if r.Status != StatusAmbiguous {
			t.Fatalf("row %q Status = %s, want %s", r.Raw, r.Status, StatusAmbiguous)
		}
		if r.Contended != "picoides" {
			t.Fatalf("row %q Contended = %q", r.Raw, r.Contended)
		}
	}
	if results[2].Status != StatusMatched {
		t.Fatalf("exact row Status = %s", results[2].Status)
	}
}

func TestEngineLLMFailureIsolated(t *testing.T) {
	fake := &fakeDisambiguator{
		errs: map[string]error{
			"unknown critter": errors.New("rate limit exceeded"),
		},
	}
	e := NewEngine(testIndex(t), fake, 2)

	results := e.Resolve(context.Background(), []string{"unknown critter", "bald eagle"}, Options{})

	if results[0].Status != StatusUnresolved {
		t.Fatalf("Status = %s", results[0].Status)
	}
	if !strings.Contains(results[0].Reason, "rate limit exceeded") {
		t.Fatalf("Reason = %q", results[0].Reason)
	}
	if results[1].Status != StatusMatched {
		t.Fatalf("unaffected row Status = %s (reason %q)", results[1].Status, results[1].Reason)
	}
}

func TestEngineModelNotFoundReportedVerbatim(t *testing.T) {
	mnf := &llm.ModelNotFoundError{Model: "gemini-9.9-ultra"}
	fake := &fakeDisambiguator{
		errs: map[string]error{"unknown critter": mnf},
	}
	e := NewEngine(testIndex(t), fake, 1)

	results := e.Resolve(context.Background(), []string{"unknown critter"}, Options{})

	if results[0].Reason != mnf.Error() {
		t.Fatalf("Reason = %q, want %q", results[0].Reason, mnf.Error())
	}
	if !strings.Contains(results[0].Reason, "gemini-9.9-ultra") {
		t.Fatalf("Reason %q does not name the model", results[0].Reason)
	}
}

func TestEngineNoCandidates(t *testing.T) {
	fake := &fakeDisambiguator{
		responses: map[string]llm.Suggestion{"unknown critter": {}},
	}
	e := NewEngine(testIndex(t), fake, 1)

	results := e.Resolve(context.Background(), []string{"unknown critter"}, Options{})

	if results[0].Status != StatusUnresolved {
		t.Fatalf("Status = %s", results[0].Status)
	}
	if results[0].Reason != "model returned no candidates" {
		t.Fatalf("Reason = %q", results[0].Reason)
	}
}

func TestEngineUnresolvableHierarchyFails(t *testing.T) {
	fake := &fakeDisambiguator{
		responses: map[string]llm.Suggestion{
			"wood frog": {
				Candidates: []llm.Candidate{
					{Class: "amphibia", Order: "anura", Family: "ranidae", Genus: "lithobates", Species: "sylvaticus"},
				},
				SuggestedCommon: "wood frog",
			},
		},
	}
	e := NewEngine(testIndex(t), fake, 1)

	results := e.Resolve(context.Background(), []string{"wood frog"}, Options{})

	if results[0].Status != StatusFailed {
		t.Fatalf("Status = %s", results[0].Status)
	}
	if results[0].Reason == "" {
		t.Fatal("failed row must carry a reason")
	}
}

func TestEngineNilDisambiguator(t *testing.T) {
	e := NewEngine(testIndex(t), nil, 1)

	results := e.Resolve(context.Background(), []string{"unknown critter"}, Options{})

	if results[0].Status != StatusUnresolved {
		t.Fatalf("Status = %s", results[0].Status)
	}
	if !strings.Contains(results[0].Reason, "unavailable") {
		t.Fatalf("Reason = %q", results[0].Reason)
	}
}

func TestEngineEmptyLine(t *testing.T) {
	e := NewEngine(testIndex(t), nil, 1)

	results := e.Resolve(context.Background(), []string{"   "}, Options{})

	if results[0].Status != StatusUnresolved || results[0].Reason != "empty input" {
		t.Fatalf("result = %+v", results[0])
	}
}

func TestEngineOrderPreserved(t *testing.T) {
	e := NewEngine(testIndex(t), &fakeDisambiguator{}, 3)

	lines := []string{"bald eagle", "", "stoat", "no such thing", "white-tailed deer", "gray jay"}
	results := e.Resolve(context.Background(), lines, Options{})

	if len(results) != len(lines) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(lines))
	}
	for i, r := range results {
		if r.Raw != lines[i] {
			t.Fatalf("results[%d].Raw = %q, want %q", i, r.Raw, lines[i])
		}
	}
}

func TestEngineLocationForwarded(t *testing.T) {
	var gotLocation string
	var mu sync.Mutex
	d := disambiguatorFunc(func(ctx context.Context, query, location string) (llm.Suggestion, error) {
		mu.Lock()
		gotLocation = location
		mu.Unlock()
		return llm.Suggestion{}, nil
	})
	e := NewEngine(testIndex(t), d, 1)

	e.Resolve(context.Background(), []string{"unknown critter"}, Options{Location: "northern Minnesota"})

	if gotLocation != "northern Minnesota" {
		t.Fatalf("location = %q", gotLocation)
	}
}

type disambiguatorFunc func(ctx context.Context, query, location string) (llm.Suggestion, error)

func (f disambiguatorFunc) Suggest(ctx context.Context, query, location string) (llm.Suggestion, error) {
	return f(ctx, query, location)
}
