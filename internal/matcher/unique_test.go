package matcher

import (
	"testing"

	"taxonmatch/internal/taxonomy"
)

func speciesResult(key string) *Result {
	return &Result{Candidate: &Candidate{Level: taxonomy.LevelSpecies, Key: key, Source: SourceExact}}
}

func genusResult(key string) *Result {
	return &Result{Candidate: &Candidate{Level: taxonomy.LevelGenus, Key: key, Source: SourceLLM}}
}

func TestArbitrateSpeciesUnconditional(t *testing.T) {
	// Two rows claiming the same binomial both stay matched: a species
	// match distinguishes its input on its own.
	a := speciesResult("mustela erminea")
	b := speciesResult("mustela erminea")
	Arbitrate([]*Result{a, b})

	if a.Status != StatusMatched || b.Status != StatusMatched {
		t.Fatalf("statuses = %s, %s", a.Status, b.Status)
	}
	if a.Contended != "" || b.Contended != "" {
		t.Fatal("species matches must never be contended")
	}
}

func TestArbitrateSingletonHigherLevel(t *testing.T) {
	r := genusResult("picoides")
	Arbitrate([]*Result{r})

	if r.Status != StatusMatched {
		t.Fatalf("Status = %s, want %s", r.Status, StatusMatched)
	}
}

func TestArbitrateContendedHigherLevel(t *testing.T) {
	a := genusResult("picoides")
	b := genusResult("picoides")
	c := speciesResult("picoides arcticus")
	Arbitrate([]*Result{a, b, c})

	for _, r := range []*Result{a, b} {
		if r.Status != StatusAmbiguous {
			t.Fatalf("Status = %s, want %s", r.Status, StatusAmbiguous)
		}
		if r.Contended != "picoides" {
			t.Fatalf("Contended = %q", r.Contended)
		}
	}
	// The species row under the same genus is unaffected.
	if c.Status != StatusMatched {
		t.Fatalf("species Status = %s", c.Status)
	}
}

func TestArbitrateDistinctHigherLevels(t *testing.T) {
	a := genusResult("picoides")
	b := &Result{Candidate: &Candidate{Level: taxonomy.LevelFamily, Key: "mustelidae", Source: SourceLLM}}
	Arbitrate([]*Result{a, b})

	if a.Status != StatusMatched || b.Status != StatusMatched {
		t.Fatalf("statuses = %s, %s", a.Status, b.Status)
	}
}

func TestArbitrateSkipsCandidateless(t *testing.T) {
	failed := &Result{Status: StatusFailed, Reason: "no candidate hierarchy matched the taxonomy at any level"}
	unresolved := &Result{Status: StatusUnresolved}
	matched := genusResult("picoides")
	Arbitrate([]*Result{failed, nil, unresolved, matched})

	if failed.Status != StatusFailed || unresolved.Status != StatusUnresolved {
		t.Fatal("arbitration must not touch rows without a candidate")
	}
	if matched.Status != StatusMatched {
		t.Fatalf("Status = %s", matched.Status)
	}
}
