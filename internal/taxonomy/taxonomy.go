// Package taxonomy loads the reference taxonomy and provides exact and
// level-scoped lookups against it. The index is built once at startup and
// is immutable afterwards, so it is safe to share across concurrent
// sessions without locking.
package taxonomy

import (
	"strings"
)

// Level is a taxonomic rank, in decreasing breadth: class, order, family,
// genus, species.
type Level string

const (
	LevelSpecies Level = "species"
	LevelGenus   Level = "genus"
	LevelFamily  Level = "family"
	LevelOrder   Level = "order"
	LevelClass   Level = "class"
)

// FallbackOrder lists levels from most to least specific. Hierarchical
// resolution walks this order and stops at the first hit.
var FallbackOrder = []Level{LevelSpecies, LevelGenus, LevelFamily, LevelOrder, LevelClass}

// Valid reports whether l is one of the five known ranks.
func (l Level) Valid() bool {
	switch l {
	case LevelSpecies, LevelGenus, LevelFamily, LevelOrder, LevelClass:
		return true
	}
	return false
}

// Entry is one immutable record of the reference taxonomy.
type Entry struct {
	GUID    string
	Class   string
	Order   string
	Family  string
	Genus   string
	Species string // epithet only, not the binomial

	// CommonNames holds every vernacular name seen for this taxon, first
	// one is canonical for display.
	CommonNames []string

	latin string // canonical lowercase lookup name ("genus species" or rank token)
	rank  Level  // finest rank this entry represents
}

// Latin returns the canonical lowercase Latin name: the binomial for a
// species entry, otherwise the token of the entry's finest rank.
func (e *Entry) Latin() string { return e.latin }

// Rank returns the finest taxonomic rank this entry carries.
func (e *Entry) Rank() Level { return e.rank }

// CommonName returns the canonical common name, or "" when none is known.
func (e *Entry) CommonName() string {
	if len(e.CommonNames) == 0 {
		return ""
	}
	return e.CommonNames[0]
}

// Lineage returns the full lineage string that uniquely identifies the
// entry, e.g. "aves/passeriformes/certhiidae/certhia/americana".
func (e *Entry) Lineage() string {
	parts := []string{e.Class, e.Order, e.Family, e.Genus, e.Species}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return strings.Join(out, "/")
}

// Hierarchy is a (possibly partial) candidate lineage, typically supplied
// by the LLM disambiguator. Any field may be empty.
type Hierarchy struct {
	Class   string
	Order   string
	Family  string
	Genus   string
	Species string // epithet only
}

// Empty reports whether no level of the hierarchy is populated.
func (h Hierarchy) Empty() bool {
	return h.Class == "" && h.Order == "" && h.Family == "" && h.Genus == "" && h.Species == ""
}

// Hit is the result of a hierarchical lookup: the entry that matched, the
// level it matched at, and the normalized taxon key claimed by the match.
type Hit struct {
	Entry *Entry
	Level Level
	Key   string
}

// Normalize lowercases a name and collapses internal whitespace. All index
// keys and all lookups go through this.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
