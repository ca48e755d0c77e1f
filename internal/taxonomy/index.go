package taxonomy

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"taxonmatch/internal/logging"
)

// Index is the process-wide lookup structure over the reference taxonomy.
// Built once by Load; read-only afterwards.
type Index struct {
	path    string
	entries []*Entry

	byLatin  map[string]*Entry
	byCommon map[string]*Entry
	byLevel  map[Level]map[string][]*Entry
}

// Load reads a semicolon-delimited taxonomy file and builds the index.
// Line format: GUID;class;order;family;genus;species;common
// A missing or empty file is an error: the reference taxonomy is a fatal
// startup requirement, not a runtime condition.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy file: %w", err)
	}
	defer f.Close()

	ix := &Index{
		path:     path,
		byLatin:  make(map[string]*Entry),
		byCommon: make(map[string]*Entry),
		byLevel:  make(map[Level]map[string][]*Entry),
	}
	for _, level := range FallbackOrder {
		ix.byLevel[level] = make(map[string][]*Entry)
	}

	log := logging.Get(logging.CategoryTaxonomy)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			skipped++
			log.Debug("skipping malformed line %d: %q", lineNo, line)
			continue
		}
		ix.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	if len(ix.entries) == 0 {
		return nil, fmt.Errorf("taxonomy file %s contains no valid entries", path)
	}

	log.Info("loaded %d entries from %s (%d lines skipped)", len(ix.entries), path, skipped)
	return ix, nil
}

// parseLine turns one raw taxonomy line into an Entry. Lines with fewer
// than seven fields or with no rank token at all are rejected.
func parseLine(line string) (*Entry, bool) {
	parts := strings.Split(line, ";")
	if len(parts) < 7 {
		return nil, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	e := &Entry{
		GUID:    parts[0],
		Class:   parts[1],
		Order:   parts[2],
		Family:  parts[3],
		Genus:   parts[4],
		Species: parts[5],
	}
	if common := parts[6]; common != "" {
		e.CommonNames = []string{common}
	}

	// The canonical Latin name is the binomial when the row reaches the
	// species rank, otherwise the token of the finest populated rank.
	switch {
	case e.Species != "" && e.Genus != "":
		e.latin = Normalize(e.Genus + " " + e.Species)
		e.rank = LevelSpecies
	case e.Genus != "":
		e.latin = Normalize(e.Genus)
		e.rank = LevelGenus
	case e.Family != "":
		e.latin = Normalize(e.Family)
		e.rank = LevelFamily
	case e.Order != "":
		e.latin = Normalize(e.Order)
		e.rank = LevelOrder
	case e.Class != "":
		e.latin = Normalize(e.Class)
		e.rank = LevelClass
	default:
		return nil, false
	}
	return e, true
}

// add registers an entry under its latin key, common names, and every
// populated rank token. Duplicate latin keys merge their common names into
// the first-seen entry.
func (ix *Index) add(e *Entry) {
	if existing, ok := ix.byLatin[e.latin]; ok {
		for _, c := range e.CommonNames {
			existing.addCommonName(c)
			if _, dup := ix.byCommon[Normalize(c)]; !dup {
				ix.byCommon[Normalize(c)] = existing
			}
		}
		return
	}

	ix.entries = append(ix.entries, e)
	ix.byLatin[e.latin] = e
	for _, c := range e.CommonNames {
		key := Normalize(c)
		if _, dup := ix.byCommon[key]; !dup {
			ix.byCommon[key] = e
		}
	}

	if e.rank == LevelSpecies {
		ix.byLevel[LevelSpecies][e.latin] = append(ix.byLevel[LevelSpecies][e.latin], e)
	}
	if e.Genus != "" {
		key := Normalize(e.Genus)
		ix.byLevel[LevelGenus][key] = append(ix.byLevel[LevelGenus][key], e)
	}
	if e.Family != "" {
		key := Normalize(e.Family)
		ix.byLevel[LevelFamily][key] = append(ix.byLevel[LevelFamily][key], e)
	}
	if e.Order != "" {
		key := Normalize(e.Order)
		ix.byLevel[LevelOrder][key] = append(ix.byLevel[LevelOrder][key], e)
	}
	if e.Class != "" {
		key := Normalize(e.Class)
		ix.byLevel[LevelClass][key] = append(ix.byLevel[LevelClass][key], e)
	}
}

func (e *Entry) addCommonName(name string) {
	for _, c := range e.CommonNames {
		if strings.EqualFold(c, name) {
			return
		}
	}
	e.CommonNames = append(e.CommonNames, name)
}

// Path returns the file the index was loaded from.
func (ix *Index) Path() string { return ix.path }

// Len returns the number of distinct entries.
func (ix *Index) Len() int { return len(ix.entries) }

// ByLatin looks up an entry by its canonical Latin name (binomial or rank
// token), normalizing the query first.
func (ix *Index) ByLatin(name string) (*Entry, bool) {
	e, ok := ix.byLatin[Normalize(name)]
	return e, ok
}

// ByCommon looks up an entry by common name, normalizing the query first.
func (ix *Index) ByCommon(name string) (*Entry, bool) {
	e, ok := ix.byCommon[Normalize(name)]
	return e, ok
}

// AtLevel returns every entry whose lineage carries the given token at the
// given rank, e.g. AtLevel(LevelGenus, "Picoides") answers "does this genus
// token exist as a genus anywhere".
func (ix *Index) AtLevel(level Level, token string) []*Entry {
	m, ok := ix.byLevel[level]
	if !ok {
		return nil
	}
	return m[Normalize(token)]
}

// ByHierarchy resolves a candidate hierarchy at decreasing specificity:
// species, then genus, family, order, class. The first level populated in
// both the candidate and the index wins. The returned Hit carries the
// normalized taxon key claimed by the match, which the batch-wide
// uniqueness pass arbitrates on for non-species levels.
func (ix *Index) ByHierarchy(h Hierarchy) (Hit, bool) {
	if h.Genus != "" && h.Species != "" {
		if e, ok := ix.ByLatin(h.Genus + " " + h.Species); ok {
			return Hit{Entry: e, Level: LevelSpecies, Key: e.latin}, true
		}
	}
	for _, probe := range []struct {
		level Level
		token string
	}{
		{LevelGenus, h.Genus},
		{LevelFamily, h.Family},
		{LevelOrder, h.Order},
		{LevelClass, h.Class},
	} {
		if probe.token == "" {
			continue
		}
		key := Normalize(probe.token)
		// A dedicated higher-rank row (its own common name and GUID) beats
		// a species row that merely passes through this token.
		if e, ok := ix.byLatin[key]; ok && e.rank == probe.level {
			return Hit{Entry: e, Level: probe.level, Key: key}, true
		}
		if entries := ix.AtLevel(probe.level, probe.token); len(entries) > 0 {
			return Hit{Entry: entries[0], Level: probe.level, Key: key}, true
		}
	}
	return Hit{}, false
}
