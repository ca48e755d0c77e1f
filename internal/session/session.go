// Package session implements the row state manager: it owns one user
// session's batch of rows and supports lock-aware partial reprocessing,
// where only unlocked rows are resent through the resolution pipeline
// and locked rows are spliced back verbatim at their positions.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"taxonmatch/internal/logging"
	"taxonmatch/internal/matcher"
)

// Row is one line of the batch. The ID is stable across reprocessing so
// lock and edit operations survive surrounding reordering or edits.
type Row struct {
	ID       uuid.UUID
	RawInput string
	Result   *matcher.Result
	Locked   bool
}

// clone returns a shallow copy sharing the Result pointer. The Result is
// never mutated after resolution, so sharing is safe.
func (r *Row) clone() *Row {
	c := *r
	return &c
}

// Manager holds the current batch for one session. Sessions never share
// a Manager; the mutex only orders calls within the session.
type Manager struct {
	mu     sync.Mutex
	engine *matcher.Engine
	rows   []*Row
}

// NewManager creates an empty session over the given engine.
func NewManager(e *matcher.Engine) *Manager {
	return &Manager{engine: e}
}

// ProcessOptions tunes one Process call.
type ProcessOptions struct {
	// Location is optional study-area context forwarded to the LLM.
	Location string

	// Disambiguator, when non-nil, replaces the engine's LLM boundary
	// for this call only, e.g. to honor a per-session API key.
	Disambiguator matcher.Disambiguator
}

// Process merges a new ordered input against the current batch and
// resolves what needs resolving. Position by position: a locked row is
// copied unchanged regardless of the new line's content; an unlocked row
// adopts the new line; positions past the old batch become fresh rows.
// Locked rows past the new input's end persist, unlocked ones are
// dropped.
//
// Only the unlocked subset goes through the pipeline, and the
// batch-wide uniqueness arbitration sees only that subset: locked rows
// have been accepted by the user and no longer contend for taxa.
func (m *Manager) Process(ctx context.Context, lines []string, opts ProcessOptions) []*Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logging.Get(logging.CategorySession)

	next := make([]*Row, 0, len(lines))
	for i, line := range lines {
		if i < len(m.rows) {
			prev := m.rows[i]
			if prev.Locked {
				next = append(next, prev.clone())
				continue
			}
			row := prev.clone()
			row.RawInput = line
			row.Result = nil
			next = append(next, row)
			continue
		}
		next = append(next, &Row{ID: uuid.New(), RawInput: line})
	}
	for i := len(lines); i < len(m.rows); i++ {
		if m.rows[i].Locked {
			next = append(next, m.rows[i].clone())
		}
	}

	var pending []*Row
	var pendingLines []string
	for _, row := range next {
		if row.Locked {
			continue
		}
		pending = append(pending, row)
		pendingLines = append(pendingLines, row.RawInput)
	}
	log.Info("processing batch: %d rows, %d unlocked", len(next), len(pending))

	if len(pending) > 0 {
		engine := m.engine
		if opts.Disambiguator != nil {
			engine = engine.WithDisambiguator(opts.Disambiguator)
		}
		results := engine.Resolve(ctx, pendingLines, matcher.Options{Location: opts.Location})
		for i, row := range pending {
			row.Result = results[i]
		}
	}

	m.rows = next
	return m.snapshot()
}

// ToggleLock flips the lock flag of the identified row and returns the
// new state. It has no other side effect.
func (m *Manager) ToggleLock(id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.find(id)
	if err != nil {
		return false, err
	}
	row.Locked = !row.Locked
	logging.Get(logging.CategorySession).Debug("row %s locked=%v", id, row.Locked)
	return row.Locked, nil
}

// Edit overrides the identified row's mapping with a user-supplied
// candidate and marks the row matched. The lock flag is left as-is:
// editing does not auto-lock.
func (m *Manager) Edit(id uuid.UUID, c *matcher.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.find(id)
	if err != nil {
		return err
	}
	c.Source = matcher.SourceManual
	row.Result = &matcher.Result{
		Raw:       row.RawInput,
		Query:     matcher.ParseLine(row.RawInput),
		Candidate: c,
		Status:    matcher.StatusMatched,
	}
	return nil
}

// Rows returns a point-in-time copy of the batch in row order.
func (m *Manager) Rows() []*Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// find must be called with the mutex held.
func (m *Manager) find(id uuid.UUID) (*Row, error) {
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, fmt.Errorf("no row with id %s", id)
}

// snapshot must be called with the mutex held.
func (m *Manager) snapshot() []*Row {
	out := make([]*Row, len(m.rows))
	for i, row := range m.rows {
		out[i] = row.clone()
	}
	return out
}
