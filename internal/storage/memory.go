package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Collection with Qdrant's upsert and scroll
// semantics. Points are ordered by id, like Qdrant orders UUID points.
type MemoryStore struct {
	mu     sync.Mutex
	units  map[string]*Unit
	writes int

	// Hooks to simulate store failures; nil means healthy.
	CountErr  error
	ScrollErr error
	AddErr    error
}

var _ Collection = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: make(map[string]*Unit)}
}

// AddUnits upserts copies of units keyed by ids.
func (m *MemoryStore) AddUnits(ctx context.Context, units []*Unit, ids []string) error {
	if len(units) != len(ids) {
		return fmt.Errorf("%w: %d units, %d ids", ErrLengthMismatch, len(units), len(ids))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AddErr != nil {
		return m.AddErr
	}
	for i, u := range units {
		cp := *u
		cp.ID = ids[i]
		m.units[ids[i]] = &cp
	}
	m.writes++
	return nil
}

// Count returns the number of units matching filter.
func (m *MemoryStore) Count(ctx context.Context, filter Filter) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	var n uint64
	for _, u := range m.units {
		if filter.Matches(u) {
			n++
		}
	}
	return n, nil
}

// Scroll returns matching units in id order starting at offset (inclusive).
func (m *MemoryStore) Scroll(ctx context.Context, filter Filter, limit uint32, offset string) ([]*Unit, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScrollErr != nil {
		return nil, "", m.ScrollErr
	}

	var matched []*Unit
	for _, u := range m.units {
		if filter.Matches(u) && u.ID >= offset {
			cp := *u
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if uint32(len(matched)) > limit {
		return matched[:limit], matched[limit].ID, nil
	}
	return matched, "", nil
}

// Len returns the number of stored units.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units)
}

// Writes returns how many AddUnits calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Get returns a copy of the unit stored under id.
func (m *MemoryStore) Get(id string) (*Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}
