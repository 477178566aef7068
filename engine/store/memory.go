package store

import (
	"context"
	"maps"
	"sync"

	"github.com/veicheck/veicheck/engine/domain"
)

// Memory is an in-process store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	index   map[domain.Kind]map[string]string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]domain.Record),
		index: map[domain.Kind]map[string]string{
			domain.KindChassis: {},
			domain.KindPlate:   {},
			domain.KindRenavam: {},
		},
	}
}

func (m *Memory) FindByIdentifier(_ context.Context, kind domain.Kind, value string) (domain.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.index[kind][value]
	if !ok {
		return domain.Record{}, false, nil
	}
	return clone(m.records[id]), true, nil
}

func (m *Memory) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := assignID(ctx, lockedMemory{m}, rec)
	if err != nil {
		return domain.Record{}, err
	}
	if old, ok := m.records[rec.ID]; ok {
		for k, v := range old.Identifiers() {
			if m.index[k][v] == rec.ID {
				delete(m.index[k], v)
			}
		}
	}
	rec = clone(rec)
	m.records[rec.ID] = rec
	for k, v := range rec.Identifiers() {
		m.index[k][v] = rec.ID
	}
	return clone(rec), nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// lockedMemory reads m while the caller holds its lock.
type lockedMemory struct{ m *Memory }

func (l lockedMemory) FindByIdentifier(_ context.Context, kind domain.Kind, value string) (domain.Record, bool, error) {
	id, ok := l.m.index[kind][value]
	if !ok {
		return domain.Record{}, false, nil
	}
	return l.m.records[id], true, nil
}

func clone(r domain.Record) domain.Record {
	r.Extra = maps.Clone(r.Extra)
	return r
}
