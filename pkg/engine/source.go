package engine

import (
	"context"
	"sort"
	"sync"
)

// Row is a single table row keyed by column name. Every row carries a
// patient_id.
type Row map[string]interface{}

// Source supplies the rows of a named table.
type Source interface {
	Rows(ctx context.Context, table string) ([]Row, error)
}

type MemorySource struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string][]Row)}
}

func (m *MemorySource) Add(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], rows...)
}

// Rows returns a copy of the table's rows. Unknown tables are empty.
func (m *MemorySource) Rows(ctx context.Context, table string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[table]
	out := make([]Row, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *MemorySource) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MemorySource) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}
