package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Memory is an in-process Repository for tests and local runs.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]models.Row

	// Errors makes every query against the named table fail.
	Errors map[string]error
	// Calls counts queries per table.
	Calls map[string]int
	// Updates records every UpdateColumn call in order.
	Updates []Update
}

type Update struct {
	Table, ID, Column string
	Value             any
}

func NewMemory() *Memory {
	return &Memory{
		tables: map[string][]models.Row{},
		Errors: map[string]error{},
		Calls:  map[string]int{},
	}
}

// Insert appends rows to table.
func (m *Memory) Insert(table string, rows ...models.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], r.Clone())
	}
}

// Rows returns copies of every row in table.
func (m *Memory) Rows(table string) []models.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

func (m *Memory) begin(table string) error {
	m.Calls[table]++
	return m.Errors[table]
}

func matches(r models.Row, column, value string) bool {
	v := r.String(column)
	return v != "" && v == value
}

func (m *Memory) FindOne(_ context.Context, table, column, value string) (models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(table); err != nil {
		return nil, err
	}
	for _, r := range m.tables[table] {
		if matches(r, column, value) {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (m *Memory) FindMany(_ context.Context, table, column, value string) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(table); err != nil {
		return nil, err
	}
	var out []models.Row
	for _, r := range m.tables[table] {
		if matches(r, column, value) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *Memory) FindIn(_ context.Context, table, column string, values []string) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(table); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var out []models.Row
	for _, r := range m.tables[table] {
		if want[r.String(column)] {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *Memory) UpdateColumn(_ context.Context, table, id, column string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(table); err != nil {
		return err
	}
	for _, r := range m.tables[table] {
		if matches(r, models.ColID, id) {
			r[column] = value
			m.Updates = append(m.Updates, Update{Table: table, ID: id, Column: column, Value: value})
			return nil
		}
	}
	return fmt.Errorf("update %s.%s: no row with id %s", table, column, id)
}

func (m *Memory) ListPending(_ context.Context, table string, q PendingQuery) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(table); err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(q.Exclude))
	for _, id := range q.Exclude {
		skip[id] = true
	}
	var all []models.Row
	for _, r := range m.tables[table] {
		if skip[r.Key()] {
			continue
		}
		if q.IncludeLinked || r.String(models.ColPDFURL) == "" {
			all = append(all, r.Clone())
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].String(models.ColID) < all[j].String(models.ColID)
	})
	if q.Offset >= len(all) {
		return nil, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}
