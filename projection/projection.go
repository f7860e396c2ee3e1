// Package projection keeps local copies of store rows so callers can reflect
// a mutation without refetching. Rows come only from store responses, the
// projection never guesses a row. It is dropped wholesale when a change
// event conflicts with what it holds.
package projection

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"client-portal/contract"
	"client-portal/domain"
)

type Projection[T domain.Row] struct {
	mu     sync.RWMutex
	log    *slog.Logger
	table  string
	rows   map[string]T
	loaded map[string]struct{}
	// generation moves on every invalidation.
	generation uint64
}

func New[T domain.Row](log *slog.Logger, table string) *Projection[T] {
	return &Projection[T]{log: log, table: table, rows: make(map[string]T), loaded: make(map[string]struct{})}
}

// Apply stores the row returned by a store call.
func (p *Projection[T]) Apply(row T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows[row.RowID()] = row
}

func (p *Projection[T]) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rows, id)
}

func (p *Projection[T]) Get(id string) (T, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	row, ok := p.rows[id]
	return row, ok
}

// List returns the projected rows, oldest first.
func (p *Projection[T]) List() []T {
	p.mu.RLock()
	rows := p.snapshot()
	p.mu.RUnlock()
	Sort(rows)
	return rows
}

// ListLoaded returns every projected row, oldest first, only when scope is
// loaded. Both are read under one lock, so an invalidation cannot empty the
// rows between the check and the read.
func (p *Projection[T]) ListLoaded(scope string) ([]T, bool) {
	p.mu.RLock()
	if _, ok := p.loaded[scope]; !ok {
		p.mu.RUnlock()
		return nil, false
	}
	rows := p.snapshot()
	p.mu.RUnlock()
	Sort(rows)
	return rows, true
}

func (p *Projection[T]) snapshot() []T {
	rows := make([]T, 0, len(p.rows))
	for _, row := range p.rows {
		rows = append(rows, row)
	}
	return rows
}

// Sort orders rows oldest first, ties broken by id.
func Sort[T domain.Row](rows []T) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RowCreatedAt().Equal(rows[j].RowCreatedAt()) {
			return rows[i].RowID() < rows[j].RowID()
		}
		return rows[i].RowCreatedAt().Before(rows[j].RowCreatedAt())
	})
}

func (p *Projection[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rows)
}

func (p *Projection[T]) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rows) > 0 {
		p.log.Debug("Projection invalidated", "relation", p.table, "rows", len(p.rows))
	}
	p.rows = make(map[string]T)
	p.loaded = make(map[string]struct{})
	p.generation++
}

// Generation is read before selecting the rows handed to Load.
func (p *Projection[T]) Generation() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation
}

// Load replaces the rows of scope with a complete store response, e.g. every
// deliverable of one project, selected at generation gen. Rows selected
// before an invalidation are stale and rejected, Load then returns false.
// Until the next invalidation Loaded(scope) holds.
func (p *Projection[T]) Load(scope string, rows []T, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		p.log.Debug("Stale projection load rejected", "relation", p.table, "scope", scope)
		return false
	}
	for _, row := range rows {
		p.rows[row.RowID()] = row
	}
	p.loaded[scope] = struct{}{}
	return true
}

func (p *Projection[T]) Loaded(scope string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.loaded[scope]
	return ok
}

// Consume drops the projection when evt conflicts with it: any insert, or an
// update or delete of a projected row. Events of other relations are ignored.
func (p *Projection[T]) Consume(evt domain.ChangeEvent) {
	if evt.Table != p.table {
		return
	}
	if evt.EventType == domain.EventInsert {
		p.Invalidate()
		return
	}
	if _, known := p.Get(evt.ID); known {
		p.Invalidate()
	}
}

// Attach keeps the projection consistent with the change feed of its
// relation until the returned subscription is cancelled.
func (p *Projection[T]) Attach(broker contract.Broker) contract.Subscription {
	return broker.Subscribe(domain.ChangeChannel(p.table), func(message string) {
		var evt domain.ChangeEvent
		if err := json.Unmarshal([]byte(message), &evt); err != nil {
			p.log.Warn("Dropping malformed change event", "relation", p.table, "error", err)
			p.Invalidate()
			return
		}
		p.Consume(evt)
	})
}
