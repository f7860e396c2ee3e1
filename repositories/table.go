package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
)

type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Policy is the row-level security rule of a relation.
// It is evaluated for every row touched by an operation.
type Policy[T domain.Row] func(actor domain.Actor, op Op, row T) bool

type index[T domain.Row] struct {
	name   string
	unique bool
	value  func(T) string
}

// Table is one relation of the durable store, persisted in BadgerDB.
//
// Keys:
//   - row:{table}:{id}                                  the JSON row
//   - uniq:{table}:{name}:{value}                       id of the row owning value
//   - idx:{table}:{name}:{value}:{timestamp_padded}:{id} secondary index entry
//
// The 19-digit zero padded timestamp keeps index scans chronological, the
// id disambiguates rows created at the same nanosecond.
type Table[T domain.Row] struct {
	db      *badger.DB
	log     *slog.Logger
	name    string
	policy  Policy[T]
	feed    contract.Publisher
	indexes []index[T]
	redact  func(T) T
}

type TableOption[T domain.Row] func(*Table[T])

// WithUnique rejects a second row having the same value with ErrConstraint.
func WithUnique[T domain.Row](name string, value func(T) string) TableOption[T] {
	return func(t *Table[T]) {
		t.indexes = append(t.indexes, index[T]{name: name, unique: true, value: value})
	}
}

func WithIndex[T domain.Row](name string, value func(T) string) TableOption[T] {
	return func(t *Table[T]) {
		t.indexes = append(t.indexes, index[T]{name: name, value: value})
	}
}

// WithRedaction strips fields from rows before they are published on the
// change feed.
func WithRedaction[T domain.Row](redact func(T) T) TableOption[T] {
	return func(t *Table[T]) { t.redact = redact }
}

func NewTable[T domain.Row](db *badger.DB, log *slog.Logger, name string, policy Policy[T],
	feed contract.Publisher, opts ...TableOption[T]) *Table[T] {
	t := &Table[T]{db: db, log: log, name: name, policy: policy, feed: feed}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table[T]) Name() string { return t.name }

func (t *Table[T]) rowKey(id string) []byte {
	return []byte(fmt.Sprintf("row:%s:%s", t.name, id))
}

func (t *Table[T]) rowPrefix() []byte {
	return []byte(fmt.Sprintf("row:%s:", t.name))
}

func (t *Table[T]) indexPrefix(name, value string) []byte {
	return []byte(fmt.Sprintf("idx:%s:%s:%s:", t.name, name, value))
}

func (t *Table[T]) indexKey(ix index[T], row T) []byte {
	if ix.unique {
		return []byte(fmt.Sprintf("uniq:%s:%s:%s", t.name, ix.name, ix.value(row)))
	}
	return []byte(fmt.Sprintf("idx:%s:%s:%s:%019d:%s",
		t.name, ix.name, ix.value(row), row.RowCreatedAt().UnixNano(), row.RowID()))
}

func (t *Table[T]) allowed(ctx context.Context, op Op, row T) bool {
	actor := domain.ActorFromContext(ctx)
	if actor.Role == domain.RoleSystem {
		return true
	}
	if actor.UserID == "" {
		return false
	}
	return t.policy == nil || t.policy(actor, op, row)
}

// Insert stores a new row. The id must be unused, unique indexes must be free.
func (t *Table[T]) Insert(ctx context.Context, row T) (T, error) {
	var zero T
	if !t.allowed(ctx, OpInsert, row) {
		return zero, t.fail(ctx, OpInsert, errors.ErrPermissionDenied)
	}
	data, err := json.Marshal(row)
	if err != nil {
		return zero, t.fail(ctx, OpInsert, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
	}

	err = t.db.Update(func(txn *badger.Txn) error {
		if err := t.mustBeAbsent(txn, t.rowKey(row.RowID())); err != nil {
			return err
		}
		for _, ix := range t.indexes {
			if !ix.unique {
				continue
			}
			if err := t.mustBeAbsent(txn, t.indexKey(ix, row)); err != nil {
				return fmt.Errorf("%s already used: %w", ix.name, err)
			}
		}
		if err := txn.Set(t.rowKey(row.RowID()), data); err != nil {
			return err
		}
		return t.writeIndexes(txn, row)
	})
	if err != nil {
		return zero, t.fail(ctx, OpInsert, err)
	}

	t.emit(domain.EventInsert, row.RowID(), &row, nil)
	return row, nil
}

// Update applies mutate to the stored row. When mutate reports no change
// nothing is written and no change event is emitted, which makes repeated
// updates idempotent. The policy must accept both the old and the new row.
func (t *Table[T]) Update(ctx context.Context, id string, mutate func(row *T) bool) (T, error) {
	var zero, old, updated T
	changed := false

	err := t.db.Update(func(txn *badger.Txn) error {
		var err error
		if old, err = t.read(txn, id); err != nil {
			return err
		}
		if !t.allowed(ctx, OpUpdate, old) {
			return errors.ErrPermissionDenied
		}
		// Decode a second copy so mutate never aliases slices of old
		if updated, err = t.read(txn, id); err != nil {
			return err
		}
		if changed = mutate(&updated); !changed {
			return nil
		}
		if updated.RowID() != id {
			return fmt.Errorf("%w: primary key is immutable", errors.ErrConstraint)
		}
		if !t.allowed(ctx, OpUpdate, updated) {
			return errors.ErrPermissionDenied
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		if err = t.deleteIndexes(txn, old); err != nil {
			return err
		}
		for _, ix := range t.indexes {
			if ix.unique && ix.value(old) != ix.value(updated) {
				if err := t.mustBeAbsent(txn, t.indexKey(ix, updated)); err != nil {
					return fmt.Errorf("%s already used: %w", ix.name, err)
				}
			}
		}
		if err = txn.Set(t.rowKey(id), data); err != nil {
			return err
		}
		return t.writeIndexes(txn, updated)
	})
	if err != nil {
		return zero, t.fail(ctx, OpUpdate, err)
	}
	if changed {
		t.emit(domain.EventUpdate, id, &updated, &old)
	}
	return updated, nil
}

// Delete removes a row. Deleting a missing row is not an error, as with a
// DELETE matching zero rows.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	var old T
	found := false
	err := t.db.Update(func(txn *badger.Txn) error {
		var err error
		old, err = t.read(txn, id)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !t.allowed(ctx, OpDelete, old) {
			return errors.ErrPermissionDenied
		}
		found = true
		if err = t.deleteIndexes(txn, old); err != nil {
			return err
		}
		return txn.Delete(t.rowKey(id))
	})
	if err != nil {
		return t.fail(ctx, OpDelete, err)
	}
	if found {
		t.emit(domain.EventDelete, id, nil, &old)
	}
	return nil
}

// Get returns the row with id. A row hidden by the policy is reported as
// not found, the way row-level security hides it.
func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	var row T
	err := t.db.View(func(txn *badger.Txn) error {
		var err error
		row, err = t.read(txn, id)
		return err
	})
	if err == nil && !t.allowed(ctx, OpSelect, row) {
		err = errors.ErrNotFound
	}
	if err != nil {
		var zero T
		return zero, t.fail(ctx, OpSelect, err)
	}
	return row, nil
}

// GetUnique resolves a row through a unique index.
func (t *Table[T]) GetUnique(ctx context.Context, name, value string) (T, error) {
	var id string
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf("uniq:%s:%s:%s", t.name, name, value)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		var zero T
		return zero, t.fail(ctx, OpSelect, err)
	}
	return t.Get(ctx, id)
}

// Select scans the relation, rows hidden by the policy are skipped.
func (t *Table[T]) Select(ctx context.Context, q Query) ([]T, error) {
	return t.scan(ctx, t.rowPrefix(), false, q)
}

// SelectIndex scans only the rows whose index name has value.
func (t *Table[T]) SelectIndex(ctx context.Context, name, value string, q Query) ([]T, error) {
	return t.scan(ctx, t.indexPrefix(name, value), true, q)
}

func (t *Table[T]) scan(ctx context.Context, prefix []byte, viaIndex bool, q Query) ([]T, error) {
	var rows []T
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = !viaIndex
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var raw []byte
			var err error
			if viaIndex {
				key := string(it.Item().Key())
				id := key[strings.LastIndex(key, ":")+1:]
				raw, err = t.readRaw(txn, id)
				if stderrors.Is(err, badger.ErrKeyNotFound) {
					t.log.Warn("Dangling index entry", "relation", t.name, "key", key)
					continue
				}
			} else {
				raw, err = it.Item().ValueCopy(nil)
			}
			if err != nil {
				return err
			}
			row, keep, err := t.decode(raw, q)
			if err != nil {
				return err
			}
			if keep && t.allowed(ctx, OpSelect, row) {
				rows = append(rows, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, t.fail(ctx, OpSelect, err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.desc {
			return rows[i].RowCreatedAt().After(rows[j].RowCreatedAt())
		}
		return rows[i].RowCreatedAt().Before(rows[j].RowCreatedAt())
	})
	if q.limit > 0 && len(rows) > q.limit {
		rows = rows[:q.limit]
	}
	return rows, nil
}

func (t *Table[T]) decode(raw []byte, q Query) (T, bool, error) {
	var row T
	if len(q.filters) > 0 {
		var columns map[string]any
		if err := json.Unmarshal(raw, &columns); err != nil {
			return row, false, err
		}
		if !q.matches(columns) {
			return row, false, nil
		}
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, false, err
	}
	return row, true, nil
}

func (t *Table[T]) read(txn *badger.Txn, id string) (T, error) {
	var row T
	raw, err := t.readRaw(txn, id)
	if err != nil {
		return row, err
	}
	err = json.Unmarshal(raw, &row)
	return row, err
}

func (t *Table[T]) readRaw(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(t.rowKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Table[T]) mustBeAbsent(txn *badger.Txn, key []byte) error {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return errors.ErrConstraint
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return nil
	default:
		return err
	}
}

func (t *Table[T]) writeIndexes(txn *badger.Txn, row T) error {
	for _, ix := range t.indexes {
		var value []byte
		if ix.unique {
			value = []byte(row.RowID())
		}
		if err := txn.Set(t.indexKey(ix, row), value); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[T]) deleteIndexes(txn *badger.Txn, row T) error {
	for _, ix := range t.indexes {
		if err := txn.Delete(t.indexKey(ix, row)); err != nil {
			return err
		}
	}
	return nil
}

// emit publishes the change event. The feed is best effort: a failure is
// logged and never reaches the caller, the row is already committed.
func (t *Table[T]) emit(eventType domain.EventType, id string, newRow, oldRow *T) {
	if t.feed == nil {
		return
	}
	evt := domain.ChangeEvent{Table: t.name, EventType: eventType, ID: id, At: time.Now().UTC()}
	var err error
	if evt.New, err = t.marshalForFeed(newRow); err == nil {
		evt.Old, err = t.marshalForFeed(oldRow)
	}
	if err != nil {
		t.log.Warn("Change event serialization failed", "relation", t.name, "id", id, "error", err)
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		t.log.Warn("Change event serialization failed", "relation", t.name, "id", id, "error", err)
		return
	}
	if !t.feed.Publish(domain.ChangeChannel(t.name), string(payload)) {
		t.log.Warn("Change event not published", "relation", t.name, "id", id)
	}
}

func (t *Table[T]) marshalForFeed(row *T) (json.RawMessage, error) {
	if row == nil {
		return nil, nil
	}
	value := *row
	if t.redact != nil {
		value = t.redact(value)
	}
	return json.Marshal(value)
}

// fail wraps err into a StoreError and logs it with the operation and relation.
func (t *Table[T]) fail(ctx context.Context, op Op, err error) error {
	kind := errors.KindUnavailable
	switch {
	case stderrors.Is(err, errors.ErrPermissionDenied):
		kind = errors.KindPermission
	case stderrors.Is(err, errors.ErrConstraint):
		kind = errors.KindConstraint
	case stderrors.Is(err, errors.ErrNotFound), stderrors.Is(err, badger.ErrKeyNotFound):
		kind = errors.KindNotFound
	}
	storeErr := &errors.StoreError{Op: string(op), Relation: t.name, Kind: kind, Err: err}
	actor := domain.ActorFromContext(ctx)
	if kind == errors.KindNotFound {
		t.log.Debug("Row not found", "op", op, "relation", t.name, "actor", actor.UserID)
	} else {
		t.log.Error("Durable store operation failed",
			"op", op, "relation", t.name, "kind", kind.String(), "actor", actor.UserID, "error", err)
	}
	return storeErr
}

// Query holds column predicates, ordering and limit of a Select.
type Query struct {
	filters []filter
	desc    bool
	limit   int
}

type filter struct {
	column string
	values []string
}

func NewQuery() Query { return Query{} }

// Eq keeps rows whose column equals value.
func (q Query) Eq(column string, value any) Query {
	q.filters = append(append([]filter(nil), q.filters...), filter{column: column, values: []string{fmt.Sprint(value)}})
	return q
}

// In keeps rows whose column is one of values.
func (q Query) In(column string, values ...any) Query {
	q.filters = append(append([]filter(nil), q.filters...), filter{
		column: column,
		values: lo.Map(values, func(v any, _ int) string { return fmt.Sprint(v) }),
	})
	return q
}

// OrderByCreated sorts on the creation timestamp, ascending by default.
func (q Query) OrderByCreated(desc bool) Query {
	q.desc = desc
	return q
}

func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

func (q Query) matches(columns map[string]any) bool {
	for _, f := range q.filters {
		value, ok := columns[f.column]
		if !ok || !lo.Contains(f.values, fmt.Sprint(value)) {
			return false
		}
	}
	return true
}
