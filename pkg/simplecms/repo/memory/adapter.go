package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Adapter implements simplecms.Adapter using in-memory storage. It enforces
// the unique constraints and cascading references of its models.
type Adapter struct {
	mu     sync.RWMutex
	models map[string]simplecms.ModelSchema
	tables map[string][]simplecms.Record
}

// New creates an in-memory adapter for the engine's storage models.
func New() *Adapter {
	return NewWithModels(simplecms.StorageModels())
}

// NewWithModels creates an in-memory adapter for the given models.
func NewWithModels(models []simplecms.ModelSchema) *Adapter {
	a := &Adapter{
		models: make(map[string]simplecms.ModelSchema, len(models)),
		tables: make(map[string][]simplecms.Record, len(models)),
	}
	for _, m := range models {
		a.models[m.Name] = m
		a.tables[m.Name] = nil
	}
	return a
}

func (a *Adapter) Create(ctx context.Context, model string, data simplecms.Record) (simplecms.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.create(model, data)
}

func (a *Adapter) FindOne(ctx context.Context, model string, where []simplecms.Where) (simplecms.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findOne(model, where)
}

func (a *Adapter) FindMany(ctx context.Context, model string, q simplecms.FindManyQuery) ([]simplecms.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.findMany(model, q)
}

func (a *Adapter) Count(ctx context.Context, model string, where []simplecms.Where) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count(model, where)
}

func (a *Adapter) Update(ctx context.Context, model string, where []simplecms.Where, update simplecms.Record) (simplecms.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.update(model, where, update)
}

func (a *Adapter) Delete(ctx context.Context, model string, where []simplecms.Where) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delete(model, where)
}

// Transaction holds the write lock for the duration of fn, so other callers
// never observe partial writes. fn must use the adapter it is given; calling
// the outer adapter from fn deadlocks.
func (a *Adapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx simplecms.Adapter) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.snapshot()
	if err := fn(ctx, &txAdapter{a: a}); err != nil {
		a.tables = snapshot
		return err
	}
	return nil
}

func (a *Adapter) snapshot() map[string][]simplecms.Record {
	out := make(map[string][]simplecms.Record, len(a.tables))
	for name, rows := range a.tables {
		cp := make([]simplecms.Record, len(rows))
		for i, row := range rows {
			cp[i] = copyRecord(row)
		}
		out[name] = cp
	}
	return out
}

// txAdapter runs against the parent's tables while the parent lock is held.
type txAdapter struct {
	a *Adapter
}

func (t *txAdapter) Create(ctx context.Context, model string, data simplecms.Record) (simplecms.Record, error) {
	return t.a.create(model, data)
}

func (t *txAdapter) FindOne(ctx context.Context, model string, where []simplecms.Where) (simplecms.Record, error) {
	return t.a.findOne(model, where)
}

func (t *txAdapter) FindMany(ctx context.Context, model string, q simplecms.FindManyQuery) ([]simplecms.Record, error) {
	return t.a.findMany(model, q)
}

func (t *txAdapter) Count(ctx context.Context, model string, where []simplecms.Where) (int, error) {
	return t.a.count(model, where)
}

func (t *txAdapter) Update(ctx context.Context, model string, where []simplecms.Where, update simplecms.Record) (simplecms.Record, error) {
	return t.a.update(model, where, update)
}

func (t *txAdapter) Delete(ctx context.Context, model string, where []simplecms.Where) error {
	return t.a.delete(model, where)
}

// Transaction joins the enclosing transaction.
func (t *txAdapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx simplecms.Adapter) error) error {
	return fn(ctx, t)
}

// Unlocked operations. Callers hold a.mu.

func (a *Adapter) schema(model string) (simplecms.ModelSchema, error) {
	m, ok := a.models[model]
	if !ok {
		return simplecms.ModelSchema{}, fmt.Errorf("unknown model %q", model)
	}
	return m, nil
}

func (a *Adapter) create(model string, data simplecms.Record) (simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	row := make(simplecms.Record, len(m.Fields))
	for _, f := range m.Fields {
		row[f] = nil
	}
	for k, v := range data {
		if !hasField(m, k) {
			return nil, fmt.Errorf("model %q has no field %q", model, k)
		}
		row[k] = normalizeValue(v)
	}
	if err := a.checkUnique(m, row, -1); err != nil {
		return nil, err
	}
	a.tables[model] = append(a.tables[model], row)
	return copyRecord(row), nil
}

func (a *Adapter) findOne(model string, where []simplecms.Where) (simplecms.Record, error) {
	if _, err := a.schema(model); err != nil {
		return nil, err
	}
	for _, row := range a.tables[model] {
		ok, err := matches(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			return copyRecord(row), nil
		}
	}
	return nil, nil
}

func (a *Adapter) filter(model string, where []simplecms.Where) ([]simplecms.Record, error) {
	if _, err := a.schema(model); err != nil {
		return nil, err
	}
	var out []simplecms.Record
	for _, row := range a.tables[model] {
		ok, err := matches(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (a *Adapter) findMany(model string, q simplecms.FindManyQuery) ([]simplecms.Record, error) {
	rows, err := a.filter(model, q.Where)
	if err != nil {
		return nil, err
	}
	if q.SortBy != nil {
		field, desc := q.SortBy.Field, q.SortBy.Desc
		sort.SliceStable(rows, func(i, j int) bool {
			c := compareSort(rows[i][field], rows[j][field])
			if c == 0 && field != "id" {
				c = compareSort(rows[i]["id"], rows[j]["id"])
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]simplecms.Record, 0, len(rows))
	for _, row := range rows {
		rec := copyRecord(row)
		for _, j := range q.Join {
			joined, err := a.findOne(j.Model, []simplecms.Where{simplecms.Eq(j.ForeignField, row[j.LocalField])})
			if err != nil {
				return nil, err
			}
			rec[j.As] = joined
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *Adapter) count(model string, where []simplecms.Where) (int, error) {
	rows, err := a.filter(model, where)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (a *Adapter) update(model string, where []simplecms.Where, update simplecms.Record) (simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	for i, row := range a.tables[model] {
		ok, err := matches(row, where)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		next := copyRecord(row)
		for k, v := range update {
			if !hasField(m, k) {
				return nil, fmt.Errorf("model %q has no field %q", model, k)
			}
			next[k] = normalizeValue(v)
		}
		if err := a.checkUnique(m, next, i); err != nil {
			return nil, err
		}
		a.tables[model][i] = next
		return copyRecord(next), nil
	}
	return nil, nil
}

func (a *Adapter) delete(model string, where []simplecms.Where) error {
	if _, err := a.schema(model); err != nil {
		return err
	}
	var kept []simplecms.Record
	var removed []any
	for _, row := range a.tables[model] {
		ok, err := matches(row, where)
		if err != nil {
			return err
		}
		if ok {
			removed = append(removed, row["id"])
			continue
		}
		kept = append(kept, row)
	}
	a.tables[model] = kept
	if len(removed) == 0 {
		return nil
	}

	for _, other := range a.models {
		for _, ref := range other.References {
			if ref.Model != model || !ref.Cascade {
				continue
			}
			if err := a.delete(other.Name, []simplecms.Where{simplecms.In(ref.Field, removed)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) checkUnique(m simplecms.ModelSchema, row simplecms.Record, self int) error {
	for _, cols := range m.Unique {
		for i, other := range a.tables[m.Name] {
			if i == self {
				continue
			}
			if sameKey(row, other, cols) {
				return fmt.Errorf("%w: %s(%s)", simplecms.ErrUniqueViolation, m.Name, strings.Join(cols, ", "))
			}
		}
	}
	return nil
}

// sameKey reports whether a and b agree on every column. Null never collides.
func sameKey(a, b simplecms.Record, cols []string) bool {
	for _, c := range cols {
		if a[c] == nil || b[c] == nil {
			return false
		}
		if cmp, ok := compareValues(a[c], b[c]); !ok || cmp != 0 {
			return false
		}
	}
	return true
}

func matches(row simplecms.Record, where []simplecms.Where) (bool, error) {
	for _, w := range where {
		ok, err := matchOne(row[w.Field], w)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOne(v any, w simplecms.Where) (bool, error) {
	op := w.Operator
	if op == "" {
		op = simplecms.OpEq
	}
	want := normalizeValue(w.Value)

	switch op {
	case simplecms.OpIn:
		values, ok := w.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator in on %q requires []any, got %T", w.Field, w.Value)
		}
		for _, candidate := range values {
			if equalValues(v, normalizeValue(candidate)) {
				return true, nil
			}
		}
		return false, nil
	case simplecms.OpEq:
		return equalValues(v, want), nil
	case simplecms.OpNe:
		return !equalValues(v, want), nil
	}

	if v == nil || want == nil {
		return false, nil
	}
	c, ok := compareValues(v, want)
	if !ok {
		return false, nil
	}
	switch op {
	case simplecms.OpLt:
		return c < 0, nil
	case simplecms.OpLte:
		return c <= 0, nil
	case simplecms.OpGt:
		return c > 0, nil
	case simplecms.OpGte:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compareValues(a, b)
	return ok && c == 0
}

// compareValues orders two non-nil values of compatible kinds.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok || av == bv {
			return 0, ok
		}
		if !av {
			return -1, true
		}
		return 1, true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

// compareSort orders nulls first.
func compareSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// normalizeValue stores ids and other Stringers as their text form.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, time.Time, bool, int, int32, int64, float32, float64:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func hasField(m simplecms.ModelSchema, name string) bool {
	if len(m.Fields) == 0 {
		return true
	}
	for _, f := range m.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func copyRecord(r simplecms.Record) simplecms.Record {
	if r == nil {
		return nil
	}
	out := make(simplecms.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
