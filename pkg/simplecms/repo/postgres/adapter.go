package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction. Begin on a transaction opens a savepoint.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Adapter implements simplecms.Adapter on PostgreSQL. Model and field names
// are checked against the storage models before they reach SQL.
type Adapter struct {
	db     DBTX
	models map[string]simplecms.ModelSchema
}

// New creates a PostgreSQL adapter for the engine's storage models.
func New(db DBTX) *Adapter {
	return NewWithModels(db, simplecms.StorageModels())
}

// NewWithPool creates a PostgreSQL adapter with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Adapter {
	return New(pool)
}

// NewWithModels creates a PostgreSQL adapter for the given models. Each model
// maps to a table of the same name.
func NewWithModels(db DBTX, models []simplecms.ModelSchema) *Adapter {
	a := &Adapter{db: db, models: make(map[string]simplecms.ModelSchema, len(models))}
	for _, m := range models {
		a.models[m.Name] = m
	}
	return a
}

func (a *Adapter) Create(ctx context.Context, model string, data simplecms.Record) (simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(data))
	for col := range data {
		if !hasField(m, col) {
			return nil, fmt.Errorf("unknown field %q on model %q", col, model)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		names[i] = ident(col)
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = toArg(data[col])
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		ident(model), strings.Join(names, ", "), strings.Join(marks, ", "))

	rec, err := a.queryOne(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("create "+model, err)
	}
	return rec, nil
}

func (a *Adapter) FindOne(ctx context.Context, model string, where []simplecms.Where) (simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	clause, args, err := buildWhere(m, where, nil)
	if err != nil {
		return nil, err
	}
	rec, err := a.queryOne(ctx, fmt.Sprintf("SELECT * FROM %s%s LIMIT 1", ident(model), clause), args...)
	if err != nil {
		return nil, handlePostgresError("find "+model, err)
	}
	return rec, nil
}

func (a *Adapter) FindMany(ctx context.Context, model string, q simplecms.FindManyQuery) ([]simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(m, q)
	if err != nil {
		return nil, err
	}
	recs, err := a.query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("find "+model, err)
	}
	for _, j := range q.Join {
		if err := a.attach(ctx, m, recs, j); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (a *Adapter) Count(ctx context.Context, model string, where []simplecms.Where) (int, error) {
	m, err := a.schema(model)
	if err != nil {
		return 0, err
	}
	clause, args, err := buildWhere(m, where, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	err = a.db.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM %s%s", ident(model), clause), args...).Scan(&n)
	if err != nil {
		return 0, handlePostgresError("count "+model, err)
	}
	return int(n), nil
}

func (a *Adapter) Update(ctx context.Context, model string, where []simplecms.Where, update simplecms.Record) (simplecms.Record, error) {
	m, err := a.schema(model)
	if err != nil {
		return nil, err
	}
	if len(update) == 0 {
		return a.FindOne(ctx, model, where)
	}
	cols := make([]string, 0, len(update))
	for col := range update {
		if !hasField(m, col) {
			return nil, fmt.Errorf("unknown field %q on model %q", col, model)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(where))
	for i, col := range cols {
		args = append(args, toArg(update[col]))
		sets[i] = fmt.Sprintf("%s = $%d", ident(col), len(args))
	}
	clause, args, err := buildWhere(m, where, args)
	if err != nil {
		return nil, err
	}
	table := ident(model)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE ctid = (SELECT ctid FROM %s%s LIMIT 1) RETURNING *",
		table, strings.Join(sets, ", "), table, clause)

	rec, err := a.queryOne(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("update "+model, err)
	}
	return rec, nil
}

func (a *Adapter) Delete(ctx context.Context, model string, where []simplecms.Where) error {
	m, err := a.schema(model)
	if err != nil {
		return err
	}
	clause, args, err := buildWhere(m, where, nil)
	if err != nil {
		return err
	}
	if _, err := a.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", ident(model), clause), args...); err != nil {
		return handlePostgresError("delete "+model, err)
	}
	return nil
}

// Transaction runs fn inside a database transaction. Nested calls open a
// savepoint.
func (a *Adapter) Transaction(ctx context.Context, fn func(ctx context.Context, tx simplecms.Adapter) error) error {
	return pgx.BeginFunc(ctx, a.db, func(tx pgx.Tx) error {
		return fn(ctx, &Adapter{db: tx, models: a.models})
	})
}

func (a *Adapter) schema(model string) (simplecms.ModelSchema, error) {
	m, ok := a.models[model]
	if !ok {
		return simplecms.ModelSchema{}, fmt.Errorf("unknown model %q", model)
	}
	return m, nil
}

func (a *Adapter) query(ctx context.Context, query string, args ...any) ([]simplecms.Record, error) {
	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	recs := make([]simplecms.Record, len(maps))
	for i, m := range maps {
		recs[i] = simplecms.Record(m)
	}
	return recs, nil
}

func (a *Adapter) queryOne(ctx context.Context, query string, args ...any) (simplecms.Record, error) {
	recs, err := a.query(ctx, query, args...)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// attach loads every joined record in one query and sets it under j.As.
func (a *Adapter) attach(ctx context.Context, m simplecms.ModelSchema, recs []simplecms.Record, j simplecms.Join) error {
	jm, err := a.schema(j.Model)
	if err != nil {
		return err
	}
	if !hasField(m, j.LocalField) || !hasField(jm, j.ForeignField) {
		return fmt.Errorf("invalid join %s.%s = %s.%s", m.Name, j.LocalField, j.Model, j.ForeignField)
	}

	seen := map[string]bool{}
	var keys []any
	for _, r := range recs {
		if v := r[j.LocalField]; v != nil {
			k := fmt.Sprint(v)
			if !seen[k] {
				seen[k] = true
				keys = append(keys, v)
			}
		}
	}
	byKey := map[string]simplecms.Record{}
	if len(keys) > 0 {
		joined, err := a.FindMany(ctx, j.Model, simplecms.FindManyQuery{Where: []simplecms.Where{simplecms.In(j.ForeignField, keys)}})
		if err != nil {
			return err
		}
		for _, r := range joined {
			byKey[fmt.Sprint(r[j.ForeignField])] = r
		}
	}
	for _, r := range recs {
		if jr, ok := byKey[fmt.Sprint(r[j.LocalField])]; ok {
			r[j.As] = jr
		} else {
			r[j.As] = nil
		}
	}
	return nil
}

var comparisons = map[simplecms.Operator]string{
	simplecms.OpEq:  "=",
	simplecms.OpNe:  "<>",
	simplecms.OpLt:  "<",
	simplecms.OpLte: "<=",
	simplecms.OpGt:  ">",
	simplecms.OpGte: ">=",
}

// buildWhere renders where as a " WHERE ..." clause, numbering placeholders
// after the arguments already in args.
func buildWhere(m simplecms.ModelSchema, where []simplecms.Where, args []any) (string, []any, error) {
	if len(where) == 0 {
		return "", args, nil
	}
	parts := make([]string, 0, len(where))
	for _, w := range where {
		if !hasField(m, w.Field) {
			return "", nil, fmt.Errorf("unknown field %q on model %q", w.Field, m.Name)
		}
		col := ident(w.Field)
		op := w.Operator
		if op == "" {
			op = simplecms.OpEq
		}

		if op == simplecms.OpIn {
			values, ok := w.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("operator in on %q needs a []any value", w.Field)
			}
			if len(values) == 0 {
				parts = append(parts, "FALSE")
				continue
			}
			marks := make([]string, len(values))
			for i, v := range values {
				args = append(args, toArg(v))
				marks[i] = fmt.Sprintf("$%d", len(args))
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
			continue
		}

		sqlOp, ok := comparisons[op]
		if !ok {
			return "", nil, fmt.Errorf("unsupported operator %q", op)
		}
		if w.Value == nil {
			switch op {
			case simplecms.OpEq:
				parts = append(parts, col+" IS NULL")
				continue
			case simplecms.OpNe:
				parts = append(parts, col+" IS NOT NULL")
				continue
			}
		}
		args = append(args, toArg(w.Value))
		parts = append(parts, fmt.Sprintf("%s %s $%d", col, sqlOp, len(args)))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func buildSelect(m simplecms.ModelSchema, q simplecms.FindManyQuery) (string, []any, error) {
	clause, args, err := buildWhere(m, q.Where, nil)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(ident(m.Name))
	b.WriteString(clause)
	if q.SortBy != nil {
		if !hasField(m, q.SortBy.Field) {
			return "", nil, fmt.Errorf("unknown sort field %q on model %q", q.SortBy.Field, m.Name)
		}
		dir := "ASC"
		if q.SortBy.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, %s %s", ident(q.SortBy.Field), dir, ident("id"), dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func hasField(m simplecms.ModelSchema, name string) bool {
	for _, f := range m.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// toArg stores ids as text.
func toArg(v any) any {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String()
	case *uuid.UUID:
		if x == nil {
			return nil
		}
		return x.String()
	}
	return v
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w: %s", operation, simplecms.ErrUniqueViolation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found (%s)", operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
