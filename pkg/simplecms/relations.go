package simplecms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

// newEntryKey marks a relation entry requesting inline creation of its target.
const newEntryKey = "_new"

// resolveRelations replaces every inline-creation entry in data with a
// reference to a freshly created target. Targets are created through the full
// create path of their type and are not rolled back if the parent write
// fails later.
func (s *service) resolveRelations(ctx context.Context, op string, sct *SerializedContentType, data map[string]any) (map[string]any, error) {
	var violations []schema.Violation
	for _, name := range sortedKeys(sct.Schema.RelationFields()) {
		field := sct.Schema.Properties[name]
		value, ok := data[name]
		if !ok || value == nil {
			continue
		}

		if !field.Relation.Type.IsMany() {
			resolved, vs, err := s.resolveEntry(ctx, op, field.Relation, name, value)
			if err != nil {
				return nil, err
			}
			violations = append(violations, vs...)
			data[name] = resolved
			continue
		}

		entries, ok := value.([]any)
		if !ok {
			continue // reported by the validator
		}
		out := make([]any, len(entries))
		for i, entry := range entries {
			resolved, vs, err := s.resolveEntry(ctx, op, field.Relation, fmt.Sprintf("%s[%d]", name, i), entry)
			if err != nil {
				return nil, err
			}
			violations = append(violations, vs...)
			out[i] = resolved
		}
		data[name] = out
	}
	if len(violations) > 0 {
		return nil, validationFailed(op, violations)
	}
	return data, nil
}

func (s *service) resolveEntry(ctx context.Context, op string, rel *schema.Relation, path string, entry any) (any, []schema.Violation, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return entry, nil, nil
	}
	if isNew, _ := m[newEntryKey].(bool); !isNew {
		return entry, nil, nil
	}
	if !rel.Creatable {
		return entry, []schema.Violation{{Path: path, Message: "inline creation is not allowed for this relation"}}, nil
	}

	target, err := s.registry.ContentTypeBySlug(ctx, rel.TargetType)
	if err != nil {
		return nil, nil, err
	}
	var targetData map[string]any
	switch d := m["data"].(type) {
	case map[string]any:
		targetData = d
	case nil:
		targetData = map[string]any{}
	default:
		return entry, []schema.Violation{{Path: path + ".data", Message: "expected object"}}, nil
	}

	slug, err := s.inlineSlug(ctx, op, target, rel, targetData)
	if err != nil {
		return nil, nil, err
	}
	created, err := s.create(ctx, target, slug, targetData, "")
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Kind == KindValidationFailed {
			nested := make([]schema.Violation, 0, len(e.Violations))
			for _, v := range e.Violations {
				nested = append(nested, schema.Violation{Path: joinViolationPath(path+".data", v.Path), Message: v.Message})
			}
			return entry, nested, nil
		}
		return nil, nil, err
	}
	return map[string]any{"id": created.ID.String()}, nil, nil
}

// inlineSlug picks a slug for an inline-created target: data.slug, then the
// display field, then title or name. A short random suffix is added on
// collision or when nothing usable exists.
func (s *service) inlineSlug(ctx context.Context, op string, target *SerializedContentType, rel *schema.Relation, data map[string]any) (string, error) {
	candidates := []string{"slug"}
	if rel.DisplayField != "" {
		candidates = append(candidates, rel.DisplayField)
	}
	candidates = append(candidates, "title", "name")

	base := ""
	for _, key := range candidates {
		if v, ok := data[key].(string); ok {
			if base = NormalizeSlug(v); base != "" {
				break
			}
		}
	}
	if base == "" {
		return target.Slug + "-" + shortSuffix(), nil
	}
	taken, err := s.slugTaken(ctx, op, target, base)
	if err != nil {
		return "", err
	}
	if taken {
		return base + "-" + shortSuffix(), nil
	}
	return base, nil
}

func shortSuffix() string {
	return uuid.New().String()[:8]
}

// relationTargets collects the distinct target ids of every declared
// relation field. Absent fields map to no targets. Each id must name an
// existing item of the field's target type.
func (s *service) relationTargets(ctx context.Context, op string, sct *SerializedContentType, data map[string]any) (map[string][]uuid.UUID, error) {
	fields := sct.Schema.RelationFields()
	targets := make(map[string][]uuid.UUID, len(fields))
	var violations []schema.Violation

	for _, name := range sortedKeys(fields) {
		rel := fields[name].Relation
		var entries []any
		var paths []string
		switch v := data[name].(type) {
		case nil:
		case []any:
			entries = v
			for i := range v {
				paths = append(paths, fmt.Sprintf("%s[%d]", name, i))
			}
		default:
			entries = []any{v}
			paths = []string{name}
		}

		seen := make(map[uuid.UUID]bool, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		idPaths := make(map[uuid.UUID]string, len(entries))
		for i, entry := range entries {
			m, _ := entry.(map[string]any)
			raw, _ := m["id"].(string)
			id, err := uuid.Parse(raw)
			if err != nil {
				violations = append(violations, schema.Violation{Path: paths[i], Message: "reference id must be a UUID"})
				continue
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			idPaths[id] = paths[i]
		}
		targets[name] = ids
		if len(ids) == 0 {
			continue
		}

		missing, err := s.missingTargets(ctx, op, rel.TargetType, ids)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			violations = append(violations, schema.Violation{
				Path:    idPaths[id],
				Message: fmt.Sprintf("no %s item with id %s", rel.TargetType, id),
			})
		}
	}
	if len(violations) > 0 {
		return nil, validationFailed(op, violations)
	}
	return targets, nil
}

// missingTargets returns the ids that are not items of targetType.
func (s *service) missingTargets(ctx context.Context, op, targetType string, ids []uuid.UUID) ([]uuid.UUID, error) {
	target, err := s.registry.ContentTypeBySlug(ctx, targetType)
	if err != nil {
		return nil, err
	}
	recs, err := s.adapter.FindMany(ctx, ModelContentItem, FindManyQuery{Where: []Where{
		In("id", uuidValues(ids)),
		Eq("content_type_id", target.ID.String()),
	}})
	if err != nil {
		return nil, internal(op, err)
	}
	found := make(map[string]bool, len(recs))
	for _, rec := range recs {
		found[recordString(rec, "id")] = true
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if !found[id.String()] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// replaceEdges rewrites the edge set of source for every field in targets.
// Edges of one field get increasing created_at values, a microsecond apart,
// so reads return them in payload order.
func (s *service) replaceEdges(ctx context.Context, tx Adapter, source uuid.UUID, now time.Time, targets map[string][]uuid.UUID) error {
	for _, field := range sortedKeys(targets) {
		if err := tx.Delete(ctx, ModelContentRelation, []Where{
			Eq("source_id", source.String()),
			Eq("field_name", field),
		}); err != nil {
			return fmt.Errorf("clear %s edges: %w", field, err)
		}
		for i, target := range targets[field] {
			if _, err := tx.Create(ctx, ModelContentRelation, Record{
				"id":         uuid.New().String(),
				"source_id":  source.String(),
				"target_id":  target.String(),
				"field_name": field,
				"created_at": now.Add(time.Duration(i) * time.Microsecond),
			}); err != nil {
				return fmt.Errorf("create %s edge: %w", field, err)
			}
		}
	}
	return nil
}

func (s *service) GetPopulated(ctx context.Context, typeSlug string, id uuid.UUID) (*Item, error) {
	const op = "get_populated"
	hctx := s.hookContext(ctx, typeSlug)

	item, err := s.populated(ctx, op, typeSlug, id)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return item, nil
}

func (s *service) populated(ctx context.Context, op, typeSlug string, id uuid.UUID) (*Item, error) {
	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, err
	}
	item, err := s.loadOwned(ctx, op, sct, id)
	if err != nil {
		return nil, err
	}

	fields := sct.Schema.RelationFields()
	item.Relations = make(map[string][]*PopulatedItem, len(fields))
	for name := range fields {
		item.Relations[name] = []*PopulatedItem{}
	}
	if len(fields) == 0 {
		return item, nil
	}

	recs, err := s.adapter.FindMany(ctx, ModelContentRelation, FindManyQuery{
		Where:  []Where{Eq("source_id", id.String())},
		SortBy: &SortBy{Field: "created_at"},
	})
	if err != nil {
		return nil, internal(op, err)
	}
	var edges []*ContentRelation
	var targetIDs []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, rec := range recs {
		edge, err := relationFromRecord(rec)
		if err != nil {
			return nil, internal(op, err)
		}
		if _, declared := fields[edge.FieldName]; !declared {
			continue
		}
		edges = append(edges, edge)
		if !seen[edge.TargetID] {
			seen[edge.TargetID] = true
			targetIDs = append(targetIDs, edge.TargetID)
		}
	}
	if len(targetIDs) == 0 {
		return item, nil
	}

	targetRecs, err := s.adapter.FindMany(ctx, ModelContentItem, FindManyQuery{
		Where: []Where{In("id", uuidValues(targetIDs))},
	})
	if err != nil {
		return nil, internal(op, err)
	}
	targets := make(map[uuid.UUID]*PopulatedItem, len(targetRecs))
	for _, rec := range targetRecs {
		t, err := s.itemFromRecord(op, rec)
		if err != nil {
			return nil, err
		}
		targets[t.ID] = &PopulatedItem{
			ID:            t.ID,
			ContentTypeID: t.ContentTypeID,
			Slug:          t.Slug,
			Data:          t.Data,
			CreatedAt:     t.CreatedAt,
			UpdatedAt:     t.UpdatedAt,
		}
	}
	for _, edge := range edges {
		// Dangling edges are skipped.
		if t, ok := targets[edge.TargetID]; ok {
			item.Relations[edge.FieldName] = append(item.Relations[edge.FieldName], t)
		}
	}
	return item, nil
}

func (s *service) GetByRelation(ctx context.Context, typeSlug string, req RelationLookupRequest) (*ListItemsResult, error) {
	const op = "get_by_relation"
	hctx := s.hookContext(ctx, typeSlug)

	res, err := s.byRelation(ctx, op, typeSlug, req)
	if err != nil {
		return nil, s.fail(hctx, op, err)
	}
	return res, nil
}

func (s *service) byRelation(ctx context.Context, op, typeSlug string, req RelationLookupRequest) (*ListItemsResult, error) {
	sct, err := s.contentType(ctx, typeSlug)
	if err != nil {
		return nil, err
	}
	if !sct.Schema.Properties[req.Field].IsRelation() {
		return nil, validationFailed(op, []schema.Violation{{
			Path:    "field",
			Message: fmt.Sprintf("%q is not a relation field of %q", req.Field, sct.Slug),
		}})
	}
	limit, offset, err := pageBounds(op, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	recs, err := s.adapter.FindMany(ctx, ModelContentRelation, FindManyQuery{Where: []Where{
		Eq("target_id", req.TargetID.String()),
		Eq("field_name", req.Field),
	}})
	if err != nil {
		return nil, internal(op, err)
	}
	seen := map[string]bool{}
	var sources []any
	for _, rec := range recs {
		src := recordString(rec, "source_id")
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return &ListItemsResult{Items: []*Item{}, Total: 0, Limit: limit, Offset: offset}, nil
	}

	return s.page(ctx, op, FindManyQuery{
		Where: []Where{
			In("id", sources),
			Eq("content_type_id", sct.ID.String()),
		},
		Limit:  limit,
		Offset: offset,
		SortBy: &SortBy{Field: "created_at", Desc: true},
	})
}

func uuidValues(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinViolationPath(prefix, path string) string {
	if path == "" {
		return prefix
	}
	if path[0] == '[' {
		return prefix + path
	}
	return prefix + "." + path
}
