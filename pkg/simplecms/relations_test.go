package simplecms_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

func createCategory(t *testing.T, svc simplecms.Service, name string) *simplecms.Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), "category", simplecms.CreateItemRequest{Slug: name, Data: map[string]any{"name": name}})
	require.NoError(t, err)
	return item
}

func ref(id uuid.UUID) map[string]any {
	return map[string]any{"id": id.String()}
}

func edgeCount(t *testing.T, a *memory.Adapter, source uuid.UUID, field string) int {
	t.Helper()
	n, err := a.Count(context.Background(), simplecms.ModelContentRelation, []simplecms.Where{
		simplecms.Eq("source_id", source.String()),
		simplecms.Eq("field_name", field),
	})
	require.NoError(t, err)
	return n
}

func TestRelations_InlineCreation(t *testing.T) {
	svc, adapter := newTestService(t)
	ctx := context.Background()
	existing := createCategory(t, svc, "go")

	post, err := svc.CreateItem(ctx, "post", simplecms.CreateItemRequest{
		Slug: "with-categories",
		Data: map[string]any{
			"title": "Relations",
			"categories": []any{
				ref(existing.ID),
				map[string]any{"_new": true, "data": map[string]any{"name": "Databases"}},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, edgeCount(t, adapter, post.ID, "categories"))

	cats, err := svc.ListItems(ctx, "category", simplecms.ListItemsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, cats.Total, "exactly one target is created inline")

	entries := post.Data["categories"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, ref(existing.ID), entries[0])
	inline := entries[1].(map[string]any)
	assert.NotContains(t, inline, "_new")

	created, err := uuid.Parse(inline["id"].(string))
	require.NoError(t, err)
	got, err := svc.GetItem(ctx, "category", created)
	require.NoError(t, err)
	assert.Equal(t, "databases", got.Slug, "inline slug derives from the display field")
}

func TestRelations_InlineSlugCollision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	createCategory(t, svc, "news")

	post, err := svc.CreateItem(ctx, "post", simplecms.CreateItemRequest{
		Slug: "collides",
		Data: map[string]any{
			"title":      "x",
			"categories": []any{map[string]any{"_new": true, "data": map[string]any{"name": "News"}}},
		},
	})
	require.NoError(t, err)

	id, err := uuid.Parse(post.Data["categories"].([]any)[0].(map[string]any)["id"].(string))
	require.NoError(t, err)
	got, err := svc.GetItem(ctx, "category", id)
	require.NoError(t, err)
	assert.Regexp(t, `^news-[0-9a-f]{8}$`, got.Slug)
}

func TestRelations_Rejections(t *testing.T) {
	svc, adapter := newTestService(t)
	ctx := context.Background()
	cat := createCategory(t, svc, "cat")

	tests := []struct {
		name string
		data map[string]any
		path string
	}{
		{
			name: "inline creation on non-creatable field",
			data: map[string]any{"title": "x", "author": map[string]any{"_new": true, "data": map[string]any{"name": "A"}}},
			path: "author",
		},
		{
			name: "inline target fails its own validation",
			data: map[string]any{"title": "x", "categories": []any{map[string]any{"_new": true, "data": map[string]any{}}}},
			path: "categories[0].data.name",
		},
		{
			name: "target does not exist",
			data: map[string]any{"title": "x", "categories": []any{ref(uuid.New())}},
			path: "categories[0]",
		},
		{
			name: "target has the wrong type",
			data: map[string]any{"title": "x", "author": ref(cat.ID)},
			path: "author",
		},
		{
			name: "id is not a uuid",
			data: map[string]any{"title": "x", "categories": []any{map[string]any{"id": "abc"}}},
			path: "categories[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateItem(ctx, "post", simplecms.CreateItemRequest{Slug: "rejected", Data: tt.data})
			e := assertKind(t, err, simplecms.KindValidationFailed)
			require.NotEmpty(t, e.Violations)
			assert.Equal(t, tt.path, e.Violations[0].Path)
		})
	}

	n, err := adapter.Count(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("slug", "rejected")})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelations_UpdateReplacesEdges(t *testing.T) {
	svc, adapter := newTestService(t)
	ctx := context.Background()
	a := createCategory(t, svc, "a")
	b := createCategory(t, svc, "b")
	c := createCategory(t, svc, "c")

	post := createPost(t, svc, "edges", map[string]any{
		"title":      "x",
		"categories": []any{ref(a.ID), ref(b.ID), ref(b.ID)},
	})
	assert.Equal(t, 2, edgeCount(t, adapter, post.ID, "categories"), "duplicate references collapse")

	_, err := svc.UpdateItem(ctx, "post", post.ID, simplecms.UpdateItemRequest{Data: map[string]any{
		"title":      "x",
		"categories": []any{ref(c.ID)},
	}})
	require.NoError(t, err)
	populated, err := svc.GetPopulated(ctx, "post", post.ID)
	require.NoError(t, err)
	require.Len(t, populated.Relations["categories"], 1)
	assert.Equal(t, c.ID, populated.Relations["categories"][0].ID)

	slug := "edges-renamed"
	_, err = svc.UpdateItem(ctx, "post", post.ID, simplecms.UpdateItemRequest{Slug: &slug})
	require.NoError(t, err)
	assert.Equal(t, 1, edgeCount(t, adapter, post.ID, "categories"), "slug-only updates keep edges")

	_, err = svc.UpdateItem(ctx, "post", post.ID, simplecms.UpdateItemRequest{Data: map[string]any{"title": "x"}})
	require.NoError(t, err)
	assert.Zero(t, edgeCount(t, adapter, post.ID, "categories"), "an absent relation field clears its edges")
}

func TestRelations_GetPopulated(t *testing.T) {
	svc, adapter := newTestService(t)
	ctx := context.Background()
	a := createCategory(t, svc, "a")
	b := createCategory(t, svc, "b")
	author, err := svc.CreateItem(ctx, "author", simplecms.CreateItemRequest{Slug: "ann", Data: map[string]any{"name": "Ann"}})
	require.NoError(t, err)

	post := createPost(t, svc, "populated", map[string]any{
		"title":      "x",
		"author":     ref(author.ID),
		"categories": []any{ref(a.ID), ref(b.ID)},
	})

	got, err := svc.GetPopulated(ctx, "post", post.ID)
	require.NoError(t, err)
	assert.Len(t, got.Relations, 3, "one key per declared relation field")
	require.Len(t, got.Relations["author"], 1)
	assert.Equal(t, "Ann", got.Relations["author"][0].Data["name"])
	require.Len(t, got.Relations["categories"], 2)
	assert.Equal(t, a.ID, got.Relations["categories"][0].ID, "payload order is kept")
	assert.Equal(t, b.ID, got.Relations["categories"][1].ID)
	assert.Empty(t, got.Relations["related"])
	assert.NotNil(t, got.Relations["related"])

	t.Run("dangling edges are omitted", func(t *testing.T) {
		_, err := adapter.Create(ctx, simplecms.ModelContentRelation, simplecms.Record{
			"id":         uuid.NewString(),
			"source_id":  post.ID.String(),
			"target_id":  uuid.NewString(),
			"field_name": "categories",
			"created_at": time.Now().UTC(),
		})
		require.NoError(t, err)

		got, err := svc.GetPopulated(ctx, "post", post.ID)
		require.NoError(t, err)
		assert.Len(t, got.Relations["categories"], 2)
	})

	t.Run("deleting a target cascades its edges", func(t *testing.T) {
		require.NoError(t, svc.DeleteItem(ctx, "category", a.ID))
		got, err := svc.GetPopulated(ctx, "post", post.ID)
		require.NoError(t, err)
		require.Len(t, got.Relations["categories"], 1)
		assert.Equal(t, b.ID, got.Relations["categories"][0].ID)
	})
}

func TestRelations_GetByRelation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	target := createCategory(t, svc, "target")
	other := createCategory(t, svc, "other")

	for _, slug := range []string{"one", "two", "three"} {
		createPost(t, svc, slug, map[string]any{"title": slug, "categories": []any{ref(target.ID)}})
	}
	createPost(t, svc, "unrelated", map[string]any{"title": "u", "categories": []any{ref(other.ID)}})

	res, err := svc.GetByRelation(ctx, "post", simplecms.RelationLookupRequest{Field: "categories", TargetID: target.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Items, 3)

	res, err = svc.GetByRelation(ctx, "post", simplecms.RelationLookupRequest{Field: "categories", TargetID: target.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Items, 1)

	res, err = svc.GetByRelation(ctx, "post", simplecms.RelationLookupRequest{Field: "related", TargetID: target.ID})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Items)

	_, err = svc.GetByRelation(ctx, "post", simplecms.RelationLookupRequest{Field: "title", TargetID: target.ID})
	assertKind(t, err, simplecms.KindValidationFailed)
}
