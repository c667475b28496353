package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
)

func newType(t *testing.T, a *memory.Adapter, slug string) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := a.Create(context.Background(), simplecms.ModelContentType, simplecms.Record{
		"id": id, "name": slug, "slug": slug, "json_schema": `{"type":"object"}`,
		"schema_version": 2, "created_at": now, "updated_at": now,
	})
	require.NoError(t, err)
	return id
}

func newItem(t *testing.T, a *memory.Adapter, typeID, slug string, createdAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := a.Create(context.Background(), simplecms.ModelContentItem, simplecms.Record{
		"id": id, "content_type_id": typeID, "slug": slug, "data": "{}",
		"created_at": createdAt, "updated_at": createdAt,
	})
	require.NoError(t, err)
	return id
}

func TestMemoryAdapter_CreateAndFind(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	typeID := newType(t, a, "post")

	t.Run("FindOne returns a copy", func(t *testing.T) {
		rec, err := a.FindOne(ctx, simplecms.ModelContentType, []simplecms.Where{simplecms.Eq("slug", "post")})
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, typeID, rec["id"])
		assert.Nil(t, rec["description"], "undeclared columns default to null")

		rec["slug"] = "mutated"
		again, err := a.FindOne(ctx, simplecms.ModelContentType, []simplecms.Where{simplecms.Eq("id", typeID)})
		require.NoError(t, err)
		assert.Equal(t, "post", again["slug"])
	})

	t.Run("FindOne miss", func(t *testing.T) {
		rec, err := a.FindOne(ctx, simplecms.ModelContentType, []simplecms.Where{simplecms.Eq("slug", "nope")})
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("uuid values are stored as text", func(t *testing.T) {
		id := uuid.New()
		_, err := a.Create(ctx, simplecms.ModelContentItem, simplecms.Record{
			"id": id, "content_type_id": typeID, "slug": "by-uuid", "data": "{}",
		})
		require.NoError(t, err)
		rec, err := a.FindOne(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("id", id)})
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, id.String(), rec["id"])
	})

	t.Run("unknown model and field", func(t *testing.T) {
		_, err := a.Create(ctx, "nope", simplecms.Record{})
		assert.Error(t, err)
		_, err = a.Create(ctx, simplecms.ModelContentType, simplecms.Record{"bogus": 1})
		assert.Error(t, err)
	})
}

func TestMemoryAdapter_UniqueConstraints(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	postType := newType(t, a, "post")
	pageType := newType(t, a, "page")
	now := time.Now().UTC()

	_, err := a.Create(ctx, simplecms.ModelContentType, simplecms.Record{"id": uuid.NewString(), "slug": "post"})
	assert.True(t, errors.Is(err, simplecms.ErrUniqueViolation))

	newItem(t, a, postType, "hello", now)
	_, err = a.Create(ctx, simplecms.ModelContentItem, simplecms.Record{
		"id": uuid.NewString(), "content_type_id": postType, "slug": "hello",
	})
	assert.ErrorIs(t, err, simplecms.ErrUniqueViolation)

	// same slug under another type is fine
	newItem(t, a, pageType, "hello", now)

	other := newItem(t, a, postType, "other", now)
	_, err = a.Update(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("id", other)}, simplecms.Record{"slug": "hello"})
	assert.ErrorIs(t, err, simplecms.ErrUniqueViolation)

	rec, err := a.Update(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("id", other)}, simplecms.Record{"slug": "other"})
	require.NoError(t, err, "rewriting a row's own key is not a conflict")
	assert.Equal(t, "other", rec["slug"])
}

func TestMemoryAdapter_FindManyQuery(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	typeID := newType(t, a, "post")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		newItem(t, a, typeID, fmt.Sprintf("item-%d", i), base.Add(time.Duration(i)*time.Hour))
	}

	byType := []simplecms.Where{simplecms.Eq("content_type_id", typeID)}

	t.Run("sort desc with paging", func(t *testing.T) {
		recs, err := a.FindMany(ctx, simplecms.ModelContentItem, simplecms.FindManyQuery{
			Where:  byType,
			SortBy: &simplecms.SortBy{Field: "created_at", Desc: true},
			Limit:  2,
			Offset: 1,
		})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "item-3", recs[0]["slug"])
		assert.Equal(t, "item-2", recs[1]["slug"])
	})

	t.Run("offset past end", func(t *testing.T) {
		recs, err := a.FindMany(ctx, simplecms.ModelContentItem, simplecms.FindManyQuery{Where: byType, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("range operators", func(t *testing.T) {
		n, err := a.Count(ctx, simplecms.ModelContentItem, []simplecms.Where{
			{Field: "created_at", Value: base.Add(time.Hour), Operator: simplecms.OpGte},
			{Field: "created_at", Value: base.Add(3 * time.Hour), Operator: simplecms.OpLt},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("in and ne", func(t *testing.T) {
		n, err := a.Count(ctx, simplecms.ModelContentItem, []simplecms.Where{
			simplecms.In("slug", []any{"item-0", "item-4", "missing"}),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = a.Count(ctx, simplecms.ModelContentItem, []simplecms.Where{
			{Field: "slug", Value: "item-0", Operator: simplecms.OpNe},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("join attaches the referenced row", func(t *testing.T) {
		recs, err := a.FindMany(ctx, simplecms.ModelContentItem, simplecms.FindManyQuery{
			Where: byType,
			Limit: 1,
			Join:  []simplecms.Join{{Model: simplecms.ModelContentType, LocalField: "content_type_id", ForeignField: "id", As: "content_type"}},
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		joined, ok := recs[0]["content_type"].(simplecms.Record)
		require.True(t, ok)
		assert.Equal(t, "post", joined["slug"])
	})
}

func TestMemoryAdapter_SortTiesBreakByID(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	typeID := newType(t, a, "post")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, newItem(t, a, typeID, fmt.Sprintf("same-%d", i), at))
	}
	byType := []simplecms.Where{simplecms.Eq("content_type_id", typeID)}

	collect := func(desc bool, offset, limit int) []string {
		recs, err := a.FindMany(ctx, simplecms.ModelContentItem, simplecms.FindManyQuery{
			Where:  byType,
			SortBy: &simplecms.SortBy{Field: "created_at", Desc: desc},
			Offset: offset,
			Limit:  limit,
		})
		require.NoError(t, err)
		out := make([]string, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec["id"].(string))
		}
		return out
	}

	asc := append([]string(nil), ids...)
	sort.Strings(asc)
	assert.Equal(t, asc, collect(false, 0, 0))

	desc := append([]string(nil), ids...)
	sort.Sort(sort.Reverse(sort.StringSlice(desc)))
	assert.Equal(t, desc, collect(true, 0, 0))

	paged := append(collect(true, 0, 4), collect(true, 4, 4)...)
	assert.Equal(t, desc, paged)
}

func TestMemoryAdapter_CascadingDelete(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	typeID := newType(t, a, "post")
	now := time.Now().UTC()
	src := newItem(t, a, typeID, "src", now)
	dst := newItem(t, a, typeID, "dst", now)
	keep := newItem(t, a, typeID, "keep", now)

	for _, target := range []string{dst, keep} {
		_, err := a.Create(ctx, simplecms.ModelContentRelation, simplecms.Record{
			"id": uuid.NewString(), "source_id": src, "target_id": target, "field_name": "related", "created_at": now,
		})
		require.NoError(t, err)
	}

	_, err := a.Create(ctx, simplecms.ModelContentRelation, simplecms.Record{
		"id": uuid.NewString(), "source_id": src, "target_id": dst, "field_name": "related", "created_at": now,
	})
	assert.ErrorIs(t, err, simplecms.ErrUniqueViolation, "edge triple is unique")

	require.NoError(t, a.Delete(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("id", dst)}))
	n, err := a.Count(ctx, simplecms.ModelContentRelation, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, a.Delete(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("id", src)}))
	n, err = a.Count(ctx, simplecms.ModelContentRelation, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = a.Count(ctx, simplecms.ModelContentType, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "content types are not cascaded")
}

func TestMemoryAdapter_Transaction(t *testing.T) {
	a := memory.New()
	ctx := context.Background()
	typeID := newType(t, a, "post")

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := a.Transaction(ctx, func(ctx context.Context, tx simplecms.Adapter) error {
			_, err := tx.Create(ctx, simplecms.ModelContentItem, simplecms.Record{
				"id": uuid.NewString(), "content_type_id": typeID, "slug": "rolled-back",
			})
			require.NoError(t, err)
			n, err := tx.Count(ctx, simplecms.ModelContentItem, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "writes are visible inside the transaction")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		n, err := a.Count(ctx, simplecms.ModelContentItem, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("commit", func(t *testing.T) {
		err := a.Transaction(ctx, func(ctx context.Context, tx simplecms.Adapter) error {
			return tx.Transaction(ctx, func(ctx context.Context, inner simplecms.Adapter) error {
				_, err := inner.Create(ctx, simplecms.ModelContentItem, simplecms.Record{
					"id": uuid.NewString(), "content_type_id": typeID, "slug": "committed",
				})
				return err
			})
		})
		require.NoError(t, err)

		rec, err := a.FindOne(ctx, simplecms.ModelContentItem, []simplecms.Where{simplecms.Eq("slug", "committed")})
		require.NoError(t, err)
		assert.NotNil(t, rec)
	})
}
