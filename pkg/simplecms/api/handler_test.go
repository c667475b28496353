package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

func declarations() []simplecms.Declaration {
	return []simplecms.Declaration{
		{Slug: "tag", Shape: schema.Object().Prop("name", schema.String().WithMinLength(1), true)},
		{Slug: "article", Name: "Article", Shape: schema.Object().
			Prop("title", schema.String().WithMinLength(1), true).
			Prop("tags", schema.ManyToMany("tag").WithDisplayField("name").Creatable(), false)},
	}
}

func newServer(t *testing.T, opts ...simplecms.Option) *httptest.Server {
	t.Helper()
	base := []simplecms.Option{
		simplecms.WithAdapter(memory.New()),
		simplecms.WithContentTypes(declarations()...),
	}
	svc, err := simplecms.New(append(base, opts...)...)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.CallerMiddleware)
		r.Mount("/", api.NewContentHandler(svc, nil).Routes())
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestContentHandler_ItemLifecycle(t *testing.T) {
	srv := newServer(t)
	base := srv.URL + "/api/v1/content/article"

	var created simplecms.Item
	resp := do(t, http.MethodPost, base, map[string]any{
		"slug": "hello",
		"data": map[string]any{
			"title": "Hello",
			"tags":  []any{map[string]any{"_new": true, "data": map[string]any{"name": "Intro"}}},
		},
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "hello", created.Slug)

	var got simplecms.Item
	resp = do(t, http.MethodGet, base+"/"+created.ID.String(), nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", got.Data["title"])

	var populated map[string]any
	resp = do(t, http.MethodGet, base+"/"+created.ID.String()+"/populated", nil, &populated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rels := populated["_relations"].(map[string]any)
	tags := rels["tags"].([]any)
	require.Len(t, tags, 1)
	tagID := tags[0].(map[string]any)["id"].(string)

	var byRel simplecms.ListItemsResult
	resp = do(t, http.MethodGet, base+"/by-relation?field=tags&target_id="+tagID, nil, &byRel)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, byRel.Total)

	var list simplecms.ListItemsResult
	resp = do(t, http.MethodGet, base+"?limit=5&include_type=true", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Items, 1)
	assert.Equal(t, 5, list.Limit)
	require.NotNil(t, list.Items[0].ContentType)
	assert.Equal(t, "article", list.Items[0].ContentType.Slug)

	var updated simplecms.Item
	resp = do(t, http.MethodPut, base+"/"+created.ID.String(), map[string]any{"slug": "hello-again"}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello-again", updated.Slug)

	resp = do(t, http.MethodDelete, base+"/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/"+created.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentHandler_LargeIntegers(t *testing.T) {
	svc, err := simplecms.New(
		simplecms.WithAdapter(memory.New()),
		simplecms.WithContentTypes(simplecms.Declaration{
			Slug:  "counter",
			Shape: schema.Object().Prop("v", schema.Integer(), true),
		}),
	)
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewContentHandler(svc, nil).Routes())
	t.Cleanup(srv.Close)

	post := func(body string) (int, string) {
		resp, err := http.Post(srv.URL+"/content/counter", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(raw)
	}

	status, body := post(`{"slug":"a","data":{"v":9007199254740993}}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body, `"v":9007199254740993`)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	resp, err := http.Get(srv.URL + "/content/counter/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"v":9007199254740993`)

	status, _ = post(`{"slug":"b","data":{"v":9007199254740993.5}}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestContentHandler_ContentTypes(t *testing.T) {
	srv := newServer(t)

	var body struct {
		ContentTypes []simplecms.SerializedContentType `json:"content_types"`
	}
	resp := do(t, http.MethodGet, srv.URL+"/api/v1/content-types", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.ContentTypes, 2)
	assert.Equal(t, "article", body.ContentTypes[0].Slug)

	var ct simplecms.SerializedContentType
	resp = do(t, http.MethodGet, srv.URL+"/api/v1/content-types/article", nil, &ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Article", ct.Name)
	assert.Contains(t, ct.Schema.Properties, "title")

	var e api.ErrorResponse
	resp = do(t, http.MethodGet, srv.URL+"/api/v1/content-types/missing", nil, &e)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, simplecms.KindNotFound, e.Error)
}

func TestContentHandler_Errors(t *testing.T) {
	srv := newServer(t, simplecms.WithHooks(simplecms.Hooks{
		BeforeDelete: []simplecms.BeforeDeleteHook{
			func(hctx simplecms.HookContext, id uuid.UUID) error {
				return simplecms.Veto("tags are permanent")
			},
		},
	}))
	base := srv.URL + "/api/v1/content"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   simplecms.ErrorKind
	}{
		{"validation", http.MethodPost, "/article", map[string]any{"slug": "x", "data": map[string]any{}}, http.StatusBadRequest, simplecms.KindValidationFailed},
		{"invalid slug", http.MethodPost, "/article", map[string]any{"slug": "!!!", "data": map[string]any{"title": "t"}}, http.StatusBadRequest, simplecms.KindInvalidSlug},
		{"unknown type", http.MethodGet, "/nope", nil, http.StatusNotFound, simplecms.KindNotFound},
		{"malformed id", http.MethodGet, "/article/not-a-uuid", nil, http.StatusNotFound, simplecms.KindNotFound},
		{"bad limit", http.MethodGet, "/article?limit=ten", nil, http.StatusBadRequest, simplecms.KindValidationFailed},
		{"bad target", http.MethodGet, "/article/by-relation?field=tags&target_id=x", nil, http.StatusBadRequest, simplecms.KindValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e api.ErrorResponse
			resp := do(t, tt.method, base+tt.path, tt.body, &e)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, e.Error)
		})
	}

	t.Run("violations are returned as details", func(t *testing.T) {
		var e api.ErrorResponse
		do(t, http.MethodPost, base+"/article", map[string]any{"slug": "x", "data": map[string]any{}}, &e)
		require.NotEmpty(t, e.Details)
		assert.Equal(t, "title", e.Details[0].Path)
	})

	t.Run("conflict", func(t *testing.T) {
		body := map[string]any{"slug": "dup", "data": map[string]any{"title": "t"}}
		resp := do(t, http.MethodPost, base+"/article", body, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var e api.ErrorResponse
		resp = do(t, http.MethodPost, base+"/article", body, &e)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, simplecms.KindConflict, e.Error)
	})

	t.Run("veto", func(t *testing.T) {
		var tag simplecms.Item
		do(t, http.MethodPost, base+"/tag", map[string]any{"slug": "go", "data": map[string]any{"name": "Go"}}, &tag)
		var e api.ErrorResponse
		resp := do(t, http.MethodDelete, base+"/tag/"+tag.ID.String(), nil, &e)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "tags are permanent", e.Message)
	})
}

func TestCallerMiddleware(t *testing.T) {
	ja := jwtauth.New("HS256", []byte("test-secret"), nil)
	_, token, err := ja.Encode(map[string]interface{}{"sub": "user-42"})
	require.NoError(t, err)

	var seen simplecms.Caller
	r := chi.NewRouter()
	r.Use(api.RequireJWT(ja))
	r.Use(api.CallerMiddleware)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = simplecms.CallerFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", seen.UserID)
	assert.Equal(t, "acme", seen.Headers.Get("X-Tenant"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
