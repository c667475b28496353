package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"github.com/tendant/simple-cms/pkg/simplecms/schema"
)

func newTestRoutes(t *testing.T, opts ...config.Option) http.Handler {
	t.Helper()
	base := []config.Option{
		config.WithContentTypes(simplecms.Declaration{Slug: "page", Shape: schema.Object().Prop("title", schema.String(), true)}),
		config.WithHookLogging(false),
	}
	cfg, err := config.Load(append(base, opts...)...)
	require.NoError(t, err)
	built, err := cfg.BuildService(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { built.Close() })

	h, err := routes(cfg, built, nil)
	require.NoError(t, err)
	return h
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestRoutes(t)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz/ready", nil).Code)

	rec := get(t, h, "/api/v1/content-types/page", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRoutes_JWT(t *testing.T) {
	const secret = "test-secret"
	h := newTestRoutes(t, config.WithJWTSecret(secret), config.WithMetrics(false))

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/v1/content-types", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil).Code, "health checks stay open")
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics", nil).Code)

	_, token, err := jwtauth.New("HS256", []byte(secret), nil).Encode(map[string]interface{}{"sub": "editor"})
	require.NoError(t, err)
	rec := get(t, h, "/api/v1/content-types", http.Header{"Authorization": []string{"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)
}
