package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ads"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ads", "x.png"), []byte("png"), 0o644))

	root := newRouter([]string{"http://localhost:3000"}, dir, func(r chi.Router) {
		r.Get("/ads/active/{placement}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"health", "/health", http.StatusOK},
		{"metrics", "/metrics", http.StatusOK},
		{"ping", "/api/v1/ping", http.StatusOK},
		{"mounted api", "/api/v1/ads/active/home", http.StatusOK},
		{"local uploads", "/uploads/ads/x.png", http.StatusOK},
		{"unknown", "/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			root.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.want, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		})
	}
}

func TestNewRouter_NoUploadsWithoutLocalDir(t *testing.T) {
	root := newRouter(nil, "", func(chi.Router) {})

	rr := httptest.NewRecorder()
	root.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/ads/x.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
