package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_Panic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := router.New()
	r.Use(RequestID(), Recover())
	r.HandleFunc("/photo/edit/1/sepia/", func(w http.ResponseWriter, r *http.Request) {
		panic("decoder exploded")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/photo/edit/1/sepia/", nil)

	assert.NotPanics(t, func() {
		r.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request error", entry["msg"])
	assert.Equal(t, "panic: decoder exploded", entry["cause"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), entry["request_id"])
	assert.Contains(t, entry["stack_trace"], "runtime/debug.Stack")
}

func TestRecover_AbortHandler(t *testing.T) {
	r := router.New()
	r.Use(Recover())
	r.HandleFunc("/abort", func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/abort", nil))
	})
}

func TestRecover_NoPanic(t *testing.T) {
	r := router.New()
	r.Use(Recover())
	r.HandleFunc("/photo/photos/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/photo/photos/", nil))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
