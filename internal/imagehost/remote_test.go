package imagehost

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T, h http.Handler) *Remote {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r := NewRemote(RemoteConfig{
		APIURL:    srv.URL,
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		MaxBytes:  1 << 10,
	})
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

func TestSign(t *testing.T) {
	got := sign(map[string]string{"timestamp": "1700000000", "folder": "photos"}, "secret")
	assert.Equal(t, "58d5480886b43c1819d982b23000ef48af1158b8", got)
	assert.Equal(t, got, sign(map[string]string{"folder": "photos", "timestamp": "1700000000"}, "secret"))
	assert.NotEqual(t, got, sign(map[string]string{"folder": "photos", "timestamp": "1700000000"}, "other"))
}

func TestRemote_Upload(t *testing.T) {
	r := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/demo/image/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		assert.Equal(t, sign(map[string]string{"timestamp": "1700000000"}, "secret"), r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "cat.jpg", hdr.Filename)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "image bytes", string(data))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"public_id":  "abc123",
			"secure_url": "https://res.test/demo/image/upload/abc123.jpg",
			"format":     "jpg",
		})
	}))

	a, err := r.Upload(t.Context(), "cat.jpg", strings.NewReader("image bytes"))
	require.NoError(t, err)
	assert.Equal(t, Asset{PublicID: "abc123", URL: "https://res.test/demo/image/upload/abc123.jpg"}, a)
}

func TestRemote_Upload_Error(t *testing.T) {
	r := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	}))

	_, err := r.Upload(t.Context(), "cat.jpg", strings.NewReader("image bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestRemote_Delete(t *testing.T) {
	called := 0
	r := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/demo/resources/image/upload", r.URL.Path)
		assert.Equal(t, []string{"abc123"}, r.URL.Query()["public_ids[]"])

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		_, _ = w.Write([]byte(`{"deleted":{"abc123":"deleted"},"partial":false}`))
	}))

	res, err := r.Delete(t.Context(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.True(t, res.Succeeded("abc123"))
	assert.False(t, res.Succeeded("other"))
}

func TestRemote_Delete_NotFound(t *testing.T) {
	r := newTestRemote(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"deleted":{"abc123":"not_found"}}`))
	}))

	res, err := r.Delete(t.Context(), "abc123")
	require.NoError(t, err)
	assert.False(t, res.Succeeded("abc123"))
	assert.Equal(t, StatusNotFound, res.Deleted["abc123"])
}

func TestRemote_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/small.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2<<10))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	r := newTestRemote(t, mux)

	b, err := r.Fetch(t.Context(), Asset{URL: srv.URL + "/small.png"})
	require.NoError(t, err)
	assert.Equal(t, "png", string(b))

	_, err = r.Fetch(t.Context(), Asset{URL: srv.URL + "/big.png"})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = r.Fetch(t.Context(), Asset{URL: srv.URL + "/missing.png"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRemote_MissingCredentials(t *testing.T) {
	assert.Panics(t, func() {
		NewRemote(RemoteConfig{CloudName: "demo"})
	})
}
