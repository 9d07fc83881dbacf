package env_test

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/pkg/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireString(t *testing.T) {
	t.Setenv("TEST_REQUIRED_STRING", "required_value")
	assert.Equal(t, "required_value", env.RequireString("TEST_REQUIRED_STRING"))
}

func TestRequireString_Panic(t *testing.T) {
	assert.Panics(t, func() {
		env.RequireString("NON_EXISTENT_REQUIRED_STRING")
	})
}

func TestString(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	assert.Equal(t, "hello", env.String("TEST_STRING", "default"))
	assert.Equal(t, "default", env.String("NON_EXISTENT_STRING", "default"))
}

func TestStrings(t *testing.T) {
	t.Setenv("TEST_STRINGS", "email, public_profile,,")
	assert.Equal(t, []string{"email", "public_profile"}, env.Strings("TEST_STRINGS", nil))
	assert.Equal(t, []string{"a"}, env.Strings("NON_EXISTENT_STRINGS", []string{"a"}))
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "42abc")
	assert.Equal(t, 42, env.Int("TEST_INT", 100))
	assert.Equal(t, 100, env.Int("TEST_INT_BAD", 100))
	assert.Equal(t, 100, env.Int("NON_EXISTENT_INT", 100))
}

func TestInt64(t *testing.T) {
	t.Setenv("TEST_INT64", "4200")
	assert.Equal(t, int64(4200), env.Int64("TEST_INT64", 1000))
	assert.Equal(t, int64(1000), env.Int64("NON_EXISTENT_INT64", 1000))
}

func TestBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_1", "1")
	t.Setenv("TEST_BOOL_NO", "no")
	assert.True(t, env.Bool("TEST_BOOL", false))
	assert.True(t, env.Bool("TEST_BOOL_1", false))
	assert.False(t, env.Bool("TEST_BOOL_NO", true))
	assert.False(t, env.Bool("NON_EXISTENT_BOOL", false))
}

func TestBytes(t *testing.T) {
	tbl := []struct {
		val  string
		want int64
	}{
		{"512", 512},
		{"64KB", 64_000},
		{"64KiB", 64 << 10},
		{"10MB", 10_000_000},
		{"10 mib", 10 << 20},
		{"256MiB", 256 << 20},
		{"1GiB", 1 << 30},
		{"ten", 7},
		{"-5MB", 7},
	}

	for _, c := range tbl {
		t.Run(c.val, func(t *testing.T) {
			t.Setenv("TEST_BYTES", c.val)
			assert.Equal(t, c.want, env.Bytes("TEST_BYTES", 7))
		})
	}

	assert.Equal(t, int64(7), env.Bytes("NON_EXISTENT_BYTES", 7))
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "2h45m")
	assert.Equal(t, 2*time.Hour+45*time.Minute, env.Duration("TEST_DURATION", time.Minute))
	assert.Equal(t, time.Minute, env.Duration("NON_EXISTENT_DURATION", time.Minute))
}

func TestURL(t *testing.T) {
	t.Setenv("TEST_URL", "http://example.com")
	expectedURL, _ := url.Parse("http://example.com")
	assert.Equal(t, expectedURL, env.Url("TEST_URL", &url.URL{Scheme: "http", Host: "default.com"}))

	defaultURL, _ := url.Parse("http://default.com")
	assert.Equal(t, defaultURL, env.Url("NON_EXISTENT_URL", &url.URL{Scheme: "http", Host: "default.com"}))
}

func TestURL_Invalid(t *testing.T) {
	t.Setenv("TEST_INVALID_URL", "://invalid-url")
	defaultURL, _ := url.Parse("http://default.com")
	assert.Equal(t, defaultURL, env.Url("TEST_INVALID_URL", &url.URL{Scheme: "http", Host: "default.com"}))
}

func TestLoadProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photoedit.properties")
	err := os.WriteFile(path, []byte("PROP_TEST_HOST = db.internal\nPROP_TEST_PORT = 6543\n"), 0o644)
	require.NoError(t, err)

	t.Setenv("PROP_TEST_PORT", "5432")
	t.Cleanup(func() { os.Unsetenv("PROP_TEST_HOST") })

	require.NoError(t, env.LoadProperties(path))
	assert.Equal(t, "db.internal", env.String("PROP_TEST_HOST", ""))
	assert.Equal(t, "5432", env.String("PROP_TEST_PORT", ""))
}

func TestLoadProperties_Missing(t *testing.T) {
	err := env.LoadProperties(filepath.Join(t.TempDir(), "missing.properties"))
	require.Error(t, err)
}
