package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL": "sqlite://./database/blog.db",
		"HOST":         "127.0.0.1",
		"PORT":         "8000",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfigFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "sqlite://./database/blog.db", c.DatabaseURL)
	assert.Equal(t, "127.0.0.1:8000", c.Addr())
	assert.Equal(t, "./static", c.StaticDir)
	assert.Equal(t, 5*time.Second, c.StoreTimeout)
	assert.Equal(t, 5, c.Page().PostsPerPage)
	assert.Equal(t, 50, c.Page().MaxPostsPerPage)

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, generated, err := c.Key()
	require.NoError(t, err)
	assert.True(t, generated)
}

func TestLoadConfigOverrides(t *testing.T) {
	environ := baseEnv()
	environ["LOG_LEVEL"] = "debug"
	environ["STORE_TIMEOUT"] = "250ms"
	environ["POSTS_PER_PAGE"] = "10"
	environ["MAX_POSTS_PER_PAGE"] = "20"
	environ["FLASH_KEY"] = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

	c, err := LoadConfigFrom(environ)
	require.NoError(t, err)

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Equal(t, 250*time.Millisecond, c.StoreTimeout)
	assert.Equal(t, 10, c.Page().PostsPerPage)

	key, generated, err := c.Key()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", string(key[:]))
}

func TestLoadConfigRequired(t *testing.T) {
	for _, name := range []string{"DATABASE_URL", "HOST", "PORT"} {
		t.Run(name, func(t *testing.T) {
			environ := baseEnv()
			delete(environ, name)

			_, err := LoadConfigFrom(environ)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"PORT":               "http",
		"LOG_LEVEL":          "chatty",
		"STORE_TIMEOUT":      "0s",
		"POSTS_PER_PAGE":     "0",
		"MAX_POSTS_PER_PAGE": "2",
		"FLASH_KEY":          "dG9vIHNob3J0",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			environ := baseEnv()
			environ[name] = value

			_, err := LoadConfigFrom(environ)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}

	environ := baseEnv()
	environ["PORT"] = "70000"
	_, err := LoadConfigFrom(environ)
	assert.ErrorContains(t, err, "out of range")
}

// unsetenv clears name for the duration of the test.
func unsetenv(t *testing.T, name string) {
	t.Setenv(name, "")
	require.NoError(t, os.Unsetenv(name))
}

func TestLoadConfigDotenv(t *testing.T) {
	for _, name := range []string{"DATABASE_URL", "HOST", "PORT", "LOG_LEVEL", "FLASH_KEY"} {
		unsetenv(t, name)
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"DATABASE_URL=sqlite://./from-dotenv.db\n"+
			"HOST=0.0.0.0\n"+
			"PORT=9000\n"+
			"LOG_LEVEL=warn\n"), 0600))

	// Real environment variables win over the file.
	t.Setenv("PORT", "8123")

	c, err := LoadConfigWithDotenv(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite://./from-dotenv.db", c.DatabaseURL)
	assert.Equal(t, "0.0.0.0:8123", c.Addr())

	level, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoadConfigMissingDotenv(t *testing.T) {
	unsetenv(t, "FLASH_KEY")
	unsetenv(t, "LOG_LEVEL")
	t.Setenv("DATABASE_URL", "sqlite::memory:")
	t.Setenv("HOST", "localhost")
	t.Setenv("PORT", "8000")

	c, err := LoadConfigWithDotenv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8000", c.Addr())
}

func TestLoadConfigDotenvRequired(t *testing.T) {
	for _, name := range []string{"DATABASE_URL", "HOST", "PORT"} {
		unsetenv(t, name)
	}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HOST=localhost\nPORT=8000\n"), 0600))

	_, err := LoadConfigWithDotenv(path)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
