package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	app "github.com/etitcombe/blogpom"
	"github.com/etitcombe/blogpom/rand"
)

// Config represents the configuration settings of the application.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Host        string `env:"HOST,required"`
	Port        int    `env:"PORT,required"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	StaticDir string `env:"STATIC_DIR" envDefault:"./static"`

	// FlashKey is a base64 encoded 32 byte key. When empty a random key is
	// generated for the life of the process.
	FlashKey string `env:"FLASH_KEY"`

	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	PostsPerPage    int           `env:"POSTS_PER_PAGE" envDefault:"5"`
	MaxPostsPerPage int           `env:"MAX_POSTS_PER_PAGE" envDefault:"50"`
}

// ConfigError reports a missing or malformed setting.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "config: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DotenvFile is read by LoadConfig when present in the working directory.
const DotenvFile = ".env"

// LoadConfig loads the configuration from the process environment and an
// optional .env file.
func LoadConfig() (Config, error) {
	return LoadConfigWithDotenv(DotenvFile)
}

// LoadConfigWithDotenv loads the configuration from the variables in path
// overlaid with the process environment. A missing file is not an error.
func LoadConfigWithDotenv(path string) (Config, error) {
	environ, err := readDotenv(path)
	if err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	for k, v := range env.ToMap(os.Environ()) {
		environ[k] = v
	}
	return LoadConfigFrom(environ)
}

func readDotenv(path string) (map[string]string, error) {
	environ, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return environ, nil
}

// LoadConfigFrom loads the configuration from environ.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environ}); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	if err := c.validate(); err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	return c, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("HOST must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.PostsPerPage < 1 {
		return fmt.Errorf("POSTS_PER_PAGE must be at least 1")
	}
	if c.MaxPostsPerPage < c.PostsPerPage {
		return fmt.Errorf("MAX_POSTS_PER_PAGE must be at least POSTS_PER_PAGE")
	}
	if c.FlashKey != "" {
		if _, err := rand.ParseKey(c.FlashKey); err != nil {
			return fmt.Errorf("FLASH_KEY: %w", err)
		}
	}
	return nil
}

// Addr is the address to listen on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level is the parsed LOG_LEVEL.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

// Page is the listing page size configuration.
func (c Config) Page() app.PageConfig {
	return app.PageConfig{PostsPerPage: c.PostsPerPage, MaxPostsPerPage: c.MaxPostsPerPage}
}

// Key returns the flash key, generating one when none is configured. The
// second result reports whether the key was generated.
func (c Config) Key() ([rand.KeySize]byte, bool, error) {
	if c.FlashKey == "" {
		k, err := rand.Key()
		return k, true, err
	}
	k, err := rand.ParseKey(c.FlashKey)
	return k, false, err
}
