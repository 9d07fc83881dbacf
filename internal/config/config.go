// Package config builds the application configuration from the environment.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/pkg/env"
)

// FileEnv names an optional properties file whose keys fill in variables
// missing from the environment.
const FileEnv = "PHOTOEDIT_CONFIG"

type Config struct {
	HTTP      httpConfig
	DB        dbConfig
	Session   sessionConfig
	Redis     redisConfig
	JWT       jwtConfig
	Facebook  oauthConfig
	Google    oauthConfig
	ImageHost imageHostConfig
	Render    renderConfig
	Log       logConfig
}

type httpConfig struct {
	ListenAddr      string
	QuietPaths      []string
	IdleTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type dbConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
	MigrationsPath string
}

type sessionConfig struct {
	Backend    string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

type redisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type jwtConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type oauthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	VerifyTokens bool
}

// Enabled reports whether the provider has credentials.
func (c oauthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type imageHostConfig struct {
	Backend   string
	APIURL    string
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Timeout   time.Duration
	Root      string
	ServeRoot *url.URL
	MaxBytes  int64
	MaxWidth  int
	MaxHeight int
}

type renderConfig struct {
	MaxEdge  int
	MaxKeys  int64
	MaxBytes int64
}

type logConfig struct {
	Format string
	Level  string
}

// Load reads the optional properties file named by PHOTOEDIT_CONFIG and
// then builds the config from the environment.
func Load() (Config, error) {
	if path := os.Getenv(FileEnv); path != "" {
		if err := env.LoadProperties(path); err != nil {
			return Config{}, err
		}
	}

	return FromEnv(), nil
}

func FromEnv() Config {
	return Config{
		HTTP: httpConfig{
			ListenAddr:      env.String("HTTP_LISTEN_ADDR", ":8080"),
			QuietPaths:      env.Strings("HTTP_QUIET_PATHS", []string{"/healthz", "/readyz", "/metrics"}),
			IdleTimeout:     env.Duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ReadTimeout:     env.Duration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.Duration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: env.Duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		DB: dbConfig{
			Host:           env.String("DB_HOST", "localhost"),
			Port:           env.String("DB_PORT", "5432"),
			User:           env.String("DB_USER", "postgres"),
			Password:       env.String("DB_PASSWORD", "password"),
			Name:           env.String("DB_NAME", "photoedit"),
			SSLMode:        env.String("DB_SSLMODE", "disable"),
			MaxOpenConns:   env.Int("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:   env.Int("DB_MAX_IDLE_CONNS", 5),
			MigrateOnStart: env.Bool("MIGRATE_ON_START", false),
			MigrationsPath: env.String("MIGRATIONS_PATH", "db/migrations"),
		},
		Session: sessionConfig{
			Backend:    env.String("SESSION_BACKEND", "memory"),
			CookieName: env.String("SESSION_COOKIE", "sessionid"),
			MaxAge:     env.Duration("SESSION_MAX_AGE", 14*24*time.Hour),
			Secure:     env.Bool("SESSION_SECURE", false),
		},
		Redis: redisConfig{
			Host:     env.String("REDIS_HOST", "localhost"),
			Port:     env.String("REDIS_PORT", "6379"),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
		},
		JWT: jwtConfig{
			Secret: env.RequireString("JWT_SECRET"),
			Issuer: env.String("JWT_ISSUER", "photoedit"),
			TTL:    env.Duration("JWT_TTL", time.Hour),
		},
		Facebook: oauthConfig{
			ClientID:     env.String("FACEBOOK_CLIENT_ID", ""),
			ClientSecret: env.String("FACEBOOK_CLIENT_SECRET", ""),
			RedirectURL:  env.String("FACEBOOK_REDIRECT_URL", "http://localhost:8080/auth/facebook/callback"),
			VerifyTokens: env.Bool("FACEBOOK_VERIFY_TOKENS", false),
		},
		Google: oauthConfig{
			ClientID:     env.String("GOOGLE_CLIENT_ID", ""),
			ClientSecret: env.String("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  env.String("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		},
		ImageHost: imageHostConfig{
			Backend:   env.String("IMAGE_HOST_BACKEND", "local"),
			APIURL:    env.String("IMAGE_HOST_API_URL", "https://api.cloudinary.com/v1_1"),
			CloudName: env.String("IMAGE_HOST_CLOUD_NAME", ""),
			APIKey:    env.String("IMAGE_HOST_API_KEY", ""),
			APISecret: env.String("IMAGE_HOST_API_SECRET", ""),
			Folder:    env.String("IMAGE_HOST_FOLDER", "photoedit"),
			Timeout:   env.Duration("IMAGE_HOST_TIMEOUT", 30*time.Second),
			Root:      env.String("IMAGE_ROOT", "./media"),
			ServeRoot: env.Url("IMAGE_SERVE_ROOT", &url.URL{Scheme: "http", Host: "localhost:8080", Path: "/media/"}),
			MaxBytes:  env.Bytes("IMAGE_MAX_SIZE", 10<<20),
			MaxWidth:  env.Int("IMAGE_MAX_WIDTH", 8000),
			MaxHeight: env.Int("IMAGE_MAX_HEIGHT", 8000),
		},
		Render: renderConfig{
			MaxEdge:  env.Int("RENDER_MAX_EDGE", 2048),
			MaxKeys:  env.Int64("RENDER_CACHE_KEYS", 10000),
			MaxBytes: env.Bytes("RENDER_CACHE_BYTES", 256<<20),
		},
		Log: logConfig{
			Format: env.String("LOG_FORMAT", "text"),
			Level:  env.String("LOG_LEVEL", "info"),
		},
	}
}
