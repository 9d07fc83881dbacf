package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/config"
	"github.com/Rubix982/django-photo-edit/internal/imagehost"
	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"github.com/Rubix982/django-photo-edit/internal/pkg/metrics"
	"github.com/Rubix982/django-photo-edit/internal/pkg/middleware"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/provider"
	"github.com/Rubix982/django-photo-edit/internal/service"
	"github.com/Rubix982/django-photo-edit/internal/store"
	"github.com/Rubix982/django-photo-edit/internal/token"
	"github.com/Rubix982/django-photo-edit/internal/web"
	"github.com/prometheus/client_golang/prometheus"
)

const poolStatsInterval = 15 * time.Second

type photoHost interface {
	Upload(ctx context.Context, name string, img io.Reader) (imagehost.Asset, error)
	Delete(ctx context.Context, publicID string) (imagehost.DeleteResult, error)
	Fetch(ctx context.Context, a imagehost.Asset) ([]byte, error)
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log.Format, cfg.Log.Level, os.Stdout)
	slog.SetDefault(logger)
	slog.Info("starting photoedit")

	db, err := store.NewPostgresDB(store.PostgresConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DB:       cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)

	if cfg.DB.MigrateOnStart {
		slog.Info("applying migrations", "path", cfg.DB.MigrationsPath)
		if err := store.Migrate(db, cfg.DB.MigrationsPath); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
	}

	pgs := store.NewPostgresStore(db)
	m := metrics.New(prometheus.NewRegistry())

	sessionStore, pingSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := sessionStore.(io.Closer); ok {
		defer c.Close()
	}
	sessions := session.NewManager(sessionStore,
		session.WithCookieName(cfg.Session.CookieName),
		session.WithMaxAge(cfg.Session.MaxAge),
		session.WithSecureCookie(cfg.Session.Secure),
	)

	issuer := token.NewJWTIssuer(token.JWTConfig{
		Secret: token.NewSecretString(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL,
	})

	auth := oauth.NewAuthenticator()
	authOpts, err := registerProviders(ctx, auth, cfg)
	if err != nil {
		return fmt.Errorf("failed to register oauth providers: %w", err)
	}

	authSrv := service.NewAuth(append([]service.AuthOption{
		service.WithAuthenticator(auth),
		service.WithStore(pgs),
		service.WithAccessToken(issuer),
		service.WithSessions(sessions),
	}, authOpts...)...)

	host, media, err := newImageHost(cfg)
	if err != nil {
		return fmt.Errorf("failed to create image host: %w", err)
	}

	photos := service.NewPhotos(
		service.WithPhotoStore(pgs),
		service.WithImageHost(host),
		service.WithRenderCache(cfg.Render.MaxKeys, cfg.Render.MaxBytes),
		service.WithCacheObserver(m),
		service.WithLimits(service.PhotoLimits{
			MaxBytes:  cfg.ImageHost.MaxBytes,
			MaxWidth:  cfg.ImageHost.MaxWidth,
			MaxHeight: cfg.ImageHost.MaxHeight,
			MaxEdge:   cfg.Render.MaxEdge,
		}),
	)
	defer photos.Close()

	opts := []web.APIOption{
		web.WithTokenKey(issuer.Key()),
		web.WithProviders(auth.Providers()...),
		web.WithMaxUpload(cfg.ImageHost.MaxBytes),
		web.WithMetrics(m.Handler()),
		web.WithReadiness(func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("db: %w", err)
			}
			return pingSessions(ctx)
		}),
		web.WithMiddleware(
			middleware.RequestID(),
			middleware.Recover(),
			middleware.LogWith(logger, middleware.SkipPaths(cfg.HTTP.QuietPaths...)),
			m.Middleware(),
		),
	}
	if media != nil {
		opts = append(opts, web.WithMedia(media))
	}
	api := web.NewAPI(authSrv, photos, sessions, opts...)

	go recordPoolStats(ctx, db, m)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      api,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newLogger(format, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newSessionStore(ctx context.Context, cfg config.Config) (session.Store, func(context.Context) error, error) {
	switch cfg.Session.Backend {
	case "redis":
		rs := session.NewRedisStore(session.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return rs, rs.Ping, nil
	case "memory", "":
		return session.NewMemoryStore(), func(context.Context) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func registerProviders(ctx context.Context, auth *oauth.Authenticator, cfg config.Config) ([]service.AuthOption, error) {
	var opts []service.AuthOption

	for _, name := range unverifiedProviders(cfg) {
		slog.Warn("posted logins are accepted without token verification", "provider", name)
	}

	if cfg.Facebook.Enabled() {
		fb := provider.NewFacebook(provider.FacebookConfig{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			RedirectURL:  cfg.Facebook.RedirectURL,
		})
		if err := auth.Use("facebook", fb); err != nil {
			return nil, err
		}
		if cfg.Facebook.VerifyTokens {
			opts = append(opts, service.WithVerifier("facebook", fb))
		}
	}

	if cfg.Google.Enabled() {
		g, err := provider.NewGoogle(ctx, provider.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create google oauth provider: %w", err)
		}
		if err := auth.Use("google", g); err != nil {
			return nil, err
		}
	}

	return opts, nil
}

// unverifiedProviders lists enabled providers whose posted access tokens
// are trusted as sent.
func unverifiedProviders(cfg config.Config) []string {
	var names []string
	if cfg.Facebook.Enabled() && !cfg.Facebook.VerifyTokens {
		names = append(names, "facebook")
	}
	if cfg.Google.Enabled() {
		names = append(names, "google")
	}
	return names
}

// newImageHost returns the configured host and, for the local backend, the
// handler serving its files.
func newImageHost(cfg config.Config) (photoHost, http.Handler, error) {
	ic := cfg.ImageHost
	switch ic.Backend {
	case "remote":
		return imagehost.NewRemote(imagehost.RemoteConfig{
			APIURL:    ic.APIURL,
			CloudName: ic.CloudName,
			APIKey:    ic.APIKey,
			APISecret: ic.APISecret,
			Folder:    ic.Folder,
			MaxBytes:  ic.MaxBytes,
			Timeout:   ic.Timeout,
		}), nil, nil
	case "local", "":
		local, err := imagehost.NewLocal(imagehost.LocalConfig{
			ServeRoot: ic.ServeRoot,
			Root:      ic.Root,
			MaxWidth:  ic.MaxWidth,
			MaxHeight: ic.MaxHeight,
			MaxBytes:  ic.MaxBytes,
		})
		if err != nil {
			return nil, nil, err
		}
		return local, local.Handler(), nil
	default:
		return nil, nil, fmt.Errorf("unknown image host backend %q", ic.Backend)
	}
}

func recordPoolStats(ctx context.Context, db *sql.DB, m *metrics.Metrics) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := db.Stats()
			m.RecordDBPoolStats(s.OpenConnections, s.InUse, s.Idle, s.WaitCount, s.WaitDuration)
		}
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("photoedit terminated with error", "error", err)
		os.Exit(1)
	}
}
