// Package web serves the HTML pages and the login endpoint.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Rubix982/django-photo-edit/internal/effects"
	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"github.com/Rubix982/django-photo-edit/internal/pkg/middleware"
	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/service"
	"github.com/Rubix982/django-photo-edit/internal/store"
)

const (
	homePath   = "/"
	photosPath = "/photo/photos/"
)

type authService interface {
	Login(ctx context.Context, sess *session.Session, p service.Profile) (service.LoginResult, error)
	LoginURL(env oauth.Env, provider string) (string, error)
	Callback(ctx context.Context, sess *session.Session, r service.CallbackRequest) (service.LoginResult, error)
	Logout(ctx context.Context, sess *session.Session) error
}

type photoService interface {
	List(ctx context.Context, userID int64) ([]store.Photo, error)
	Upload(ctx context.Context, sess *session.Session, r service.UploadRequest) (store.Photo, error)
	Edit(ctx context.Context, r service.EditRequest) (service.EditPage, error)
	Render(ctx context.Context, r service.EditRequest) (effects.Output, error)
	SaveEdit(ctx context.Context, sess *session.Session, r service.EditRequest) (store.Photo, error)
	Delete(ctx context.Context, sess *session.Session, r service.DeleteRequest) error
}

type sessionManager interface {
	Middleware() router.Middleware
	Save(ctx context.Context, w http.ResponseWriter, s *session.Session) error
	ExpireCookie(w http.ResponseWriter)
}

type API struct {
	auth      authService
	photos    photoService
	sessions  sessionManager
	router    *router.Router
	pages     pages
	tokenKey  []byte
	provider  string
	providers []string
	maxUpload int64
	media     http.Handler
	metrics   http.Handler
	ready     func(ctx context.Context) error
	mw        []router.Middleware
}

type APIOption func(*API) *API

// WithTokenKey enables bearer token authentication next to sessions.
func WithTokenKey(key []byte) APIOption {
	return func(a *API) *API {
		a.tokenKey = key
		return a
	}
}

// WithProviders lists the OAuth providers offered on the homepage. The
// first one is assumed for logins that do not name a provider.
func WithProviders(names ...string) APIOption {
	return func(a *API) *API {
		a.providers = names
		if len(names) > 0 {
			a.provider = names[0]
		}
		return a
	}
}

func WithMaxUpload(n int64) APIOption {
	return func(a *API) *API {
		a.maxUpload = n
		return a
	}
}

// WithMedia serves locally hosted images under /media/.
func WithMedia(h http.Handler) APIOption {
	return func(a *API) *API {
		a.media = h
		return a
	}
}

func WithMetrics(h http.Handler) APIOption {
	return func(a *API) *API {
		a.metrics = h
		return a
	}
}

func WithReadiness(fn func(ctx context.Context) error) APIOption {
	return func(a *API) *API {
		a.ready = fn
		return a
	}
}

// WithMiddleware adds middleware that runs before the session is loaded.
func WithMiddleware(mw ...router.Middleware) APIOption {
	return func(a *API) *API {
		a.mw = append(a.mw, mw...)
		return a
	}
}

func NewAPI(auth authService, photos photoService, sessions sessionManager, opts ...APIOption) *API {
	if auth == nil || photos == nil || sessions == nil {
		panic("auth, photo and session services are required")
	}

	a := &API{
		auth:      auth,
		photos:    photos,
		sessions:  sessions,
		router:    router.New(),
		pages:     loadPages(),
		provider:  "facebook",
		maxUpload: 10 << 20,
	}
	for _, opt := range opts {
		a = opt(a)
	}

	a.mount()
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) mount() {
	a.router.Use(a.mw...)
	a.router.Use(a.sessions.Middleware())
	a.router.Use(middleware.Authenticate(a.tokenKey))

	a.router.HandleFunc("GET /{$}", a.handleHome)
	a.router.HandleFunc("GET /healthz", a.handleHealth)
	a.router.HandleFunc("GET /readyz", a.handleReady)
	if a.metrics != nil {
		a.router.Handle("GET /metrics", a.metrics)
	}
	if a.media != nil {
		a.router.Handle("GET /media/", a.media)
	}

	photo := a.router.SubRouter("/photo")
	photo.HandleFunc("POST /login/{$}", a.handleLogin)
	photo.HandleFunc("GET /signout/{$}", a.handleSignout)

	private := photo.Group(middleware.RequireUser(homePath))
	private.HandleFunc("GET /photos/{$}", a.handlePhotos)
	private.HandleFunc("POST /photos/{$}", a.handleUpload)
	private.HandleFunc("GET /edit/{id}/{effect}/{$}", a.handleEdit)
	private.HandleFunc("POST /edit/{id}/{effect}/{$}", a.handleSaveEdit)
	private.HandleFunc("GET /edit/{id}/{effect}/image", a.handleEditImage)
	private.HandleFunc("GET /delete/{id}/{public_id...}", a.handleDelete)

	oauthRoutes := a.router.SubRouter("/auth")
	oauthRoutes.HandleFunc("GET /{provider}/login", a.handleOAuthLogin)
	oauthRoutes.HandleFunc("GET /{provider}/callback", a.handleOAuthCallback)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			slog.Warn("not ready", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

// saveSession persists the session when a handler changed it. It must run
// before anything is written to w.
func (a *API) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if !sess.Modified() {
		return true
	}

	if err := a.sessions.Save(r.Context(), w, sess); err != nil {
		slog.Error("failed to save session",
			"error", err,
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
		return false
	}
	return true
}

func (a *API) redirect(w http.ResponseWriter, r *http.Request, sess *session.Session, to string) {
	a.saveSession(w, r, sess)
	http.Redirect(w, r, to, http.StatusFound)
}
