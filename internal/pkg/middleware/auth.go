package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Rubix982/django-photo-edit/internal/pkg/router"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

var userIDKey ctxKey

// Authenticate resolves the caller from the session or, failing that, from
// a bearer token signed with key. It never rejects a request; RequireUser
// does that.
func Authenticate(key any) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := session.FromContext(r.Context()); s.Authenticated() {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), s.UserID)))
				return
			}

			rawToken := bearer(r)
			if rawToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			uid, err := parseSubject(rawToken, key)
			if err != nil {
				slog.Warn("rejected bearer token",
					"error", err,
					"method", r.Method,
					"url", r.URL.String(),
					"remote_addr", r.RemoteAddr,
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

// RequireUser lets only authenticated requests through. Browsers are sent
// to redirect, API clients get 401.
func RequireUser(redirect string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserIDFromContext(r.Context()) != 0 {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") != "" || strings.Contains(r.Header.Get("Accept"), "application/json") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			http.Redirect(w, r, redirect, http.StatusFound)
		})
	}
}

func parseSubject(rawToken string, key any) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}

	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return 0, jwt.ErrTokenInvalidSubject
	}

	return uid, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}

	if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return h
}

func WithUserID(ctx context.Context, uid int64) context.Context {
	return context.WithValue(ctx, userIDKey, uid)
}

// UserIDFromContext returns the authenticated user id, or 0.
func UserIDFromContext(ctx context.Context) int64 {
	uid, _ := ctx.Value(userIDKey).(int64)
	return uid
}
