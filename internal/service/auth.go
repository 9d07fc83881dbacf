package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"github.com/Rubix982/django-photo-edit/internal/pkg/serr"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/provider"
	"github.com/Rubix982/django-photo-edit/internal/store"
	"github.com/Rubix982/django-photo-edit/internal/token"
)

type tokenIssuer interface {
	Issue(claims token.UserClaims) (string, error)
}

// authenticator drives the OAuth redirect flow.
type authenticator interface {
	LoginURL(env oauth.Env, provider string) (string, error)
	Exchange(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error)
}

// tokenVerifier resolves a client-side provider access token to its profile.
type tokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (oauth.User, error)
}

type sessionKeeper interface {
	Rotate(ctx context.Context, s *session.Session) error
	Invalidate(ctx context.Context, s *session.Session) error
}

// Auth signs users in through social providers and keeps the local
// user/identity records in sync with them.
type Auth struct {
	auth        authenticator
	store       store.Store
	accessToken tokenIssuer
	sessions    sessionKeeper
	verifiers   map[string]tokenVerifier
}

type AuthOption func(*Auth) *Auth

func WithAuthenticator(a authenticator) AuthOption {
	return func(s *Auth) *Auth {
		s.auth = a
		return s
	}
}

func WithStore(st store.Store) AuthOption {
	return func(s *Auth) *Auth {
		s.store = st
		return s
	}
}

func WithAccessToken(iss tokenIssuer) AuthOption {
	return func(s *Auth) *Auth {
		s.accessToken = iss
		return s
	}
}

func WithSessions(k sessionKeeper) AuthOption {
	return func(s *Auth) *Auth {
		s.sessions = k
		return s
	}
}

// WithVerifier makes Login check posted access tokens of provider.
func WithVerifier(provider string, v tokenVerifier) AuthOption {
	return func(s *Auth) *Auth {
		s.verifiers[provider] = v
		return s
	}
}

func NewAuth(opts ...AuthOption) *Auth {
	s := &Auth{verifiers: make(map[string]tokenVerifier)}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.auth == nil {
		panic("oauth authenticator is required")
	}

	if s.store == nil {
		panic("store is required")
	}

	if s.accessToken == nil {
		panic("access token issuer is required")
	}

	if s.sessions == nil {
		panic("session keeper is required")
	}

	return s
}

// Profile is what a client posts after logging in with a provider.
type Profile struct {
	Provider    string
	ExternalID  string
	FirstName   string
	LastName    string
	Email       string
	Picture     string
	AccessToken string
}

type LoginResult struct {
	User        store.User
	Created     bool
	AccessToken string
}

// Login finds or creates the local user behind p and signs the session in.
func (s *Auth) Login(ctx context.Context, sess *session.Session, p Profile) (LoginResult, error) {
	if p.Provider == "" || p.ExternalID == "" {
		return LoginResult{}, serr.BadRequest(nil, "social id is required")
	}

	if v, ok := s.verifiers[p.Provider]; ok {
		verified, err := s.verify(ctx, v, p)
		if err != nil {
			return LoginResult{}, err
		}
		p = verified
	}

	id, created, err := s.getOrCreateUser(ctx, p)
	if err != nil {
		return LoginResult{}, fmt.Errorf("get or create user: %w", err)
	}

	if err = s.sessions.Rotate(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("rotate session: %w", err)
	}
	sess.SetUser(id.User.ID)

	at, err := s.accessToken.Issue(token.UserClaims{
		UserID:   id.User.ID,
		Provider: id.Provider,
		Name:     strings.TrimSpace(id.User.FirstName + " " + id.User.LastName),
		Email:    id.User.Email,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}

	return LoginResult{
		User:        id.User,
		Created:     created,
		AccessToken: at,
	}, nil
}

// LoginURL starts the OAuth redirect flow for provider.
func (s *Auth) LoginURL(env oauth.Env, providerName string) (string, error) {
	url, err := s.auth.LoginURL(env, providerName)
	if err != nil {
		if errors.Is(err, oauth.ErrProviderNotFound) {
			return "", serr.NotFound(err, "oauth provider not found").With("provider", providerName)
		}

		return "", fmt.Errorf("login url: %w", err)
	}

	return url, nil
}

type CallbackRequest struct {
	Provider string
	Code     string
	State    string
}

// Callback completes the OAuth redirect flow and logs the user in.
func (s *Auth) Callback(ctx context.Context, sess *session.Session, r CallbackRequest) (LoginResult, error) {
	usr, err := s.auth.Exchange(ctx, sess, r.Provider, r.Code, r.State)
	if err != nil {
		if errors.Is(err, oauth.ErrProviderNotFound) {
			return LoginResult{}, serr.NotFound(err, "provider not found").With("provider", r.Provider)
		}

		if errors.Is(err, oauth.ErrAuthFailed) {
			return LoginResult{}, serr.Unauthorized(err, "authentication failed").With("provider", r.Provider)
		}

		return LoginResult{}, fmt.Errorf("exchange: %w", err)
	}

	// the profile came straight from the provider, no need to verify it again
	id, created, err := s.getOrCreateUser(ctx, profileOf(r.Provider, usr))
	if err != nil {
		return LoginResult{}, fmt.Errorf("get or create user: %w", err)
	}

	if err = s.sessions.Rotate(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("rotate session: %w", err)
	}
	sess.SetUser(id.User.ID)
	sess.AddFlash(session.LevelSuccess, fmt.Sprintf("Signed in as %s.", displayName(id.User)))

	return LoginResult{User: id.User, Created: created}, nil
}

// Logout drops the session and everything in it.
func (s *Auth) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Invalidate(ctx, sess); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

func (s *Auth) verify(ctx context.Context, v tokenVerifier, p Profile) (Profile, error) {
	if p.AccessToken == "" {
		return Profile{}, serr.Unauthorized(nil, "access token is required").With("provider", p.Provider)
	}

	usr, err := v.Verify(ctx, p.AccessToken)
	if err != nil {
		if errors.Is(err, provider.ErrTokenRejected) {
			return Profile{}, serr.Unauthorized(err, "invalid access token").With("provider", p.Provider)
		}
		return Profile{}, serr.NewServiceError(err, http.StatusBadGateway, "login provider unavailable").With("provider", p.Provider)
	}

	if usr.ID != p.ExternalID {
		return Profile{}, serr.Unauthorized(nil, "access token does not belong to this account").
			With("provider", p.Provider).
			With("social_id", p.ExternalID)
	}

	verified := profileOf(p.Provider, usr)
	verified.AccessToken = p.AccessToken
	return verified, nil
}

// getOrCreateUser returns the identity for p, creating the user and the
// identity together when p is new. A known identity gets its picture
// refreshed.
func (s *Auth) getOrCreateUser(ctx context.Context, p Profile) (store.Identity, bool, error) {
	req := store.GetIdentityRequest{
		Provider:   p.Provider,
		ExternalID: p.ExternalID,
	}

	id, err := s.store.GetIdentity(ctx, req)
	if err == nil {
		if p.Picture != "" && p.Picture != id.Picture {
			if err = s.store.UpdateIdentityPicture(ctx, id.ID, p.Picture); err != nil {
				return store.Identity{}, false, fmt.Errorf("update picture: %w", err)
			}
			id.Picture = p.Picture
		}
		return id, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Identity{}, false, fmt.Errorf("get identity: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		userID, err := tx.CreateUser(ctx, store.CreateUserRequest{
			Username:  p.Provider + "_" + p.ExternalID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		_, err = tx.CreateIdentity(ctx, store.CreateIdentityRequest{
			UserID:     userID,
			Provider:   p.Provider,
			ExternalID: p.ExternalID,
			Picture:    p.Picture,
		})
		if err != nil {
			return fmt.Errorf("create identity: %w", err)
		}

		id, err = tx.GetIdentity(ctx, req)
		if err != nil {
			return fmt.Errorf("get identity after create: %w", err)
		}

		return nil
	})
	if errors.Is(err, store.ErrExists) {
		// a concurrent login created it first
		id, err = s.store.GetIdentity(ctx, req)
		if err != nil {
			return store.Identity{}, false, fmt.Errorf("get identity after conflict: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return store.Identity{}, false, fmt.Errorf("with tx: %w", err)
	}

	return id, true, nil
}

func profileOf(providerName string, usr oauth.User) Profile {
	return Profile{
		Provider:   providerName,
		ExternalID: usr.ID,
		FirstName:  usr.FirstName,
		LastName:   usr.LastName,
		Email:      usr.Email,
		Picture:    usr.Picture,
	}
}

func displayName(u store.User) string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}
