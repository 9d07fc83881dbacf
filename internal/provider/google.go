package provider

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleIssuer       = "https://accounts.google.com"
	googleScopeEmail   = "email"
	googleScopeProfile = "profile"
)

// Google implements the identity provider for Google sign-in. The profile
// comes from the verified OpenID Connect ID token.
type Google struct {
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Issuer overrides the discovery URL.
	Issuer string
}

type googleClaims struct {
	Sub        string `json:"sub,omitempty"`
	Email      string `json:"email,omitempty"`
	Verified   bool   `json:"email_verified,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	Picture    string `json:"picture,omitempty"`
}

func NewGoogle(ctx context.Context, google GoogleConfig) (*Google, error) {
	issuer := google.Issuer
	if issuer == "" {
		issuer = googleIssuer
	}

	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("new oidc provider: %w", err)
	}

	ep := p.Endpoint()
	if issuer == googleIssuer {
		ep = endpoints.Google
	}

	return newGoogle(google, ep, p.Verifier(&oidc.Config{ClientID: google.ClientID})), nil
}

func newGoogle(google GoogleConfig, ep oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, googleScopeProfile, googleScopeEmail},
			Endpoint:     ep,
		},
		verifier: verifier,
	}
}

func (g *Google) LoginURL(state string) (string, error) {
	return g.cfg.AuthCodeURL(state), nil
}

func (g *Google) Exchange(ctx context.Context, code string) (oauth.User, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return oauth.User{}, err
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return oauth.User{}, fmt.Errorf("%w: no id token", oauth.ErrAuthFailed)
	}

	idTok, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return oauth.User{}, fmt.Errorf("%w: verify id token: %w", oauth.ErrAuthFailed, err)
	}

	var usr googleClaims
	if err := idTok.Claims(&usr); err != nil {
		return oauth.User{}, fmt.Errorf("read claims: %w", err)
	}

	var email string
	if usr.Verified {
		email = usr.Email
	}

	return oauth.User{
		ID:        usr.Sub,
		FirstName: nameOrDefault(usr.GivenName, nameOrDefault(usr.Name, defaultName(usr.Sub))),
		LastName:  usr.FamilyName,
		Email:     email,
		Picture:   usr.Picture,
	}, nil
}

func nameOrDefault(name, def string) string {
	if name != "" {
		return name
	}
	return def
}

func defaultName(sub string) string {
	id := sha1.Sum([]byte(sub))
	return fmt.Sprintf("google_%x", id[:4])
}
