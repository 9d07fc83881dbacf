// Package provider holds the identity providers used by the OAuth flow.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Rubix982/django-photo-edit/internal/oauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	facebookGraphURL     = "https://graph.facebook.com/v19.0"
	facebookScopeEmail   = "email"
	facebookProfileField = "id,first_name,last_name,email,picture"
)

var ErrTokenRejected = errors.New("access token rejected")

// Facebook implements the code flow against Facebook Login and reads the
// profile from the Graph API.
type Facebook struct {
	cfg      *oauth2.Config
	graphURL string
	client   *http.Client
}

type FacebookConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// GraphURL and Endpoint override the public Facebook hosts.
	GraphURL string
	Endpoint oauth2.Endpoint
}

type facebookProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewFacebook(cfg FacebookConfig) *Facebook {
	ep := cfg.Endpoint
	if ep.AuthURL == "" {
		ep = endpoints.Facebook
	}

	graph := cfg.GraphURL
	if graph == "" {
		graph = facebookGraphURL
	}

	return &Facebook{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{facebookScopeEmail},
			Endpoint:     ep,
		},
		graphURL: graph,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *Facebook) LoginURL(state string) (string, error) {
	return f.cfg.AuthCodeURL(state), nil
}

func (f *Facebook) Exchange(ctx context.Context, code string) (oauth.User, error) {
	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return oauth.User{}, err
	}

	return f.Verify(ctx, tok.AccessToken)
}

// Verify resolves an access token obtained by a client-side login into the
// profile it belongs to.
func (f *Facebook) Verify(ctx context.Context, accessToken string) (oauth.User, error) {
	if accessToken == "" {
		return oauth.User{}, ErrTokenRejected
	}

	q := url.Values{}
	q.Set("fields", facebookProfileField)
	q.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return oauth.User{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return oauth.User{}, fmt.Errorf("get profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var gerr graphError
		_ = json.NewDecoder(resp.Body).Decode(&gerr)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return oauth.User{}, fmt.Errorf("%w: %s", ErrTokenRejected, gerr.Error.Message)
		}
		return oauth.User{}, fmt.Errorf("get profile: status %d: %s", resp.StatusCode, gerr.Error.Message)
	}

	var p facebookProfile
	if err = json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return oauth.User{}, fmt.Errorf("decode profile: %w", err)
	}

	return oauth.User{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Picture:   p.Picture.Data.URL,
	}, nil
}
