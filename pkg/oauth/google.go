package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

const (
	ProviderGoogle     = "google"
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	userInfoBodyLimit  = 1 << 16
)

var errNotConfigured = errors.New("google oauth client id and secret are required")

// Profile is the identity returned after a successful code exchange.
type Profile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Exchanger turns an authorization code into a verified profile.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Google performs the authorization-code flow against Google's endpoints.
type Google struct {
	cfg         *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// Option customises the Google client; mostly used by tests.
type Option func(*Google)

// WithEndpoint overrides the OAuth token/auth endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(g *Google) { g.cfg.Endpoint = endpoint }
}

// WithUserInfoURL overrides the userinfo endpoint.
func WithUserInfoURL(url string) Option {
	return func(g *Google) {
		if strings.TrimSpace(url) != "" {
			g.userInfoURL = url
		}
	}
}

// WithHTTPClient sets the client used for both token and userinfo calls.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Google) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewGoogle builds the exchanger from config.
func NewGoogle(cfg config.OAuthConfig, opts ...Option) (*Google, error) {
	if !cfg.Enabled() {
		return nil, errNotConfigured
	}
	g := &Google{
		cfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: defaultUserInfoURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// AuthCodeURL returns the consent URL carrying state.
func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange swaps the code for a token and loads the userinfo profile.
func (g *Google) Exchange(ctx context.Context, code string) (*Profile, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "authorization code rejected")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "exchange oauth code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build userinfo request")
	}
	resp, err := g.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "fetch userinfo")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, userInfoBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read userinfo")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("status %d", resp.StatusCode), "userinfo request failed")
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode userinfo")
	}
	if info.Sub == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "userinfo missing subject")
	}
	if info.Email != "" && !info.EmailVerified {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "email address is not verified")
	}
	return &Profile{
		Provider:      ProviderGoogle,
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
