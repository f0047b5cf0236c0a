package controllers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/hiddengems/hiddengems-backend/api/responses"
	"github.com/hiddengems/hiddengems-backend/api/validators"
	"github.com/hiddengems/hiddengems-backend/internal/auth"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/oauth"
)

const (
	tokenHeader          = "X-HG-Token"
	accessCookieName     = "hg_access_token"
	refreshCookieName    = "hg_refresh_token"
	oauthStateCookieName = "hg_oauth_state"
	oauthRedirectCookie  = "hg_oauth_redirect"
	oauthStateTTL        = 10 * time.Minute
)

// AuthRegister creates an account and signs the caller in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

// AuthRefresh rotates the refresh token bound to the presented (possibly
// expired) access token.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token, err := parseBearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pair, err := svc.Refresh(r.Context(), token, body.RefreshToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(tokenHeader, pair.AccessToken)
		responses.WriteSuccess(w, pair)
	}
}

// AuthLogout revokes the session tied to the presented access token.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		token, err := parseBearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Logout(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// AuthOAuthStart redirects to the provider consent screen. The state and the
// post-login redirect ride in short-lived cookies.
func AuthOAuthStart(cfg *config.Config, exchanger oauth.Exchanger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if exchanger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "oauth provider unavailable"))
			return
		}

		state, err := newOAuthState()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate oauth state"))
			return
		}

		secure := !cfg.App.IsDev()
		http.SetCookie(w, shortCookie(oauthStateCookieName, state, secure))
		http.SetCookie(w, shortCookie(oauthRedirectCookie, safeRedirect(r.URL.Query().Get("redirect")), secure))
		http.Redirect(w, r, exchanger.AuthCodeURL(state), http.StatusFound)
	}
}

// AuthCallback exchanges the provider code, signs the user in, stores the
// tokens in HttpOnly cookies and redirects back into the app.
func AuthCallback(cfg *config.Config, exchanger oauth.Exchanger, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if exchanger == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "oauth provider unavailable"))
			return
		}

		query := r.URL.Query()
		code := strings.TrimSpace(query.Get("code"))
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "code is required"))
			return
		}

		stateCookie, err := r.Cookie(oauthStateCookieName)
		if err != nil || stateCookie.Value == "" || stateCookie.Value != query.Get("state") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid oauth state"))
			return
		}

		profile, err := exchanger.Exchange(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.OAuthLogin(r.Context(), auth.OAuthProfile{
			Provider:  profile.Provider,
			Subject:   profile.Subject,
			Email:     profile.Email,
			FullName:  profile.Name,
			AvatarURL: profile.Picture,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redirect := query.Get("redirect")
		if redirect == "" {
			if c, err := r.Cookie(oauthRedirectCookie); err == nil {
				redirect = c.Value
			}
		}

		secure := !cfg.App.IsDev()
		http.SetCookie(w, expiredCookie(oauthStateCookieName, secure))
		http.SetCookie(w, expiredCookie(oauthRedirectCookie, secure))
		http.SetCookie(w, sessionCookie(accessCookieName, result.AccessToken, cfg.JWT.ExpirationMinutes, secure))
		http.SetCookie(w, sessionCookie(refreshCookieName, result.RefreshToken, cfg.JWT.RefreshTokenTTLMinutes, secure))

		target := strings.TrimRight(cfg.App.BaseURL, "/") + safeRedirect(redirect)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func parseBearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}

// safeRedirect keeps redirects on our own origin: only relative paths pass.
func safeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "/"
	}
	return raw
}

func newOAuthState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func sessionCookie(name, value string, maxAgeMinutes int, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAgeMinutes > 0 {
		c.MaxAge = maxAgeMinutes * 60
	}
	return c
}

func shortCookie(name, value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredCookie(name string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
