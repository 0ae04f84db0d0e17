package accounts

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenExchanger is the provider SDK boundary: it builds the authorize
// URL and turns a callback code into claims. Token-exchange mechanics
// (HTTP, retries, JWKS) live behind it.
type TokenExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string) (*SSOUserInfo, error)
}

// InnopolisEndpoint is the university ADFS OAuth2 endpoint pair.
var InnopolisEndpoint = oauth2.Endpoint{
	AuthURL:  "https://sso.university.innopolis.ru/adfs/oauth2/authorize",
	TokenURL: "https://sso.university.innopolis.ru/adfs/oauth2/token",
}

// OAuth2Exchanger implements TokenExchanger on x/oauth2 and decodes the
// provider id_token for claims.
type OAuth2Exchanger struct {
	Config *oauth2.Config

	// Resource is the ADFS resource identifier forwarded on the
	// authorize request when set.
	Resource string
}

// NewInnopolisExchanger builds an exchanger for the university SSO.
func NewInnopolisExchanger(clientID, clientSecret, callbackURL, resource string) *OAuth2Exchanger {
	return &OAuth2Exchanger{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid"},
			Endpoint:     InnopolisEndpoint,
		},
		Resource: resource,
	}
}

func (e *OAuth2Exchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	if e.Resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", e.Resource))
	}
	return e.Config.AuthCodeURL(state, opts...)
}

func (e *OAuth2Exchanger) Exchange(ctx context.Context, code string) (*SSOUserInfo, error) {
	token, err := e.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, fmt.Errorf("provider returned no id_token")
	}
	// The id_token arrived over the direct, TLS-authenticated token
	// exchange, so its claims are trusted without a JWKS round-trip.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode id_token: %w", err)
	}
	info := &SSOUserInfo{}
	info.Subject, _ = claims["sub"].(string)
	info.Email, _ = claims["email"].(string)
	info.Name, _ = claims["commonname"].(string)
	if info.Name == "" {
		info.Name, _ = claims["name"].(string)
	}
	info.Issuer, _ = claims["iss"].(string)
	if info.Subject == "" {
		return nil, fmt.Errorf("id_token has no subject")
	}
	return info, nil
}

// SSOChannel drives the provider redirect handshake and reconciles
// callback outcomes into a session.
type SSOChannel struct {
	Exchanger TokenExchanger
	Users     UserStore
	Binder    *SessionBinder
	Guard     *RedirectGuard

	// DefaultLandingURL is where recovery sends the browser when no
	// better destination is known.
	DefaultLandingURL string

	// LoginPath is this channel's own login entry point, used to
	// re-enter authentication during mismatch recovery. Defaults to
	// "/innopolis/login".
	LoginPath string
}

func (s *SSOChannel) loginPath() string {
	if s.LoginPath != "" {
		return s.LoginPath
	}
	return "/innopolis/login"
}

func generateState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Warn("error generating oauth state", "err", err)
	}
	return base64.URLEncoding.EncodeToString(b)
}

// HandleLogin issues the provider redirect. The session is cleared and
// reloaded with just the handshake keys; prompt is forwarded only when
// the caller supplied one ("none" suppresses interactive consent).
func (s *SSOChannel) HandleLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	prompt := r.URL.Query().Get("prompt")

	if err := s.Guard.Validate(redirectURI); err != nil {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidReturnURL, "Invalid return URL"))
		return
	}

	state := generateState()
	if err := s.Binder.StashHandshake(r.Context(), redirectURI, prompt, state); err != nil {
		writeError(w, http.StatusInternalServerError, NewAuthError("internal_error", "Failed to store session state"))
		return
	}

	var opts []oauth2.AuthCodeOption
	if prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", prompt))
	}
	http.Redirect(w, r, s.Exchanger.AuthCodeURL(state, opts...), http.StatusFound)
}

// HandleCallback interprets the provider's callback: explicit provider
// errors, state mismatches (recovered, never surfaced) and successful
// exchanges.
func (s *SSOChannel) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		if s.Binder.Prompt(ctx) == "none" {
			// A failed silent probe is the expected "not signed in"
			// answer to a background session check, not an error the
			// user should see.
			redirectURI := s.Binder.PopRedirectURI(ctx)
			if err := s.Guard.Validate(redirectURI); err != nil {
				redirectURI = s.DefaultLandingURL
			}
			if err := s.Binder.Manager.Clear(ctx); err != nil {
				slog.Warn("error clearing session", "err", err)
			}
			http.Redirect(w, r, redirectURI, http.StatusFound)
			return
		}
		writeError(w, http.StatusForbidden, &AuthError{
			Code:        ErrCodeProviderError,
			Message:     providerErr,
			Description: query.Get("error_description"),
		})
		return
	}

	sessionState := s.Binder.PopState(ctx)
	if sessionState == "" || sessionState != query.Get("state") {
		// Session differs between login and callback, the classic
		// multi-tab case. Not attributable to user error.
		s.recoverMismatchedState(w, r)
		return
	}

	info, err := s.Exchanger.Exchange(ctx, query.Get("code"))
	if err != nil {
		slog.Warn("oauth exchange failed", "err", err)
		s.recoverMismatchedState(w, r)
		return
	}

	user, err := s.Users.RegisterOrUpdateViaSSO(ctx, info)
	if err != nil {
		slog.Error("failed to register sso user", "err", err)
		writeError(w, http.StatusInternalServerError, NewAuthError("internal_error", "Failed to resolve user"))
		return
	}

	redirectURI := s.Binder.PopRedirectURI(ctx)
	// Validated at issue time too, but the value round-tripped through
	// session storage, so it crosses the trust boundary again here.
	if err := s.Guard.Validate(redirectURI); err != nil {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidReturnURL, "Invalid return URL"))
		return
	}

	if err := s.Binder.Establish(ctx, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, NewAuthError("internal_error", "Failed to establish session"))
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// recoverMismatchedState routes the browser somewhere sensible when the
// redirect-issuing session and the callback session disagree. It never
// surfaces an error.
func (s *SSOChannel) recoverMismatchedState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := s.Binder.UserID(ctx)
	redirectURI := s.Binder.PeekRedirectURI(ctx)
	if redirectURI != "" && s.Guard.Validate(redirectURI) != nil {
		redirectURI = ""
	}
	s.Binder.ClearHandshake(ctx)

	if userID != "" {
		// Already authenticated in another tab; just get the user where
		// they wanted to be.
		if redirectURI != "" {
			http.Redirect(w, r, redirectURI, http.StatusFound)
			return
		}
		http.Redirect(w, r, s.DefaultLandingURL, http.StatusFound)
		return
	}

	if redirectURI != "" {
		// Not authenticated but the destination is known: ask them to
		// authenticate again, destination preserved.
		retry := s.loginPath() + "?redirect_uri=" + url.QueryEscape(redirectURI)
		http.Redirect(w, r, retry, http.StatusFound)
		return
	}

	http.Redirect(w, r, s.DefaultLandingURL, http.StatusFound)
}
