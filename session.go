package accounts

import (
	"context"
	"log/slog"

	"github.com/alexedwards/scs/v2"
)

// Session keys. The session holds a small fixed set of string keys;
// nothing else is ever stored in it.
const (
	// SessionKeyUserID is the authenticated user id.
	SessionKeyUserID = "uid"

	// Transient keys present only between "authorize redirect issued"
	// and "callback received".
	SessionKeyRedirectURI = "redirect_uri"
	SessionKeyPrompt      = "prompt"
	SessionKeyOAuthState  = "oauth_state"
)

// SessionBinder is the only component that mutates session identity.
// Every channel routes login/logout through it so the session shape
// stays consistent.
type SessionBinder struct {
	Manager *scs.SessionManager
}

// Establish clears all transient per-flow keys, rotates the session
// token and binds the session to the given user.
func (b *SessionBinder) Establish(ctx context.Context, userID string) error {
	if err := b.Manager.Clear(ctx); err != nil {
		return err
	}
	// A fresh token on privilege change stops session fixation.
	if err := b.Manager.RenewToken(ctx); err != nil {
		slog.Warn("error renewing session token", "err", err)
	}
	b.Manager.Put(ctx, SessionKeyUserID, userID)
	return nil
}

// Logout removes the authenticated-user binding and everything else.
func (b *SessionBinder) Logout(ctx context.Context) error {
	return b.Manager.Destroy(ctx)
}

// UserID returns the bound user id, or "" when the session is
// anonymous.
func (b *SessionBinder) UserID(ctx context.Context) string {
	return b.Manager.GetString(ctx, SessionKeyUserID)
}

// StashHandshake records the in-flight authorize redirect. The session
// is cleared first: it is used only during auth, and stale data from a
// previous failed attempt must not leak into this one.
func (b *SessionBinder) StashHandshake(ctx context.Context, redirectURI, prompt, state string) error {
	if err := b.Manager.Clear(ctx); err != nil {
		return err
	}
	b.Manager.Put(ctx, SessionKeyRedirectURI, redirectURI)
	if prompt != "" {
		b.Manager.Put(ctx, SessionKeyPrompt, prompt)
	}
	b.Manager.Put(ctx, SessionKeyOAuthState, state)
	return nil
}

// PopRedirectURI reads and clears the stored redirect target.
func (b *SessionBinder) PopRedirectURI(ctx context.Context) string {
	return b.Manager.PopString(ctx, SessionKeyRedirectURI)
}

// PeekRedirectURI reads the stored redirect target without clearing it.
func (b *SessionBinder) PeekRedirectURI(ctx context.Context) string {
	return b.Manager.GetString(ctx, SessionKeyRedirectURI)
}

// PopState reads and clears the anti-CSRF state value.
func (b *SessionBinder) PopState(ctx context.Context) string {
	return b.Manager.PopString(ctx, SessionKeyOAuthState)
}

// Prompt returns the in-flight prompt mode, if any.
func (b *SessionBinder) Prompt(ctx context.Context) string {
	return b.Manager.GetString(ctx, SessionKeyPrompt)
}

// ClearHandshake unconditionally drops every transient handshake key.
// Called once a callback is processed, success or failure, so a stale
// redirect target can never be replayed.
func (b *SessionBinder) ClearHandshake(ctx context.Context) {
	b.Manager.Remove(ctx, SessionKeyRedirectURI)
	b.Manager.Remove(ctx, SessionKeyPrompt)
	b.Manager.Remove(ctx, SessionKeyOAuthState)
}
