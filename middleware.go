package accounts

import (
	"log/slog"
	"net/http"
)

// Middleware resolves the authenticated user behind a request's
// session. It is read-only except for one case: a session pointing at a
// user that no longer exists is destroyed on sight.
type Middleware struct {
	Binder *SessionBinder
	Users  UserStore
}

// OptionalUserID returns the session's user id, or "" for an anonymous
// session. A dangling uid (user deleted since login) destroys the
// session and is reported as ErrNoSession.
func (m *Middleware) OptionalUserID(r *http.Request) (string, error) {
	ctx := r.Context()
	userID := m.Binder.UserID(ctx)
	if userID == "" {
		return "", nil
	}
	exists, err := m.Users.Exists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := m.Binder.Logout(ctx); err != nil {
			slog.Warn("error destroying stale session", "err", err)
		}
		return "", ErrNoSession
	}
	return userID, nil
}

// UserID is OptionalUserID for operations that require an authenticated
// subject: an anonymous session is ErrNoSession.
func (m *Middleware) UserID(r *http.Request) (string, error) {
	userID, err := m.OptionalUserID(r)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", ErrNoSession
	}
	return userID, nil
}

// EnsureUser rejects anonymous requests with a 401 before the wrapped
// handler runs. Meant for host applications mounting extra routes next
// to the auth surface.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.UserID(r); err != nil {
			status, authErr := httpStatusFor(err)
			writeError(w, status, authErr)
			return
		}
		next.ServeHTTP(w, r)
	})
}
