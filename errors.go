package accounts

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes returned in JSON error bodies.
const (
	ErrCodeNoSession        = "no_session"
	ErrCodeInvalidReturnURL = "invalid_return_url"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeNoIdentityFound  = "no_identity_found"
	ErrCodeChannelDisabled  = "channel_disabled"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeProviderError    = "provider_error"
)

// Sentinel errors for the engine layer. Handlers map these to HTTP
// statuses; everything else surfaces as a 500.
var (
	ErrNoSession        = errors.New("no authenticated session")
	ErrInvalidReturnURL = errors.New("redirect target is not allowed")
	ErrInvalidSignature = errors.New("widget payload failed signature or freshness check")
	ErrNoIdentityFound  = errors.New("no identity found for external subject")
	ErrStateMismatch    = errors.New("oauth state mismatch between sessions")

	// Store-level sentinels. Implementations must return exactly these
	// (possibly wrapped) so the engines can branch on them.
	ErrFlowNotFound = errors.New("email flow not found")
	ErrFlowConflict = errors.New("email flow is not in the expected status")
	ErrUserNotFound = errors.New("user not found")
)

// AuthError carries a machine-readable code alongside the message. It is
// the JSON error shape every handler writes.
type AuthError struct {
	Code        string `json:"code"`
	Message     string `json:"error"`
	Description string `json:"description,omitempty"`
}

func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

func (e *AuthError) Error() string {
	return e.Message
}

// writeError writes an AuthError as a JSON response body.
func writeError(w http.ResponseWriter, status int, authErr *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authErr)
}

// writeJSON writes an arbitrary success payload.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// httpStatusFor maps engine sentinels to their HTTP status and code.
func httpStatusFor(err error) (int, *AuthError) {
	switch {
	case errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized, NewAuthError(ErrCodeNoSession, "Authentication required")
	case errors.Is(err, ErrInvalidReturnURL):
		return http.StatusBadRequest, NewAuthError(ErrCodeInvalidReturnURL, "Invalid return URL")
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest, NewAuthError(ErrCodeInvalidSignature, "Invalid widget signature")
	case errors.Is(err, ErrNoIdentityFound):
		return http.StatusUnauthorized, NewAuthError(ErrCodeNoIdentityFound, "No account is linked to this identity")
	default:
		return http.StatusInternalServerError, NewAuthError("internal_error", "Internal error")
	}
}
