package accounts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// EmailConfig enables the email verification channel.
type EmailConfig struct {
	Store  EmailFlowStore
	Sender EmailSender
	Tokens *EmailFlowTokens

	// Engine overrides the default engine built from Store. Mostly for
	// tests that need a fixed clock.
	Engine *EmailFlowEngine
}

// SSOConfig enables the Innopolis SSO channel.
type SSOConfig struct {
	Exchanger TokenExchanger
}

// TelegramConfig enables the telegram widget channel.
type TelegramConfig struct {
	BotToken string
}

// Accounts is the HTTP surface binding the three identity channels to
// one session. A nil channel config disables that channel; its routes
// answer with a channel_disabled error instead of vanishing from the
// router.
type Accounts struct {
	Session *scs.SessionManager
	Users   UserStore
	Guard   *RedirectGuard

	// WebURL is the default landing page for recovery redirects.
	WebURL string

	Email    *EmailConfig
	SSO      *SSOConfig
	Telegram *TelegramConfig

	binder     *SessionBinder
	middleware *Middleware
	emailFlows *EmailFlowEngine
	sso        *SSOChannel
	telegram   *TelegramChannel
}

// EnsureDefaults wires the internal engines from the configured
// collaborators. Safe to call more than once.
func (a *Accounts) EnsureDefaults() *Accounts {
	if a.Guard == nil {
		a.Guard = NewRedirectGuard()
	}
	if a.binder == nil {
		a.binder = &SessionBinder{Manager: a.Session}
	}
	if a.middleware == nil {
		a.middleware = &Middleware{Binder: a.binder, Users: a.Users}
	}
	if a.Email != nil && a.emailFlows == nil {
		if a.Email.Engine != nil {
			a.emailFlows = a.Email.Engine
		} else {
			a.emailFlows = &EmailFlowEngine{Store: a.Email.Store}
		}
	}
	if a.SSO != nil && a.sso == nil {
		a.sso = &SSOChannel{
			Exchanger:         a.SSO.Exchanger,
			Users:             a.Users,
			Binder:            a.binder,
			Guard:             a.Guard,
			DefaultLandingURL: a.WebURL,
		}
	}
	if a.Telegram != nil && a.telegram == nil {
		a.telegram = &TelegramChannel{
			BotToken: a.Telegram.BotToken,
			Users:    a.Users,
			Binder:   a.binder,
		}
	}
	return a
}

// Middleware exposes the session-user resolver for host applications.
func (a *Accounts) Middleware() *Middleware {
	a.EnsureDefaults()
	return a.middleware
}

// Handler returns the full route surface wrapped in the session
// middleware.
func (a *Accounts) Handler() http.Handler {
	a.EnsureDefaults()

	r := mux.NewRouter()
	r.HandleFunc("/email/connect", a.channelGate(a.Email == nil, a.handleEmailConnect)).Methods(http.MethodPost)
	r.HandleFunc("/email/validate-code-for-users", a.channelGate(a.Email == nil, a.handleEmailValidate)).Methods(http.MethodPost)
	r.HandleFunc("/innopolis/login", a.channelGate(a.SSO == nil, a.sso.HandleLogin)).Methods(http.MethodGet)
	r.HandleFunc("/innopolis/callback", a.channelGate(a.SSO == nil, a.sso.HandleCallback)).Methods(http.MethodGet)
	r.HandleFunc("/telegram/connect", a.channelGate(a.Telegram == nil, a.handleTelegramConnect)).Methods(http.MethodPost)
	r.HandleFunc("/telegram/login", a.channelGate(a.Telegram == nil, a.handleTelegramLogin)).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodGet)
	r.HandleFunc("/me", a.handleMe).Methods(http.MethodGet)

	return a.Session.LoadAndSave(r)
}

// channelGate answers for routes whose channel is not configured.
func (a *Accounts) channelGate(disabled bool, h http.HandlerFunc) http.HandlerFunc {
	if !disabled {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, NewAuthError(ErrCodeChannelDisabled, "Channel is not configured"))
	}
}

type emailConnectRequest struct {
	Email string `json:"email"`
}

type emailFlowReference struct {
	EmailFlowID string `json:"email_flow_id"`
}

func (a *Accounts) handleEmailConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := a.middleware.UserID(r)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}

	var req emailConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeBadRequest, "Email is required"))
		return
	}

	flow, code, err := a.emailFlows.StartFlow(r.Context(), req.Email, UserSubject(userID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, NewAuthError("internal_error", "Failed to start email flow"))
		return
	}

	message := a.Email.Sender.RenderVerificationMessage(flow.Email, code)
	if err := a.Email.Sender.Send(message, flow.Email); err != nil {
		slog.Warn("verification email dispatch failed", "err", err)
		writeError(w, http.StatusBadGateway, NewAuthError("dispatch_failed", "Failed to send verification email"))
		return
	}
	if err := a.emailFlows.MarkSent(r.Context(), flow.ID); err != nil {
		slog.Warn("failed to mark email flow sent", "flow_id", flow.ID, "err", err)
	}

	writeJSON(w, http.StatusOK, emailFlowReference{EmailFlowID: flow.ID})
}

type emailValidateRequest struct {
	EmailFlowID      string `json:"email_flow_id"`
	VerificationCode string `json:"verification_code"`
}

type emailFlowResponse struct {
	Status EmailFlowStatus `json:"status"`
	Email  string          `json:"email,omitempty"`
	Token  string          `json:"email_verification_token,omitempty"`
}

func (a *Accounts) handleEmailValidate(w http.ResponseWriter, r *http.Request) {
	userID, err := a.middleware.UserID(r)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}

	var req emailValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EmailFlowID == "" {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeBadRequest, "email_flow_id and verification_code are required"))
		return
	}

	result, err := a.emailFlows.VerifyFlow(r.Context(), req.EmailFlowID, req.VerificationCode, UserSubject(userID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, NewAuthError("internal_error", "Failed to verify email flow"))
		return
	}

	resp := emailFlowResponse{Status: result.Status}
	if result.Status == EmailFlowSuccess {
		resp.Email = result.Email
		if a.Email.Tokens != nil {
			token, err := a.Email.Tokens.Mint(result.Flow.ID)
			if err != nil {
				slog.Warn("failed to mint email flow token", "err", err)
			} else {
				resp.Token = token
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeWidgetData(r *http.Request) (*TelegramWidgetData, error) {
	var data TelegramWidgetData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.ID == 0 || data.Hash == "" {
		return nil, errors.New("id and hash are required")
	}
	return &data, nil
}

func (a *Accounts) handleTelegramConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := a.middleware.UserID(r)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}

	data, err := decodeWidgetData(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeBadRequest, "Invalid widget payload"))
		return
	}

	if err := a.telegram.Connect(r.Context(), userID, data); err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *Accounts) handleTelegramLogin(w http.ResponseWriter, r *http.Request) {
	userID, err := a.middleware.OptionalUserID(r)
	if err != nil && !errors.Is(err, ErrNoSession) {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}

	data, err := decodeWidgetData(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeBadRequest, "Invalid widget payload"))
		return
	}

	result, err := a.telegram.Login(r.Context(), userID, data)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"need_to_connect": result.NeedToConnect})
}

func (a *Accounts) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.binder.Logout(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	if err := a.Guard.Validate(redirectURI); err != nil {
		writeError(w, http.StatusBadRequest, NewAuthError(ErrCodeInvalidReturnURL, "Invalid return URL"))
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

func (a *Accounts) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := a.middleware.UserID(r)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}
	user, err := a.Users.Read(r.Context(), userID)
	if err != nil {
		status, authErr := httpStatusFor(err)
		writeError(w, status, authErr)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
