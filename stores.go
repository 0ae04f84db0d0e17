package accounts

import (
	"context"
	"time"
)

// User is a local account. Identity linkage (email, SSO subject,
// telegram subject) lives on the user record and is owned by the
// UserStore; the engines only read and write it through that interface.
type User struct {
	ID string `json:"id"`

	// Innopolis SSO linkage
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	SSOSubject string `json:"sso_subject,omitempty"`

	// Telegram linkage
	TelegramID       int64  `json:"telegram_id,omitempty"`
	TelegramUsername string `json:"telegram_username,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SSOUserInfo holds the claims extracted from a successful provider
// token exchange.
type SSOUserInfo struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Issuer  string `json:"issuer,omitempty"`
}

// UserStore is the user repository collaborator. Implementations own
// persistence and the uniqueness of external-subject linkages.
type UserStore interface {
	// Exists reports whether the user id refers to a live account.
	Exists(ctx context.Context, id string) (bool, error)

	// Read returns the user or ErrUserNotFound.
	Read(ctx context.Context, id string) (*User, error)

	// ReadByTelegramID resolves a user by telegram subject id, or
	// ErrUserNotFound.
	ReadByTelegramID(ctx context.Context, telegramID int64) (*User, error)

	// RegisterOrUpdateViaSSO upserts a user keyed by the SSO subject:
	// creates the account on first login, refreshes email/name on
	// subsequent ones.
	RegisterOrUpdateViaSSO(ctx context.Context, info *SSOUserInfo) (*User, error)

	// UpdateTelegram binds the verified telegram subject to the user.
	UpdateTelegram(ctx context.Context, userID string, data *TelegramWidgetData) error
}

// EmailFlowStore persists verification flows. MarkSent and FinalizeFlow
// must be atomic per flow id (compare-and-swap on status) so that two
// concurrent verification attempts cannot both transition the same
// flow.
type EmailFlowStore interface {
	CreateFlow(ctx context.Context, flow *EmailFlow) error

	// GetFlow returns the flow or ErrFlowNotFound.
	GetFlow(ctx context.Context, id string) (*EmailFlow, error)

	// MarkSent transitions pending -> sent. Returns ErrFlowConflict if
	// the flow is not pending, ErrFlowNotFound if absent.
	MarkSent(ctx context.Context, id string) error

	// FinalizeFlow transitions a pre-terminal flow (pending or sent) to
	// the given terminal status, recording the verifying subject and
	// time. If the flow is already terminal the stored flow is returned
	// with won=false and no mutation happens; at most one caller ever
	// observes won=true for a given flow.
	FinalizeFlow(ctx context.Context, id string, status EmailFlowStatus, subject Subject, at time.Time) (flow *EmailFlow, won bool, err error)
}
