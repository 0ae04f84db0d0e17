//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	accounts "github.com/one-zero-eight/accounts"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key              *datastore.Key `datastore:"__key__"`
	Email            string         `datastore:"email"`
	Name             string         `datastore:"name,noindex"`
	SSOSubject       string         `datastore:"sso_subject"`
	TelegramID       int64          `datastore:"telegram_id"`
	TelegramUsername string         `datastore:"telegram_username,noindex"`
	CreatedAt        time.Time      `datastore:"created_at"`
	UpdatedAt        time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *accounts.User {
	return &accounts.User{
		ID:               e.Key.Name,
		Email:            e.Email,
		Name:             e.Name,
		SSOSubject:       e.SSOSubject,
		TelegramID:       e.TelegramID,
		TelegramUsername: e.TelegramUsername,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func UserToEntity(u *accounts.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:              key,
		Email:            u.Email,
		Name:             u.Name,
		SSOSubject:       u.SSOSubject,
		TelegramID:       u.TelegramID,
		TelegramUsername: u.TelegramUsername,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// EmailFlowEntity is the Datastore entity for email verification flows
type EmailFlowEntity struct {
	Key             *datastore.Key `datastore:"__key__"`
	Email           string         `datastore:"email"`
	CodeHash        string         `datastore:"code_hash,noindex"`
	Status          string         `datastore:"status"`
	StartedUserID   string         `datastore:"started_user_id"`
	StartedClientID string         `datastore:"started_client_id"`
	UserID          string         `datastore:"user_id"`
	ClientID        string         `datastore:"client_id"`
	CreatedAt       time.Time      `datastore:"created_at"`
	SentAt          time.Time      `datastore:"sent_at,noindex"`
	VerifiedAt      time.Time      `datastore:"verified_at,noindex"`
}

func (e *EmailFlowEntity) ToFlow() *accounts.EmailFlow {
	return &accounts.EmailFlow{
		ID:         e.Key.Name,
		Email:      e.Email,
		CodeHash:   e.CodeHash,
		Status:     accounts.EmailFlowStatus(e.Status),
		Started:    accounts.Subject{UserID: e.StartedUserID, ClientID: e.StartedClientID},
		Verified:   accounts.Subject{UserID: e.UserID, ClientID: e.ClientID},
		CreatedAt:  e.CreatedAt,
		SentAt:     e.SentAt,
		VerifiedAt: e.VerifiedAt,
	}
}

func FlowToEntity(f *accounts.EmailFlow, key *datastore.Key) *EmailFlowEntity {
	return &EmailFlowEntity{
		Key:             key,
		Email:           f.Email,
		CodeHash:        f.CodeHash,
		Status:          string(f.Status),
		StartedUserID:   f.Started.UserID,
		StartedClientID: f.Started.ClientID,
		UserID:          f.Verified.UserID,
		ClientID:        f.Verified.ClientID,
		CreatedAt:       f.CreatedAt,
		SentAt:          f.SentAt,
		VerifiedAt:      f.VerifiedAt,
	}
}
