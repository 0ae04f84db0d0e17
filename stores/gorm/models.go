//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	accounts "github.com/one-zero-eight/accounts"
)

// UserModel is the GORM model for users
type UserModel struct {
	ID               string `gorm:"primaryKey;size:64"`
	Email            string `gorm:"size:255;index"`
	Name             string `gorm:"size:255"`
	SSOSubject       string `gorm:"size:255;uniqueIndex"`
	TelegramID       int64  `gorm:"index"`
	TelegramUsername string `gorm:"size:255"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *accounts.User {
	return &accounts.User{
		ID:               m.ID,
		Email:            m.Email,
		Name:             m.Name,
		SSOSubject:       m.SSOSubject,
		TelegramID:       m.TelegramID,
		TelegramUsername: m.TelegramUsername,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func UserToModel(u *accounts.User) *UserModel {
	return &UserModel{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		SSOSubject:       u.SSOSubject,
		TelegramID:       u.TelegramID,
		TelegramUsername: u.TelegramUsername,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// EmailFlowModel is the GORM model for email verification flows
type EmailFlowModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	Email           string `gorm:"size:255;index"`
	CodeHash        string `gorm:"size:128"`
	Status          string `gorm:"size:16;index"`
	StartedUserID   string `gorm:"size:64"`
	StartedClientID string `gorm:"size:64"`
	UserID          string `gorm:"size:64"`
	ClientID        string `gorm:"size:64"`
	CreatedAt       time.Time
	SentAt          time.Time
	VerifiedAt      time.Time
}

func (EmailFlowModel) TableName() string {
	return "email_flows"
}

func (m *EmailFlowModel) ToFlow() *accounts.EmailFlow {
	return &accounts.EmailFlow{
		ID:         m.ID,
		Email:      m.Email,
		CodeHash:   m.CodeHash,
		Status:     accounts.EmailFlowStatus(m.Status),
		Started:    accounts.Subject{UserID: m.StartedUserID, ClientID: m.StartedClientID},
		Verified:   accounts.Subject{UserID: m.UserID, ClientID: m.ClientID},
		CreatedAt:  m.CreatedAt,
		SentAt:     m.SentAt,
		VerifiedAt: m.VerifiedAt,
	}
}

func FlowToModel(f *accounts.EmailFlow) *EmailFlowModel {
	return &EmailFlowModel{
		ID:              f.ID,
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
