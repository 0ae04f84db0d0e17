//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	accounts "github.com/one-zero-eight/accounts"
)

// AutoMigrate runs database migrations for all accounts tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&EmailFlowModel{},
	)
}

// =============================================================================
// UserStore
// =============================================================================

// UserStore implements accounts.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *UserStore) Read(ctx context.Context, id string) (*accounts.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) ReadByTelegramID(ctx context.Context, telegramID int64) (*accounts.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "telegram_id = ?", telegramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) RegisterOrUpdateViaSSO(ctx context.Context, info *accounts.SSOUserInfo) (*accounts.User, error) {
	if info == nil || info.Subject == "" {
		return nil, fmt.Errorf("sso user info requires a subject")
	}

	var model UserModel
	tx := s.db.WithContext(ctx)
	err := tx.First(&model, "sso_subject = ?", info.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = UserModel{
			ID:         uuid.NewString(),
			Email:      info.Email,
			Name:       info.Name,
			SSOSubject: info.Subject,
		}
		if err := tx.Create(&model).Error; err != nil {
			return nil, err
		}
		return model.ToUser(), nil
	}
	if err != nil {
		return nil, err
	}

	// Refresh provider-owned fields on every login.
	model.Email = info.Email
	model.Name = info.Name
	if err := tx.Save(&model).Error; err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) UpdateTelegram(ctx context.Context, userID string, data *accounts.TelegramWidgetData) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"telegram_id":       data.ID,
			"telegram_username": data.Username,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return accounts.ErrUserNotFound
	}
	return nil
}

// CreateUser seeds a user directly. Used by host applications and tests.
func (s *UserStore) CreateUser(ctx context.Context, user *accounts.User) error {
	return s.db.WithContext(ctx).Create(UserToModel(user)).Error
}

// =============================================================================
// FlowStore
// =============================================================================

// FlowStore implements accounts.EmailFlowStore using GORM. The status
// transitions are guarded with conditional UPDATE statements so the
// compare-and-swap contract holds without table locks.
type FlowStore struct {
	db *gorm.DB
}

func NewFlowStore(db *gorm.DB) *FlowStore {
	return &FlowStore{db: db}
}

func (s *FlowStore) CreateFlow(ctx context.Context, flow *accounts.EmailFlow) error {
	return s.db.WithContext(ctx).Create(FlowToModel(flow)).Error
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*accounts.EmailFlow, error) {
	var model EmailFlowModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accounts.ErrFlowNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToFlow(), nil
}

func (s *FlowStore) MarkSent(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&EmailFlowModel{}).
		Where("id = ? AND status = ?", id, string(accounts.EmailFlowPending)).
		Updates(map[string]any{
			"status":  string(accounts.EmailFlowSent),
			"sent_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either no such flow or it already left pending.
		var count int64
		if err := s.db.WithContext(ctx).Model(&EmailFlowModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return accounts.ErrFlowNotFound
		}
		return accounts.ErrFlowConflict
	}
	return nil
}

func (s *FlowStore) FinalizeFlow(ctx context.Context, id string, status accounts.EmailFlowStatus, subject accounts.Subject, at time.Time) (*accounts.EmailFlow, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	res := s.db.WithContext(ctx).Model(&EmailFlowModel{}).
		Where("id = ? AND status IN ?", id, []string{
			string(accounts.EmailFlowPending),
			string(accounts.EmailFlowSent),
		}).
		Updates(map[string]any{
			"status":      string(status),
			"user_id":     subject.UserID,
			"client_id":   subject.ClientID,
			"verified_at": at,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	flow, err := s.GetFlow(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return flow, res.RowsAffected > 0, nil
}
