//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	accounts "github.com/one-zero-eight/accounts"
)

// Kind constants for Datastore entities
const (
	KindUser      = "User"
	KindEmailFlow = "EmailFlow"
)

func newUserID() string {
	return uuid.NewString()
}

// ============================================================================
// UserStore
// ============================================================================

// UserStore implements accounts.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func (s *UserStore) userKey(id string) *datastore.Key {
	key := datastore.NameKey(KindUser, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) Exists(ctx context.Context, id string) (bool, error) {
	var entity UserEntity
	err := s.client.Get(ctx, s.userKey(id), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserStore) Read(ctx context.Context, id string) (*accounts.User, error) {
	var entity UserEntity
	err := s.client.Get(ctx, s.userKey(id), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) ReadByTelegramID(ctx context.Context, telegramID int64) (*accounts.User, error) {
	query := datastore.NewQuery(KindUser).
		Namespace(s.namespace).
		FilterField("telegram_id", "=", telegramID).
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) findBySubject(ctx context.Context, subject string) (*UserEntity, error) {
	query := datastore.NewQuery(KindUser).
		Namespace(s.namespace).
		FilterField("sso_subject", "=", subject).
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, accounts.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (s *UserStore) RegisterOrUpdateViaSSO(ctx context.Context, info *accounts.SSOUserInfo) (*accounts.User, error) {
	if info == nil || info.Subject == "" {
		return nil, fmt.Errorf("sso user info requires a subject")
	}

	now := time.Now()
	entity, err := s.findBySubject(ctx, info.Subject)
	if errors.Is(err, accounts.ErrUserNotFound) {
		user := &accounts.User{
			ID:         newUserID(),
			Email:      info.Email,
			Name:       info.Name,
			SSOSubject: info.Subject,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := s.client.Put(ctx, s.userKey(user.ID), UserToEntity(user, s.userKey(user.ID))); err != nil {
			return nil, err
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	entity.Email = info.Email
	entity.Name = info.Name
	entity.UpdatedAt = now
	if _, err := s.client.Put(ctx, entity.Key, entity); err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) UpdateTelegram(ctx context.Context, userID string, data *accounts.TelegramWidgetData) error {
	key := s.userKey(userID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return accounts.ErrUserNotFound
			}
			return err
		}
		entity.TelegramID = data.ID
		entity.TelegramUsername = data.Username
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

// CreateUser seeds a user directly. Used by host applications and tests.
func (s *UserStore) CreateUser(ctx context.Context, user *accounts.User) error {
	_, err := s.client.Put(ctx, s.userKey(user.ID), UserToEntity(user, s.userKey(user.ID)))
	return err
}

// ============================================================================
// FlowStore
// ============================================================================

// FlowStore implements accounts.EmailFlowStore using Google Cloud
// Datastore. Status transitions run in transactions so the
// compare-and-swap contract holds across concurrent verifiers.
type FlowStore struct {
	client    *datastore.Client
	namespace string
}

// NewFlowStore creates a new Datastore-backed FlowStore
func NewFlowStore(client *datastore.Client, namespace string) *FlowStore {
	return &FlowStore{client: client, namespace: namespace}
}

func (s *FlowStore) flowKey(id string) *datastore.Key {
	key := datastore.NameKey(KindEmailFlow, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *FlowStore) CreateFlow(ctx context.Context, flow *accounts.EmailFlow) error {
	key := s.flowKey(flow.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing EmailFlowEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return fmt.Errorf("email flow %s already exists", flow.ID)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(key, FlowToEntity(flow, key))
		return err
	})
	return err
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*accounts.EmailFlow, error) {
	var entity EmailFlowEntity
	err := s.client.Get(ctx, s.flowKey(id), &entity)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, accounts.ErrFlowNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToFlow(), nil
}

func (s *FlowStore) MarkSent(ctx context.Context, id string) error {
	key := s.flowKey(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity EmailFlowEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return accounts.ErrFlowNotFound
			}
			return err
		}
		if entity.Status != string(accounts.EmailFlowPending) {
			return accounts.ErrFlowConflict
		}
		entity.Status = string(accounts.EmailFlowSent)
		entity.SentAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *FlowStore) FinalizeFlow(ctx context.Context, id string, status accounts.EmailFlowStatus, subject accounts.Subject, at time.Time) (*accounts.EmailFlow, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	key := s.flowKey(id)
	var settled *accounts.EmailFlow
	var won bool

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		settled = nil
		won = false

		var entity EmailFlowEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return accounts.ErrFlowNotFound
			}
			return err
		}
		entity.Key = key

		if accounts.EmailFlowStatus(entity.Status).Terminal() {
			settled = entity.ToFlow()
			return nil
		}

		entity.Status = string(status)
		entity.UserID = subject.UserID
		entity.ClientID = subject.ClientID
		entity.VerifiedAt = at
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		settled = entity.ToFlow()
		won = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return settled, won, nil
}
