// Package stores provides filesystem-backed store implementations,
// suitable for development and tests. Each entity is one JSON file;
// writes are atomic and lookups by external subject scan the directory.
package stores

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	accounts "github.com/one-zero-eight/accounts"
)

// FSUserStore stores users as JSON files under storagePath/users.
type FSUserStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) userPath(id string) string {
	return filepath.Join(s.StoragePath, "users", id+".json")
}

func (s *FSUserStore) readUser(id string) (*accounts.User, error) {
	data, err := os.ReadFile(s.userPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, accounts.ErrUserNotFound
		}
		return nil, err
	}
	var user accounts.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *FSUserStore) writeUser(user *accounts.User) error {
	path := s.userPath(user.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

// scanUsers calls fn for every stored user until fn returns true.
func (s *FSUserStore) scanUsers(fn func(*accounts.User) bool) error {
	usersDir := filepath.Join(s.StoragePath, "users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(usersDir, entry.Name()))
		if err != nil {
			continue
		}
		var user accounts.User
		if err := json.Unmarshal(data, &user); err != nil {
			continue
		}
		if fn(&user) {
			return nil
		}
	}
	return nil
}

func (s *FSUserStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.userPath(id)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FSUserStore) Read(ctx context.Context, id string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readUser(id)
}

func (s *FSUserStore) ReadByTelegramID(ctx context.Context, telegramID int64) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *accounts.User
	err := s.scanUsers(func(u *accounts.User) bool {
		if u.TelegramID == telegramID {
			found = u
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, accounts.ErrUserNotFound
	}
	return found, nil
}

func (s *FSUserStore) RegisterOrUpdateViaSSO(ctx context.Context, info *accounts.SSOUserInfo) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *accounts.User
	err := s.scanUsers(func(u *accounts.User) bool {
		if u.SSOSubject == info.Subject {
			existing = u
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if existing == nil {
		existing = &accounts.User{
			ID:         uuid.NewString(),
			SSOSubject: info.Subject,
			CreatedAt:  now,
		}
	}
	existing.Email = info.Email
	existing.Name = info.Name
	existing.UpdatedAt = now

	if err := s.writeUser(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *FSUserStore) UpdateTelegram(ctx context.Context, userID string, data *accounts.TelegramWidgetData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.readUser(userID)
	if err != nil {
		return err
	}
	user.TelegramID = data.ID
	user.TelegramUsername = data.Username
	user.UpdatedAt = time.Now()
	return s.writeUser(user)
}

// CreateUser seeds a user directly. Used by host applications and
// tests; the engines themselves only create users via SSO upserts.
func (s *FSUserStore) CreateUser(user *accounts.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	return s.writeUser(user)
}
