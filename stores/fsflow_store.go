package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	accounts "github.com/one-zero-eight/accounts"
)

// FSFlowStore stores email flows as JSON files under
// storagePath/email_flows. The store mutex makes MarkSent and
// FinalizeFlow read-check-write sequences atomic, which is what gives
// the at-most-one-transition guarantee.
type FSFlowStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSFlowStore(storagePath string) *FSFlowStore {
	return &FSFlowStore{StoragePath: storagePath}
}

func (s *FSFlowStore) flowPath(id string) string {
	return filepath.Join(s.StoragePath, "email_flows", id+".json")
}

func (s *FSFlowStore) readFlow(id string) (*accounts.EmailFlow, error) {
	data, err := os.ReadFile(s.flowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, accounts.ErrFlowNotFound
		}
		return nil, err
	}
	var flow accounts.EmailFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *FSFlowStore) writeFlow(flow *accounts.EmailFlow) error {
	path := s.flowPath(flow.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSFlowStore) CreateFlow(ctx context.Context, flow *accounts.EmailFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.flowPath(flow.ID)); err == nil {
		return fmt.Errorf("email flow %s already exists", flow.ID)
	}
	return s.writeFlow(flow)
}

func (s *FSFlowStore) GetFlow(ctx context.Context, id string) (*accounts.EmailFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readFlow(id)
}

func (s *FSFlowStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.readFlow(id)
	if err != nil {
		return err
	}
	if flow.Status != accounts.EmailFlowPending {
		return accounts.ErrFlowConflict
	}
	flow.Status = accounts.EmailFlowSent
	flow.SentAt = time.Now()
	return s.writeFlow(flow)
}

func (s *FSFlowStore) FinalizeFlow(ctx context.Context, id string, status accounts.EmailFlowStatus, subject accounts.Subject, at time.Time) (*accounts.EmailFlow, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.readFlow(id)
	if err != nil {
		return nil, false, err
	}
	if flow.Status.Terminal() {
		return flow, false, nil
	}
	flow.Status = status
	flow.Verified = subject
	flow.VerifiedAt = at
	if err := s.writeFlow(flow); err != nil {
		return nil, false, err
	}
	return flow, true, nil
}
