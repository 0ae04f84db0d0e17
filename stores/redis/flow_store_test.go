package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	accounts "github.com/one-zero-eight/accounts"
)

func newTestStore(t *testing.T) *FlowStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewFlowStore(client, "test")
}

func pendingFlow(id string) *accounts.EmailFlow {
	return &accounts.EmailFlow{
		ID:        id,
		Email:     "user@innopolis.university",
		CodeHash:  "$2a$10$fakehashfakehashfakehash",
		Status:    accounts.EmailFlowPending,
		Started:   accounts.UserSubject("u-1"),
		CreatedAt: time.Now().UTC(),
	}
}

func TestFlowStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	flow := pendingFlow("f-1")
	if err := store.CreateFlow(ctx, flow); err != nil {
		t.Fatalf("CreateFlow: %v", err)
	}
	if err := store.CreateFlow(ctx, flow); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	got, err := store.GetFlow(ctx, "f-1")
	if err != nil {
		t.Fatalf("GetFlow: %v", err)
	}
	if got.Email != flow.Email || got.Status != accounts.EmailFlowPending {
		t.Errorf("got flow %+v", got)
	}

	if _, err := store.GetFlow(ctx, "missing"); !errors.Is(err, accounts.ErrFlowNotFound) {
		t.Errorf("expected ErrFlowNotFound, got %v", err)
	}
}

func TestFlowStoreMarkSent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateFlow(ctx, pendingFlow("f-2")); err != nil {
		t.Fatalf("CreateFlow: %v", err)
	}

	if err := store.MarkSent(ctx, "f-2"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	got, err := store.GetFlow(ctx, "f-2")
	if err != nil {
		t.Fatalf("GetFlow: %v", err)
	}
	if got.Status != accounts.EmailFlowSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt.IsZero() {
		t.Error("SentAt not recorded")
	}

	if err := store.MarkSent(ctx, "f-2"); !errors.Is(err, accounts.ErrFlowConflict) {
		t.Errorf("second MarkSent = %v, want ErrFlowConflict", err)
	}
	if err := store.MarkSent(ctx, "missing"); !errors.Is(err, accounts.ErrFlowNotFound) {
		t.Errorf("MarkSent missing = %v, want ErrFlowNotFound", err)
	}
}

func TestFlowStoreFinalizeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateFlow(ctx, pendingFlow("f-3")); err != nil {
		t.Fatalf("CreateFlow: %v", err)
	}
	if err := store.MarkSent(ctx, "f-3"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	now := time.Now().UTC()
	flow, won, err := store.FinalizeFlow(ctx, "f-3", accounts.EmailFlowSuccess, accounts.UserSubject("u-1"), now)
	if err != nil {
		t.Fatalf("FinalizeFlow: %v", err)
	}
	if !won {
		t.Error("first finalize should win")
	}
	if flow.Status != accounts.EmailFlowSuccess || flow.Verified.UserID != "u-1" {
		t.Errorf("settled flow %+v", flow)
	}

	// A racing expiry must lose and observe the earlier outcome.
	flow, won, err = store.FinalizeFlow(ctx, "f-3", accounts.EmailFlowExpired, accounts.Subject{}, now)
	if err != nil {
		t.Fatalf("second FinalizeFlow: %v", err)
	}
	if won {
		t.Error("second finalize must not win")
	}
	if flow.Status != accounts.EmailFlowSuccess {
		t.Errorf("settled status = %q, want success", flow.Status)
	}
}

func TestFlowStoreFinalizeRejectsNonTerminal(t *testing.T) {
	store := newTestStore(t)
	if _, _, err := store.FinalizeFlow(context.Background(), "f-4", accounts.EmailFlowSent, accounts.Subject{}, time.Now()); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}
