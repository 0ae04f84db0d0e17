package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestUserIDFromContext(t *testing.T) {
	t.Run("no metadata", func(t *testing.T) {
		if got := UserIDFromContext(context.Background()); got != "" {
			t.Errorf("expected empty user id, got %q", got)
		}
	})

	t.Run("with user id", func(t *testing.T) {
		md := metadata.Pairs(DefaultMetadataKeyUserID, "user-1")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		if got := UserIDFromContext(ctx); got != "user-1" {
			t.Errorf("expected user-1, got %q", got)
		}
	})

	t.Run("impersonation disabled by default", func(t *testing.T) {
		md := metadata.Pairs(
			DefaultMetadataKeyUserID, "user-1",
			DefaultMetadataKeyImpersonate, "user-2",
		)
		ctx := metadata.NewIncomingContext(context.Background(), md)
		if got := UserIDFromContext(ctx); got != "user-1" {
			t.Errorf("impersonation header must be ignored, got %q", got)
		}
	})

	t.Run("impersonation enabled", func(t *testing.T) {
		md := metadata.Pairs(
			DefaultMetadataKeyUserID, "user-1",
			DefaultMetadataKeyImpersonate, "user-2",
		)
		ctx := metadata.NewIncomingContext(context.Background(), md)
		config := &Config{EnableImpersonation: true}
		if got := UserIDFromContextWithConfig(ctx, config); got != "user-2" {
			t.Errorf("expected user-2, got %q", got)
		}
	})
}

func TestUserIDToOutgoingContext(t *testing.T) {
	ctx := UserIDToOutgoingContext(context.Background(), "user-1")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if values := md.Get(DefaultMetadataKeyUserID); len(values) != 1 || values[0] != "user-1" {
		t.Errorf("unexpected metadata %v", md)
	}
}

func TestIsAuthenticated(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("background context must not be authenticated")
	}
	md := metadata.Pairs(DefaultMetadataKeyUserID, "user-1")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
}
