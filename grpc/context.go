// Package grpc carries the session-authenticated user identity across
// gRPC hops. The accounts HTTP layer resolves the user from the scs
// session; when it fans out to backend gRPC services it forwards that
// identity in request metadata, and the interceptors here read and
// enforce it on the receiving side.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for identity propagation.
const (
	// DefaultMetadataKeyUserID is the gRPC metadata key carrying the
	// authenticated user id.
	DefaultMetadataKeyUserID = "x-user-id"

	// DefaultMetadataKeyImpersonate is the gRPC metadata key for
	// impersonating another user. Development and testing only.
	DefaultMetadataKeyImpersonate = "x-impersonate-user"
)

// Config holds the metadata key configuration for identity propagation.
type Config struct {
	// MetadataKeyUserID is the metadata key for the authenticated user
	// id. Defaults to "x-user-id".
	MetadataKeyUserID string

	// MetadataKeyImpersonate is the metadata key that overrides the
	// user id when impersonation is enabled. Defaults to
	// "x-impersonate-user".
	MetadataKeyImpersonate string

	// EnableImpersonation allows the impersonate header to override
	// the user id. Never enable this outside development.
	EnableImpersonation bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyUserID:      DefaultMetadataKeyUserID,
		MetadataKeyImpersonate: DefaultMetadataKeyImpersonate,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
	if c.MetadataKeyImpersonate == "" {
		c.MetadataKeyImpersonate = DefaultMetadataKeyImpersonate
	}
}

// UserIDFromContext extracts the authenticated user id from incoming
// gRPC metadata. Returns the empty string for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	return UserIDFromContextWithConfig(ctx, nil)
}

// UserIDFromContextWithConfig extracts the user id using the given config.
func UserIDFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	if config.EnableImpersonation {
		if values := md.Get(config.MetadataKeyImpersonate); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}

	if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// UserIDToOutgoingContext adds the user id to outgoing gRPC metadata.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return UserIDToOutgoingContextWithKey(ctx, userID, DefaultMetadataKeyUserID)
}

// UserIDToOutgoingContextWithKey adds the user id under a custom key.
func UserIDToOutgoingContextWithKey(ctx context.Context, userID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, userID)
}

// ImpersonateToOutgoingContext adds an impersonation header to outgoing
// metadata. Only effective when EnableImpersonation is set server-side.
func ImpersonateToOutgoingContext(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyImpersonate, userID)
}

// IsAuthenticated reports whether the context carries a user identity.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
