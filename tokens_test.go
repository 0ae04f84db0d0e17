package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	accounts "github.com/one-zero-eight/accounts"
)

func TestEmailFlowTokensRoundTrip(t *testing.T) {
	tokens := &accounts.EmailFlowTokens{SecretKey: "test-secret", Issuer: "https://accounts.test"}

	signed, err := tokens.Mint("flow-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	flowID, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if flowID != "flow-1" {
		t.Errorf("flow id = %q, want flow-1", flowID)
	}
}

func TestEmailFlowTokensRejectsWrongKey(t *testing.T) {
	signed, err := (&accounts.EmailFlowTokens{SecretKey: "key-a"}).Mint("flow-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := (&accounts.EmailFlowTokens{SecretKey: "key-b"}).Verify(signed); err == nil {
		t.Error("token signed with a different key verified")
	}
}

func TestEmailFlowTokensRejectsExpired(t *testing.T) {
	tokens := &accounts.EmailFlowTokens{SecretKey: "test-secret", Expiry: -time.Minute}
	signed, err := tokens.Mint("flow-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := tokens.Verify(signed); err == nil {
		t.Error("expired token verified")
	}
}

func TestEmailFlowTokensRejectsForeignScope(t *testing.T) {
	// A structurally valid token signed with the right key but minted
	// for another purpose must not pass as an email-flow credential.
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "flow-1",
		"scope": "password_reset",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tokens := &accounts.EmailFlowTokens{SecretKey: "test-secret"}
	if _, err := tokens.Verify(signed); err == nil {
		t.Error("foreign-scope token verified")
	}
}
