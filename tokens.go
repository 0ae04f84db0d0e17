package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope claim carried by email-flow verification tokens.
const emailFlowTokenScope = "email_flow"

// DefaultEmailFlowTokenExpiry bounds how long a successful verification
// can be redeemed downstream.
const DefaultEmailFlowTokenExpiry = 15 * time.Minute

// EmailFlowTokens mints and verifies the short-lived credential handed
// out when a flow reaches success. Downstream services accept it as
// proof that the flow's email was verified by its subject.
type EmailFlowTokens struct {
	SecretKey string
	Issuer    string

	// Expiry defaults to DefaultEmailFlowTokenExpiry.
	Expiry time.Duration
}

func (t *EmailFlowTokens) expiry() time.Duration {
	if t.Expiry > 0 {
		return t.Expiry
	}
	return DefaultEmailFlowTokenExpiry
}

// Mint signs a token scoped to the given flow id.
func (t *EmailFlowTokens) Mint(flowID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   flowID,
		"iss":   t.Issuer,
		"scope": emailFlowTokenScope,
		"iat":   now.Unix(),
		"exp":   now.Add(t.expiry()).Unix(),
	})
	signed, err := token.SignedString([]byte(t.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign email flow token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and scope, returning the flow id.
func (t *EmailFlowTokens) Verify(tokenString string) (flowID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(t.SecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	if scope, _ := claims["scope"].(string); scope != emailFlowTokenScope {
		return "", fmt.Errorf("unexpected token scope")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("subject not found")
	}
	return sub, nil
}
