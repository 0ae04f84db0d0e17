package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// EmailFlowStatus is the lifecycle status of one verification attempt.
// Only Pending, Sent, Success and Expired are ever persisted; WrongCode
// and NotFound are verification outcomes returned to callers without
// touching the stored flow.
type EmailFlowStatus string

const (
	EmailFlowPending   EmailFlowStatus = "pending"
	EmailFlowSent      EmailFlowStatus = "sent"
	EmailFlowSuccess   EmailFlowStatus = "success"
	EmailFlowExpired   EmailFlowStatus = "expired"
	EmailFlowWrongCode EmailFlowStatus = "wrong_code"
	EmailFlowNotFound  EmailFlowStatus = "not_found"
)

// Terminal reports whether the status ends the flow. A terminal flow is
// never re-verified; replaying it returns the original result.
func (s EmailFlowStatus) Terminal() bool {
	return s == EmailFlowSuccess || s == EmailFlowExpired
}

// Subject identifies who a flow (or a verification) is bound to: a
// registered user, an anonymous pre-auth client, or nobody yet.
type Subject struct {
	UserID   string `json:"user_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

func (s Subject) valid() bool {
	return s.UserID == "" || s.ClientID == ""
}

// UserSubject binds to a registered user.
func UserSubject(userID string) Subject { return Subject{UserID: userID} }

// ClientSubject binds to an anonymous pre-auth client.
func ClientSubject(clientID string) Subject { return Subject{ClientID: clientID} }

// EmailFlow is one verification attempt. The code itself is never
// stored; only its bcrypt hash is.
type EmailFlow struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	CodeHash string          `json:"code_hash"`
	Status   EmailFlowStatus `json:"status"`

	// Subject the flow was started for.
	Started Subject `json:"started,omitempty"`
	// Subject that completed verification; set by FinalizeFlow on
	// success so the caller can mint a credential scoped to it.
	Verified Subject `json:"verified,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	SentAt     time.Time `json:"sent_at,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// EmailFlowResult is the tagged outcome of VerifyFlow. Callers branch
// on Status only; Email is set when Status is success.
type EmailFlowResult struct {
	Status EmailFlowStatus
	Email  string
	Flow   *EmailFlow
}

const (
	defaultFlowTTL      = time.Hour
	verificationCodeLen = 6
	codeAlphabet        = "0123456789"
)

// EmailFlowEngine drives the verification-code lifecycle. It does not
// send email; callers dispatch the message and report back via
// MarkSent.
type EmailFlowEngine struct {
	Store EmailFlowStore

	// TTL is how long a flow stays verifiable after creation. Defaults
	// to one hour.
	TTL time.Duration

	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (e *EmailFlowEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *EmailFlowEngine) ttl() time.Duration {
	if e.TTL > 0 {
		return e.TTL
	}
	return defaultFlowTTL
}

// generateVerificationCode returns a fixed-length code drawn from the
// code alphabet with crypto/rand.
func generateVerificationCode() (string, error) {
	buf := make([]byte, verificationCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	code := make([]byte, verificationCodeLen)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code), nil
}

// StartFlow creates a pending flow for the email and returns it along
// with the plaintext code. The code exists only in the return value;
// the stored flow carries its bcrypt hash.
func (e *EmailFlowEngine) StartFlow(ctx context.Context, email string, subject Subject) (*EmailFlow, string, error) {
	if email == "" {
		return nil, "", fmt.Errorf("email is required")
	}
	if !subject.valid() {
		return nil, "", fmt.Errorf("a flow binds to a user or a client, not both")
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash verification code: %w", err)
	}

	flow := &EmailFlow{
		ID:        uuid.NewString(),
		Email:     email,
		CodeHash:  string(hash),
		Status:    EmailFlowPending,
		Started:   subject,
		CreatedAt: e.now(),
	}
	if err := e.Store.CreateFlow(ctx, flow); err != nil {
		return nil, "", fmt.Errorf("failed to create email flow: %w", err)
	}
	return flow, code, nil
}

// MarkSent records that the verification email went out. Only a pending
// flow can become sent, which keeps double-send bookkeeping honest.
func (e *EmailFlowEngine) MarkSent(ctx context.Context, flowID string) error {
	return e.Store.MarkSent(ctx, flowID)
}

// VerifyFlow checks the supplied code against the flow and returns a
// tagged result. Replaying a terminal flow returns its original
// terminal result without mutating anything; a wrong code leaves the
// flow verifiable until it expires.
func (e *EmailFlowEngine) VerifyFlow(ctx context.Context, flowID, code string, subject Subject) (*EmailFlowResult, error) {
	if !subject.valid() {
		return nil, fmt.Errorf("a verification binds to a user or a client, not both")
	}

	flow, err := e.Store.GetFlow(ctx, flowID)
	if errors.Is(err, ErrFlowNotFound) {
		return &EmailFlowResult{Status: EmailFlowNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if flow.Status.Terminal() {
		return resultFor(flow), nil
	}

	if e.now().Sub(flow.CreatedAt) > e.ttl() {
		// The CAS may lose to a concurrent success; report whatever the
		// store settled on.
		settled, _, err := e.Store.FinalizeFlow(ctx, flowID, EmailFlowExpired, Subject{}, e.now())
		if err != nil {
			return nil, err
		}
		return resultFor(settled), nil
	}

	if bcrypt.CompareHashAndPassword([]byte(flow.CodeHash), []byte(code)) != nil {
		return &EmailFlowResult{Status: EmailFlowWrongCode, Flow: flow}, nil
	}

	settled, won, err := e.Store.FinalizeFlow(ctx, flowID, EmailFlowSuccess, subject, e.now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Another request already consumed the flow; its terminal
		// result is the answer for this one too.
		return resultFor(settled), nil
	}
	return resultFor(settled), nil
}

func resultFor(flow *EmailFlow) *EmailFlowResult {
	res := &EmailFlowResult{Status: flow.Status, Flow: flow}
	if flow.Status == EmailFlowSuccess {
		res.Email = flow.Email
	}
	return res
}
