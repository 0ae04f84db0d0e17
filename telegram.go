package accounts

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WidgetFreshnessWindow bounds how far a payload's auth_date may drift
// from the server clock, in either direction, before the assertion is
// rejected regardless of its signature.
const WidgetFreshnessWindow = 5 * time.Minute

// TelegramWidgetData is one widget-signed login assertion as posted by
// the Telegram login widget.
//
// https://core.telegram.org/widgets/login#checking-authorization
type TelegramWidgetData struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// Encoded returns the canonical byte representation the widget signed:
// "key=value" pairs, sorted by key, joined with newlines, hash and
// unset optional fields excluded. The signature is only meaningful over
// exactly this encoding.
func (d *TelegramWidgetData) Encoded() []byte {
	pairs := []string{
		"auth_date=" + strconv.FormatInt(d.AuthDate, 10),
		"first_name=" + d.FirstName,
		"id=" + strconv.FormatInt(d.ID, 10),
	}
	if d.LastName != "" {
		pairs = append(pairs, "last_name="+d.LastName)
	}
	if d.PhotoURL != "" {
		pairs = append(pairs, "photo_url="+d.PhotoURL)
	}
	if d.Username != "" {
		pairs = append(pairs, "username="+d.Username)
	}
	sort.Strings(pairs)
	return []byte(strings.Join(pairs, "\n"))
}

// widgetSecretKey derives the HMAC key from the bot token.
func widgetSecretKey(botToken string) []byte {
	sum := sha256.Sum256([]byte(botToken))
	return sum[:]
}

// SignWidgetData computes the hex signature for the payload's canonical
// encoding. Exported for test fixtures; the production signer is
// Telegram.
func SignWidgetData(data *TelegramWidgetData, botToken string) string {
	mac := hmac.New(sha256.New, widgetSecretKey(botToken))
	mac.Write(data.Encoded())
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWidgetData checks the payload's HMAC signature and that its
// timestamp falls inside the freshness window around now. Both checks
// are mandatory: a valid signature on a stale payload is a replay.
func VerifyWidgetData(data *TelegramWidgetData, botToken string, now time.Time) bool {
	mac := hmac.New(sha256.New, widgetSecretKey(botToken))
	mac.Write(data.Encoded())
	evaluated := mac.Sum(nil)

	received, err := hex.DecodeString(data.Hash)
	if err != nil {
		return false
	}
	if !hmac.Equal(evaluated, received) {
		return false
	}

	ts := now.Unix()
	window := int64(WidgetFreshnessWindow / time.Second)
	return ts-window < data.AuthDate && data.AuthDate < ts+window
}

// TelegramLoginResult is the tagged outcome of Login.
type TelegramLoginResult struct {
	// NeedToConnect is true when the telegram subject is unknown but
	// the caller already has a session: linking must be confirmed
	// explicitly via Connect, never done silently.
	NeedToConnect bool `json:"need_to_connect"`

	// User is set when the session was established for a resolved user.
	User *User `json:"-"`
}

// TelegramChannel verifies widget assertions and drives the connect and
// login flows.
type TelegramChannel struct {
	BotToken string
	Users    UserStore
	Binder   *SessionBinder

	// Now is swappable for tests.
	Now func() time.Time
}

func (t *TelegramChannel) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Connect binds a verified telegram subject to the currently
// authenticated user. The caller must have resolved the session user id
// already; an empty id is a no-session failure.
func (t *TelegramChannel) Connect(ctx context.Context, userID string, data *TelegramWidgetData) error {
	if userID == "" {
		return ErrNoSession
	}
	if !VerifyWidgetData(data, t.BotToken, t.now()) {
		return ErrInvalidSignature
	}
	return t.Users.UpdateTelegram(ctx, userID, data)
}

// Login resolves a verified telegram subject to a local user and, when
// found, establishes the session for that user regardless of any prior
// session (a deliberate login/switch, not a merge). An unknown subject
// with an existing session yields need-to-connect without mutating
// anything; with no session it is a no-identity failure.
func (t *TelegramChannel) Login(ctx context.Context, sessionUserID string, data *TelegramWidgetData) (*TelegramLoginResult, error) {
	if !VerifyWidgetData(data, t.BotToken, t.now()) {
		return nil, ErrInvalidSignature
	}

	user, err := t.Users.ReadByTelegramID(ctx, data.ID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if user == nil || errors.Is(err, ErrUserNotFound) {
		if sessionUserID != "" {
			return &TelegramLoginResult{NeedToConnect: true}, nil
		}
		return nil, ErrNoIdentityFound
	}

	if err := t.Binder.Establish(ctx, user.ID); err != nil {
		return nil, err
	}
	return &TelegramLoginResult{User: user}, nil
}
