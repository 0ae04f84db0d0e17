package accounts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	accounts "github.com/one-zero-eight/accounts"
	"github.com/one-zero-eight/accounts/stores"
)

const testBotToken = "123456:TEST-bot-token"

func signedWidgetData(id int64, username string, authAt time.Time) *accounts.TelegramWidgetData {
	data := &accounts.TelegramWidgetData{
		ID:        id,
		FirstName: "Test",
		Username:  username,
		AuthDate:  authAt.Unix(),
	}
	data.Hash = accounts.SignWidgetData(data, testBotToken)
	return data
}

func TestVerifyWidgetData(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now)
		if !accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("valid payload rejected")
		}
	})

	t.Run("tampered field", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now)
		data.Username = "mallory"
		if accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("tampered payload accepted")
		}
	})

	t.Run("corrupted hash", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now)
		flipped := "0"
		if strings.HasPrefix(data.Hash, "0") {
			flipped = "1"
		}
		data.Hash = flipped + data.Hash[1:]
		if accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("corrupted signature accepted")
		}
	})

	t.Run("non hex hash", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now)
		data.Hash = "not-hex"
		if accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("garbage signature accepted")
		}
	})

	t.Run("wrong bot token", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now)
		if accounts.VerifyWidgetData(data, "other-token", now) {
			t.Error("payload signed for another bot accepted")
		}
	})

	t.Run("stale payload", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now.Add(-10*time.Minute))
		if accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("stale payload accepted despite valid signature")
		}
	})

	t.Run("future payload", func(t *testing.T) {
		data := signedWidgetData(42, "alice", now.Add(10*time.Minute))
		if accounts.VerifyWidgetData(data, testBotToken, now) {
			t.Error("future-dated payload accepted")
		}
	})

	t.Run("window edges", func(t *testing.T) {
		if !accounts.VerifyWidgetData(signedWidgetData(42, "alice", now.Add(-4*time.Minute)), testBotToken, now) {
			t.Error("payload inside window rejected")
		}
		if accounts.VerifyWidgetData(signedWidgetData(42, "alice", now.Add(-5*time.Minute)), testBotToken, now) {
			t.Error("payload exactly at window edge accepted")
		}
	})
}

func TestWidgetDataEncoding(t *testing.T) {
	data := &accounts.TelegramWidgetData{
		ID:        7,
		FirstName: "Test",
		AuthDate:  100,
	}
	got := string(data.Encoded())
	want := "auth_date=100\nfirst_name=Test\nid=7"
	if got != want {
		t.Errorf("Encoded() = %q, want %q", got, want)
	}

	// Optional fields join the encoding only when set.
	data.Username = "alice"
	got = string(data.Encoded())
	want = "auth_date=100\nfirst_name=Test\nid=7\nusername=alice"
	if got != want {
		t.Errorf("Encoded() with username = %q, want %q", got, want)
	}
}

func TestTelegramConnect(t *testing.T) {
	userStore := stores.NewFSUserStore(t.TempDir())
	channel := &accounts.TelegramChannel{BotToken: testBotToken, Users: userStore}
	ctx := context.Background()

	user := &accounts.User{ID: "u-1", Name: "Alice"}
	if err := userStore.CreateUser(user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	data := signedWidgetData(42, "alice", time.Now())

	if err := channel.Connect(ctx, "", data); !errors.Is(err, accounts.ErrNoSession) {
		t.Errorf("Connect without session = %v, want ErrNoSession", err)
	}

	bad := signedWidgetData(42, "alice", time.Now())
	bad.Username = "mallory"
	if err := channel.Connect(ctx, "u-1", bad); !errors.Is(err, accounts.ErrInvalidSignature) {
		t.Errorf("Connect with bad signature = %v, want ErrInvalidSignature", err)
	}

	if err := channel.Connect(ctx, "u-1", data); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	linked, err := userStore.ReadByTelegramID(ctx, 42)
	if err != nil {
		t.Fatalf("ReadByTelegramID: %v", err)
	}
	if linked.ID != "u-1" || linked.TelegramUsername != "alice" {
		t.Errorf("linked user %+v", linked)
	}
}

func TestTelegramLoginUnknownSubject(t *testing.T) {
	userStore := stores.NewFSUserStore(t.TempDir())
	channel := &accounts.TelegramChannel{BotToken: testBotToken, Users: userStore}
	ctx := context.Background()

	data := signedWidgetData(7000, "bob", time.Now())

	// Anonymous caller with an unknown subject has nothing to log into.
	if _, err := channel.Login(ctx, "", data); !errors.Is(err, accounts.ErrNoIdentityFound) {
		t.Errorf("anonymous login = %v, want ErrNoIdentityFound", err)
	}

	// A signed-in caller is offered linking instead, without mutation.
	result, err := channel.Login(ctx, "u-1", data)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.NeedToConnect {
		t.Error("expected need_to_connect for unknown subject with session")
	}
	if _, err := userStore.ReadByTelegramID(ctx, 7000); !errors.Is(err, accounts.ErrUserNotFound) {
		t.Error("need-to-connect must not link anything")
	}
}
