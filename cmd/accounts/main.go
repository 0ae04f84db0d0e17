// Command accounts runs the standalone auth service: email
// verification, Innopolis SSO and Telegram widget login behind one
// cookie session.
//
// Configuration is taken from the environment:
//
//	ADDR                  listen address (default :8000)
//	STORAGE_PATH          directory for file-backed stores (default ./data)
//	REDIS_ADDR            if set, email flows live in Redis instead of files
//	SESSION_SECURE        set to "1" behind TLS
//	WEB_URL               default landing page for recovery redirects
//	ALLOWED_REDIRECT_HOSTS comma-separated host allowlist for return urls
//
//	EMAIL_FLOW_SECRET     enables the email channel (JWT signing key)
//	INNOPOLIS_CLIENT_ID   enables the SSO channel
//	INNOPOLIS_CLIENT_SECRET
//	INNOPOLIS_CALLBACK_URL
//	INNOPOLIS_RESOURCE
//	TELEGRAM_BOT_TOKEN    enables the telegram channel
//
// Channels without their variables stay disabled; their routes answer
// with a channel_disabled error.
package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	goredis "github.com/redis/go-redis/v9"

	accounts "github.com/one-zero-eight/accounts"
	"github.com/one-zero-eight/accounts/stores"
	redisstore "github.com/one-zero-eight/accounts/stores/redis"
)

func main() {
	addr := envOr("ADDR", ":8000")
	storagePath := envOr("STORAGE_PATH", "./data")
	webURL := envOr("WEB_URL", "https://innohassle.ru")

	session := scs.New()
	session.Lifetime = 14 * 24 * time.Hour
	session.Cookie.Name = "accounts_session"
	session.Cookie.HttpOnly = true
	session.Cookie.Secure = os.Getenv("SESSION_SECURE") == "1"
	session.Cookie.SameSite = http.SameSiteLaxMode

	userStore := stores.NewFSUserStore(storagePath)

	var flowStore accounts.EmailFlowStore = stores.NewFSFlowStore(storagePath)
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		flowStore = redisstore.NewFlowStore(client, "accounts")
		slog.Info("email flows backed by redis", "addr", redisAddr)
	}

	auth := &accounts.Accounts{
		Session: session,
		Users:   userStore,
		Guard:   accounts.NewRedirectGuard(allowedHosts()...),
		WebURL:  webURL,
	}

	if secret := os.Getenv("EMAIL_FLOW_SECRET"); secret != "" {
		auth.Email = &accounts.EmailConfig{
			Store:  flowStore,
			Sender: &accounts.ConsoleEmailSender{},
			Tokens: &accounts.EmailFlowTokens{
				SecretKey: secret,
				Issuer:    webURL,
			},
		}
	}

	if clientID := os.Getenv("INNOPOLIS_CLIENT_ID"); clientID != "" {
		auth.SSO = &accounts.SSOConfig{
			Exchanger: accounts.NewInnopolisExchanger(
				clientID,
				os.Getenv("INNOPOLIS_CLIENT_SECRET"),
				os.Getenv("INNOPOLIS_CALLBACK_URL"),
				os.Getenv("INNOPOLIS_RESOURCE"),
			),
		}
	}

	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		auth.Telegram = &accounts.TelegramConfig{BotToken: botToken}
	}

	slog.Info("accounts service listening",
		"addr", addr,
		"email", auth.Email != nil,
		"sso", auth.SSO != nil,
		"telegram", auth.Telegram != nil,
	)
	log.Fatal(http.ListenAndServe(addr, auth.Handler()))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func allowedHosts() []string {
	raw := envOr("ALLOWED_REDIRECT_HOSTS", "innohassle.ru")
	var hosts []string
	for _, h := range strings.Split(raw, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
