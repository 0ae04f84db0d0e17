// Package accounts authenticates end users through three independent
// identity channels and reconciles the outcome into one server-side
// session.
//
// # Channels
//
// Email: a per-attempt verification flow. StartFlow generates an
// unguessable code, the host application emails it, MarkSent records
// the dispatch, VerifyFlow checks the code with single-use terminal
// semantics and a TTL. A success can be exchanged for a short-lived
// JWT (EmailFlowTokens) scoped to the flow.
//
// Innopolis SSO: an OAuth2/OIDC relying-party handshake against the
// university ADFS. The channel survives the session being lost or
// replaced between the authorize redirect and the callback (multi-tab
// logins): state mismatches are recovered by routing the browser back
// to its intended destination or back into the login entry point,
// never by surfacing an error.
//
// Telegram: widget-signed login assertions, verified with HMAC-SHA256
// keyed by the digest of the bot token plus a freshness window on the
// assertion timestamp. Login never links silently; an unknown subject
// with an existing session gets a need-to-connect answer and must
// confirm via the connect endpoint.
//
// # Sessions and redirects
//
// All session identity mutations go through SessionBinder, which
// clears transient handshake keys and rotates the session token on
// every login. Every browser redirect target, whether supplied by the
// client or round-tripped through the session, passes through
// RedirectGuard immediately before use.
//
// # Usage
//
//	sessions := scs.New()
//	a := &accounts.Accounts{
//	    Session: sessions,
//	    Users:   stores.NewFSUserStore(dir),
//	    Guard:   accounts.NewRedirectGuard("innohassle.ru"),
//	    WebURL:  "https://innohassle.ru",
//	    Email: &accounts.EmailConfig{
//	        Store:  stores.NewFSFlowStore(dir),
//	        Sender: &accounts.ConsoleEmailSender{},
//	        Tokens: &accounts.EmailFlowTokens{SecretKey: secret, Issuer: "accounts"},
//	    },
//	    SSO:      &accounts.SSOConfig{Exchanger: accounts.NewInnopolisExchanger(id, secret, cb, resource)},
//	    Telegram: &accounts.TelegramConfig{BotToken: botToken},
//	}
//	http.ListenAndServe(":8000", a.Handler())
//
// Store implementations live in stores (filesystem), stores/gorm,
// stores/redis and stores/gae.
package accounts
