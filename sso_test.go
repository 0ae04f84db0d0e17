package accounts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"

	accounts "github.com/one-zero-eight/accounts"
	"github.com/one-zero-eight/accounts/stores"
)

// fakeExchanger stands in for the university ADFS endpoint.
type fakeExchanger struct {
	info *accounts.SSOUserInfo
	err  error
}

func (f *fakeExchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return "https://sso.test/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*accounts.SSOUserInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type ssoFixture struct {
	server    *httptest.Server
	client    *http.Client
	exchanger *fakeExchanger
}

func newSSOFixture(t *testing.T) *ssoFixture {
	t.Helper()

	users := stores.NewFSUserStore(t.TempDir())
	exchanger := &fakeExchanger{
		info: &accounts.SSOUserInfo{
			Subject: "adfs-subject-1",
			Email:   "alice@innopolis.university",
			Name:    "Alice",
		},
	}

	auth := &accounts.Accounts{
		Session: scs.New(),
		Users:   users,
		Guard:   accounts.NewRedirectGuard("innohassle.ru"),
		WebURL:  "https://innohassle.ru",
		SSO:     &accounts.SSOConfig{Exchanger: exchanger},
	}

	server := httptest.NewServer(auth.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &ssoFixture{server: server, client: client, exchanger: exchanger}
}

func (f *ssoFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// stateFromAuthorizeRedirect pulls the state the login handler put in
// the provider URL, which is also what it stashed in the session.
func stateFromAuthorizeRedirect(t *testing.T, resp *http.Response) string {
	t.Helper()
	location, err := resp.Location()
	if err != nil {
		t.Fatalf("authorize redirect has no location: %v", err)
	}
	state := location.Query().Get("state")
	if state == "" {
		t.Fatalf("authorize URL %s carries no state", location)
	}
	return state
}

func TestSSOLoginRedirectsToProvider(t *testing.T) {
	f := newSSOFixture(t)

	resp := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	location, _ := resp.Location()
	if location.Host != "sso.test" {
		t.Errorf("redirected to %s, want the provider", location)
	}
}

func TestSSOLoginRejectsForeignRedirect(t *testing.T) {
	f := newSSOFixture(t)

	resp := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://evil.example.com/"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSSOCallbackSuccess(t *testing.T) {
	f := newSSOFixture(t)

	login := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))
	state := stateFromAuthorizeRedirect(t, login)

	callback := f.get(t, "/innopolis/callback?code=authcode&state="+url.QueryEscape(state))
	if callback.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d, want 302", callback.StatusCode)
	}
	location, _ := callback.Location()
	if location.String() != "https://innohassle.ru/dashboard" {
		t.Errorf("landed on %s", location)
	}

	// The session is now authenticated and the user carries the
	// provider claims.
	me := f.get(t, "/me")
	if me.StatusCode != http.StatusOK {
		t.Fatalf("/me status = %d, want 200", me.StatusCode)
	}
	var user accounts.User
	if err := json.NewDecoder(me.Body).Decode(&user); err != nil {
		t.Fatalf("decode /me: %v", err)
	}
	if user.Email != "alice@innopolis.university" || user.SSOSubject != "adfs-subject-1" {
		t.Errorf("registered user %+v", user)
	}
}

func TestSSOCallbackProviderError(t *testing.T) {
	f := newSSOFixture(t)

	f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))

	resp := f.get(t, "/innopolis/callback?error=access_denied&error_description=user+cancelled")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestSSOCallbackSilentProbeFailure(t *testing.T) {
	f := newSSOFixture(t)

	// prompt=none is a background session check; the provider saying
	// "not signed in" must bounce back to the app, not error.
	f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard")+"&prompt=none")

	resp := f.get(t, "/innopolis/callback?error=login_required")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	location, _ := resp.Location()
	if location.String() != "https://innohassle.ru/dashboard" {
		t.Errorf("silent probe failure landed on %s", location)
	}
}

func TestSSOCallbackStateMismatchAnonymous(t *testing.T) {
	f := newSSOFixture(t)

	login := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))
	stateFromAuthorizeRedirect(t, login)

	// Callback arrives with a state from some other tab's session.
	resp := f.get(t, "/innopolis/callback?code=authcode&state=other-tabs-state")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want recovery redirect", resp.StatusCode)
	}
	location, _ := resp.Location()
	// Destination known, user anonymous: back to login with the
	// destination preserved.
	if location.Path != "/innopolis/login" {
		t.Errorf("recovery sent browser to %s", location)
	}
	if got := location.Query().Get("redirect_uri"); got != "https://innohassle.ru/dashboard" {
		t.Errorf("recovery lost the destination: %q", got)
	}
}

func TestSSOCallbackStateMismatchNothingStored(t *testing.T) {
	f := newSSOFixture(t)

	// Cold callback with no handshake at all.
	resp := f.get(t, "/innopolis/callback?code=authcode&state=whatever")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want recovery redirect", resp.StatusCode)
	}
	location, _ := resp.Location()
	if location.String() != "https://innohassle.ru" {
		t.Errorf("recovery landed on %s, want the default landing page", location)
	}
}

func TestSSOCallbackStateMismatchAuthenticated(t *testing.T) {
	f := newSSOFixture(t)

	// Tab A signs in fully.
	login := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))
	state := stateFromAuthorizeRedirect(t, login)
	f.get(t, "/innopolis/callback?code=authcode&state="+url.QueryEscape(state))

	// Tab B's stale callback then arrives on the same (now
	// authenticated) session with a dead state.
	resp := f.get(t, "/innopolis/callback?code=authcode&state=stale-tab-state")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want recovery redirect", resp.StatusCode)
	}
	location, _ := resp.Location()
	if location.String() != "https://innohassle.ru" {
		t.Errorf("authenticated recovery landed on %s", location)
	}

	// The session survived the stale callback.
	me := f.get(t, "/me")
	if me.StatusCode != http.StatusOK {
		t.Errorf("/me after stale callback = %d, want 200", me.StatusCode)
	}
}

func TestSSOCallbackExchangeFailureRecovers(t *testing.T) {
	f := newSSOFixture(t)
	f.exchanger.err = errors.New("token endpoint said no")

	login := f.get(t, "/innopolis/login?redirect_uri="+url.QueryEscape("https://innohassle.ru/dashboard"))
	state := stateFromAuthorizeRedirect(t, login)

	// Exchange blows up after the state already checked out. The state
	// was consumed by the check, so recovery treats it like a dead
	// handshake rather than surfacing a provider error page.
	resp := f.get(t, "/innopolis/callback?code=badcode&state="+url.QueryEscape(state))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want recovery redirect", resp.StatusCode)
	}
	location, _ := resp.Location()
	if location.Path != "/innopolis/login" || location.Query().Get("redirect_uri") == "" {
		t.Errorf("exchange failure sent browser to %s", location)
	}
}
