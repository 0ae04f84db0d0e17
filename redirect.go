package accounts

import (
	"net/url"
	"strings"
)

// RedirectGuard is the single chokepoint deciding whether a browser may
// be redirected to a caller-supplied URL. Every channel that ends in a
// redirect must pass the target through Validate immediately before
// use, even if the same value was validated when it entered the system.
type RedirectGuard struct {
	// AllowedHosts are the hostnames (no port) that absolute URLs may
	// point at. Relative URLs are always allowed.
	AllowedHosts []string
}

func NewRedirectGuard(allowedHosts ...string) *RedirectGuard {
	return &RedirectGuard{AllowedHosts: allowedHosts}
}

// Validate returns ErrInvalidReturnURL unless the candidate is a
// relative URL or an absolute URL whose hostname is on the allow-list.
// Malformed input fails the same way; the port is not checked.
func (g *RedirectGuard) Validate(candidate string) error {
	if candidate == "" {
		return ErrInvalidReturnURL
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return ErrInvalidReturnURL
	}
	// Backslashes are treated as path separators by some browsers and
	// can smuggle a host past the parser.
	if strings.ContainsAny(candidate, `\`) {
		return ErrInvalidReturnURL
	}
	if u.Hostname() == "" {
		// Scheme-relative URLs ("//evil.com/x") parse with an empty
		// host only when the slashes were escaped; url.Parse puts the
		// host in u.Host for the plain form, so an empty hostname here
		// really is a same-origin relative target.
		if strings.HasPrefix(candidate, "//") {
			return ErrInvalidReturnURL
		}
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range g.AllowedHosts {
		if host == strings.ToLower(allowed) {
			return nil
		}
	}
	return ErrInvalidReturnURL
}
