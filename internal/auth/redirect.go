package auth

import (
	"net/url"
	"strings"
)

// DefaultRedirect is where a sign-in lands without a usable redirectTo.
const DefaultRedirect = "/farm"

// SafeRedirect returns raw when it is a same-origin path, DefaultRedirect
// otherwise. Absolute URLs, protocol-relative URLs and backslash tricks
// are rejected.
func SafeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return DefaultRedirect
	}
	if strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n\t") {
		return DefaultRedirect
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return DefaultRedirect
	}
	if strings.HasPrefix(u.Path, SignInPath) {
		return DefaultRedirect
	}
	return u.RequestURI()
}
