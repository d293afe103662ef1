// Package clientip extracts the originating client address of a request.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// headers are consulted in order before falling back to RemoteAddr.
var headers = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

// GetIP returns the client IP for r. Proxy headers are honoured only when
// they hold a valid address; X-Forwarded-For yields its left-most valid
// entry. The result is "" when no address can be determined.
func GetIP(r *http.Request) string {
	for _, h := range headers {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		for part := range strings.SplitSeq(v, ",") {
			if ip, ok := parse(part); ok {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parse(host); ok {
		return ip
	}
	return ""
}

func parse(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || addr.IsUnspecified() {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}
