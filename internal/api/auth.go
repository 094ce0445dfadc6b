package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// access gates the REST and websocket routes of a Server. The zero value
// admits every request without an Origin header and same-host browsers.
type access struct {
	token     string
	anyOrigin bool
	// origins holds lowercased allow-list entries: full origins or bare
	// host names.
	origins map[string]struct{}
}

func newAccess(token string, allowedOrigins []string) access {
	policy := access{token: token}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			policy.anyOrigin = true
			continue
		}
		if policy.origins == nil {
			policy.origins = make(map[string]struct{}, len(allowedOrigins))
		}
		policy.origins[strings.ToLower(origin)] = struct{}{}
	}
	return policy
}

func (s *Server) access() access {
	return newAccess(s.AuthToken, s.AllowedOrigins)
}

// authorized reports whether r carries the configured token. With no
// token configured every request is authorized.
func (a access) authorized(r *http.Request) bool {
	if a.token == "" {
		return true
	}
	got := requestToken(r)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1
}

// requestToken prefers a bearer header. Browsers cannot set headers on a
// websocket upgrade, so the token query parameter is accepted too.
func requestToken(r *http.Request) string {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return r.URL.Query().Get("token")
}

// originAllowed admits requests without an Origin header. Otherwise the
// origin must be on the allow list, or share the request's host when the
// list is empty.
func (a access) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())

	switch {
	case a.anyOrigin:
		return true
	case len(a.origins) == 0:
		return host == requestHost(r)
	}
	if _, ok := a.origins[strings.ToLower(origin)]; ok {
		return true
	}
	_, ok := a.origins[host]
	return ok
}

func requestHost(r *http.Request) string {
	host := r.Host
	if split, _, err := net.SplitHostPort(host); err == nil {
		host = split
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}
