package auth

import (
	"net/http"
	"strings"
)

const (
	// ServiceKeyHeader carries the shared secret of trusted internal callers.
	ServiceKeyHeader = "X-Service-Key"
	AccessCookie     = "access_token"
)

// ExtractAccessToken reads a bearer Authorization header and falls back to
// the storefront's access_token cookie.
func ExtractAccessToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}

	if cookie, err := r.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func ExtractServiceKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ServiceKeyHeader))
}
