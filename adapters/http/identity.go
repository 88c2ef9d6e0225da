package http

import (
	"net/http"

	"github.com/artpar/metergate/domain/usage"
)

// Identity headers and cookies, checked in priority order. The platform
// fronting this service sets X-Auth-User for authenticated sessions;
// X-User-Id is the generic client-supplied header; the cookies are what
// browser traffic carries.
const (
	HeaderAuthUser = "X-Auth-User"
	HeaderUserID   = "X-User-Id"
	CookieAuth     = "auth_token"
	CookieUserID   = "user_id"
)

// ResolveIdentity extracts the user identity from a request.
// First match wins; unresolvable traffic lands in the anonymous bucket.
func ResolveIdentity(r *http.Request) string {
	if v := r.Header.Get(HeaderAuthUser); v != "" {
		return v
	}
	if v := r.Header.Get(HeaderUserID); v != "" {
		return v
	}
	if c, err := r.Cookie(CookieAuth); err == nil && c.Value != "" {
		return c.Value
	}
	if c, err := r.Cookie(CookieUserID); err == nil && c.Value != "" {
		return c.Value
	}
	return usage.AnonymousUser
}

// ResolveIdentityStrict is ResolveIdentity without the anonymous
// fallback; it returns "" when no identity is present. Used by read
// endpoints that must reject unattributed requests.
func ResolveIdentityStrict(r *http.Request) string {
	id := ResolveIdentity(r)
	if id == usage.AnonymousUser {
		return ""
	}
	return id
}
