package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Extract returns the raw token from the session cookie, else from an
// `Authorization: Bearer` header. fromCookie reports which source won.
func Extract(r *http.Request, cookieName string) (raw string, fromCookie bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token), false
	}
	return "", false
}

// SetCookie writes the token as an HttpOnly cookie.
func (c CookieConfig) SetCookie(w http.ResponseWriter, token Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token.Raw,
		Path:     "/",
		Expires:  token.ExpiresAt,
		MaxAge:   int(time.Until(token.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (c CookieConfig) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
