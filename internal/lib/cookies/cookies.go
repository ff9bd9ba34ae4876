package cookies

import (
	"net/http"
	"time"
)

const (
	// RefreshCookie carries the opaque refresh secret. Scoped to the auth
	// prefix so it is never sent to other routes.
	RefreshCookie = "refresh_token"

	cookiePath = "/v1/auth"
)

func SetRefresh(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     cookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Refresh returns the refresh secret from the request cookie, if present.
func Refresh(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	return c.Value, true
}
