package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/vaultlink/internal/envutil"
	"github.com/dgellow/vaultlink/internal/log"
)

const (
	// SessionCookie holds the opaque browser session id. It outlives restarts
	// so the stored token can be reloaded on the next visit.
	SessionCookie = "vaultlink_sid"
	// StateCookie holds the signed login state for one round-trip to the
	// identity provider.
	StateCookie = "vaultlink_state"
)

const stateMaxAge = 10 * time.Minute

// SetSession sets the session id cookie
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge": maxAge.String(),
		"secure": secure,
		"sid":    log.Fingerprint(value),
	})
}

// SetState sets the short-lived login state cookie. Lax is required so the
// cookie survives the top-level redirect back from the identity provider.
func SetState(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateMaxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		MaxAge:   -1,
	})
}

// ClearState removes the login state cookie
func ClearState(w http.ResponseWriter) {
	Clear(w, StateCookie)
	log.LogTraceWithFields("cookie", "State cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetState retrieves the login state cookie value
func GetState(r *http.Request) (string, error) {
	return Get(r, StateCookie)
}
