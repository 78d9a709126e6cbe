package redirect

import (
	"net/url"
	"strings"

	"github.com/dgellow/vaultlink/internal/urlutil"
)

// callbackParams are consumed on arrival and never kept in the address
var callbackParams = []string{"code", "state", "error", "error_description", "error_uri"}

// Callback is what the identity provider appended to the redirect URI
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	// CleanURL is the request-relative address with every callback
	// parameter removed. Path, fragment and unrelated parameters are kept.
	CleanURL string
}

// Failed reports whether the provider redirected back with an error
// instead of a code
func (c Callback) Failed() bool {
	return c.Error != ""
}

// Capture inspects the navigation query for an authorization code or a
// provider error. ok is false when neither is present, in which case the
// address needs no rewrite.
func Capture(u *url.URL) (cb Callback, ok bool) {
	q := u.Query()
	code := strings.TrimSpace(q.Get("code"))
	providerErr := strings.TrimSpace(q.Get("error"))
	if code == "" && providerErr == "" {
		return Callback{}, false
	}

	return Callback{
		Code:             code,
		State:            q.Get("state"),
		Error:            providerErr,
		ErrorDescription: q.Get("error_description"),
		CleanURL:         urlutil.PathAndQuery(urlutil.WithoutParams(u, callbackParams...)),
	}, true
}
