package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
)

// TokenEndpoint is a fake identity-provider token endpoint. Every code
// registered with Issue can be exchanged exactly once; a second exchange is
// answered with invalid_grant like a real provider.
type TokenEndpoint struct {
	Server *httptest.Server

	// ClientID and RedirectURI, when set, must match the request form
	ClientID    string
	RedirectURI string

	hits atomic.Int64

	mu       sync.Mutex
	codes    map[string]string
	used     map[string]bool
	lastForm url.Values
}

// NewTokenEndpoint starts a fake token endpoint. Call Close when done.
func NewTokenEndpoint(clientID, redirectURI string) *TokenEndpoint {
	te := &TokenEndpoint{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		codes:       make(map[string]string),
		used:        make(map[string]bool),
	}
	te.Server = httptest.NewServer(http.HandlerFunc(te.serve))
	return te
}

// URL is the token endpoint URL
func (te *TokenEndpoint) URL() string {
	return te.Server.URL + "/oauth2/token"
}

// Close shuts the server down
func (te *TokenEndpoint) Close() {
	te.Server.Close()
}

// Issue registers a code that exchanges for idToken
func (te *TokenEndpoint) Issue(code, idToken string) {
	te.mu.Lock()
	defer te.mu.Unlock()
	te.codes[code] = idToken
}

// Hits is the number of requests received
func (te *TokenEndpoint) Hits() int64 {
	return te.hits.Load()
}

// LastForm returns the form of the most recent request
func (te *TokenEndpoint) LastForm() url.Values {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.lastForm
}

func (te *TokenEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	te.hits.Add(1)

	if r.Method != http.MethodPost || r.URL.Path != "/oauth2/token" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	te.mu.Lock()
	defer te.mu.Unlock()
	te.lastForm = r.PostForm

	if r.PostForm.Get("grant_type") != "authorization_code" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	if te.ClientID != "" && r.PostForm.Get("client_id") != te.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client")
		return
	}
	if te.RedirectURI != "" && r.PostForm.Get("redirect_uri") != te.RedirectURI {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	code := r.PostForm.Get("code")
	idToken, ok := te.codes[code]
	if !ok || te.used[code] {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}
	te.used[code] = true

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id_token":      idToken,
		"access_token":  "access-" + code,
		"refresh_token": "refresh-" + code,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
