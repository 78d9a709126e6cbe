package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	fakeIdPPort     = "9090"
	fakeCognitoPort = "9091"

	testClientID      = "integration-client"
	testPoolID        = "eu-west-1:00000000-0000-0000-0000-000000000000"
	testLoginProvider = "cognito-idp.eu-west-1.amazonaws.com/eu-west-1_integration"
)

// FakeIdentityProvider plays the hosted login page and the token endpoint.
// The login page immediately redirects back with a fresh code; each code can
// be exchanged once.
type FakeIdentityProvider struct {
	server *http.Server
	port   string

	exchanges atomic.Int64

	mu    sync.Mutex
	seq   int
	codes map[string]bool
	name  string
}

// NewFakeIdentityProvider creates a fake provider whose tokens carry name
func NewFakeIdentityProvider(port, name string) *FakeIdentityProvider {
	p := &FakeIdentityProvider{
		port:  port,
		codes: make(map[string]bool),
		name:  name,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", p.login)
	mux.HandleFunc("/oauth2/token", p.token)

	p.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return p
}

// IssueCode registers a code without going through the login page
func (p *FakeIdentityProvider) IssueCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = false
	return code
}

// Exchanges is the number of token requests received
func (p *FakeIdentityProvider) Exchanges() int64 {
	return p.exchanges.Load()
}

func (p *FakeIdentityProvider) login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != testClientID || q.Get("response_type") != "code" {
		http.Error(w, "invalid login request", http.StatusBadRequest)
		return
	}

	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	params := target.Query()
	params.Set("code", p.IssueCode())
	if state := q.Get("state"); state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *FakeIdentityProvider) token(w http.ResponseWriter, r *http.Request) {
	p.exchanges.Add(1)

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("client_id") != testClientID {
		writeOAuthError(w, "invalid_client")
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	used, known := p.codes[code]
	if known && !used {
		p.codes[code] = true
	}
	p.mu.Unlock()
	if !known || used {
		writeOAuthError(w, "invalid_grant")
		return
	}

	idToken, err := signIDToken(p.name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id_token":     idToken,
		"access_token": "access-" + code,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func signIDToken(name string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte("integration-signing-key-0123456789")},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	return jwt.Signed(signer).Claims(map[string]any{
		"sub":  "integration-user",
		"iss":  "https://" + testLoginProvider,
		"aud":  testClientID,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).Serialize()
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// Start starts the fake provider
func (p *FakeIdentityProvider) Start() error {
	return startServer(p.server)
}

// Stop stops the fake provider
func (p *FakeIdentityProvider) Stop() error {
	return stopServer(p.server)
}

// FakeCognitoIdentity answers GetId and GetCredentialsForIdentity over the
// AWS JSON protocol
type FakeCognitoIdentity struct {
	server *http.Server
	calls  atomic.Int64
	reject atomic.Bool
}

// NewFakeCognitoIdentity creates a fake identity pool service
func NewFakeCognitoIdentity(port string) *FakeCognitoIdentity {
	f := &FakeCognitoIdentity{}
	f.server = &http.Server{
		Addr:    ":" + port,
		Handler: http.HandlerFunc(f.serve),
	}
	return f
}

// Reject makes every subsequent call fail with NotAuthorizedException
func (f *FakeCognitoIdentity) Reject(reject bool) {
	f.reject.Store(reject)
}

// Calls is the number of requests received
func (f *FakeCognitoIdentity) Calls() int64 {
	return f.calls.Load()
}

func (f *FakeCognitoIdentity) serve(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)

	var body struct {
		IdentityPoolId string
		Logins         map[string]string
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	if f.reject.Load() || body.Logins[testLoginProvider] == "" {
		w.Header().Set("X-Amzn-ErrorType", "NotAuthorizedException")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"__type":"NotAuthorizedException","message":"Invalid login token"}`))
		return
	}

	switch r.Header.Get("X-Amz-Target") {
	case "AWSCognitoIdentityService.GetId":
		_, _ = w.Write([]byte(`{"IdentityId":"eu-west-1:integration-identity"}`))
	case "AWSCognitoIdentityService.GetCredentialsForIdentity":
		expiration := time.Now().Add(time.Hour).Unix()
		_, _ = fmt.Fprintf(w, `{"IdentityId":"eu-west-1:integration-identity","Credentials":{"AccessKeyId":"ASIAINTEGRATION","SecretKey":"integration-secret","SessionToken":"integration-session","Expiration":%d}}`, expiration)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

// Start starts the fake identity pool service
func (f *FakeCognitoIdentity) Start() error {
	return startServer(f.server)
}

// Stop stops the fake identity pool service
func (f *FakeCognitoIdentity) Stop() error {
	return stopServer(f.server)
}

func startServer(server *http.Server) error {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	return nil
}

func stopServer(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
