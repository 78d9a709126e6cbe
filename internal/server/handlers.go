package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/vaultlink/internal/browserauth"
	"github.com/dgellow/vaultlink/internal/cookie"
	"github.com/dgellow/vaultlink/internal/crypto"
	"github.com/dgellow/vaultlink/internal/emailutil"
	"github.com/dgellow/vaultlink/internal/flow"
	jsonwriter "github.com/dgellow/vaultlink/internal/json"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/redirect"
	"github.com/dgellow/vaultlink/internal/session"
	"github.com/dgellow/vaultlink/internal/widgets"
)

const (
	loginStateTTL = 10 * time.Minute
	csrfTTL       = time.Hour
)

// Flow is the orchestrator surface the handlers drive
type Flow interface {
	LoginURL(state string) string
	Resume(ctx context.Context, sessionID string) (flow.View, error)
	Complete(ctx context.Context, sessionID, code string) (flow.View, error)
	Download(ctx context.Context, sessionID string) (string, error)
}

// Counter, Ticker and Mailer are the page collaborators. Any of them may be
// nil, in which case the widget is not shown.
type Counter interface {
	Views(ctx context.Context) (int64, error)
}

type Ticker interface {
	Prices(ctx context.Context, symbols []string) ([]widgets.Price, error)
}

type Mailer interface {
	RequestLink(ctx context.Context, email string) error
}

// HandlersConfig carries page settings and signing keys
type HandlersConfig struct {
	Name          string
	Title         string
	StateKey      []byte
	CookieMaxAge  time.Duration
	WidgetTimeout time.Duration
	TickerSymbols []string
}

// Handlers serves the landing page and its actions
type Handlers struct {
	flow       Flow
	counter    Counter
	ticker     Ticker
	mailer     Mailer
	stateToken crypto.TokenSigner
	csrf       crypto.CSRFProtection
	cfg        HandlersConfig
}

// NewHandlers creates the page handlers
func NewHandlers(f Flow, counter Counter, ticker Ticker, mailer Mailer, cfg HandlersConfig) *Handlers {
	return &Handlers{
		flow:       f,
		counter:    counter,
		ticker:     ticker,
		mailer:     mailer,
		stateToken: crypto.NewTokenSigner(cfg.StateKey, "login-state", loginStateTTL),
		csrf:       crypto.NewCSRFProtection(cfg.StateKey, csrfTTL),
		cfg:        cfg,
	}
}

// ensureSession returns the browser's session id, issuing a new one if the
// request carries none
func (h *Handlers) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid, err := cookie.GetSession(r); err == nil && sid != "" {
		return sid, nil
	}
	sid, err := session.NewID()
	if err != nil {
		return "", err
	}
	cookie.SetSession(w, sid, h.cfg.CookieMaxAge)
	return sid, nil
}

// IndexHandler renders the page. When the provider redirected back with a
// code it is exchanged first and the rendered page rewrites the address to
// drop it.
func (h *Handlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noStore(w)

	sid, err := h.ensureSession(w, r)
	if err != nil {
		log.LogErrorWithFields("server", "Failed to create session id", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	cb, ok := redirect.Capture(r.URL)
	if !ok {
		view, err := h.flow.Resume(ctx, sid)
		if err != nil {
			log.LogErrorWithFields("server", "Failed to load session", map[string]any{
				"session": log.Fingerprint(sid),
				"error":   err.Error(),
			})
			h.renderPage(w, r, http.StatusServiceUnavailable, sid, view, "", pageMessage{
				text: "Your session could not be loaded. Please try again.",
				kind: "error",
			})
			return
		}
		h.renderPage(w, r, http.StatusOK, sid, view, "", pageMessage{})
		return
	}

	status, view, cleanURL, msg := h.handleCallback(ctx, w, r, sid, cb)
	h.renderPage(w, r, status, sid, view, cleanURL, msg)
}

func (h *Handlers) handleCallback(ctx context.Context, w http.ResponseWriter, r *http.Request, sid string, cb redirect.Callback) (int, flow.View, string, pageMessage) {
	cleanURL := cb.CleanURL
	resume := func() flow.View {
		view, err := h.flow.Resume(ctx, sid)
		if err != nil {
			return flow.View{State: flow.StateLoggedOut}
		}
		return view
	}

	if cb.Failed() {
		cookie.ClearState(w)
		log.LogWarnWithFields("server", "Identity provider returned an error", map[string]any{
			"error":       cb.Error,
			"description": cb.ErrorDescription,
		})
		return http.StatusOK, resume(), cleanURL, pageMessage{text: "Login failed: " + providerErrorText(cb), kind: "error"}
	}

	loginState, err := h.checkLoginState(r, cb.State)
	cookie.ClearState(w)
	if err != nil {
		log.LogWarnWithFields("server", "Rejected callback with invalid state", map[string]any{
			"session": log.Fingerprint(sid),
			"error":   err.Error(),
		})
		return http.StatusBadRequest, resume(), cleanURL, pageMessage{text: "Login could not be verified. Please log in again.", kind: "error"}
	}

	view, err := h.flow.Complete(ctx, sid, cb.Code)
	if err != nil {
		return http.StatusOK, view, cleanURL, pageMessage{text: "Login failed. Please log in again.", kind: "error"}
	}

	if loginState != nil && safeReturnPath(loginState.ReturnPath) {
		cleanURL = loginState.ReturnPath
	}
	return http.StatusOK, view, cleanURL, pageMessage{}
}

// checkLoginState verifies the state parameter against the state cookie.
// Logins started from the provider's hosted page carry no state cookie and
// are accepted without one.
func (h *Handlers) checkLoginState(r *http.Request, state string) (*browserauth.LoginState, error) {
	nonce, err := cookie.GetState(r)
	if err != nil || nonce == "" {
		return nil, nil
	}
	if state == "" {
		return nil, errors.New("missing state parameter")
	}

	var ls browserauth.LoginState
	if err := h.stateToken.Verify(state, &ls); err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(ls.Nonce), []byte(nonce)) != 1 {
		return nil, errors.New("state does not match this browser")
	}
	return &ls, nil
}

func providerErrorText(cb redirect.Callback) string {
	if cb.ErrorDescription != "" {
		return cb.ErrorDescription
	}
	return cb.Error
}

// safeReturnPath accepts only same-origin absolute paths
func safeReturnPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "\\")
}

// LoginHandler sends the whole page to the provider's hosted login
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogErrorWithFields("server", "Failed to generate login nonce", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	returnPath := r.URL.Query().Get("return")
	if !safeReturnPath(returnPath) {
		returnPath = "/"
	}

	state, err := h.stateToken.Sign(browserauth.LoginState{
		Nonce:      nonce,
		ReturnPath: returnPath,
	})
	if err != nil {
		log.LogErrorWithFields("server", "Failed to sign login state", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	cookie.SetState(w, nonce)
	noStore(w)
	http.Redirect(w, r, h.flow.LoginURL(state), http.StatusFound)
}

// DownloadHandler federates, mints and redirects the browser to the signed
// URL. Failures leave the session untouched and render the page with an
// alert.
func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noStore(w)

	sid, err := cookie.GetSession(r)
	if err != nil || sid == "" {
		h.downloadFailed(w, r, "", http.StatusUnauthorized, flow.ErrNotAuthenticated)
		return
	}
	if !h.validCSRF(r, sid) {
		h.forbidden(w, r, sid)
		return
	}

	signed, err := h.flow.Download(ctx, sid)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, flow.ErrNotAuthenticated) || errors.Is(err, flow.ErrSessionExpired) {
			status = http.StatusUnauthorized
		}
		h.downloadFailed(w, r, sid, status, err)
		return
	}

	if wantsJSON(r) {
		_ = jsonwriter.Write(w, map[string]string{"url": signed})
		return
	}
	http.Redirect(w, r, signed, http.StatusSeeOther)
}

func (h *Handlers) downloadFailed(w http.ResponseWriter, r *http.Request, sid string, status int, err error) {
	text := "Download failed. Please try again."
	switch {
	case errors.Is(err, flow.ErrSessionExpired):
		text = "Your session has expired. Please log in again."
	case errors.Is(err, flow.ErrNotAuthenticated):
		text = "Please log in to download the file."
	}

	if wantsJSON(r) {
		switch {
		case errors.Is(err, flow.ErrSessionExpired):
			jsonwriter.WriteError(w, status, "session_expired", text)
		case status == http.StatusUnauthorized:
			jsonwriter.WriteUnauthorized(w, text)
		default:
			jsonwriter.WriteBadGateway(w, text)
		}
		return
	}

	view := flow.View{State: flow.StateLoggedOut}
	if sid != "" {
		if v, resumeErr := h.flow.Resume(r.Context(), sid); resumeErr == nil {
			view = v
		}
	}
	h.renderPage(w, r, status, sid, view, "", pageMessage{text: text, kind: "error"})
}

// SendLinkHandler forwards an email address to the mail collaborator
func (h *Handlers) SendLinkHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	noStore(w)

	sid, err := cookie.GetSession(r)
	if err != nil || sid == "" || !h.validCSRF(r, sid) {
		h.forbidden(w, r, sid)
		return
	}

	respond := func(status int, code string, msg pageMessage) {
		if wantsJSON(r) {
			switch {
			case msg.kind != "error":
			case status == http.StatusBadRequest:
				jsonwriter.WriteBadRequest(w, msg.text)
				return
			case status == http.StatusBadGateway:
				jsonwriter.WriteBadGateway(w, msg.text)
				return
			default:
				jsonwriter.WriteError(w, status, code, msg.text)
				return
			}
			_ = jsonwriter.WriteResponse(w, status, map[string]string{"message": msg.text})
			return
		}
		view, resumeErr := h.flow.Resume(ctx, sid)
		if resumeErr != nil {
			view = flow.View{State: flow.StateLoggedOut}
		}
		h.renderPage(w, r, status, sid, view, "", msg)
	}

	if h.mailer == nil {
		respond(http.StatusServiceUnavailable, "unavailable", pageMessage{text: "Sending links by email is not available.", kind: "error"})
		return
	}

	email := emailutil.Normalize(r.PostFormValue("email"))
	if !emailutil.Valid(email) {
		respond(http.StatusBadRequest, "", pageMessage{text: "Please enter a valid email address.", kind: "error"})
		return
	}

	if err := h.mailer.RequestLink(ctx, email); err != nil {
		log.LogWarnWithFields("server", "Email backend rejected link request", map[string]any{
			"error": err.Error(),
		})
		text := "Failed to send the link. Please try again."
		var upstream *widgets.UpstreamError
		if errors.As(err, &upstream) && upstream.Message != "" {
			text = upstream.Message
		}
		respond(http.StatusBadGateway, "", pageMessage{text: text, kind: "error"})
		return
	}

	respond(http.StatusOK, "", pageMessage{text: "Link sent. Check your email.", kind: "success"})
}

// SessionHandler reports the session state as JSON
func (h *Handlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	noStore(w)

	sid, _ := cookie.GetSession(r)
	view, err := h.flow.Resume(r.Context(), sid)
	if err != nil {
		jsonwriter.WriteServiceUnavailable(w, "Session could not be loaded")
		return
	}

	_ = jsonwriter.Write(w, browserauth.SessionView{
		State:         view.State.String(),
		Name:          view.DisplayName,
		Authenticated: view.State.Authenticated(),
	})
}

// ScriptHandler serves the page script
func (h *Handlers) ScriptHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(appScript)
}

func (h *Handlers) validCSRF(r *http.Request, sid string) bool {
	token := r.PostFormValue("csrf_token")
	if token == "" {
		token = r.Header.Get("X-CSRF-Token")
	}
	return token != "" && h.csrf.Validate(sid, token)
}

func (h *Handlers) forbidden(w http.ResponseWriter, r *http.Request, sid string) {
	log.LogWarnWithFields("server", "Rejected request with invalid CSRF token", map[string]any{
		"path":    r.URL.Path,
		"session": log.Fingerprint(sid),
	})
	if wantsJSON(r) {
		jsonwriter.WriteForbidden(w, "Invalid or expired form, reload the page")
		return
	}
	view := flow.View{State: flow.StateLoggedOut}
	if sid != "" {
		if v, err := h.flow.Resume(r.Context(), sid); err == nil {
			view = v
		}
	}
	h.renderPage(w, r, http.StatusForbidden, sid, view, "", pageMessage{
		text: "This form has expired. Please try again.",
		kind: "error",
	})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
