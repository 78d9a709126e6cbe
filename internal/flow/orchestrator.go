package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/vaultlink/internal/federation"
	"github.com/dgellow/vaultlink/internal/idp"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/storage"
	"github.com/dgellow/vaultlink/internal/tokencodec"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotAuthenticated means the session holds no usable identity token
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired means the stored identity token's exp has passed
	ErrSessionExpired = errors.New("session expired")
	// ErrCodeReused means the authorization code was already presented
	ErrCodeReused = errors.New("authorization code already used")
)

// Federator trades an identity token for temporary credentials
type Federator interface {
	Federate(ctx context.Context, idToken string) (*federation.Credentials, error)
}

// Minter computes a signed URL for one object
type Minter interface {
	Mint(ctx context.Context, creds *federation.Credentials, key string, ttl time.Duration) (string, error)
}

// TokenSlot is the per-session identity token store
type TokenSlot interface {
	Set(ctx context.Context, sessionID, token string) error
	Get(ctx context.Context, sessionID string) (token string, ok bool, err error)
}

// Config fixes the object a download targets
type Config struct {
	ObjectKey string
	TTL       time.Duration
	// RejectExpired treats a stored token past its exp as absent on page load
	RejectExpired bool
}

// Orchestrator sequences code exchange, federation and minting for a
// browser session. Steps within one invocation never overlap.
type Orchestrator struct {
	provider  idp.Provider
	federator Federator
	minter    Minter
	slot      TokenSlot
	ledger    *storage.CodeLedger
	cfg       Config
	downloads singleflight.Group
	now       func() time.Time
}

// New creates an orchestrator. ledger may be nil, in which case code reuse is
// only caught by the provider.
func New(provider idp.Provider, federator Federator, minter Minter, slot TokenSlot, ledger *storage.CodeLedger, cfg Config) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		federator: federator,
		minter:    minter,
		slot:      slot,
		ledger:    ledger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// LoginURL is the hosted login page the browser is sent to
func (o *Orchestrator) LoginURL(state string) string {
	return o.provider.AuthURL(state)
}

// Resume derives the view for a page load without a code. A stored token is
// trusted for display; when RejectExpired is set a token past its exp is
// treated as absent. The slot is never cleared.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (View, error) {
	token, ok, err := o.slot.Get(ctx, sessionID)
	if err != nil {
		return loggedOut(), err
	}
	if !ok {
		return loggedOut(), nil
	}

	claims, err := tokencodec.Decode(token)
	if err != nil {
		log.LogWarnWithFields("flow", "Stored identity token does not decode", map[string]any{
			"session": log.Fingerprint(sessionID),
			"error":   err.Error(),
		})
		return loggedOut(), nil
	}
	if o.cfg.RejectExpired && claims.Expired(o.now()) {
		log.LogDebugWithFields("flow", "Stored identity token expired, showing login", map[string]any{
			"session": log.Fingerprint(sessionID),
		})
		return loggedOut(), nil
	}

	return View{State: StateAuthenticated, DisplayName: claims.DisplayName()}, nil
}

// Complete consumes an authorization code for sessionID. On success the
// identity token replaces whatever the slot held. On failure the view falls
// back to what the session had before the code arrived.
func (o *Orchestrator) Complete(ctx context.Context, sessionID, code string) (View, error) {
	fields := map[string]any{
		"session": log.Fingerprint(sessionID),
		"code":    log.Fingerprint(code),
		"state":   StateTokenPending.String(),
	}
	log.LogDebugWithFields("flow", "Exchanging authorization code", fields)

	tokens, err := o.exchange(ctx, code)
	if err != nil {
		fields["error"] = err.Error()
		log.LogWarnWithFields("flow", "Authorization code exchange failed", fields)
		view, resumeErr := o.Resume(ctx, sessionID)
		if resumeErr != nil {
			view = loggedOut()
		}
		return view, err
	}

	if err := o.slot.Set(ctx, sessionID, tokens.IDToken); err != nil {
		return loggedOut(), err
	}

	view := View{State: StateAuthenticated, DisplayName: tokens.Claims.DisplayName()}
	log.LogInfoWithFields("flow", "Session authenticated", map[string]any{
		"session": log.Fingerprint(sessionID),
		"subject": log.Fingerprint(tokens.Claims.Subject()),
	})
	return view, nil
}

func (o *Orchestrator) exchange(ctx context.Context, code string) (*idp.Tokens, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", idp.ErrAuthExchangeFailed)
	}
	if o.ledger != nil && !o.ledger.Claim(code) {
		return nil, fmt.Errorf("%w: %w", ErrCodeReused, idp.ErrAuthExchangeFailed)
	}
	return o.provider.Exchange(ctx, code)
}

// Download federates the session's identity token and mints a signed URL for
// the configured object. Overlapping calls for one session share a single
// federation and minting sequence and all receive its result. The shared
// sequence is detached from any one caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (o *Orchestrator) Download(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNotAuthenticated
	}

	shared := context.WithoutCancel(ctx)
	ch := o.downloads.DoChan(sessionID, func() (any, error) {
		return o.download(shared, sessionID)
	})

	select {
	case <-ctx.Done():
		log.LogDebugWithFields("flow", "Caller left in-flight download", map[string]any{
			"session": log.Fingerprint(sessionID),
		})
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.LogDebugWithFields("flow", "Joined in-flight download", map[string]any{
				"session": log.Fingerprint(sessionID),
			})
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (o *Orchestrator) download(ctx context.Context, sessionID string) (string, error) {
	fields := map[string]any{
		"session": log.Fingerprint(sessionID),
		"state":   StateDownloadPending.String(),
	}

	token, ok, err := o.slot.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAuthenticated
	}

	claims, err := tokencodec.Decode(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if claims.Expired(o.now()) {
		log.LogInfoWithFields("flow", "Download refused, identity token expired", fields)
		return "", ErrSessionExpired
	}

	creds, err := o.federator.Federate(ctx, token)
	if err != nil {
		fields["error"] = err.Error()
		log.LogWarnWithFields("flow", "Credential federation failed", fields)
		return "", err
	}

	signed, err := o.minter.Mint(ctx, creds, o.cfg.ObjectKey, o.cfg.TTL)
	if err != nil {
		fields["error"] = err.Error()
		log.LogErrorWithFields("flow", "Minting signed URL failed", fields)
		return "", err
	}

	fields["ttl"] = o.cfg.TTL.String()
	fields["url"] = log.Fingerprint(signed)
	log.LogInfoWithFields("flow", "Signed download URL issued", fields)
	return signed, nil
}
