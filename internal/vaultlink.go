package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/vaultlink/internal/config"
	"github.com/dgellow/vaultlink/internal/crypto"
	"github.com/dgellow/vaultlink/internal/federation"
	"github.com/dgellow/vaultlink/internal/flow"
	"github.com/dgellow/vaultlink/internal/idp"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/presign"
	"github.com/dgellow/vaultlink/internal/server"
	"github.com/dgellow/vaultlink/internal/session"
	"github.com/dgellow/vaultlink/internal/storage"
	"github.com/dgellow/vaultlink/internal/widgets"
)

const (
	defaultCleanupInterval = time.Minute
	upstreamTimeout        = 10 * time.Second
	shutdownTimeout        = 30 * time.Second
)

// VaultLink is the assembled download service
type VaultLink struct {
	config     config.Config
	httpServer *server.HTTPServer
	store      storage.Store
	cleanup    *storage.CleanupManager
}

// New builds every component from cfg
func New(ctx context.Context, cfg config.Config) (*VaultLink, error) {
	log.LogInfoWithFields("vaultlink", "Building application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"provider": cfg.Identity.Provider,
		"bucket":   cfg.Object.Bucket,
		"storage":  cfg.Session.Storage,
	})

	callbackPath, err := redirectPath(cfg.Identity.RedirectURI)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: upstreamTimeout}

	encryptor, err := crypto.NewEncryptor([]byte(cfg.Session.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := idp.NewProvider(ctx, cfg.Identity, httpClient)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	federator := federation.New(
		federation.NewCognitoClient(cfg.Federation.Region, cfg.Federation.Endpoint, httpClient),
		federation.Config{
			IdentityPoolID: cfg.Federation.IdentityPoolID,
			LoginProvider:  cfg.Federation.LoginProvider,
		},
	)

	minter := presign.New(presign.Config{
		Bucket:       cfg.Object.Bucket,
		Region:       cfg.Object.Region,
		Endpoint:     cfg.Object.Endpoint,
		UsePathStyle: cfg.Object.UsePathStyle,
	})

	ledger := storage.NewCodeLedger(storage.DefaultCodeRetention)
	interval := cfg.Session.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	orch := flow.New(provider, federator, minter, session.NewSlot(store, encryptor), ledger, flow.Config{
		ObjectKey:     cfg.Object.Key,
		TTL:           cfg.Object.TTL,
		RejectExpired: cfg.Session.RejectExpired,
	})

	counter, ticker, mailer := buildWidgets(cfg.Widgets, httpClient)
	handlersCfg := server.HandlersConfig{
		Name:         cfg.Server.Name,
		Title:        cfg.Server.Title,
		StateKey:     []byte(cfg.Session.StateKey),
		CookieMaxAge: cfg.Session.CookieMaxAge,
	}
	if cfg.Widgets != nil {
		handlersCfg.WidgetTimeout = cfg.Widgets.Timeout
		handlersCfg.TickerSymbols = cfg.Widgets.TickerSymbols
	}

	handlers := server.NewHandlers(orch, counter, ticker, mailer, handlersCfg)

	return &VaultLink{
		config:     cfg,
		httpServer: server.NewHTTPServer(server.NewMux(handlers, callbackPath), cfg.Server.Addr),
		store:      store,
		cleanup:    storage.NewCleanupManager(ledger, interval),
	}, nil
}

// buildWidgets returns a client for each configured collaborator. The
// interfaces stay nil for the ones left out so the page hides them.
func buildWidgets(cfg *config.WidgetsConfig, httpClient *http.Client) (server.Counter, server.Ticker, server.Mailer) {
	var (
		counter server.Counter
		ticker  server.Ticker
		mailer  server.Mailer
	)
	if cfg == nil {
		return counter, ticker, mailer
	}
	if cfg.CounterURL != "" {
		counter = widgets.NewCounterClient(cfg.CounterURL, httpClient)
	}
	if cfg.TickerURL != "" {
		ticker = widgets.NewTickerClient(cfg.TickerURL, httpClient)
	}
	if cfg.EmailURL != "" {
		mailer = widgets.NewMailerClient(cfg.EmailURL, httpClient)
	}
	return counter, ticker, mailer
}

// redirectPath is the path the provider sends the browser back to
func redirectPath(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

// Run serves until a signal arrives or the server fails
func (v *VaultLink) Run() error {
	log.LogInfoWithFields("vaultlink", "Starting application", map[string]any{
		"addr": v.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := v.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	v.cleanup.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("vaultlink", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("vaultlink", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("vaultlink", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	err := v.httpServer.Stop(shutdownCtx)
	if err != nil {
		log.LogErrorWithFields("vaultlink", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
	}

	v.cleanup.Stop()

	if closeErr := v.store.Close(); closeErr != nil {
		log.LogErrorWithFields("vaultlink", "Failed to close session store", map[string]any{
			"error": closeErr.Error(),
		})
	}

	log.LogInfoWithFields("vaultlink", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return err
}
