package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/dgellow/vaultlink/internal/flow"
	jsonwriter "github.com/dgellow/vaultlink/internal/json"
	"github.com/dgellow/vaultlink/internal/log"
	"github.com/dgellow/vaultlink/internal/widgets"
	"golang.org/x/sync/errgroup"
)

const defaultWidgetTimeout = 3 * time.Second

type pageMessage struct {
	text string
	kind string
}

type widgetData struct {
	showViews bool
	views     int64
	prices    []widgets.Price
}

// loadWidgets fetches the counter and ticker concurrently. A widget that
// fails or misses the budget is left out of the page.
func (h *Handlers) loadWidgets(ctx context.Context) widgetData {
	timeout := h.cfg.WidgetTimeout
	if timeout <= 0 {
		timeout = defaultWidgetTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var data widgetData
	var g errgroup.Group

	if h.counter != nil {
		g.Go(func() error {
			views, err := h.counter.Views(ctx)
			if err != nil {
				log.LogWarnWithFields("widgets", "Visit counter unavailable", map[string]any{
					"error": err.Error(),
				})
				return nil
			}
			data.views = views
			data.showViews = true
			return nil
		})
	}

	if h.ticker != nil {
		g.Go(func() error {
			prices, err := h.ticker.Prices(ctx, h.cfg.TickerSymbols)
			if err != nil {
				log.LogWarnWithFields("widgets", "Price ticker unavailable", map[string]any{
					"error": err.Error(),
				})
				return nil
			}
			data.prices = prices
			return nil
		})
	}

	_ = g.Wait()
	return data
}

func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, status int, sid string, view flow.View, cleanURL string, msg pageMessage) {
	data := IndexPageData{
		Title:         h.cfg.Title,
		Name:          h.cfg.Name,
		State:         view.State.String(),
		DisplayName:   view.DisplayName,
		Authenticated: view.State.Authenticated(),
		CleanURL:      cleanURL,
		Message:       msg.text,
		MessageType:   msg.kind,
		MailEnabled:   h.mailer != nil,
	}

	if sid != "" {
		token, err := h.csrf.Generate(sid)
		if err != nil {
			log.LogErrorWithFields("server", "Failed to generate CSRF token", map[string]any{
				"error": err.Error(),
			})
			jsonwriter.WriteInternalServerError(w, "Failed to render page")
			return
		}
		data.CSRFToken = token
	}

	widgetsData := h.loadWidgets(r.Context())
	data.ShowViews = widgetsData.showViews
	data.Views = widgetsData.views
	data.Prices = widgetsData.prices

	var buf bytes.Buffer
	if err := indexPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to render page")
		return
	}

	noStore(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
