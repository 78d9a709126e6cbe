package server

import (
	_ "embed"
	"html/template"

	"github.com/dgellow/vaultlink/internal/widgets"
)

//go:embed templates/index.html
var indexPageTemplateHTML string

//go:embed static/app.js
var appScript []byte

var indexPageTemplate = template.Must(template.New("index").Parse(indexPageTemplateHTML))

// IndexPageData represents the data for the landing page
type IndexPageData struct {
	Title       string
	Name        string
	State       string
	DisplayName string
	// Authenticated reveals the download form
	Authenticated bool
	CSRFToken     string
	// CleanURL replaces the address once the page loads, dropping callback
	// parameters. Empty when the address needs no rewrite.
	CleanURL    string
	Message     string
	MessageType string // "success" or "error"
	ShowViews   bool
	Views       int64
	Prices      []widgets.Price
	MailEnabled bool
}
