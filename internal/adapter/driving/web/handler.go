// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/wabridge/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/wabridge/internal/adapter/driving/web/templates/pages"
	"github.com/ericfisherdev/wabridge/internal/application"
)

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	state  application.StateReader
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(state application.StateReader, logger *slog.Logger) *Handler {
	return &Handler{
		state:  state,
		logger: logger,
	}
}

// Home renders the UI shell with the current connection summary. The pairing
// image itself arrives over the push channel.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	page := toPageViewModel(h.state.State())
	layout := templates.Layout(page.Title, pages.Home(page))

	w.Header().Set("Cache-Control", "no-store")
	if err := layout.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render home page", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
