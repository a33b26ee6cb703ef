package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dastan/internal/schema"
	"github.com/starford/dastan/internal/sse"
)

// GetSettings handles GET /api/settings.
//
//	@Summary		Get reader settings
//	@Tags			settings
//	@Produce		json
//	@Success		200		{object}	Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// UpdateSettings handles PUT /api/settings.
//
//	@Summary		Update reader settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpdateSettingsRequest	true	"Changed settings"
//	@Success		200		{object}	Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Empty() {
		writeJSON(w, http.StatusBadRequest, errorBody("no settings to update"))
		return
	}
	next, err := h.settings.Update(r.Context(), req)
	if err != nil {
		h.logger.Error("update settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if h.broker != nil {
		h.broker.Publish(sse.Event{Type: sse.TypeSettingsUpdated, Data: next})
	}
	writeJSON(w, http.StatusOK, next)
}

// Tools handles GET /api/tools.
//
//	@Summary		List reading tools and how they are served
//	@Tags			tools
//	@Produce		json
//	@Success		200		{object}	ToolsResponse
//	@Security		BearerAuth
//	@Router			/tools [get]
func (h *Handler) Tools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolsResponse{Tools: h.reader.Tools()})
}

// Schema handles GET /api/schemas/{name}.
//
//	@Summary		Get the JSON Schema a tool response must satisfy
//	@Tags			tools
//	@Produce		json
//	@Param			name	path		string	true	"Schema name"
//	@Success		200		{object}	map[string]any
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schemas/{name} [get]
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	d, ok := schema.ByName(chi.URLParam(r, "name"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown schema"))
		return
	}
	writeJSON(w, http.StatusOK, d.JSONSchema())
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready handles GET /health/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
