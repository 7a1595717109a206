package httpapi

import (
	"net/http"

	"github.com/jmoura/parley/internal/store"
)

type updateSettingsRequest struct {
	Model        string  `json:"model" validate:"max=128"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt string  `json:"systemPrompt" validate:"max=10000"`
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(ownerID(r))
	if err != nil {
		writeOpError(w, err)
		return
	}
	if s == nil {
		s = &store.ModelSettings{}
	}
	respondJSON(w, http.StatusOK, s)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := store.ModelSettings{
		Model:        req.Model,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
	}
	if err := h.store.SaveSettings(ownerID(r), s); err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}
