package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoura/parley/internal/store"
)

// Attachment text arrives pre-extracted; binary parsing happens outside this
// system.
type createAttachmentRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Kind string `json:"kind" validate:"max=64"`
	Text string `json:"text" validate:"required"`
}

func (h *Handler) handleCreateAttachment(w http.ResponseWriter, r *http.Request) {
	var req createAttachmentRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	att := store.Attachment{
		ID:        uuid.NewString(),
		OwnerID:   ownerID(r),
		Name:      req.Name,
		Kind:      req.Kind,
		Text:      req.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveAttachment(att); err != nil {
		writeOpError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":   att.ID,
		"name": att.Name,
		"kind": att.Kind,
	})
}
