package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoura/parley/internal/relay"
	"github.com/jmoura/parley/internal/store"
)

type sendMessageRequest struct {
	ConversationID string   `json:"conversationId" validate:"required"`
	Content        string   `json:"content" validate:"required,max=50000"`
	AttachmentIDs  []string `json:"attachmentIds"`
}

type regenerateRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=50000"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userTurn, assistantTurn, err := h.coord.SubmitTurn(r.Context(), ownerID(r), req.ConversationID, req.Content, req.AttachmentIDs)
	if err != nil {
		writeOpError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]*store.Turn{
		"userMessage":      userTurn,
		"assistantMessage": assistantTurn,
	})
}

func (h *Handler) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sink := &sseSink{w: w, flusher: flusher}
	err := h.coord.SubmitTurnStream(r.Context(), ownerID(r), req.ConversationID, req.Content, req.AttachmentIDs, sink)
	if err != nil {
		// Before the first event the connection is still a plain JSON
		// response; afterwards the relay has already reported on-channel.
		if !sink.started {
			writeOpError(w, err)
			return
		}
		slog.Warn("stream aborted", "conversation_id", req.ConversationID, "error", err)
	}
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.coord.Regenerate(r.Context(), ownerID(r), req.ConversationID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.coord.EditTurn(r.Context(), ownerID(r), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.DeleteTurn(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}

// sseSink writes relay events as server-sent events. Headers go out lazily on
// the first Send so pre-stream failures can still use a JSON status response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseSink) Send(ev relay.Event) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
