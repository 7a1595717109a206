package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoura/parley/internal/store"
)

const (
	defaultTitle    = "New Chat"
	listLimit       = 100
	defaultPageSize = 50
)

type createConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type renameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" {
		req.Title = defaultTitle
	}

	now := time.Now().UTC()
	conv := store.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID(r),
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.SaveConversation(conv); err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.store.ListConversations(ownerID(r), listLimit)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.ownedConversation(w, r)
	if conv == nil {
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameConversationRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv := h.ownedConversation(w, r)
	if conv == nil {
		return
	}

	conv.Title = req.Title
	conv.UpdatedAt = time.Now().UTC()
	if err := h.store.SaveConversation(*conv); err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.ownedConversation(w, r)
	if conv == nil {
		return
	}

	if err := h.store.DeleteConversation(conv.ID); err != nil {
		writeOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

// handleListMessages returns a chronological page of turns, optionally
// bounded by a "before" timestamp and a limit.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv := h.ownedConversation(w, r)
	if conv == nil {
		return
	}

	turns, err := h.store.ListTurns(conv.ID)
	if err != nil {
		writeOpError(w, err)
		return
	}

	if rawBefore := r.URL.Query().Get("before"); rawBefore != "" {
		before, err := time.Parse(time.RFC3339, rawBefore)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		filtered := turns[:0]
		for _, t := range turns {
			if t.CreatedAt.Before(before) {
				filtered = append(filtered, t)
			}
		}
		turns = filtered
	}

	limit := defaultPageSize
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		if v, err := strconv.Atoi(rawLimit); err == nil && v > 0 {
			limit = v
		}
	}
	if len(turns) > limit {
		// Newest page, still returned in chronological order.
		turns = turns[len(turns)-limit:]
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	respondJSON(w, http.StatusOK, turns)
}

func (h *Handler) handleExportConversation(w http.ResponseWriter, r *http.Request) {
	conv := h.ownedConversation(w, r)
	if conv == nil {
		return
	}

	turns, err := h.store.ListTurns(conv.ID)
	if err != nil {
		writeOpError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		respondJSON(w, http.StatusOK, map[string]any{
			"conversation": conv,
			"messages":     turns,
		})
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", conv.Title+".md"))
		fmt.Fprint(w, exportMarkdown(conv, turns))
	default:
		respondError(w, http.StatusBadRequest, "unsupported format")
	}
}

func exportMarkdown(conv *store.Conversation, turns []store.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nExported %s\n", conv.Title, time.Now().UTC().Format(time.RFC3339))
	for _, t := range turns {
		label := "Assistant"
		if t.Role == store.RoleUser {
			label = "User"
		}
		fmt.Fprintf(&b, "\n---\n\n**%s** (%s)\n\n%s\n", label, t.CreatedAt.Format(time.RFC3339), t.Content)
	}
	return b.String()
}

// ownedConversation loads the {id} conversation and enforces ownership,
// writing the error response itself when it returns nil.
func (h *Handler) ownedConversation(w http.ResponseWriter, r *http.Request) *store.Conversation {
	conv, err := h.store.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("conversation lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return nil
	}
	if conv == nil || conv.OwnerID != ownerID(r) {
		respondError(w, http.StatusNotFound, "Conversation not found")
		return nil
	}
	return conv
}
